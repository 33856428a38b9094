package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelgrid/modelgrid/internal/deployment"
	"github.com/modelgrid/modelgrid/internal/provider"
	"github.com/modelgrid/modelgrid/internal/stack"
	"github.com/modelgrid/modelgrid/internal/util/retry"
)

// AdapterFactory resolves the adapter variant for a provider. The mock
// variant is handed out only when sandbox mode is explicitly enabled.
type AdapterFactory func(ctx context.Context, id provider.ID) (provider.Adapter, error)

// Pipeline turns a pending deployment into running infrastructure: it
// executes the ordered provisioning steps against the deployment's
// provider adapter, persists every created resource immediately, and
// tears down partial state when a step fails for good.
type Pipeline struct {
	store     deployment.Store
	adapters  AdapterFactory
	generator *stack.Generator
	cleanup   *Cleanup
	observer  Observer

	// Status polling for the monitoring hookup step.
	statusPollInterval time.Duration
	statusTimeout      time.Duration

	retryOpts []retry.Option
}

// NewPipeline creates a pipeline over the given store and adapters.
func NewPipeline(store deployment.Store, adapters AdapterFactory, observer Observer) *Pipeline {
	if observer == nil {
		observer = NewLogObserver()
	}
	return &Pipeline{
		store:              store,
		adapters:           adapters,
		generator:          stack.NewGenerator(),
		cleanup:            NewCleanup(observer),
		observer:           observer,
		statusPollInterval: 10 * time.Second,
		statusTimeout:      15 * time.Minute,
	}
}

// SetStatusPolling overrides the monitoring step's poll cadence.
func (p *Pipeline) SetStatusPolling(interval, timeout time.Duration) {
	p.statusPollInterval = interval
	p.statusTimeout = timeout
}

// SetRetryOptions overrides the per-step retry behavior.
func (p *Pipeline) SetRetryOptions(opts ...retry.Option) {
	p.retryOpts = opts
	p.cleanup.retryOpts = opts
}

// errTerminationRequested stops the step loop when a queued
// termination is observed between steps.
var errTerminationRequested = errors.New("termination requested")

// Provision runs the full pipeline for the deployment. It is invoked
// asynchronously right after the deployment is created in pending.
func (p *Pipeline) Provision(ctx context.Context, id string) error {
	start := time.Now()

	d, err := p.mutate(ctx, id, func(d *deployment.Deployment) error {
		return d.Transition(deployment.StatusProvisioning)
	})
	if err != nil {
		return fmt.Errorf("failed to start provisioning %s: %w", id, err)
	}

	p.observer.Event(Event{
		Type:         EventProvisioningStarted,
		DeploymentID: id,
		Message:      fmt.Sprintf("provisioning on %s in %s", d.Provider, d.Region),
	})

	s, err := p.generator.Generate(d)
	if err != nil {
		return p.fail(ctx, id, d.Provider, err)
	}

	adapter, err := p.adapters(ctx, d.Provider)
	if err != nil {
		return p.fail(ctx, id, d.Provider, err)
	}

	endpointURL, err := p.runSteps(ctx, id, adapter, s)
	switch {
	case errors.Is(err, errTerminationRequested):
		// The terminate entry point queued a termination while a step
		// was in flight; honor it now that the step has settled.
		return p.terminate(ctx, id, adapter)
	case err != nil:
		return p.fail(ctx, id, d.Provider, err)
	}

	final, err := p.mutate(ctx, id, func(d *deployment.Deployment) error {
		// A termination can land after the last between-step check;
		// the activation write is the final arbiter.
		if d.Status == deployment.StatusTerminating {
			return errTerminationRequested
		}
		d.EndpointURL = endpointURL
		return d.Transition(deployment.StatusActive)
	})
	switch {
	case errors.Is(err, errTerminationRequested):
		return p.terminate(ctx, id, adapter)
	case err != nil:
		return fmt.Errorf("failed to activate %s: %w", id, err)
	}

	provisionTotal.WithLabelValues(string(d.Provider), "success").Inc()
	provisionDuration.WithLabelValues(string(d.Provider)).Observe(time.Since(start).Seconds())
	activeDeployments.WithLabelValues(string(d.Provider)).Inc()
	if final.Degraded {
		degradedDeploymentsTotal.WithLabelValues(string(d.Provider)).Inc()
	}

	p.observer.Event(Event{
		Type:         EventDeploymentActive,
		DeploymentID: id,
		Message:      endpointURL,
	})
	return nil
}

// runSteps executes the ordered provisioning steps. It returns the
// primary service's endpoint URL on success.
func (p *Pipeline) runSteps(ctx context.Context, id string, adapter provider.Adapter, s *stack.Stack) (string, error) {
	// Step 1: network.
	network, err := p.createStep(ctx, id, adapter, "network", func(ctx context.Context) (provider.Handle, error) {
		return adapter.CreateNetwork(ctx, s.NetworkSpec())
	})
	if err != nil {
		return "", err
	}

	// Step 2: storage.
	storage, err := p.createStep(ctx, id, adapter, "storage", func(ctx context.Context) (provider.Handle, error) {
		return adapter.CreateStorage(ctx, s.StorageSpec(network))
	})
	if err != nil {
		return "", err
	}

	// Step 3: compute. The primary model server comes first; auxiliary
	// services only depend on the shared infrastructure above, so they
	// provision concurrently once it exists.
	primary, err := p.computeStep(ctx, id, adapter, s, s.Primary(), network, storage)
	if err != nil {
		return "", err
	}

	if aux := s.Auxiliary(); len(aux) > 0 {
		tasks := make([]task, 0, len(aux))
		for _, svc := range aux {
			tasks = append(tasks, task{
				name: string(svc.Role),
				run: func(ctx context.Context) error {
					_, err := p.computeStep(ctx, id, adapter, s, svc, network, storage)
					return err
				},
			})
		}
		if err := runParallel(ctx, tasks); err != nil {
			return "", err
		}
		if err := p.checkTermination(ctx, id); err != nil {
			return "", err
		}
	}

	// Step 4: public access for the primary service.
	if err := p.remoteStep(ctx, id, adapter, "public-access", func(ctx context.Context) error {
		return adapter.SetPublicAccess(ctx, primary.Handle)
	}); err != nil {
		return "", err
	}
	if err := p.checkTermination(ctx, id); err != nil {
		return "", err
	}

	// Step 5: monitoring hookup — poll until the primary service
	// reports ready.
	if err := p.waitReady(ctx, id, adapter, primary.Handle); err != nil {
		return "", err
	}

	return primary.URL, nil
}

// createStep provisions one resource with retry, records it on the
// deployment, and persists immediately so a crash mid-pipeline leaves
// an accurate cleanup record.
func (p *Pipeline) createStep(ctx context.Context, id string, adapter provider.Adapter, step string,
	create func(context.Context) (provider.Handle, error)) (provider.Handle, error) {

	if err := p.checkTermination(ctx, id); err != nil {
		return provider.Handle{}, err
	}

	var handle provider.Handle
	err := p.withRetry(ctx, adapter.Name(), step, func() error {
		h, err := create(ctx)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	if err != nil {
		return provider.Handle{}, fmt.Errorf("step %s: %w", step, err)
	}

	if err := p.recordResource(ctx, id, step, handle); err != nil {
		return provider.Handle{}, err
	}
	return handle, nil
}

// computeStep provisions one compute service and propagates a degraded
// capacity fallback into the deployment record.
func (p *Pipeline) computeStep(ctx context.Context, id string, adapter provider.Adapter, s *stack.Stack,
	svc stack.Service, network, storage provider.Handle) (provider.ComputeResult, error) {

	if err := p.checkTermination(ctx, id); err != nil {
		return provider.ComputeResult{}, err
	}

	step := "compute/" + string(svc.Role)
	var result provider.ComputeResult
	err := p.withRetry(ctx, adapter.Name(), step, func() error {
		r, err := adapter.CreateComputeService(ctx, s.ComputeSpec(svc, network, storage))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return provider.ComputeResult{}, fmt.Errorf("step %s: %w", step, err)
	}

	if _, err := p.mutate(ctx, id, func(d *deployment.Deployment) error {
		d.AppendResource(result.Handle)
		if result.Degraded {
			d.Degraded = true
			if d.Config == nil {
				d.Config = map[string]string{}
			}
			d.Config["degraded"] = "true"
		}
		return nil
	}); err != nil {
		return provider.ComputeResult{}, err
	}

	if result.Degraded {
		p.observer.Event(Event{
			Type:         EventDegradedFallback,
			DeploymentID: id,
			Step:         step,
			Resource:     result.Handle.String(),
			Message:      "capacity fallback substituted for requested GPU configuration",
		})
	}

	p.stepCompleted(id, step, result.Handle)
	return result, nil
}

// remoteStep runs a retryable remote call that creates no resource.
func (p *Pipeline) remoteStep(ctx context.Context, id string, adapter provider.Adapter, step string,
	run func(context.Context) error) error {

	if err := p.withRetry(ctx, adapter.Name(), step, func() error { return run(ctx) }); err != nil {
		return fmt.Errorf("step %s: %w", step, err)
	}
	p.observer.Event(Event{
		Type:         EventStepCompleted,
		DeploymentID: id,
		Step:         step,
	})
	return nil
}

// waitReady polls the compute service status until ready, failed, or
// the polling window closes.
func (p *Pipeline) waitReady(ctx context.Context, id string, adapter provider.Adapter, handle provider.Handle) error {
	deadline := time.Now().Add(p.statusTimeout)
	for {
		status, err := adapter.GetStatus(ctx, handle)
		if err != nil && provider.IsFatal(err) {
			return fmt.Errorf("step monitoring: %w", err)
		}
		if err == nil {
			switch status {
			case provider.StatusReady:
				p.observer.Event(Event{
					Type:         EventStepCompleted,
					DeploymentID: id,
					Step:         "monitoring",
				})
				return nil
			case provider.StatusFailed:
				return fmt.Errorf("step monitoring: compute service %s failed to start", handle.ID)
			}
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("step monitoring: compute service %s not ready after %s", handle.ID, p.statusTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.statusPollInterval):
		}

		if err := p.checkTermination(ctx, id); err != nil {
			return err
		}
	}
}

// withRetry wraps a remote call with bounded exponential backoff.
// Transient provider errors are retried; capacity and fatal errors are
// not (capacity was already consumed by the adapter's fallback chain).
func (p *Pipeline) withRetry(ctx context.Context, id provider.ID, step string, op func() error) error {
	attempt := 0
	return retry.Do(ctx, func() error {
		attempt++
		if attempt > 1 {
			stepRetriesTotal.WithLabelValues(string(id), step).Inc()
		}
		err := op()
		if err == nil {
			return nil
		}
		if provider.IsTransient(err) {
			return err
		}
		return retry.Permanent(err)
	}, p.retryOpts...)
}

// recordResource appends a created resource and persists it.
func (p *Pipeline) recordResource(ctx context.Context, id, step string, handle provider.Handle) error {
	if _, err := p.mutate(ctx, id, func(d *deployment.Deployment) error {
		d.AppendResource(handle)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to record %s: %w", handle, err)
	}
	p.stepCompleted(id, step, handle)
	return nil
}

func (p *Pipeline) stepCompleted(id, step string, handle provider.Handle) {
	p.observer.Event(Event{
		Type:         EventStepCompleted,
		DeploymentID: id,
		Step:         step,
		Resource:     handle.String(),
	})
	p.observer.Event(Event{
		Type:         EventResourceCreated,
		DeploymentID: id,
		Resource:     handle.String(),
	})
}

// checkTermination reloads the deployment and stops the pipeline when
// the termination entry point queued a terminating transition. The
// check runs only between steps: an in-flight remote call always
// settles first, so cleanup never races a creation.
func (p *Pipeline) checkTermination(ctx context.Context, id string) error {
	d, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.Status == deployment.StatusTerminating {
		return errTerminationRequested
	}
	return nil
}

// fail cleans up partial resources and records the causing error.
func (p *Pipeline) fail(ctx context.Context, id string, prov provider.ID, cause error) error {
	provisionTotal.WithLabelValues(string(prov), "error").Inc()

	d, err := p.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("provisioning failed (%v) and deployment unreadable: %w", cause, err)
	}

	var residual []deployment.Resource
	if adapter, aerr := p.adapters(ctx, prov); aerr == nil {
		residual = p.cleanup.Run(ctx, adapter, d)
	} else {
		// No adapter - everything provisioned is residual.
		residual = d.ProvisionedResources
	}

	final, err := p.mutate(ctx, id, func(d *deployment.Deployment) error {
		d.ResidualResources = residual
		d.ErrorMessage = cause.Error()
		// A termination queued concurrently with the failing step wins:
		// resources are already cleaned up, so converge to terminated.
		if d.Status == deployment.StatusTerminating {
			return d.Transition(deployment.StatusTerminated)
		}
		return d.Transition(deployment.StatusError)
	})
	if err != nil {
		return fmt.Errorf("provisioning failed (%v) and error not recorded: %w", cause, err)
	}

	eventType := EventDeploymentFailed
	if final.Status == deployment.StatusTerminated {
		eventType = EventDeploymentTerminated
	}
	p.observer.Event(Event{
		Type:         eventType,
		DeploymentID: id,
		Message:      cause.Error(),
	})
	return cause
}

// terminate tears everything down after a queued termination and
// always reaches terminated, keeping residual resources on record.
func (p *Pipeline) terminate(ctx context.Context, id string, adapter provider.Adapter) error {
	d, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}

	residual := p.cleanup.Run(ctx, adapter, d)

	if _, err := p.mutate(ctx, id, func(d *deployment.Deployment) error {
		d.ResidualResources = residual
		return d.Transition(deployment.StatusTerminated)
	}); err != nil {
		return fmt.Errorf("failed to finish termination of %s: %w", id, err)
	}

	p.observer.Event(Event{
		Type:         EventDeploymentTerminated,
		DeploymentID: id,
	})
	return nil
}

// mutate applies fn to the freshest copy of the deployment and saves
// it, retrying on optimistic-concurrency conflicts. The pipeline and
// the termination entry point both write through this helper, so
// neither can lose the other's update.
func (p *Pipeline) mutate(ctx context.Context, id string, fn func(*deployment.Deployment) error) (*deployment.Deployment, error) {
	for {
		d, err := p.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(d); err != nil {
			return nil, err
		}
		err = p.store.Save(ctx, d)
		if errors.Is(err, deployment.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// task is a named concurrent operation.
type task struct {
	name string
	run  func(context.Context) error
}

// runParallel starts all tasks concurrently, waits for every one to
// settle, and returns the first error. A queued termination outranks
// other failures so the pipeline honors it instead of reporting error.
func runParallel(ctx context.Context, tasks []task) error {
	if len(tasks) == 0 {
		return nil
	}

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(tasks))

	for _, t := range tasks {
		t := t
		go func() {
			results <- result{name: t.name, err: t.run(ctx)}
		}()
	}

	var firstErr error
	var termination error
	for i := 0; i < len(tasks); i++ {
		res := <-results
		if res.err == nil {
			continue
		}
		if errors.Is(res.err, errTerminationRequested) {
			termination = res.err
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("failed to provision %s: %w", res.name, res.err)
		}
	}
	if termination != nil {
		return termination
	}
	return firstErr
}
