package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modelgrid/modelgrid/internal/deployment"
	"github.com/modelgrid/modelgrid/internal/pricing"
	"github.com/modelgrid/modelgrid/internal/provider"
)

// Service exposes the orchestrator's operations to collaborators:
// create, terminate, and status. Provisioning and termination run as
// independent asynchronous tasks; the triggering call returns as soon
// as the deployment row reflects the requested state.
type Service struct {
	store    deployment.Store
	catalog  *pricing.Catalog
	pipeline *Pipeline
	adapters AdapterFactory
	observer Observer

	// synchronous runs background work inline; used by tests and the
	// CLI's --wait mode.
	synchronous bool

	wg sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSynchronous makes background work run inline instead of in a
// goroutine, so the caller observes terminal state on return.
func WithSynchronous() ServiceOption {
	return func(s *Service) { s.synchronous = true }
}

// WithObserver sets the event sink.
func WithObserver(observer Observer) ServiceOption {
	return func(s *Service) { s.observer = observer }
}

// NewService wires the exposed operations over a store, pricing
// catalog, and adapter factory.
func NewService(store deployment.Store, catalog *pricing.Catalog, adapters AdapterFactory, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		catalog:  catalog,
		adapters: adapters,
		observer: NewLogObserver(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pipeline = NewPipeline(store, adapters, s.observer)
	return s
}

// Pipeline exposes the underlying pipeline, e.g. for poll tuning.
func (s *Service) Pipeline() *Pipeline { return s.pipeline }

// Wait blocks until all background provisioning/termination tasks
// settle. Used on shutdown and in tests.
func (s *Service) Wait() { s.wg.Wait() }

// CreateDeployment validates and prices the request, persists the
// deployment in pending, and starts provisioning. The returned
// deployment reflects the pending row; provisioning happens in the
// background.
func (s *Service) CreateDeployment(ctx context.Context, req deployment.Request) (*deployment.Deployment, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deployment request: %w", err)
	}
	if err := provider.SupportsGPU(req.Provider, req.GPUType, req.GPUCount); err != nil {
		return nil, fmt.Errorf("invalid deployment request: %w", err)
	}

	quote, err := s.catalog.Quote(req.Provider, req.GPUType, req.GPUCount, req.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to quote deployment: %w", err)
	}
	if quote.RegionFallback() || quote.GPUTypeFallback() {
		log.Printf("[pricing] %s quoted with fallback: region %s, gpu %s",
			req.Name, quote.AppliedRegion, quote.AppliedGPUType)
	}

	d := deployment.New(uuid.NewString(), req, quote.HourlyCost, time.Now().UTC())
	if err := s.store.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to save deployment: %w", err)
	}

	s.background(func() {
		// Detached from the request context: provisioning outlives the
		// triggering call.
		if err := s.pipeline.Provision(context.Background(), d.ID); err != nil {
			log.Printf("[orchestrator] provisioning %s: %v", d.ID, err)
		}
	})

	return d.Clone(), nil
}

// TerminateDeployment moves the deployment toward terminated. It is
// idempotent: terminating an already-terminated deployment (or an
// error one, whose resources were already cleaned) is a no-op. When
// the deployment is still provisioning, the termination is queued and
// the pipeline honors it after the in-flight step settles.
func (s *Service) TerminateDeployment(ctx context.Context, id string) error {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	switch d.Status {
	case deployment.StatusTerminated, deployment.StatusError, deployment.StatusTerminating:
		return nil
	}

	var prev deployment.Status
	d, err = s.mutate(ctx, id, func(d *deployment.Deployment) error {
		prev = d.Status
		switch d.Status {
		case deployment.StatusTerminated, deployment.StatusError, deployment.StatusTerminating:
			return errAlreadySettled
		}
		return d.Transition(deployment.StatusTerminating)
	})
	if errors.Is(err, errAlreadySettled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to terminate deployment %s: %w", id, err)
	}

	// If the pipeline is mid-provisioning it observes the terminating
	// status between steps and runs cleanup itself; tearing down here
	// as well would race a step still in flight.
	if prev == deployment.StatusProvisioning {
		return nil
	}

	s.background(func() {
		if err := s.runTermination(context.Background(), id, d.Provider); err != nil {
			log.Printf("[orchestrator] terminating %s: %v", id, err)
		}
	})
	return nil
}

var errAlreadySettled = errors.New("deployment already settled")

// runTermination cleans up an active deployment's resources and always
// reaches terminated, recording anything that could not be removed.
func (s *Service) runTermination(ctx context.Context, id string, prov provider.ID) error {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	var residual []deployment.Resource
	adapter, err := s.adapters(ctx, prov)
	if err != nil {
		// Cleanup impossible without an adapter; everything is residual.
		residual = d.ProvisionedResources
		log.Printf("[orchestrator] no adapter for %s, keeping %d residual resources: %v",
			prov, len(residual), err)
	} else {
		residual = s.pipeline.cleanup.Run(ctx, adapter, d)
	}

	final, err := s.mutate(ctx, id, func(d *deployment.Deployment) error {
		d.ResidualResources = residual
		return d.Transition(deployment.StatusTerminated)
	})
	if err != nil {
		return fmt.Errorf("failed to finish termination of %s: %w", id, err)
	}

	activeDeployments.WithLabelValues(string(final.Provider)).Dec()
	s.observer.Event(Event{
		Type:         EventDeploymentTerminated,
		DeploymentID: id,
	})
	return nil
}

// StatusSnapshot is a coherent view of a deployment for callers.
type StatusSnapshot struct {
	ID           string            `json:"id"`
	Status       deployment.Status `json:"status"`
	EndpointURL  string            `json:"endpoint_url,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Degraded     bool              `json:"degraded,omitempty"`
	CostPerHour  float64           `json:"cost_per_hour"`

	// ResidualResources lists resources cleanup could not remove.
	ResidualResources []deployment.Resource `json:"residual_resources,omitempty"`
}

// GetDeploymentStatus returns a snapshot of the deployment. On error
// status the message is populated; on active the endpoint is set.
func (s *Service) GetDeploymentStatus(ctx context.Context, id string) (StatusSnapshot, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return StatusSnapshot{}, err
	}
	return StatusSnapshot{
		ID:                d.ID,
		Status:            d.Status,
		EndpointURL:       d.EndpointURL,
		ErrorMessage:      d.ErrorMessage,
		Degraded:          d.Degraded,
		CostPerHour:       d.CostPerHour,
		ResidualResources: d.ResidualResources,
	}, nil
}

// ListDeployments returns the organization's deployments.
func (s *Service) ListDeployments(ctx context.Context, orgID string) ([]*deployment.Deployment, error) {
	return s.store.ListByOrganization(ctx, orgID)
}

func (s *Service) background(fn func()) {
	if s.synchronous {
		fn()
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// mutate mirrors Pipeline.mutate for the service's own writes.
func (s *Service) mutate(ctx context.Context, id string, fn func(*deployment.Deployment) error) (*deployment.Deployment, error) {
	for {
		d, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(d); err != nil {
			return nil, err
		}
		err = s.store.Save(ctx, d)
		if errors.Is(err, deployment.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}
