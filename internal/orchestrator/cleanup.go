package orchestrator

import (
	"context"

	"github.com/modelgrid/modelgrid/internal/deployment"
	"github.com/modelgrid/modelgrid/internal/provider"
	"github.com/modelgrid/modelgrid/internal/util/retry"
)

// Cleanup tears down provisioned resources in reverse creation order.
// It runs for provisioning failures and for explicit termination.
type Cleanup struct {
	observer  Observer
	retryOpts []retry.Option
}

// NewCleanup creates a cleanup manager.
func NewCleanup(observer Observer) *Cleanup {
	if observer == nil {
		observer = NewLogObserver()
	}
	return &Cleanup{observer: observer}
}

// Run deletes every provisioned resource, newest first, mirroring the
// dependency direction (compute before storage before network). It is
// best-effort: a failed delete is logged and the loop continues, so
// every resource gets an attempt. Resources that could not be removed
// are returned for the caller to preserve on the deployment record for
// manual reconciliation.
func (c *Cleanup) Run(ctx context.Context, adapter provider.Adapter, d *deployment.Deployment) []deployment.Resource {
	var residual []deployment.Resource

	resources := d.ProvisionedResources
	for i := len(resources) - 1; i >= 0; i-- {
		res := resources[i]

		err := retry.Do(ctx, func() error {
			err := provider.Delete(ctx, adapter, res.Handle)
			if err == nil || provider.IsTransient(err) {
				return err
			}
			return retry.Permanent(err)
		}, c.retryOpts...)
		if err != nil {
			cleanupFailuresTotal.WithLabelValues(string(adapter.Name()), string(res.Kind)).Inc()
			residual = append(residual, res)
			c.observer.Event(Event{
				Type:         EventResourceDeleteFailed,
				DeploymentID: d.ID,
				Resource:     res.Handle.String(),
				Message:      err.Error(),
			})
			continue
		}

		c.observer.Event(Event{
			Type:         EventResourceDeleted,
			DeploymentID: d.ID,
			Resource:     res.Handle.String(),
		})
	}

	return residual
}
