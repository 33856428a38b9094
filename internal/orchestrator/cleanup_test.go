package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgrid/modelgrid/internal/deployment"
	"github.com/modelgrid/modelgrid/internal/provider"
	"github.com/modelgrid/modelgrid/internal/util/retry"
)

func fastCleanup() *Cleanup {
	c := NewCleanup(NullObserver{})
	c.retryOpts = []retry.Option{retry.WithInitialDelay(time.Millisecond), retry.WithMaxDelay(time.Millisecond)}
	return c
}

func provisionedDeployment() *deployment.Deployment {
	d := deployment.New("dep-cleanup", testRequest(), 1.0, time.Now().UTC())
	d.AppendResource(provider.Handle{Kind: provider.KindNetwork, ID: "net-1"})
	d.AppendResource(provider.Handle{Kind: provider.KindStorage, ID: "store-1"})
	d.AppendResource(provider.Handle{Kind: provider.KindCompute, ID: "svc-1"})
	return d
}

func TestCleanup_Run_DeletesInReverseCreationOrder(t *testing.T) {
	adapter := provider.NewMock()

	residual := fastCleanup().Run(context.Background(), adapter, provisionedDeployment())

	assert.Empty(t, residual)
	assert.Equal(t, []provider.Handle{
		{Kind: provider.KindCompute, ID: "svc-1"},
		{Kind: provider.KindStorage, ID: "store-1"},
		{Kind: provider.KindNetwork, ID: "net-1"},
	}, adapter.Deleted())
}

func TestCleanup_Run_ContinuesPastFailures(t *testing.T) {
	adapter := provider.NewMock()
	adapter.DeleteStorageFunc = func(ctx context.Context, handle provider.Handle) error {
		return provider.Fatal(provider.Mock, "delete storage", errors.New("bucket not empty"))
	}

	residual := fastCleanup().Run(context.Background(), adapter, provisionedDeployment())

	// The failed storage delete must not stop the network delete behind it.
	require.Len(t, residual, 1)
	assert.Equal(t, provider.KindStorage, residual[0].Kind)
	assert.Equal(t, "store-1", residual[0].Handle.ID)

	assert.Equal(t, []provider.ResourceKind{
		provider.KindCompute,
		provider.KindStorage,
		provider.KindNetwork,
	}, deletedKinds(adapter.Deleted()))
}

func TestCleanup_Run_RetriesTransientDeletes(t *testing.T) {
	adapter := provider.NewMock()

	attempts := 0
	adapter.DeleteNetworkFunc = func(ctx context.Context, handle provider.Handle) error {
		attempts++
		if attempts < 2 {
			return provider.Transient(provider.Mock, "delete network", errors.New("throttled"))
		}
		return nil
	}

	residual := fastCleanup().Run(context.Background(), adapter, provisionedDeployment())

	assert.Empty(t, residual)
	assert.Equal(t, 2, attempts)
}

func TestCleanup_Run_NothingProvisioned(t *testing.T) {
	adapter := provider.NewMock()
	d := deployment.New("dep-empty", testRequest(), 1.0, time.Now().UTC())

	residual := fastCleanup().Run(context.Background(), adapter, d)

	assert.Empty(t, residual)
	assert.Empty(t, adapter.Deleted())
}
