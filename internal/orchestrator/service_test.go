package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgrid/modelgrid/internal/deployment"
	"github.com/modelgrid/modelgrid/internal/pricing"
	"github.com/modelgrid/modelgrid/internal/provider"
	"github.com/modelgrid/modelgrid/internal/util/retry"
)

func testService(adapter provider.Adapter, opts ...ServiceOption) (*Service, *deployment.MemoryStore) {
	store := deployment.NewMemoryStore()
	factory := func(ctx context.Context, id provider.ID) (provider.Adapter, error) {
		return adapter, nil
	}
	opts = append([]ServiceOption{WithSynchronous(), WithObserver(NullObserver{})}, opts...)
	svc := NewService(store, pricing.NewCatalog(), factory, opts...)
	svc.Pipeline().SetStatusPolling(time.Millisecond, 250*time.Millisecond)
	svc.Pipeline().SetRetryOptions(retry.WithInitialDelay(time.Millisecond), retry.WithMaxDelay(time.Millisecond))
	return svc, store
}

func TestService_CreateDeployment_Success(t *testing.T) {
	svc, _ := testService(provider.NewMock())

	d, err := svc.CreateDeployment(context.Background(), testRequest())
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	assert.Greater(t, d.CostPerHour, 0.0)

	status, err := svc.GetDeploymentStatus(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusActive, status.Status)
	assert.NotEmpty(t, status.EndpointURL)
	assert.Empty(t, status.ErrorMessage)
	assert.False(t, status.Degraded)
}

func TestService_CreateDeployment_CostFixedAtCreation(t *testing.T) {
	svc, store := testService(provider.NewMock())

	req := testRequest()
	req.Provider = provider.GCP
	req.Region = "us-central1"
	req.GPUType = provider.GPUTypeA100_80
	req.GPUCount = 2

	d, err := svc.CreateDeployment(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 8.21, d.CostPerHour, 1e-9)

	got, err := store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.InDelta(t, 8.21, got.CostPerHour, 1e-9)
}

func TestService_CreateDeployment_InvalidRequest(t *testing.T) {
	svc, store := testService(provider.NewMock())

	req := testRequest()
	req.OrganizationID = ""

	_, err := svc.CreateDeployment(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "organization_id")

	list, err := store.ListByOrganization(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_CreateDeployment_UnsupportedGPURejected(t *testing.T) {
	adapter := provider.NewMock()
	svc, store := testService(adapter)

	req := testRequest()
	req.Provider = provider.Azure
	req.Region = "eastus"
	req.GPUType = provider.GPUTypeL40S
	req.GPUCount = 1

	_, err := svc.CreateDeployment(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not offer GPU type")

	// An impossible provider/GPU pair must fail before anything is
	// created or any provider call is made.
	list, lerr := store.ListByOrganization(context.Background(), "org-1")
	require.NoError(t, lerr)
	assert.Empty(t, list)
	assert.Empty(t, adapter.Calls())
}

func TestService_CreateDeployment_AzureSmallTierAccepted(t *testing.T) {
	svc, _ := testService(provider.NewMock())

	// The small tier defaults to A100-40GB; Azure must size it.
	req := testRequest()
	req.Provider = provider.Azure
	req.Region = "eastus"
	req.ModelSize = deployment.SizeSmall
	req.GPUType = ""
	req.GPUCount = 0

	d, err := svc.CreateDeployment(context.Background(), req)
	require.NoError(t, err)

	status, err := svc.GetDeploymentStatus(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusActive, status.Status)
}

func TestService_CreateDeployment_Async(t *testing.T) {
	adapter := provider.NewMock()
	store := deployment.NewMemoryStore()
	factory := func(ctx context.Context, id provider.ID) (provider.Adapter, error) {
		return adapter, nil
	}
	svc := NewService(store, pricing.NewCatalog(), factory, WithObserver(NullObserver{}))
	svc.Pipeline().SetStatusPolling(time.Millisecond, 250*time.Millisecond)

	d, err := svc.CreateDeployment(context.Background(), testRequest())
	require.NoError(t, err)

	// The create call returns the pending record; provisioning runs in
	// the background.
	assert.Equal(t, deployment.StatusPending, d.Status)

	svc.Wait()

	status, err := svc.GetDeploymentStatus(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusActive, status.Status)
}

func TestService_TerminateDeployment_Active(t *testing.T) {
	adapter := provider.NewMock()
	svc, store := testService(adapter)

	d, err := svc.CreateDeployment(context.Background(), testRequest())
	require.NoError(t, err)

	require.NoError(t, svc.TerminateDeployment(context.Background(), d.ID))

	got, err := store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusTerminated, got.Status)
	assert.Empty(t, got.ResidualResources)
	assert.Equal(t, []provider.ResourceKind{
		provider.KindCompute,
		provider.KindStorage,
		provider.KindNetwork,
	}, deletedKinds(adapter.Deleted()))
}

func TestService_TerminateDeployment_Idempotent(t *testing.T) {
	adapter := provider.NewMock()
	svc, _ := testService(adapter)

	d, err := svc.CreateDeployment(context.Background(), testRequest())
	require.NoError(t, err)

	require.NoError(t, svc.TerminateDeployment(context.Background(), d.ID))
	deletes := len(adapter.Deleted())

	require.NoError(t, svc.TerminateDeployment(context.Background(), d.ID))
	assert.Equal(t, deletes, len(adapter.Deleted()), "second terminate must not touch the provider")
}

func TestService_TerminateDeployment_ErrorStateIsNoOp(t *testing.T) {
	adapter := provider.NewMock()
	adapter.CreateComputeServiceFunc = func(ctx context.Context, spec provider.ComputeSpec) (provider.ComputeResult, error) {
		return provider.ComputeResult{}, provider.Fatal(provider.Mock, "create compute", errors.New("image rejected"))
	}
	svc, store := testService(adapter)

	d, err := svc.CreateDeployment(context.Background(), testRequest())
	require.NoError(t, err)

	got, err := store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	require.Equal(t, deployment.StatusError, got.Status)

	// Resources were already cleaned by the failure path; terminating an
	// errored deployment has nothing left to do.
	deletes := len(adapter.Deleted())
	require.NoError(t, svc.TerminateDeployment(context.Background(), d.ID))

	got, err = store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusError, got.Status)
	assert.Equal(t, deletes, len(adapter.Deleted()))
}

func TestService_TerminateDeployment_PendingRejected(t *testing.T) {
	svc, store := testService(provider.NewMock())

	d := deployment.New("dep-pending", testRequest(), 1.0, time.Now().UTC())
	require.NoError(t, store.Save(context.Background(), d))

	err := svc.TerminateDeployment(context.Background(), d.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, deployment.ErrInvalidTransition)
}

func TestService_TerminateDeployment_NotFound(t *testing.T) {
	svc, _ := testService(provider.NewMock())

	err := svc.TerminateDeployment(context.Background(), "missing")
	assert.ErrorIs(t, err, deployment.ErrNotFound)
}

func TestService_TerminateDeployment_KeepsResidualOnDeleteFailure(t *testing.T) {
	adapter := provider.NewMock()
	adapter.DeleteNetworkFunc = func(ctx context.Context, handle provider.Handle) error {
		return provider.Fatal(provider.Mock, "delete network", errors.New("dependency violation"))
	}
	svc, store := testService(adapter)

	d, err := svc.CreateDeployment(context.Background(), testRequest())
	require.NoError(t, err)

	require.NoError(t, svc.TerminateDeployment(context.Background(), d.ID))

	got, err := store.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusTerminated, got.Status, "termination always settles even when deletes fail")
	require.Len(t, got.ResidualResources, 1)
	assert.Equal(t, provider.KindNetwork, got.ResidualResources[0].Kind)
}

func TestService_GetDeploymentStatus_ErrorDetails(t *testing.T) {
	adapter := provider.NewMock()
	adapter.CreateStorageFunc = func(ctx context.Context, spec provider.StorageSpec) (provider.Handle, error) {
		return provider.Handle{}, provider.Fatal(provider.Mock, "create storage", errors.New("quota exceeded"))
	}
	svc, _ := testService(adapter)

	d, err := svc.CreateDeployment(context.Background(), testRequest())
	require.NoError(t, err)

	status, err := svc.GetDeploymentStatus(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusError, status.Status)
	assert.Contains(t, status.ErrorMessage, "quota exceeded")
	assert.Empty(t, status.EndpointURL)
}

func TestService_GetDeploymentStatus_NotFound(t *testing.T) {
	svc, _ := testService(provider.NewMock())

	_, err := svc.GetDeploymentStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, deployment.ErrNotFound)
}

func TestService_ListDeployments_ScopedToOrganization(t *testing.T) {
	svc, _ := testService(provider.NewMock())

	first := testRequest()
	_, err := svc.CreateDeployment(context.Background(), first)
	require.NoError(t, err)

	second := testRequest()
	second.OrganizationID = "org-2"
	second.Name = "mistral-7b"
	_, err = svc.CreateDeployment(context.Background(), second)
	require.NoError(t, err)

	list, err := svc.ListDeployments(context.Background(), "org-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "llama-70b", list[0].Name)
}
