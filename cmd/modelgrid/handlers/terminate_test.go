package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgrid/modelgrid/internal/config"
	"github.com/modelgrid/modelgrid/internal/deployment"
	"github.com/modelgrid/modelgrid/internal/provider"
)

func TestTerminate(t *testing.T) {
	adapter := provider.NewMock()
	svc := injectService(t, adapter)

	req, err := config.ParseRequest([]byte(sandboxRequestYAML))
	require.NoError(t, err)
	d, err := svc.CreateDeployment(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, Terminate(context.Background(), d.ID))

	status, err := svc.GetDeploymentStatus(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, deployment.StatusTerminated, status.Status)
	assert.Len(t, adapter.Deleted(), 3)
}

func TestTerminate_NotFound(t *testing.T) {
	injectService(t, provider.NewMock())

	err := Terminate(context.Background(), "missing")
	assert.ErrorIs(t, err, deployment.ErrNotFound)
}
