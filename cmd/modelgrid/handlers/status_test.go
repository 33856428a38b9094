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

func TestStatus(t *testing.T) {
	svc := injectService(t, provider.NewMock())

	req, err := config.ParseRequest([]byte(sandboxRequestYAML))
	require.NoError(t, err)
	d, err := svc.CreateDeployment(context.Background(), req)
	require.NoError(t, err)

	assert.NoError(t, Status(context.Background(), d.ID, false))
	assert.NoError(t, Status(context.Background(), d.ID, true))
}

func TestStatus_NotFound(t *testing.T) {
	injectService(t, provider.NewMock())

	err := Status(context.Background(), "missing", false)
	assert.ErrorIs(t, err, deployment.ErrNotFound)
}

func TestList(t *testing.T) {
	svc := injectService(t, provider.NewMock())

	req, err := config.ParseRequest([]byte(sandboxRequestYAML))
	require.NoError(t, err)
	_, err = svc.CreateDeployment(context.Background(), req)
	require.NoError(t, err)

	assert.NoError(t, List(context.Background(), "org-1", false))
	assert.NoError(t, List(context.Background(), "org-2", false))
	assert.NoError(t, List(context.Background(), "org-1", true))
}
