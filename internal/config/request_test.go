package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgrid/modelgrid/internal/deployment"
	"github.com/modelgrid/modelgrid/internal/provider"
)

const validRequestYAML = `
organization_id: org-1
name: llama-70b
industry: healthcare
provider: coreweave
region: ord1
model_size: medium
config:
  MAX_TOKENS: "4096"
`

func TestLoadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validRequestYAML), 0o600))

	req, err := LoadRequest(path)
	require.NoError(t, err)

	assert.Equal(t, "org-1", req.OrganizationID)
	assert.Equal(t, deployment.IndustryHealthcare, req.Industry)
	assert.Equal(t, provider.CoreWeave, req.Provider)
	assert.Equal(t, deployment.SizeMedium, req.ModelSize)
	assert.Equal(t, "4096", req.Config["MAX_TOKENS"])

	// Tier defaults are filled during normalization.
	assert.Equal(t, provider.GPUTypeA100_80, req.GPUType)
	assert.Equal(t, 1, req.GPUCount)
}

func TestLoadRequest_MissingFile(t *testing.T) {
	_, err := LoadRequest(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestParseRequest_InvalidYAML(t *testing.T) {
	_, err := ParseRequest([]byte("provider: [unterminated"))
	assert.Error(t, err)
}

func TestParseRequest_ValidationFailure(t *testing.T) {
	_, err := ParseRequest([]byte(`
organization_id: org-1
name: llama-70b
provider: digitalocean
region: nyc3
model_size: small
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestParseRequest_ExplicitGPUOverridesTier(t *testing.T) {
	req, err := ParseRequest([]byte(`
organization_id: org-1
name: llama-70b
provider: aws
region: us-east-1
model_size: small
gpu_type: H100
gpu_count: 4
`))
	require.NoError(t, err)
	assert.Equal(t, "H100", req.GPUType)
	assert.Equal(t, 4, req.GPUCount)
}
