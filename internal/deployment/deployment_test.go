package deployment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgrid/modelgrid/internal/provider"
)

func TestRequest_Normalize(t *testing.T) {
	t.Run("fills GPU config from model size", func(t *testing.T) {
		req := Request{ModelSize: SizeLarge}
		req.Normalize()

		assert.Equal(t, provider.GPUTypeA100_80, req.GPUType)
		assert.Equal(t, 2, req.GPUCount)
		assert.Equal(t, IndustryGeneral, req.Industry)
	})

	t.Run("keeps explicit GPU config", func(t *testing.T) {
		req := Request{
			ModelSize: SizeSmall,
			Industry:  IndustryLegal,
			GPUType:   provider.GPUTypeH100,
			GPUCount:  4,
		}
		req.Normalize()

		assert.Equal(t, provider.GPUTypeH100, req.GPUType)
		assert.Equal(t, 4, req.GPUCount)
		assert.Equal(t, IndustryLegal, req.Industry)
	})
}

func TestRequest_Validate(t *testing.T) {
	valid := Request{
		OrganizationID: "org-1",
		Name:           "legal-assistant",
		Industry:       IndustryLegal,
		Provider:       provider.GCP,
		Region:         "us-central1",
		ModelSize:      SizeMedium,
	}

	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing org", func(r *Request) { r.OrganizationID = "" }},
		{"missing name", func(r *Request) { r.Name = "" }},
		{"unknown provider", func(r *Request) { r.Provider = "digitalocean" }},
		{"missing region", func(r *Request) { r.Region = "" }},
		{"unknown size", func(r *Request) { r.ModelSize = "xl" }},
		{"unknown industry", func(r *Request) { r.Industry = "gaming" }},
		{"negative gpu count", func(r *Request) { r.GPUCount = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			assert.Error(t, req.Validate())
		})
	}

	t.Run("mock provider allowed", func(t *testing.T) {
		req := valid
		req.Provider = provider.Mock
		assert.NoError(t, req.Validate())
	})
}

func TestStatus_Transitions(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusProvisioning},
		{StatusProvisioning, StatusActive},
		{StatusProvisioning, StatusError},
		{StatusProvisioning, StatusTerminating},
		{StatusActive, StatusTerminating},
		{StatusTerminating, StatusTerminated},
	}
	for _, tt := range allowed {
		assert.True(t, tt.from.CanTransition(tt.to), "%s -> %s should be allowed", tt.from, tt.to)
	}

	rejected := []struct{ from, to Status }{
		{StatusPending, StatusActive},
		{StatusPending, StatusTerminated},
		{StatusActive, StatusProvisioning},
		{StatusError, StatusProvisioning},
		{StatusError, StatusTerminating},
		{StatusTerminated, StatusProvisioning},
		{StatusTerminated, StatusTerminating},
		{StatusTerminating, StatusActive},
	}
	for _, tt := range rejected {
		assert.False(t, tt.from.CanTransition(tt.to), "%s -> %s should be rejected", tt.from, tt.to)
	}
}

func TestDeployment_Transition(t *testing.T) {
	d := New("dep-1", Request{Name: "x"}, 1.0, time.Now())
	require.Equal(t, StatusPending, d.Status)

	require.NoError(t, d.Transition(StatusProvisioning))
	require.NoError(t, d.Transition(StatusActive))

	err := d.Transition(StatusProvisioning)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusActive, d.Status, "failed transition must not change status")
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusActive.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.True(t, StatusTerminated.Terminal())
}

func TestDeployment_Clone(t *testing.T) {
	d := New("dep-1", Request{Name: "x", Config: map[string]string{"k": "v"}}, 1.0, time.Now())
	d.AppendResource(provider.Handle{
		Kind: provider.KindNetwork,
		ID:   "net-1",
		Meta: map[string]string{"subnet": "s-1"},
	})

	clone := d.Clone()
	clone.Config["k"] = "changed"
	clone.ProvisionedResources[0].Handle.Meta["subnet"] = "changed"

	assert.Equal(t, "v", d.Config["k"])
	assert.Equal(t, "s-1", d.ProvisionedResources[0].Handle.Meta["subnet"])
}
