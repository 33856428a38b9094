// Package config loads orchestrator settings from the environment and
// deployment requests from YAML files.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/modelgrid/modelgrid/internal/provider"
)

// Settings is the orchestrator's environment-driven configuration:
// persistence, pricing, provider credentials, and operation timeouts.
type Settings struct {
	// DatabaseURL selects the PostgreSQL store. When empty the
	// orchestrator falls back to the in-memory store, which is only
	// suitable for sandbox runs.
	DatabaseURL string `env:"MODELGRID_DATABASE_URL"`

	// PricingEndpoint overrides the pricing service base URL. Pricing
	// falls back to the built-in tables when no token is configured.
	PricingEndpoint string `env:"MODELGRID_PRICING_ENDPOINT"`
	PricingToken    string `env:"MODELGRID_PRICING_TOKEN"`

	// SandboxEnabled permits the mock provider. Production deployments
	// never set this.
	SandboxEnabled bool `env:"MODELGRID_SANDBOX" envDefault:"false"`

	CoreWeaveKubeconfig    string `env:"MODELGRID_COREWEAVE_KUBECONFIG" envDefault:"~/.kube/coreweave-config"`
	CoreWeaveIngressDomain string `env:"MODELGRID_COREWEAVE_INGRESS_DOMAIN" envDefault:"cw.modelgrid.dev"`

	AWSRegion          string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSServiceDomain   string `env:"MODELGRID_AWS_SERVICE_DOMAIN" envDefault:"aws.modelgrid.dev"`

	GCPProject string `env:"MODELGRID_GCP_PROJECT"`
	GCPToken   string `env:"MODELGRID_GCP_TOKEN"`

	AzureSubscription  string `env:"MODELGRID_AZURE_SUBSCRIPTION"`
	AzureResourceGroup string `env:"MODELGRID_AZURE_RESOURCE_GROUP" envDefault:"modelgrid"`
	AzureToken         string `env:"MODELGRID_AZURE_TOKEN"`

	// CallTimeout bounds each provider management call.
	CallTimeout time.Duration `env:"MODELGRID_PROVIDER_CALL_TIMEOUT" envDefault:"30s"`

	// StatusPollInterval and StatusTimeout drive the readiness poll
	// after compute provisioning.
	StatusPollInterval time.Duration `env:"MODELGRID_STATUS_POLL_INTERVAL" envDefault:"10s"`
	StatusTimeout      time.Duration `env:"MODELGRID_STATUS_TIMEOUT" envDefault:"15m"`
}

// Load reads settings from the environment, applying defaults for
// anything unset.
func Load() (*Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return &s, nil
}

// Credentials maps the settings onto the provider credential set.
func (s *Settings) Credentials() provider.Credentials {
	return provider.Credentials{
		CoreWeaveKubeconfig:    s.CoreWeaveKubeconfig,
		CoreWeaveIngressDomain: s.CoreWeaveIngressDomain,
		AWSRegion:              s.AWSRegion,
		AWSAccessKeyID:         s.AWSAccessKeyID,
		AWSSecretAccessKey:     s.AWSSecretAccessKey,
		AWSServiceDomain:       s.AWSServiceDomain,
		GCPProject:             s.GCPProject,
		GCPToken:               s.GCPToken,
		AzureSubscription:      s.AzureSubscription,
		AzureResourceGroup:     s.AzureResourceGroup,
		AzureToken:             s.AzureToken,
		CallTimeout:            s.CallTimeout,
		SandboxEnabled:         s.SandboxEnabled,
	}
}
