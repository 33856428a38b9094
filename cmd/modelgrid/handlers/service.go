// Package handlers implements the CLI command logic.
//
// Handlers wire the orchestrator service from environment settings and
// translate its results for terminal output. Construction goes through
// replaceable factory variables so tests can substitute an in-memory
// service.
package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/modelgrid/modelgrid/internal/config"
	"github.com/modelgrid/modelgrid/internal/deployment"
	"github.com/modelgrid/modelgrid/internal/orchestrator"
	"github.com/modelgrid/modelgrid/internal/pricing"
	"github.com/modelgrid/modelgrid/internal/provider"
	"github.com/modelgrid/modelgrid/internal/store/postgres"
)

// Factory function variables - can be replaced in tests.
var (
	newService = buildService
	newCatalog = loadCatalog
)

// buildService assembles the orchestrator service from environment
// settings. The CLI runs synchronously: a one-shot process has nothing
// to return to while provisioning runs.
func buildService(ctx context.Context) (*orchestrator.Service, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := newStore(ctx, settings)
	if err != nil {
		return nil, err
	}

	creds := settings.Credentials()
	factory := func(ctx context.Context, id provider.ID) (provider.Adapter, error) {
		return provider.ForProvider(ctx, id, creds)
	}

	svc := orchestrator.NewService(store, newCatalog(ctx, settings), factory,
		orchestrator.WithSynchronous())
	svc.Pipeline().SetStatusPolling(settings.StatusPollInterval, settings.StatusTimeout)
	return svc, nil
}

// newStore selects the deployment store. Without a configured database
// the CLI runs against an in-memory store, which only makes sense for
// sandbox experiments.
func newStore(ctx context.Context, settings *config.Settings) (deployment.Store, error) {
	if settings.DatabaseURL == "" {
		log.Printf("MODELGRID_DATABASE_URL not set, using in-memory store")
		return deployment.NewMemoryStore(), nil
	}
	s, err := postgres.New(ctx, settings.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return s, nil
}

// loadCatalog fetches live pricing tables when a token is configured
// and falls back to the built-in tables otherwise.
func loadCatalog(ctx context.Context, settings *config.Settings) *pricing.Catalog {
	if settings.PricingToken == "" {
		return pricing.NewCatalog()
	}

	client := pricing.NewClient(settings.PricingToken)
	if settings.PricingEndpoint != "" {
		client = pricing.NewClientWithEndpoint(settings.PricingToken, settings.PricingEndpoint)
	}

	tables, version, err := client.FetchTables(ctx)
	if err != nil {
		log.Printf("pricing service unavailable, using built-in tables: %v", err)
		return pricing.NewCatalog()
	}
	log.Printf("loaded pricing tables version %s", version)
	return pricing.NewCatalogWithTables(tables)
}
