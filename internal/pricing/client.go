package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/modelgrid/modelgrid/internal/provider"
)

const (
	// DefaultPricingEndpoint is the pricing service base URL.
	DefaultPricingEndpoint = "https://pricing.modelgrid.dev/v1"

	// TablesPath is the pricing tables API path.
	TablesPath = "/tables"
)

// Client fetches versioned pricing tables from the pricing service.
// Updates to the service never re-price existing deployments; a
// deployment's cost is quoted once at creation.
type Client struct {
	token      string
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a new pricing client with the given API token.
func NewClient(token string) *Client {
	return &Client{
		token:    token,
		endpoint: DefaultPricingEndpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientWithEndpoint creates a client with a custom endpoint (for testing).
func NewClientWithEndpoint(token, endpoint string) *Client {
	return &Client{
		token:    token,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchTables fetches the current pricing tables. It returns the
// tables and the table version the service reports.
func (c *Client) FetchTables(ctx context.Context) (map[provider.ID]ProviderTable, string, error) {
	url := c.endpoint + TablesPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch pricing: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("pricing API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}

	tables, version, err := parseTablesResponse(body)
	if err != nil {
		return nil, "", err
	}

	// The pricing service only publishes the real providers. Sandbox
	// pricing stays local so a configured token never breaks mock
	// quoting.
	if _, ok := tables[provider.Mock]; !ok {
		tables[provider.Mock] = DefaultTables()[provider.Mock]
	}

	return tables, version, nil
}

// Pricing service response structures

type tablesResponse struct {
	Version   string                   `json:"version"`
	Providers map[string]providerTable `json:"providers"`
}

type providerTable struct {
	DefaultRegion string                 `json:"default_region"`
	Regions       map[string]regionTable `json:"regions"`
}

type regionTable struct {
	BaseHourly float64            `json:"base_hourly"`
	GPUHourly  map[string]float64 `json:"gpu_hourly"`
}

// parseTablesResponse parses the pricing service response.
func parseTablesResponse(data []byte) (map[provider.ID]ProviderTable, string, error) {
	var resp tablesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, "", fmt.Errorf("failed to parse pricing response: %w", err)
	}

	tables := make(map[provider.ID]ProviderTable, len(resp.Providers))
	for name, pt := range resp.Providers {
		// Sandbox rows are accepted when the service publishes them;
		// any other non-provider name is dropped.
		id := provider.ID(name)
		if !id.Valid() && id != provider.Mock {
			continue
		}
		regions := make(map[string]RegionTable, len(pt.Regions))
		for region, rt := range pt.Regions {
			regions[region] = RegionTable{
				BaseHourly: rt.BaseHourly,
				GPUHourly:  rt.GPUHourly,
			}
		}
		tables[id] = ProviderTable{
			DefaultRegion: pt.DefaultRegion,
			Regions:       regions,
		}
	}

	return tables, resp.Version, nil
}

// FetchOrDefault fetches tables from the pricing service, falling back
// to the built-in tables on error.
func FetchOrDefault(ctx context.Context, token string) map[provider.ID]ProviderTable {
	if token == "" {
		return DefaultTables()
	}

	client := NewClient(token)
	tables, _, err := client.FetchTables(ctx)
	if err != nil {
		return DefaultTables()
	}

	return tables
}
