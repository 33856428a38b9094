// Package pricing provides cost estimation for model deployments.
package pricing

import (
	"fmt"

	"github.com/modelgrid/modelgrid/internal/provider"
)

// DefaultGPUTier is the GPU tier quoted when a deployment requests a
// GPU type the catalog has no row for. Deployment creation must not
// block on incomplete pricing data, so unknown types price as the
// mid-size tier.
const DefaultGPUTier = provider.GPUTypeA100

// HoursPerMonth is the averaged month length used for monthly
// projections.
const HoursPerMonth = 730

// Catalog holds per-provider pricing tables and answers quotes.
type Catalog struct {
	tables map[provider.ID]ProviderTable
}

// ProviderTable is one provider's pricing: per-region rows plus the
// region quoted when the requested region has no row.
type ProviderTable struct {
	// DefaultRegion is the fallback region for unknown regions.
	DefaultRegion string

	// Regions maps region identifier to its pricing row.
	Regions map[string]RegionTable
}

// RegionTable is the pricing row for one (provider, region) pair.
type RegionTable struct {
	// GPUHourly maps GPU type to the hourly cost of a single GPU.
	GPUHourly map[string]float64

	// BaseHourly is the hourly cost of the instance the GPUs attach
	// to. Zero for providers that bill GPU-inclusive.
	BaseHourly float64
}

// Quote is the result of a pricing lookup. AppliedRegion and
// AppliedGPUType record the row actually used, so callers can log when
// a fallback was taken.
type Quote struct {
	Provider provider.ID
	GPUType  string
	GPUCount int
	Region   string

	// HourlyCost is the quoted total: per-GPU cost × count, plus the
	// provider's base instance cost where one applies.
	HourlyCost float64

	// PerGPUHourly and BaseHourly are the components behind
	// HourlyCost, kept for line-item rendering.
	PerGPUHourly float64
	BaseHourly   float64

	// AppliedRegion is the region whose table priced this quote.
	AppliedRegion string

	// AppliedGPUType is the GPU tier that priced this quote.
	AppliedGPUType string
}

// RegionFallback reports whether the quote was priced from a different
// region's table than requested.
func (q Quote) RegionFallback() bool { return q.AppliedRegion != q.Region }

// GPUTypeFallback reports whether the quote was priced as a different
// GPU tier than requested.
func (q Quote) GPUTypeFallback() bool { return q.AppliedGPUType != q.GPUType }

// MonthlyCost returns the quote projected over an averaged month.
func (q Quote) MonthlyCost() float64 { return q.HourlyCost * HoursPerMonth }

// NewCatalog creates a catalog with the built-in pricing tables.
func NewCatalog() *Catalog {
	return NewCatalogWithTables(DefaultTables())
}

// NewCatalogWithTables creates a catalog over specific tables, e.g.
// ones fetched from the pricing service.
func NewCatalogWithTables(tables map[provider.ID]ProviderTable) *Catalog {
	return &Catalog{tables: tables}
}

// Quote prices a deployment configuration. It is deterministic and
// performs no I/O. The only error is an unknown provider, which is an
// input-validation failure owned by the caller; missing region or GPU
// rows fall back rather than fail.
func (c *Catalog) Quote(id provider.ID, gpuType string, gpuCount int, region string) (Quote, error) {
	table, ok := c.tables[id]
	if !ok {
		return Quote{}, fmt.Errorf("no pricing table for provider %q", id)
	}

	quote := Quote{
		Provider: id,
		GPUType:  gpuType,
		GPUCount: gpuCount,
		Region:   region,
	}

	row, ok := table.Regions[region]
	quote.AppliedRegion = region
	if !ok {
		row = table.Regions[table.DefaultRegion]
		quote.AppliedRegion = table.DefaultRegion
	}

	perGPU, ok := row.GPUHourly[gpuType]
	quote.AppliedGPUType = gpuType
	if !ok {
		perGPU = row.GPUHourly[DefaultGPUTier]
		quote.AppliedGPUType = DefaultGPUTier
	}

	quote.PerGPUHourly = perGPU
	quote.BaseHourly = row.BaseHourly
	quote.HourlyCost = perGPU*float64(gpuCount) + row.BaseHourly
	return quote, nil
}

// DefaultTables returns the built-in pricing tables (USD per hour).
// These are approximate on-demand rates and drift over time; prefer
// fetching current tables from the pricing service.
func DefaultTables() map[provider.ID]ProviderTable {
	return map[provider.ID]ProviderTable{
		provider.CoreWeave: {
			DefaultRegion: "ord1",
			Regions: map[string]RegionTable{
				"ord1": {
					GPUHourly: map[string]float64{
						provider.GPUTypeT4:      0.34,
						provider.GPUTypeV100:    0.80,
						provider.GPUTypeA100:    2.06,
						provider.GPUTypeA100_80: 2.21,
						provider.GPUTypeH100:    4.25,
						provider.GPUTypeL40S:    1.14,
					},
				},
				"lga1": {
					GPUHourly: map[string]float64{
						provider.GPUTypeT4:      0.36,
						provider.GPUTypeV100:    0.84,
						provider.GPUTypeA100:    2.16,
						provider.GPUTypeA100_80: 2.32,
						provider.GPUTypeH100:    4.46,
						provider.GPUTypeL40S:    1.20,
					},
				},
			},
		},
		provider.AWS: {
			DefaultRegion: "us-east-1",
			Regions: map[string]RegionTable{
				"us-east-1": {
					BaseHourly: 0.42,
					GPUHourly: map[string]float64{
						provider.GPUTypeT4:      0.53,
						provider.GPUTypeV100:    3.06,
						provider.GPUTypeA100:    4.10,
						provider.GPUTypeA100_80: 5.12,
						provider.GPUTypeH100:    6.88,
						provider.GPUTypeL40S:    1.86,
					},
				},
				"eu-west-1": {
					BaseHourly: 0.46,
					GPUHourly: map[string]float64{
						provider.GPUTypeT4:      0.59,
						provider.GPUTypeV100:    3.37,
						provider.GPUTypeA100:    4.51,
						provider.GPUTypeA100_80: 5.63,
						provider.GPUTypeH100:    7.57,
						provider.GPUTypeL40S:    2.05,
					},
				},
			},
		},
		provider.GCP: {
			DefaultRegion: "us-central1",
			Regions: map[string]RegionTable{
				"us-central1": {
					BaseHourly: 0.35,
					GPUHourly: map[string]float64{
						provider.GPUTypeT4:      0.35,
						provider.GPUTypeV100:    2.48,
						provider.GPUTypeA100:    2.93,
						provider.GPUTypeA100_80: 3.93,
						provider.GPUTypeH100:    6.98,
						provider.GPUTypeL40S:    1.00,
					},
				},
				"europe-west4": {
					BaseHourly: 0.39,
					GPUHourly: map[string]float64{
						provider.GPUTypeT4:      0.41,
						provider.GPUTypeV100:    2.73,
						provider.GPUTypeA100:    3.22,
						provider.GPUTypeA100_80: 4.32,
						provider.GPUTypeH100:    7.68,
						provider.GPUTypeL40S:    1.10,
					},
				},
			},
		},
		provider.Azure: {
			DefaultRegion: "eastus",
			Regions: map[string]RegionTable{
				"eastus": {
					GPUHourly: map[string]float64{
						provider.GPUTypeT4:      0.53,
						provider.GPUTypeV100:    3.06,
						provider.GPUTypeA100:    3.40,
						provider.GPUTypeA100_80: 3.67,
						provider.GPUTypeH100:    6.98,
					},
				},
				"westeurope": {
					GPUHourly: map[string]float64{
						provider.GPUTypeT4:      0.60,
						provider.GPUTypeV100:    3.43,
						provider.GPUTypeA100:    3.80,
						provider.GPUTypeA100_80: 4.10,
						provider.GPUTypeH100:    7.82,
					},
				},
			},
		},
		provider.Mock: {
			DefaultRegion: "sandbox",
			Regions: map[string]RegionTable{
				"sandbox": {
					GPUHourly: map[string]float64{
						provider.GPUTypeT4:      0.01,
						provider.GPUTypeV100:    0.01,
						provider.GPUTypeA100:    0.01,
						provider.GPUTypeA100_80: 0.01,
						provider.GPUTypeH100:    0.01,
						provider.GPUTypeL40S:    0.01,
					},
				},
			},
		},
	}
}
