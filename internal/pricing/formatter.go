package pricing

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Formatter formats quotes for display.
type Formatter struct{}

// NewFormatter creates a new formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format returns a detailed, formatted quote for terminal display.
func (f *Formatter) Format(name string, q Quote) string {
	var sb strings.Builder

	width := 61

	sb.WriteString(boxTop(width))
	sb.WriteString(boxLine("ModelGrid Cost Estimate", width))
	sb.WriteString(boxLine(fmt.Sprintf("Deployment: %s", name), width))
	sb.WriteString(boxSep(width))

	sb.WriteString(boxLine(fmt.Sprintf("Provider: %s", q.Provider), width))
	sb.WriteString(boxLine(fmt.Sprintf("Region: %s", q.AppliedRegion), width))
	if q.RegionFallback() {
		sb.WriteString(boxLine(fmt.Sprintf("  (no table for %s, using %s)", q.Region, q.AppliedRegion), width))
	}
	sb.WriteString(boxLine(fmt.Sprintf("GPUs: %d x %s", q.GPUCount, q.AppliedGPUType), width))
	if q.GPUTypeFallback() {
		sb.WriteString(boxLine(fmt.Sprintf("  (no row for %s, priced as %s)", q.GPUType, q.AppliedGPUType), width))
	}
	sb.WriteString(boxSep(width))

	sb.WriteString(boxEmpty(width))
	sb.WriteString(boxLine(fmt.Sprintf("%-18s %d x %-10s %8.2f/hr",
		"GPU compute", q.GPUCount, q.AppliedGPUType, q.PerGPUHourly*float64(q.GPUCount)), width))
	if q.BaseHourly > 0 {
		sb.WriteString(boxLine(fmt.Sprintf("%-33s %8.2f/hr", "Base instance", q.BaseHourly), width))
	}
	sb.WriteString(boxDash(width))
	sb.WriteString(boxLine(fmt.Sprintf("%-33s %8.2f/hr", "Total", q.HourlyCost), width))
	sb.WriteString(boxEmpty(width))
	sb.WriteString(boxLine(fmt.Sprintf("Monthly estimate: %.2f", q.MonthlyCost()), width))
	sb.WriteString(boxEmpty(width))

	sb.WriteString(boxBottom(width))

	sb.WriteString("\n  On-demand rates (USD)\n")

	return sb.String()
}

// FormatCompact returns a single-line quote summary.
func (f *Formatter) FormatCompact(name string, q Quote) string {
	return fmt.Sprintf("%s (%s/%s): %.2f/hr (%.2f/mo)",
		name, q.Provider, q.AppliedRegion, q.HourlyCost, q.MonthlyCost())
}

// FormatJSON returns the quote as JSON.
func (f *Formatter) FormatJSON(name string, q Quote) string {
	type jsonQuote struct {
		Deployment      string  `json:"deployment"`
		Provider        string  `json:"provider"`
		Region          string  `json:"region"`
		GPUType         string  `json:"gpu_type"`
		GPUCount        int     `json:"gpu_count"`
		HourlyCost      float64 `json:"hourly_cost"`
		MonthlyCost     float64 `json:"monthly_cost"`
		RegionFallback  bool    `json:"region_fallback"`
		GPUTypeFallback bool    `json:"gpu_type_fallback"`
	}

	jq := jsonQuote{
		Deployment:      name,
		Provider:        string(q.Provider),
		Region:          q.AppliedRegion,
		GPUType:         q.AppliedGPUType,
		GPUCount:        q.GPUCount,
		HourlyCost:      q.HourlyCost,
		MonthlyCost:     q.MonthlyCost(),
		RegionFallback:  q.RegionFallback(),
		GPUTypeFallback: q.GPUTypeFallback(),
	}

	data, _ := json.MarshalIndent(jq, "", "  ")
	return string(data)
}

// Helper functions for box drawing

func boxTop(width int) string {
	return fmt.Sprintf("┌%s┐\n", strings.Repeat("─", width-2))
}

func boxBottom(width int) string {
	return fmt.Sprintf("└%s┘\n", strings.Repeat("─", width-2))
}

func boxSep(width int) string {
	return fmt.Sprintf("├%s┤\n", strings.Repeat("─", width-2))
}

func boxDash(width int) string {
	return fmt.Sprintf("│ %s │\n", strings.Repeat("─", width-4))
}

func boxLine(text string, width int) string {
	padding := width - 4 - len(text)
	if padding < 0 {
		padding = 0
		text = text[:width-4]
	}
	return fmt.Sprintf("│ %s%s │\n", text, strings.Repeat(" ", padding))
}

func boxEmpty(width int) string {
	return fmt.Sprintf("│%s│\n", strings.Repeat(" ", width-2))
}
