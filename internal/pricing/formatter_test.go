package pricing

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelgrid/modelgrid/internal/provider"
)

func quoteForTest(t *testing.T) Quote {
	t.Helper()
	q, err := NewCatalog().Quote(provider.GCP, provider.GPUTypeA100_80, 2, "us-central1")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	return q
}

func TestFormatter_Format(t *testing.T) {
	out := NewFormatter().Format("legal-assistant", quoteForTest(t))

	for _, want := range []string{
		"ModelGrid Cost Estimate",
		"Deployment: legal-assistant",
		"Provider: gcp",
		"Region: us-central1",
		"2 x A100-80GB",
		"Base instance",
		"8.21/hr",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q\n%s", want, out)
		}
	}

	// No fallback notes when the exact row priced the quote.
	if strings.Contains(out, "no table for") || strings.Contains(out, "no row for") {
		t.Errorf("Format() shows fallback note for exact quote\n%s", out)
	}
}

func TestFormatter_Format_FallbackNotes(t *testing.T) {
	q, err := NewCatalog().Quote(provider.GCP, "B200", 1, "asia-east1")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}

	out := NewFormatter().Format("x", q)
	if !strings.Contains(out, "no table for asia-east1") {
		t.Errorf("Format() missing region fallback note\n%s", out)
	}
	if !strings.Contains(out, "no row for B200") {
		t.Errorf("Format() missing GPU fallback note\n%s", out)
	}
}

func TestFormatter_FormatCompact(t *testing.T) {
	out := NewFormatter().FormatCompact("legal-assistant", quoteForTest(t))

	if !strings.Contains(out, "legal-assistant (gcp/us-central1)") {
		t.Errorf("FormatCompact() = %q", out)
	}
	if !strings.Contains(out, "8.21/hr") {
		t.Errorf("FormatCompact() = %q", out)
	}
}

func TestFormatter_FormatJSON(t *testing.T) {
	out := NewFormatter().FormatJSON("legal-assistant", quoteForTest(t))

	var decoded map[string]any
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("FormatJSON() produced invalid JSON: %v", err)
	}
	if decoded["provider"] != "gcp" {
		t.Errorf("provider = %v", decoded["provider"])
	}
	if decoded["gpu_count"].(float64) != 2 {
		t.Errorf("gpu_count = %v", decoded["gpu_count"])
	}
	if decoded["region_fallback"].(bool) {
		t.Error("region_fallback should be false")
	}
}
