package handlers

import (
	"context"
	"fmt"

	"github.com/modelgrid/modelgrid/internal/config"
	"github.com/modelgrid/modelgrid/internal/pricing"
)

// Cost handles the cost command.
//
// It prices the request against the catalog without creating anything.
// The same quote path runs during deployment creation, so the estimate
// matches what a deployment would be billed.
func Cost(ctx context.Context, requestPath string, jsonOutput, compact bool) error {
	req, err := config.LoadRequest(requestPath)
	if err != nil {
		return err
	}

	settings, err := config.Load()
	if err != nil {
		return err
	}

	quote, err := newCatalog(ctx, settings).Quote(req.Provider, req.GPUType, req.GPUCount, req.Region)
	if err != nil {
		return err
	}

	formatter := pricing.NewFormatter()
	switch {
	case jsonOutput:
		fmt.Println(formatter.FormatJSON(req.Name, quote))
	case compact:
		fmt.Println(formatter.FormatCompact(req.Name, quote))
	default:
		fmt.Print(formatter.Format(req.Name, quote))
	}
	return nil
}
