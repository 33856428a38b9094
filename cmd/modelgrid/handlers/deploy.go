package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelgrid/modelgrid/internal/config"
	"github.com/modelgrid/modelgrid/internal/deployment"
	"github.com/modelgrid/modelgrid/internal/orchestrator"
	"github.com/modelgrid/modelgrid/internal/pricing"
)

// Deploy handles the deploy command.
//
// It loads the request file, creates the deployment, and blocks until
// provisioning settles. The process exits non-zero when the deployment
// ends in the error state.
func Deploy(ctx context.Context, requestPath string, jsonOutput bool) error {
	req, err := config.LoadRequest(requestPath)
	if err != nil {
		return err
	}

	svc, err := newService(ctx)
	if err != nil {
		return err
	}

	d, err := svc.CreateDeployment(ctx, req)
	if err != nil {
		return err
	}

	status, err := svc.GetDeploymentStatus(ctx, d.ID)
	if err != nil {
		return err
	}

	if err := printSnapshot(status, jsonOutput); err != nil {
		return err
	}

	if status.Status == deployment.StatusError {
		return fmt.Errorf("deployment %s failed: %s", d.ID, status.ErrorMessage)
	}
	return nil
}

func printSnapshot(s orchestrator.StatusSnapshot, jsonOutput bool) error {
	if jsonOutput {
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		fmt.Println(string(b))
		return nil
	}
	fmt.Print(renderSnapshot(s))
	return nil
}

// renderSnapshot formats a status snapshot for the terminal.
func renderSnapshot(s orchestrator.StatusSnapshot) string {
	out := fmt.Sprintf("Deployment %s\n", s.ID)
	out += fmt.Sprintf("  status:    %s\n", s.Status)
	if s.EndpointURL != "" {
		out += fmt.Sprintf("  endpoint:  %s\n", s.EndpointURL)
	}
	if s.CostPerHour > 0 {
		out += fmt.Sprintf("  cost:      $%.2f/hr ($%.2f/mo)\n", s.CostPerHour, s.CostPerHour*pricing.HoursPerMonth)
	}
	if s.Degraded {
		out += "  degraded:  capacity fallback substituted for the requested GPUs\n"
	}
	if s.ErrorMessage != "" {
		out += fmt.Sprintf("  error:     %s\n", s.ErrorMessage)
	}
	for _, r := range s.ResidualResources {
		out += fmt.Sprintf("  residual:  %s\n", r.Handle)
	}
	return out
}
