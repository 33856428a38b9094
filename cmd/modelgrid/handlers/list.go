package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// List handles the list command.
func List(ctx context.Context, orgID string, jsonOutput bool) error {
	svc, err := newService(ctx)
	if err != nil {
		return err
	}

	deployments, err := svc.ListDeployments(ctx, orgID)
	if err != nil {
		return err
	}

	if jsonOutput {
		b, err := json.MarshalIndent(deployments, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		fmt.Println(string(b))
		return nil
	}

	if len(deployments) == 0 {
		fmt.Printf("No deployments for organization %s\n", orgID)
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-12s %-10s %-10s %-12s %s\n",
		"ID", "NAME", "PROVIDER", "SIZE", "STATUS", "COST/HR")
	for _, d := range deployments {
		fmt.Fprintf(&b, "%-38s %-12s %-10s %-10s %-12s $%.2f\n",
			d.ID, d.Name, d.Provider, d.ModelSize, d.Status, d.CostPerHour)
	}
	fmt.Print(b.String())
	return nil
}
