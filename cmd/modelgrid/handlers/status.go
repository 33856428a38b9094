package handlers

import (
	"context"
)

// Status handles the status command.
func Status(ctx context.Context, id string, jsonOutput bool) error {
	svc, err := newService(ctx)
	if err != nil {
		return err
	}

	snapshot, err := svc.GetDeploymentStatus(ctx, id)
	if err != nil {
		return err
	}
	return printSnapshot(snapshot, jsonOutput)
}
