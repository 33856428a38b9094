package handlers

import (
	"context"
	"fmt"
)

// Terminate handles the terminate command.
//
// It queues the termination, waits for cleanup to settle, and reports
// any resources that could not be removed.
func Terminate(ctx context.Context, id string) error {
	svc, err := newService(ctx)
	if err != nil {
		return err
	}

	if err := svc.TerminateDeployment(ctx, id); err != nil {
		return err
	}
	svc.Wait()

	status, err := svc.GetDeploymentStatus(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("Deployment %s: %s\n", id, status.Status)
	for _, r := range status.ResidualResources {
		fmt.Printf("  residual: %s (remove manually)\n", r.Handle)
	}
	return nil
}
