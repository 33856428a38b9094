package commands

import (
	"github.com/spf13/cobra"

	"github.com/modelgrid/modelgrid/cmd/modelgrid/handlers"
)

// Terminate returns the terminate command.
//
// The terminate command tears down a deployment's cloud resources in
// reverse creation order. It is idempotent: terminating an already
// terminated deployment is a no-op.
func Terminate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terminate <deployment-id>",
		Short: "Terminate a deployment and release its resources",
		Long: `Terminate releases all cloud resources held by a deployment.

Resources are deleted newest first (compute, then storage, then
network). Deletes are best-effort: anything that cannot be removed is
recorded on the deployment for manual reconciliation, and the
deployment still reaches the terminated state.

A termination issued while provisioning is still running is honored as
soon as the in-flight step settles.

WARNING: This operation is irreversible. Restarting means creating a
new deployment.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Terminate(cmd.Context(), args[0])
		},
	}

	return cmd
}
