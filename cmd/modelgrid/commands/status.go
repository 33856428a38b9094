package commands

import (
	"github.com/spf13/cobra"

	"github.com/modelgrid/modelgrid/cmd/modelgrid/handlers"
)

// Status returns the status command.
func Status() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <deployment-id>",
		Short: "Show a deployment's lifecycle state and endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.Status(cmd.Context(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}
