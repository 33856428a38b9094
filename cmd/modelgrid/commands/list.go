package commands

import (
	"github.com/spf13/cobra"

	"github.com/modelgrid/modelgrid/cmd/modelgrid/handlers"
)

// List returns the list command.
func List() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list <organization-id>",
		Short: "List an organization's deployments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return handlers.List(cmd.Context(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}
