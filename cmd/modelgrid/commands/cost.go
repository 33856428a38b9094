package commands

import (
	"github.com/spf13/cobra"

	"github.com/modelgrid/modelgrid/cmd/modelgrid/handlers"
)

// Cost returns the command for deployment cost estimation.
func Cost() *cobra.Command {
	var requestPath string
	var jsonOutput bool
	var compact bool

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Estimate the hourly and monthly cost of a deployment request",
		Long: `Estimate deployment costs before provisioning anything.

The estimate uses the configured pricing service when a token is set
and the built-in pricing tables otherwise. Unpriced regions fall back
to the provider's default region, and unpriced GPU types fall back to
the default tier; the output marks both substitutions.

The quote shown here is fixed on the deployment when it is created:
later pricing table updates never change a running deployment's cost.
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Cost(cmd.Context(), requestPath, jsonOutput, compact)
		},
	}

	cmd.Flags().StringVarP(&requestPath, "file", "f", "", "Path to deployment request file (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.Flags().BoolVar(&compact, "compact", false, "One-line output")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
