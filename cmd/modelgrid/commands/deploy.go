package commands

import (
	"github.com/spf13/cobra"

	"github.com/modelgrid/modelgrid/cmd/modelgrid/handlers"
)

// Deploy returns the deploy command.
//
// The deploy command reads a deployment request from a YAML file and
// provisions the full serving stack: network, model storage, GPU
// compute, and (for the large tier) the workflow engine and chat
// front end. It waits until the deployment settles.
func Deploy() *cobra.Command {
	var requestPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Provision a new model deployment",
		Long: `Deploy provisions a dedicated serving stack from a request file.

The request selects the target provider (coreweave, aws, gcp, azure),
region, model size tier (small, medium, large), and industry compliance
profile (legal, healthcare, finance, general). Resources are created in
dependency order and recorded as each step succeeds; on failure,
everything already created is cleaned up again.

Example:
  modelgrid deploy -f request.yaml

The command blocks until the deployment is active or failed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Deploy(cmd.Context(), requestPath, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&requestPath, "file", "f", "", "Path to deployment request file (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
