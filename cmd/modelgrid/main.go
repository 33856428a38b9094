// Package main is the entry point for the modelgrid CLI.
//
// modelgrid provisions dedicated LLM serving stacks for customer
// organizations across CoreWeave, AWS, GCP, and Azure. A deployment
// request selects the provider, region, model size tier, and industry
// compliance profile; the orchestrator provisions the network, model
// storage, and GPU compute in order and exposes the serving endpoint.
//
// Commands: deploy, terminate, status, list, cost.
//
// For detailed usage information, run:
//
//	modelgrid --help
package main

import (
	"fmt"
	"os"

	"github.com/modelgrid/modelgrid/cmd/modelgrid/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
