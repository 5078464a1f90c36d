// Package main provides the CLI entry point for the jervis agent
// orchestration service.
//
// Start the server:
//
//	jervis serve --config jervis.yaml
//
// Ask a one-shot question:
//
//	jervis ask --config jervis.yaml "What does the runbook say about restarts?"
//
// Provider credentials come from the environment variables named in the
// model candidate configuration (api_key_env).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "jervis",
		Short:         "Agent orchestration core: plan, execute, recover, answer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd(), buildAskCmd(), buildVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
