package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "jervis.yaml"

// buildServeCmd creates the "serve" command: the long-running service with
// ingestion, prompt watching, and the metrics endpoint.
func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestration service",
		Long: `Run the orchestration service: model gateway, planner, executor,
retrieval, and the continuous ingestion engine. Shuts down gracefully on
SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")
	return cmd
}

// buildAskCmd creates the "ask" command: submit one request and print the
// final answer.
func buildAskCmd() *cobra.Command {
	var (
		configPath string
		clientID   string
		projectID  string
		quick      bool
	)

	cmd := &cobra.Command{
		Use:   "ask [text]",
		Short: "Submit one request and print the final answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), configPath, askParams{
				ClientID:  clientID,
				ProjectID: projectID,
				Quick:     quick,
				Text:      joinArgs(args),
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to YAML configuration file")
	cmd.Flags().StringVar(&clientID, "client", "cli", "Client identifier for retrieval scoping")
	cmd.Flags().StringVar(&projectID, "project", "", "Project identifier for retrieval scoping")
	cmd.Flags().BoolVar(&quick, "quick", false, "Prefer low-latency model candidates")
	return cmd
}

func joinArgs(args []string) string {
	text := ""
	for i, arg := range args {
		if i > 0 {
			text += " "
		}
		text += arg
	}
	return text
}
