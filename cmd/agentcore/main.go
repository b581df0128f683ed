// Package main provides the agentcore CLI.
//
// agentcore serves the chat and automation HTTP API, runs the scheduled
// automation worker and manages its database schema.
//
// # Basic Usage
//
// Start the server:
//
//	agentcore serve --config agentcore.yaml
//
// Run one automation immediately:
//
//	agentcore run-task <task-id> --workspace <workspace-id>
//
// Apply the database schema:
//
//	agentcore migrate up
//
// # Environment Variables
//
//   - AGENTCORE_CONFIG: path to the configuration file (default: agentcore.yaml)
//
// Configuration files may reference environment variables as ${VAR} or
// ${VAR:-fallback}, e.g. api_key: ${OPENAI_API_KEY}.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentcore",
		Short: "Tool-calling agent runtime with scheduled automations",
		Long: `agentcore runs chat turns against a tool-calling model, gates task setup
behind explicit confirmation, and executes saved automations on a schedule
through a persistent job queue.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildRunTaskCmd(),
		buildQueueCmd(),
		buildMigrateCmd(),
		buildConfigCmd(),
		buildSchemaCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

// resolveConfigPath prefers an explicit flag, then AGENTCORE_CONFIG.
func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("AGENTCORE_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}

const defaultConfigPath = "agentcore.yaml"
