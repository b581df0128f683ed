package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func addConfigFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "config", "c", "", "Path to configuration file (default: $AGENTCORE_CONFIG or agentcore.yaml)")
}

// buildServeCmd creates the "serve" command.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and automation worker",
		Long: `Start the HTTP API, the job queue workers and the automation sweep.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		Example: `  # Start with the default config
  agentcore serve

  # Start with debug logging
  agentcore serve --config /etc/agentcore/prod.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// buildRunTaskCmd creates the "run-task" command.
func buildRunTaskCmd() *cobra.Command {
	var (
		configPath  string
		workspaceID string
		userID      string
	)
	cmd := &cobra.Command{
		Use:   "run-task <task-id>",
		Short: "Run one automation immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunTask(cmd, resolveConfigPath(configPath), args[0], workspaceID, userID)
		},
	}
	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&workspaceID, "workspace", "w", "", "Workspace that owns the task")
	cmd.Flags().StringVar(&userID, "user", "", "User recorded as having triggered the run")
	_ = cmd.MarkFlagRequired("workspace")
	return cmd
}

// buildQueueCmd creates the "queue" command group.
func buildQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the job queue",
	}

	var statsConfig string
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueStats(cmd, resolveConfigPath(statsConfig))
		},
	}
	addConfigFlag(stats, &statsConfig)

	var requeueConfig string
	requeue := &cobra.Command{
		Use:   "requeue",
		Short: "Return jobs whose worker lease expired to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueRequeue(cmd, resolveConfigPath(requeueConfig))
		},
	}
	addConfigFlag(requeue, &requeueConfig)

	var (
		pruneConfig string
		pruneAge    string
	)
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished jobs older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueuePrune(cmd, resolveConfigPath(pruneConfig), pruneAge)
		},
	}
	addConfigFlag(prune, &pruneConfig)
	prune.Flags().StringVar(&pruneAge, "older-than", "168h", "Minimum age of pruned jobs")

	cmd.AddCommand(stats, requeue, prune)
	return cmd
}

// buildMigrateCmd creates the "migrate" command group.
func buildMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema commands",
	}

	var upConfig string
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply the schema for the configured driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd, resolveConfigPath(upConfig))
		},
	}
	addConfigFlag(up, &upConfig)

	var driver string
	sqlCmd := &cobra.Command{
		Use:   "sql",
		Short: "Print the schema for a driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateSQL(cmd, driver)
		},
	}
	sqlCmd.Flags().StringVar(&driver, "driver", "postgres", "Database driver: postgres, mysql or sqlite")

	cmd.AddCommand(up, sqlCmd)
	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	var validateConfig string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd, resolveConfigPath(validateConfig))
		},
	}
	addConfigFlag(validate, &validateConfig)

	cmd.AddCommand(validate)
	return cmd
}

// buildSchemaCmd creates the "schema" command.
func buildSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSchema(cmd)
		},
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentcore %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
