package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentcore/internal/automation"
	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/internal/queue"
)

func runMigrateUp(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	out := cmd.OutOrStdout()
	if cfg.Database.Driver == config.DriverMemory {
		fmt.Fprintln(out, "memory driver: nothing to migrate")
		return nil
	}
	cfg.Database.AutoMigrate = true

	a, err := openApp(cmd.Context(), cfg, newLogger(cfg.Logging, cmd.ErrOrStderr(), false))
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())
	fmt.Fprintf(out, "Schema applied (%s)\n", cfg.Database.Driver)
	return nil
}

// schemaFor returns the DDL applied for driver.
func schemaFor(driver string) (string, error) {
	switch driver {
	case config.DriverPostgres:
		return automation.PostgresSchema() + "\n" + queue.PostgresSchema + "\n", nil
	case config.DriverMySQL:
		return queue.MySQLSchema + ";\n", nil
	case config.DriverSQLite:
		return queue.SQLiteSchema + "\n", nil
	default:
		return "", fmt.Errorf("no schema for driver %q", driver)
	}
}

func runMigrateSQL(cmd *cobra.Command, driver string) error {
	schema, err := schemaFor(driver)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), schema)
	return nil
}
