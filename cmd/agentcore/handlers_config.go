package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentcore/internal/config"
)

func runConfigValidate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (version %d, driver %s, provider %s)\n",
		configPath, cfg.Version, cfg.Database.Driver, cfg.Agent.Provider)
	return nil
}

func runConfigSchema(cmd *cobra.Command) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(append(schema, '\n'))
	return err
}
