package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentcore/internal/automation"
	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/pkg/models"
)

// runRunTask implements the run-task command. It prints the run record as
// JSON and fails when the run fails.
func runRunTask(cmd *cobra.Command, configPath, taskID, workspaceID, userID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Logging, cmd.ErrOrStderr(), false)
	ctx := cmd.Context()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	result, err := a.runtime.RunTaskNow(ctx, automation.RunRequest{
		TaskID:            taskID,
		WorkspaceID:       workspaceID,
		TriggeredByUserID: userID,
		Trigger:           models.TriggerManual,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Run); err != nil {
		return err
	}
	if result.Failed() {
		return fmt.Errorf("run %s failed: %w", result.Run.ID, result.Err)
	}
	return nil
}
