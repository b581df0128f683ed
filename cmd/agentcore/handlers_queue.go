package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/internal/queue"
)

func openMaintenanceApp(cmd *cobra.Command, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return openApp(cmd.Context(), cfg, newLogger(cfg.Logging, cmd.ErrOrStderr(), false))
}

func runQueueStats(cmd *cobra.Command, configPath string) error {
	a, err := openMaintenanceApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	stats, err := a.queue.Stats(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, s := range queue.Statuses {
		fmt.Fprintf(out, "%-10s %d\n", s, stats.Counts[s])
	}
	fmt.Fprintf(out, "%-10s %d\n", "total", stats.Total)
	return nil
}

func runQueueRequeue(cmd *cobra.Command, configPath string) error {
	a, err := openMaintenanceApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	n, err := a.queue.Requeue(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s)\n", n)
	return nil
}

func runQueuePrune(cmd *cobra.Command, configPath, olderThan string) error {
	age, err := time.ParseDuration(olderThan)
	if err != nil || age <= 0 {
		return fmt.Errorf("invalid --older-than %q", olderThan)
	}
	a, err := openMaintenanceApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	n, err := a.queue.Prune(cmd.Context(), age)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d job(s)\n", n)
	return nil
}
