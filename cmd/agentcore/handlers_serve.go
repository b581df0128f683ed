package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haasonsaas/agentcore/internal/config"
	"github.com/haasonsaas/agentcore/internal/web"
)

// pruneInterval is how often finished jobs past retention are deleted.
const pruneInterval = time.Hour

// runServe implements the serve command.
func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg.Logging, os.Stderr, debug)
	slog.SetDefault(logger)

	logger.Info("starting agentcore",
		"version", version,
		"commit", commit,
		"config", configPath,
		"driver", cfg.Database.Driver,
		"provider", cfg.Agent.Provider,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := a.close(context.Background()); err != nil {
			logger.Error("failed to release resources", "error", err)
		}
	}()

	if err := a.queue.Start(ctx); err != nil {
		return err
	}
	automationsEnabled := boolValue(cfg.Automation.Enabled, true)
	if automationsEnabled {
		if err := a.runner.StartAutomationRunner(ctx); err != nil {
			return err
		}
	}
	if cfg.Queue.Retention > 0 {
		go a.pruneLoop(ctx, cfg.Queue.Retention)
	}

	srvConfig := web.Config{
		Chat:    a.chat,
		Runtime: a.runtime,
		Tools:   a.tools,
		Auth:    a.jwt,
		Debug:   cfg.Server.Debug,
		Logger:  logger,
	}
	if boolValue(cfg.Metrics.Enabled, true) {
		srvConfig.Gatherer = a.registry
		srvConfig.MetricsPath = cfg.Metrics.Path
	}
	if !a.jwt.Enabled() {
		logger.Warn("auth.jwt_secret is empty; trusting identity headers")
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           web.NewServer(srvConfig).Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Info("agentcore started", "http_addr", httpServer.Addr, "automations", automationsEnabled)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, initiating graceful shutdown")
	case serveErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.runner.StopAutomationRunner(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("automation runner: %w", err))
	}
	if err := a.queue.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("queue: %w", err))
	}
	if serveErr != nil {
		return serveErr
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logger.Info("agentcore stopped gracefully")
	return nil
}

func (a *app) pruneLoop(ctx context.Context, retention time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.queue.Prune(ctx, retention)
			if err != nil {
				a.logger.Warn("failed to prune jobs", "error", err)
				continue
			}
			if n > 0 {
				a.logger.Info("pruned finished jobs", "count", n)
			}
		}
	}
}
