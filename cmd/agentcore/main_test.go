package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/agentcore/internal/config"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"serve", "run-task", "queue", "migrate", "config", "schema", "version"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("AGENTCORE_CONFIG", "")
	if got := resolveConfigPath(""); got != defaultConfigPath {
		t.Errorf("resolveConfigPath(\"\") = %q, want %q", got, defaultConfigPath)
	}
	t.Setenv("AGENTCORE_CONFIG", "/etc/agentcore.yaml")
	if got := resolveConfigPath(""); got != "/etc/agentcore.yaml" {
		t.Errorf("env path = %q", got)
	}
	if got := resolveConfigPath("local.yaml"); got != "local.yaml" {
		t.Errorf("flag path = %q", got)
	}
}

func TestSchemaFor(t *testing.T) {
	tests := []struct {
		driver string
		want   []string
	}{
		{driver: config.DriverPostgres, want: []string{"automations", "automation_runs", "queue_jobs"}},
		{driver: config.DriverMySQL, want: []string{"queue_jobs", "DATETIME(6)"}},
		{driver: config.DriverSQLite, want: []string{"queue_jobs"}},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			schema, err := schemaFor(tt.driver)
			if err != nil {
				t.Fatalf("schemaFor() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(schema, want) {
					t.Errorf("schema missing %q", want)
				}
			}
		})
	}
	if _, err := schemaFor("oracle"); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestNewProvider(t *testing.T) {
	if _, err := newProvider(config.AgentConfig{Provider: "openai"}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := newProvider(config.AgentConfig{Provider: "anthropic"}); err == nil {
		t.Error("expected error without API key")
	}
	if _, err := newProvider(config.AgentConfig{Provider: "cohere", APIKey: "k"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	p, err := newProvider(config.AgentConfig{Provider: "openai", APIKey: "k"})
	if err != nil || p.Name() != "openai" {
		t.Errorf("newProvider() = %v, %v", p, err)
	}
}

func TestBuildAppMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Agent.APIKey = "test-key"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("buildApp() error = %v", err)
	}
	defer a.close(context.Background())

	if a.chat == nil || a.runtime == nil || a.runner == nil {
		t.Fatal("app not fully wired")
	}
	for _, name := range []string{"propose_task", "create_task", "create_note"} {
		if !a.tools.Has(name) {
			t.Errorf("chat tools missing %q", name)
		}
	}
	stats, err := a.queue.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("Total = %d, want 0", stats.Total)
	}
}

func TestRunMigrateSQLCommand(t *testing.T) {
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate", "sql", "--driver", "sqlite"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "CREATE TABLE IF NOT EXISTS queue_jobs") {
		t.Errorf("output = %q", out.String())
	}
}

func TestQueueStatsCommandSQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentcore.yaml")
	contents := "version: 1\ndatabase:\n  driver: sqlite\n  path: " + filepath.Join(dir, "jobs.db") + "\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"queue", "stats", "--config", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "total") {
		t.Errorf("output = %q", out.String())
	}
}
