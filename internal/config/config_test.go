package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "agentcore.yaml", `
server:
  http_port: 9000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Address() != "0.0.0.0:9000" {
		t.Errorf("address = %q", cfg.Server.Address())
	}
	if cfg.Database.Driver != DriverMemory || cfg.Queue.Waker.Kind != WakerChannel {
		t.Errorf("database/waker = %q/%q", cfg.Database.Driver, cfg.Queue.Waker.Kind)
	}
	if cfg.Agent.MaxRounds != 6 || cfg.Queue.Backoff.Initial != 5*time.Second {
		t.Errorf("agent/backoff defaults = %d/%s", cfg.Agent.MaxRounds, cfg.Queue.Backoff.Initial)
	}
	if !*cfg.Automation.Enabled || !*cfg.Server.DevWorkspace || cfg.Metrics.Path != "/metrics" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "agentcore.yaml", `
server:
  host: 0.0.0.0
  grpc_port: 50051
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"postgres without url", "database:\n  driver: postgres\n", "database.url"},
		{"unknown driver", "database:\n  driver: oracle\n", "database.driver"},
		{"redis waker without address", "queue:\n  waker:\n    kind: redis\n", "queue.waker.redis.address"},
		{"unknown waker", "queue:\n  waker:\n    kind: kafka\n", "queue.waker.kind"},
		{"flat backoff", "queue:\n  backoff:\n    factor: 1\n", "queue.backoff.factor"},
		{"lease shorter than polling", "queue:\n  poll_interval: 1m\n  lease_timeout: 2m\n", "queue.lease_timeout"},
		{"unknown provider", "agent:\n  provider: llama\n", "agent.provider"},
		{"temperature range", "agent:\n  temperature: 3\n", "agent.temperature"},
		{"log level", "logging:\n  level: loud\n", "logging.level"},
		{"newer version", "version: 99\n", "newer than this build"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "agentcore.yaml", tt.body))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadIncludesAndEnv(t *testing.T) {
	t.Setenv("AGENTCORE_TEST_DSN", "postgres://localhost/agentcore")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "base.yaml"), []byte("agent:\n  provider: anthropic\n  model: base-model\nqueue:\n  concurrency: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "agentcore.yaml")
	body := `
$include: base.yaml
database:
  driver: postgres
  url: ${AGENTCORE_TEST_DSN}
agent:
  model: ${AGENTCORE_TEST_MODEL:-override-model}
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.URL != "postgres://localhost/agentcore" {
		t.Errorf("url = %q", cfg.Database.URL)
	}
	if cfg.Agent.Provider != "anthropic" || cfg.Agent.Model != "override-model" {
		t.Errorf("agent = %+v", cfg.Agent)
	}
	if cfg.Queue.Concurrency != 2 {
		t.Errorf("concurrency = %d", cfg.Queue.Concurrency)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	_ = os.WriteFile(a, []byte("$include: b.yaml\n"), 0o644)
	_ = os.WriteFile(b, []byte("$include: a.yaml\n"), 0o644)

	if _, err := Load(a); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("error = %v, want include cycle", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, "agentcore.json5", `{
  // comments and trailing commas are allowed
  agent: {provider: "openai", max_rounds: 4,},
  queue: {waker: {kind: "none"}},
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.MaxRounds != 4 || cfg.Queue.Waker.Kind != WakerNone {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadBytes(t *testing.T) {
	cfg, err := LoadBytes([]byte("automation:\n  sweep_schedule: '@every 1m'\n"), "yaml")
	if err != nil {
		t.Fatalf("LoadBytes() error = %v", err)
	}
	if cfg.Automation.SweepSchedule != "@every 1m" {
		t.Errorf("schedule = %q", cfg.Automation.SweepSchedule)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		version int
		want    error
	}{
		{CurrentVersion, nil},
		{0, ErrVersionUnsupported},
		{-1, ErrVersionUnsupported},
		{CurrentVersion + 1, ErrVersionTooNew},
	}
	for _, tt := range tests {
		err := ValidateVersion(tt.version)
		if tt.want == nil {
			if err != nil {
				t.Errorf("ValidateVersion(%d) error = %v", tt.version, err)
			}
			continue
		}
		var ve *VersionError
		if !errors.As(err, &ve) || ve.Version != tt.version {
			t.Errorf("ValidateVersion(%d) = %v, want *VersionError", tt.version, err)
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("ValidateVersion(%d) = %v, want %v", tt.version, err, tt.want)
		}
	}
}

func TestJSONSchema(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema() error = %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	for _, key := range []string{"queue", "automation", "agent"} {
		if !strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("schema missing %q", key)
		}
	}
}

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
