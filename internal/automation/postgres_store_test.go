package automation

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

// TestPostgresStore runs the store contract against a live database. Set
// AGENTCORE_TEST_POSTGRES_DSN to enable it.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("AGENTCORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AGENTCORE_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := NewPostgresStore(ctx, dsn, DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if _, err := store.pool.Exec(ctx, `TRUNCATE automation_runs, automations`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	exerciseStore(t, store)
}

func TestNewPostgresStoreRequiresDSN(t *testing.T) {
	if _, err := NewPostgresStore(context.Background(), "", PoolConfig{}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestPostgresSchema(t *testing.T) {
	schema := PostgresSchema()
	for _, want := range []string{"CREATE TABLE IF NOT EXISTS automations", "CREATE TABLE IF NOT EXISTS automation_runs", "next_run_at"} {
		if !strings.Contains(schema, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}
