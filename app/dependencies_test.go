package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/ai-integration-platform/config"
	"github.com/upb/ai-integration-platform/services/providers"
	"github.com/upb/ai-integration-platform/services/routing"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Storage:     config.StorageConfig{Driver: config.StorageMemory},
		Health: config.HealthConfig{
			WindowSize:     20,
			WindowSpan:     5 * time.Minute,
			DegradedBelow:  0.9,
			UnhealthyBelow: 0.5,
			MinSamples:     5,
		},
		Breaker: config.BreakerConfig{FailureThreshold: 5, Cooldown: time.Minute},
		Routing: config.RoutingConfig{
			AttemptTimeout: time.Second,
			ChainTimeout:   3 * time.Second,
			MaxCandidates:  4,
			DedupWindow:    time.Minute,
			DedupCapacity:  100,
		},
		Ledger: config.LedgerConfig{
			Timezone:          "UTC",
			RetentionSchedule: "0 3 * * *",
			Retention:         24 * time.Hour,
		},
		Audit:         config.AuditConfig{BufferSize: 100, WorkerCount: 2},
		Observability: config.ObservabilityConfig{LogLevel: "debug", LogFormat: "text"},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("memory store wires every component", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.Store)
		assert.NotNil(t, deps.Repositories)
		assert.NotNil(t, deps.Catalog)
		assert.NotNil(t, deps.Registry)
		assert.NotNil(t, deps.Health)
		assert.NotNil(t, deps.Breaker)
		assert.NotNil(t, deps.Ledger)
		assert.NotNil(t, deps.Audit)
		assert.NotNil(t, deps.Router)
		assert.NotNil(t, deps.Retention)
		assert.NotNil(t, deps.Identity)

		// No credentials, so every catalog entry is disabled
		assert.Equal(t, len(deps.Catalog.Providers), deps.Registry.Count())
		for _, p := range deps.Registry.List() {
			assert.False(t, p.Enabled, p.ID)
		}

		require.NoError(t, deps.Close(ctx))
	})

	t.Run("sqlite store", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Storage.Driver = config.StorageSQLite
		cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "platform.db")

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		require.NotNil(t, deps.Store)
		assert.NoError(t, deps.Ready(ctx))
		require.NoError(t, deps.Close(ctx))
		assert.Nil(t, deps.Store)
	})

	t.Run("retention disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Ledger.RetentionSchedule = ""

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		assert.Nil(t, deps.Retention)
		require.NoError(t, deps.Close(context.Background()))
	})

	t.Run("credentials enable a vendor", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.OpenAI.APIKey = "sk-test"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(context.Background())

		for _, p := range deps.Registry.List() {
			assert.Equal(t, p.Vendor == "openai", p.Enabled, p.ID)
		}
	})

	t.Run("missing catalog file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize providers")
	})

	t.Run("catalog file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
providers:
  - id: only-openai
    vendor: openai
    model: gpt-4o-mini
    capabilities: [text-generation]
    cost_per_request: 0.001
budgets:
  default_daily: 1
  users:
    alice: 3
`), 0o600))

		cfg := testConfig(t)
		cfg.Providers.CatalogPath = path

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(context.Background())

		assert.Equal(t, []string{"only-openai"}, deps.Registry.IDs())
	})

	t.Run("invalid timezone", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Ledger.Timezone = "Mars/Olympus"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize services")
	})
}

func TestDependencies_StartRouteClose(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, deps.Start(ctx))
	assert.True(t, deps.Audit.GetStats().Started)

	result, err := deps.Router.Route(ctx, &routing.Request{
		Capability: "text-generation",
		Prompt:     "hello",
		UserID:     "alice",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, providers.LocalFallbackID, result.ProviderUsed)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, deps.Close(shutdownCtx))

	assert.False(t, deps.Audit.GetStats().Started)
	assert.Equal(t, uint64(1), deps.Audit.GetStats().Persisted)

	audit, err := deps.Repositories.RouteAudits.GetByRequestID(ctx, result.RequestID)
	require.NoError(t, err)
	assert.Equal(t, "alice", audit.UserID)
}

func TestDependencies_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, deps.Start(ctx))

	require.NoError(t, deps.Close(ctx))
	assert.NoError(t, deps.Close(ctx))
}
