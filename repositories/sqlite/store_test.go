package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/repositories"
)

var day = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "platform-sqlite-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "nested", "ledger.db")
}

func openTestStore(t *testing.T) *repositories.Repositories {
	t.Helper()
	store, err := Open(testDBPath(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store.Repositories()
}

func TestCostRecords_SumAndListUseHalfOpenDay(t *testing.T) {
	ctx := context.Background()
	repos := openTestStore(t)

	bogota := time.FixedZone("COT", -5*3600)
	for _, rec := range []*models.CostRecord{
		models.NewCostRecord("alice", "openai", models.Dollars(0.04), day.Add(time.Nanosecond)),
		models.NewCostRecord("alice", "anthropic", models.Dollars(0.08), day.Add(23*time.Hour).In(bogota)),
		models.NewCostRecord("alice", "openai", models.Dollars(1), day.AddDate(0, 0, 1)),
		models.NewCostRecord("alice", "openai", models.Dollars(1), day.Add(-time.Nanosecond)),
		models.NewCostRecord("bob", "openai", models.Dollars(3), day.Add(time.Hour)),
	} {
		ok, err := repos.CostRecords.Insert(ctx, rec)
		require.NoError(t, err)
		require.True(t, ok)
	}

	sum, err := repos.CostRecords.SumBetween(ctx, "alice", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, models.Dollars(0.12), sum)

	list, err := repos.CostRecords.ListBetween(ctx, "alice", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "openai", list[0].ProviderID)
	assert.Equal(t, "anthropic", list[1].ProviderID)
	assert.True(t, list[1].CreatedAt.Equal(day.Add(23*time.Hour)))

	empty, err := repos.CostRecords.SumBetween(ctx, "carol", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, models.Money(0), empty)
}

func TestCostRecords_IdempotentInsert(t *testing.T) {
	ctx := context.Background()
	repos := openTestStore(t)

	ok, err := repos.CostRecords.Insert(ctx, models.NewCostRecord("alice", "openai", models.Dollars(0.04), day).WithIdempotency("k", "r1"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repos.CostRecords.Insert(ctx, models.NewCostRecord("alice", "openai", models.Dollars(0.04), day).WithIdempotency("k", "r2"))
	require.NoError(t, err)
	assert.False(t, ok)

	// records without a key never collide
	for i := 0; i < 2; i++ {
		ok, err = repos.CostRecords.Insert(ctx, models.NewCostRecord("alice", "openai", models.Dollars(0.01), day))
		require.NoError(t, err)
		assert.True(t, ok)
	}

	sum, err := repos.CostRecords.SumBetween(ctx, "alice", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, models.Dollars(0.06), sum)
}

func TestPurgeInTransaction(t *testing.T) {
	ctx := context.Background()
	repos := openTestStore(t)
	old := day.AddDate(0, 0, -100)

	_, err := repos.CostRecords.Insert(ctx, models.NewCostRecord("alice", "openai", 1, old))
	require.NoError(t, err)
	_, err = repos.CostRecords.Insert(ctx, models.NewCostRecord("alice", "openai", 2, day))
	require.NoError(t, err)
	audit := models.NewRouteAudit("req-old", "alice", "vision")
	audit.CreatedAt = old
	require.NoError(t, repos.RouteAudits.Insert(ctx, audit))

	cutoff := day.AddDate(0, 0, -90)

	rollback := errors.New("abort")
	err = repos.Transactions.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		n, err := repos.CostRecords.WithTx(tx).DeleteBefore(ctx, cutoff)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return rollback
	})
	assert.ErrorIs(t, err, rollback)

	sum, err := repos.CostRecords.SumBetween(ctx, "alice", old, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, models.Money(3), sum, "rolled back delete keeps the record")

	err = repos.Transactions.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		if _, err := repos.CostRecords.WithTx(tx).DeleteBefore(ctx, cutoff); err != nil {
			return err
		}
		_, err := repos.RouteAudits.WithTx(tx).DeleteBefore(ctx, cutoff)
		return err
	})
	require.NoError(t, err)

	sum, err = repos.CostRecords.SumBetween(ctx, "alice", old, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, models.Money(2), sum)

	_, err = repos.RouteAudits.GetByRequestID(ctx, "req-old")
	assert.Error(t, err)
}

func TestRouteAudits_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repos := openTestStore(t)

	first := models.NewRouteAudit("req-1", "alice", "text-generation").
		WithResult("openai", true, models.Dollars(0.04)).
		WithAttempts([]models.AttemptRecord{{Provider: "openai", Outcome: models.OutcomeSuccess, LatencyMs: 80}})
	first.CreatedAt = day
	second := models.NewRouteAudit("req-2", "alice", "text-generation").WithError("budget exceeded")
	second.CreatedAt = day.Add(time.Minute)
	require.NoError(t, repos.RouteAudits.Insert(ctx, first))
	require.NoError(t, repos.RouteAudits.Insert(ctx, second))

	got, err := repos.RouteAudits.GetByRequestID(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.True(t, got.Success)
	assert.Equal(t, models.Dollars(0.04), got.Cost)
	assert.Nil(t, got.ErrorMessage)
	assert.JSONEq(t, string(first.Attempts), string(got.Attempts))

	page, err := repos.RouteAudits.ListByUser(ctx, "alice", 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "req-2", page[0].RequestID)
	require.NotNil(t, page[0].ErrorMessage)
	assert.Equal(t, "budget exceeded", *page[0].ErrorMessage)

	page, err = repos.RouteAudits.ListByUser(ctx, "alice", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "req-1", page[0].RequestID)

	_, err = repos.RouteAudits.GetByRequestID(ctx, "missing")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestFormatTimeOrdersLexically(t *testing.T) {
	a := formatTime(day.Add(500 * time.Millisecond))
	b := formatTime(day.Add(time.Second))
	assert.Less(t, a, b)

	parsed, err := parseTime(a)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(day.Add(500*time.Millisecond)))
}
