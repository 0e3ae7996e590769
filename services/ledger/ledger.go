// Package ledger keeps the append-only per-user cost ledger and enforces
// daily budgets against it. Daily spend is always summed from the stored
// records; there is no separately maintained counter.
package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/repositories"
	"github.com/upb/ai-integration-platform/services"
)

// Entry is one charge to append to the ledger
type Entry struct {
	UserID         string
	ProviderID     string
	Amount         models.Money
	IdempotencyKey string
	RequestID      string
}

// BudgetStatus is a user's position against their daily budget
type BudgetStatus struct {
	UserID      string       `json:"user_id"`
	Date        string       `json:"date"`
	Spent       models.Money `json:"spent"`
	DailyBudget models.Money `json:"daily_budget"`
	Remaining   models.Money `json:"remaining"`
	Unlimited   bool         `json:"unlimited"`
}

// SpendSummary is a user's spend for one day with its records
type SpendSummary struct {
	BudgetStatus
	Records []*models.CostRecord `json:"records"`
}

// Ledger records costs and answers budget questions
type Ledger struct {
	costs   repositories.CostRecordRepository
	txMgr   repositories.TransactionManager
	budgets *BudgetResolver
	loc     *time.Location
	locks   *keyedMutex
	nowFunc func() time.Time
	logger  *zap.Logger

	holdMu sync.Mutex
	held   map[string]models.Money
}

// New creates a ledger over the store's cost records. Days are computed in loc.
func New(repos *repositories.Repositories, budgets *BudgetResolver, loc *time.Location, logger *zap.Logger) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		costs:   repos.CostRecords,
		txMgr:   repos.Transactions,
		budgets: budgets,
		loc:     loc,
		locks:   newKeyedMutex(),
		nowFunc: time.Now,
		logger:  logger,
		held:    make(map[string]models.Money),
	}
}

// SetNowFunc overrides the clock for tests
func (l *Ledger) SetNowFunc(fn func() time.Time) {
	l.nowFunc = fn
}

// Budgets returns the budget resolver
func (l *Ledger) Budgets() *BudgetResolver {
	return l.budgets
}

// Record appends a cost record. It returns nil without error when the store
// already holds a record for the same user, idempotency key and provider.
func (l *Ledger) Record(ctx context.Context, e Entry) (*models.CostRecord, error) {
	if e.UserID == "" {
		return nil, services.NewValidationError("user_id is required")
	}
	if e.ProviderID == "" {
		return nil, services.NewValidationError("provider_id is required")
	}
	if e.Amount < 0 {
		return nil, services.NewValidationError("amount cannot be negative").
			WithDetail("amount", e.Amount.String())
	}

	unlock := l.locks.Lock(e.UserID)
	defer unlock()

	rec := models.NewCostRecord(e.UserID, e.ProviderID, e.Amount, l.nowFunc()).
		WithIdempotency(e.IdempotencyKey, e.RequestID)

	inserted, err := l.costs.Insert(ctx, rec)
	if err != nil {
		return nil, services.WrapInternal("failed to record cost", err)
	}
	if !inserted {
		l.logger.Debug("cost already recorded",
			zap.String("user_id", e.UserID),
			zap.String("provider_id", e.ProviderID),
			zap.String("idempotency_key", e.IdempotencyKey))
		return nil, nil
	}

	l.logger.Info("cost recorded",
		zap.String("user_id", e.UserID),
		zap.String("provider_id", e.ProviderID),
		zap.String("request_id", e.RequestID),
		zap.Stringer("amount", e.Amount))
	return rec, nil
}

// SpentToday sums the user's records for the current day
func (l *Ledger) SpentToday(ctx context.Context, userID string) (models.Money, error) {
	return l.spentOn(ctx, userID, l.nowFunc())
}

// WouldExceed reports whether spending proposed today would overrun
// dailyBudget. A budget of zero or less is unlimited.
func (l *Ledger) WouldExceed(ctx context.Context, userID string, proposed, dailyBudget models.Money) (bool, error) {
	if dailyBudget <= 0 {
		return false, nil
	}
	spent, err := l.SpentToday(ctx, userID)
	if err != nil {
		return false, err
	}
	return Exceeds(spent, proposed, dailyBudget), nil
}

// Exceeds reports whether spent+proposed overruns budget. A budget of zero
// or less is unlimited.
func Exceeds(spent, proposed, budget models.Money) bool {
	return budget > 0 && spent+proposed > budget
}

// Status returns the user's spend today against their resolved budget
func (l *Ledger) Status(ctx context.Context, userID string) (*BudgetStatus, error) {
	now := l.nowFunc()
	spent, err := l.spentOn(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	return l.status(userID, now, spent), nil
}

// History returns the user's records for the day containing day
func (l *Ledger) History(ctx context.Context, userID string, day time.Time) ([]*models.CostRecord, error) {
	from, to := l.dayBounds(day)

	unlock := l.locks.Lock(userID)
	defer unlock()

	records, err := l.costs.ListBetween(ctx, userID, from, to)
	if err != nil {
		return nil, services.WrapInternal("failed to list cost records", err)
	}
	return records, nil
}

// Summary returns the user's spend and records for the day containing day
func (l *Ledger) Summary(ctx context.Context, userID string, day time.Time) (*SpendSummary, error) {
	records, err := l.History(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	var spent models.Money
	for _, rec := range records {
		spent += rec.Amount
	}
	if records == nil {
		records = []*models.CostRecord{}
	}
	return &SpendSummary{
		BudgetStatus: *l.status(userID, day, spent),
		Records:      records,
	}, nil
}

// Purge deletes cost records created before the cutoff
func (l *Ledger) Purge(ctx context.Context, before time.Time) (int64, error) {
	removed, err := services.InTx(ctx, l.txMgr,
		func(ctx context.Context, tx repositories.Transaction) (int64, error) {
			return l.costs.WithTx(tx).DeleteBefore(ctx, before)
		})
	if err != nil {
		return 0, services.WrapInternal("failed to purge cost records", err)
	}
	return removed, nil
}

// Today returns the current day in the ledger timezone
func (l *Ledger) Today() time.Time {
	from, _ := l.dayBounds(l.nowFunc())
	return from
}

// Location returns the ledger timezone
func (l *Ledger) Location() *time.Location {
	return l.loc
}

func (l *Ledger) spentOn(ctx context.Context, userID string, at time.Time) (models.Money, error) {
	unlock := l.locks.Lock(userID)
	defer unlock()
	return l.sumLocked(ctx, userID, at)
}

// sumLocked sums the user's records for the day containing at. The caller
// holds the user's lock.
func (l *Ledger) sumLocked(ctx context.Context, userID string, at time.Time) (models.Money, error) {
	from, to := l.dayBounds(at)

	spent, err := l.costs.SumBetween(ctx, userID, from, to)
	if err != nil {
		return 0, services.WrapInternal("failed to sum cost records", err)
	}
	return spent, nil
}

func (l *Ledger) status(userID string, day time.Time, spent models.Money) *BudgetStatus {
	budget := l.budgets.DailyBudget(userID)
	st := &BudgetStatus{
		UserID:      userID,
		Date:        day.In(l.loc).Format("2006-01-02"),
		Spent:       spent,
		DailyBudget: budget,
		Unlimited:   budget <= 0,
	}
	if !st.Unlimited && budget > spent {
		st.Remaining = budget - spent
	}
	return st
}

// dayBounds returns [start, end) of the calendar day containing t in the
// ledger timezone. DST days are 23 or 25 hours long.
func (l *Ledger) dayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(l.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, l.loc)
	return start, start.AddDate(0, 0, 1)
}
