package ledger

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/services"
)

// Hold is an open reservation against a user's daily budget. It is counted
// by Reserve until released and is never persisted.
type Hold struct {
	ledger *Ledger
	userID string
	amount models.Money
	once   sync.Once
}

// Amount returns the reserved amount
func (h *Hold) Amount() models.Money {
	if h == nil {
		return 0
	}
	return h.amount
}

// Release returns the reserved amount. It is safe to call more than once
// and on a nil hold.
func (h *Hold) Release() {
	if h == nil || h.amount <= 0 {
		return
	}
	h.once.Do(func() {
		l := h.ledger
		l.holdMu.Lock()
		defer l.holdMu.Unlock()
		if left := l.held[h.userID] - h.amount; left > 0 {
			l.held[h.userID] = left
		} else {
			delete(l.held, h.userID)
		}
	})
}

// Reserve checks estimates against what is left of budget today once stored
// records and other open holds are counted, and holds the largest estimate
// that fits. It fails with a budget error when not even the smallest
// estimate fits. The returned amount is what was left before the hold.
// A budget of zero or less is unlimited and holds nothing.
func (l *Ledger) Reserve(ctx context.Context, userID string, budget models.Money, estimates ...models.Money) (*Hold, models.Money, error) {
	if budget <= 0 {
		return nil, models.Money(math.MaxInt64), nil
	}

	unlock := l.locks.Lock(userID)
	defer unlock()

	spent, err := l.sumLocked(ctx, userID, l.nowFunc())
	if err != nil {
		return nil, 0, err
	}

	l.holdMu.Lock()
	defer l.holdMu.Unlock()

	committed := spent + l.held[userID]
	if len(estimates) == 0 {
		return nil, max(budget-committed, 0), nil
	}

	floor := estimates[0]
	for _, e := range estimates[1:] {
		floor = min(floor, e)
	}
	if Exceeds(committed, floor, budget) {
		return nil, 0, services.NewBudgetExceededError(userID, committed, floor, budget)
	}

	remaining := budget - committed
	var amount models.Money
	for _, e := range estimates {
		if e <= remaining {
			amount = max(amount, e)
		}
	}
	if amount > 0 {
		l.held[userID] += amount
		l.logger.Debug("budget hold placed",
			zap.String("user_id", userID),
			zap.Stringer("amount", amount),
			zap.Stringer("remaining", remaining))
	}
	return &Hold{ledger: l, userID: userID, amount: amount}, remaining, nil
}

// Held returns the user's open holds
func (l *Ledger) Held(userID string) models.Money {
	l.holdMu.Lock()
	defer l.holdMu.Unlock()
	return l.held[userID]
}
