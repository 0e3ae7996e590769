package ledger

import (
	"github.com/upb/ai-integration-platform/models"
)

// BudgetResolver maps users to their daily budget. Zero means unlimited.
// It is built once at startup and is read-only afterwards.
type BudgetResolver struct {
	defaultDaily models.Money
	users        map[string]models.Money
}

// NewBudgetResolver creates a resolver with a default budget and per-user overrides
func NewBudgetResolver(defaultDaily models.Money, users map[string]models.Money) *BudgetResolver {
	cp := make(map[string]models.Money, len(users))
	for user, amount := range users {
		cp[user] = amount
	}
	return &BudgetResolver{defaultDaily: defaultDaily, users: cp}
}

// WithDefaultOverride replaces the default budget when override is set.
// Per-user budgets are unaffected.
func (b *BudgetResolver) WithDefaultOverride(override *float64) *BudgetResolver {
	if override == nil {
		return b
	}
	return &BudgetResolver{defaultDaily: models.Dollars(*override), users: b.users}
}

// DailyBudget returns the user's daily budget
func (b *BudgetResolver) DailyBudget(userID string) models.Money {
	if b == nil {
		return 0
	}
	if amount, ok := b.users[userID]; ok {
		return amount
	}
	return b.defaultDaily
}

// Default returns the budget applied to users without an override
func (b *BudgetResolver) Default() models.Money {
	if b == nil {
		return 0
	}
	return b.defaultDaily
}
