// Package memory provides in-process repositories for single-instance
// deployments and tests. Data does not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/repositories"
)

// NewRepositories creates an empty in-memory store
func NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		CostRecords: NewCostRecordRepository(),
		RouteAudits: NewRouteAuditRepository(),
	}
}

type dedupKey struct {
	userID, key, providerID string
}

// CostRecordRepository implements repositories.CostRecordRepository in memory
type CostRecordRepository struct {
	mu      sync.RWMutex
	records []*models.CostRecord
	seen    map[dedupKey]struct{}
}

// NewCostRecordRepository creates an empty cost record repository
func NewCostRecordRepository() *CostRecordRepository {
	return &CostRecordRepository{seen: make(map[dedupKey]struct{})}
}

// Insert appends a copy of the record unless it duplicates an idempotent one
func (r *CostRecordRepository) Insert(ctx context.Context, record *models.CostRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if record.IdempotencyKey != "" {
		k := dedupKey{record.UserID, record.IdempotencyKey, record.ProviderID}
		if _, dup := r.seen[k]; dup {
			return false, nil
		}
		r.seen[k] = struct{}{}
	}

	cp := *record
	r.records = append(r.records, &cp)
	return true, nil
}

// SumBetween totals a user's records in [from, to)
func (r *CostRecordRepository) SumBetween(ctx context.Context, userID string, from, to time.Time) (models.Money, error) {
	records, err := r.ListBetween(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}
	var total models.Money
	for _, rec := range records {
		total += rec.Amount
	}
	return total, nil
}

// ListBetween returns copies of a user's records in [from, to), oldest first
func (r *CostRecordRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]*models.CostRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.CostRecord
	for _, rec := range r.records {
		if rec.UserID != userID || rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteBefore removes records created before the cutoff
func (r *CostRecordRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	var removed int64
	for _, rec := range r.records {
		if rec.CreatedAt.Before(before) {
			if rec.IdempotencyKey != "" {
				delete(r.seen, dedupKey{rec.UserID, rec.IdempotencyKey, rec.ProviderID})
			}
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return removed, nil
}

// WithTx returns the repository itself; the memory store has no transactions
func (r *CostRecordRepository) WithTx(repositories.Transaction) repositories.CostRecordRepository {
	return r
}

// RouteAuditRepository implements repositories.RouteAuditRepository in memory
type RouteAuditRepository struct {
	mu     sync.RWMutex
	audits []*models.RouteAudit
}

// NewRouteAuditRepository creates an empty route audit repository
func NewRouteAuditRepository() *RouteAuditRepository {
	return &RouteAuditRepository{}
}

// Insert stores a copy of the audit
func (r *RouteAuditRepository) Insert(ctx context.Context, audit *models.RouteAudit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *audit
	r.audits = append(r.audits, &cp)
	return nil
}

// GetByRequestID retrieves the most recent audit for a request id
func (r *RouteAuditRepository) GetByRequestID(ctx context.Context, requestID string) (*models.RouteAudit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.audits) - 1; i >= 0; i-- {
		if r.audits[i].RequestID == requestID {
			cp := *r.audits[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("route audit %s: %w", requestID, repositories.ErrNotFound)
}

// ListByUser retrieves a user's audits, newest first
func (r *RouteAuditRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.RouteAudit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.RouteAudit
	for i := len(r.audits) - 1; i >= 0; i-- {
		if r.audits[i].UserID == userID {
			matched = append(matched, r.audits[i])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	out := make([]*models.RouteAudit, len(matched))
	for i, a := range matched {
		cp := *a
		out[i] = &cp
	}
	return out, nil
}

// DeleteBefore removes audits created before the cutoff
func (r *RouteAuditRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.audits[:0]
	var removed int64
	for _, a := range r.audits {
		if a.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	r.audits = kept
	return removed, nil
}

// WithTx returns the repository itself; the memory store has no transactions
func (r *RouteAuditRepository) WithTx(repositories.Transaction) repositories.RouteAuditRepository {
	return r
}
