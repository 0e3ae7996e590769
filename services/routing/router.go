package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/services"
	"github.com/upb/ai-integration-platform/services/breaker"
	"github.com/upb/ai-integration-platform/services/ledger"
	"github.com/upb/ai-integration-platform/services/providers"
	"github.com/upb/ai-integration-platform/utils"
)

// HealthRecorder receives attempt samples and ranks providers
type HealthRecorder interface {
	Record(providerID string, success bool, latency time.Duration)
	SuccessRate(providerID string) float64
}

// Gate admits attempts against a provider
type Gate interface {
	Acquire(providerID string) (*breaker.Attempt, bool)
}

// CostLedger records charges and holds budget for routes in flight
type CostLedger interface {
	Record(ctx context.Context, e ledger.Entry) (*models.CostRecord, error)
	Reserve(ctx context.Context, userID string, budget models.Money, estimates ...models.Money) (*ledger.Hold, models.Money, error)
}

// Budgets resolves a user's daily budget. Zero means unlimited.
type Budgets interface {
	DailyBudget(userID string) models.Money
}

// AuditRecorder accepts route audits without blocking
type AuditRecorder interface {
	Record(audit *models.RouteAudit) bool
}

// Dependencies are the collaborators of a Router. Budgets and Audit are optional.
type Dependencies struct {
	Registry *providers.Registry
	Health   HealthRecorder
	Gate     Gate
	Ledger   CostLedger
	Budgets  Budgets
	Audit    AuditRecorder
	Logger   *zap.Logger
}

// Router builds a fallback chain per request and walks it until a provider serves
type Router struct {
	config   Config
	registry *providers.Registry
	health   HealthRecorder
	gate     Gate
	ledger   CostLedger
	budgets  Budgets
	audit    AuditRecorder
	logger   *zap.Logger

	results *ResultCache
	group   singleflight.Group
}

// NewRouter creates a new router
func NewRouter(config Config, deps Dependencies) (*Router, error) {
	if deps.Registry == nil {
		return nil, errors.New("routing: registry is required")
	}
	if deps.Health == nil || deps.Gate == nil || deps.Ledger == nil {
		return nil, errors.New("routing: health, gate and ledger are required")
	}
	if config.AttemptTimeout <= 0 || config.ChainTimeout <= 0 {
		return nil, errors.New("routing: timeouts must be positive")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Router{
		config:   config,
		registry: deps.Registry,
		health:   deps.Health,
		gate:     deps.Gate,
		ledger:   deps.Ledger,
		budgets:  deps.Budgets,
		audit:    deps.Audit,
		logger:   deps.Logger,
		results:  NewResultCache(config.DedupCapacity, config.DedupWindow),
	}, nil
}

// Results exposes the idempotency cache, mainly for its cleanup worker
func (r *Router) Results() *ResultCache {
	return r.results
}

// Route serves req through its fallback chain. It never reports that no
// provider was available: the chain always ends in the local fallback.
func (r *Router) Route(ctx context.Context, req *Request) (*Result, error) {
	capability, err := r.validate(req)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey == "" {
		return r.route(ctx, req, capability)
	}

	key := dedupKey{UserID: req.UserID, IdempotencyKey: req.IdempotencyKey}
	for {
		if cached := r.results.Get(key); cached != nil {
			cached.Deduplicated = true
			return cached, nil
		}

		result, leaderCancelled, err := r.routeShared(ctx, key, req, capability)
		if leaderCancelled {
			// The caller that ran the shared route went away. This one
			// is still live, so it takes over as the new leader.
			r.logger.Debug("Idempotent route leader cancelled, retrying",
				zap.String("user_id", req.UserID),
				zap.String("idempotency_key", req.IdempotencyKey))
			continue
		}
		return result, err
	}
}

// routeShared joins or starts the single in-flight route for key. Each caller
// waits on its own ctx. leaderCancelled reports that the shared route failed
// only because another caller's context was cancelled.
func (r *Router) routeShared(ctx context.Context, key dedupKey, req *Request, capability providers.Capability) (*Result, bool, error) {
	var executed atomic.Bool
	ch := r.group.DoChan(key.String(), func() (interface{}, error) {
		// A call that finished between the lookup and DoChan already cached its result
		if cached := r.results.Get(key); cached != nil {
			return cached, nil
		}
		executed.Store(true)
		result, err := r.route(ctx, req, capability)
		if err != nil {
			return nil, err
		}
		r.results.Put(key, result)
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if !executed.Load() && ctx.Err() == nil && isCancellation(res.Err) {
				return nil, true, nil
			}
			return nil, false, res.Err
		}
		result := res.Val.(*Result).clone()
		if !executed.Load() {
			result.Deduplicated = true
		}
		return result, false, nil
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Plan returns the ordered candidates Route would try for req
func (r *Router) Plan(ctx context.Context, req *Request) ([]Candidate, error) {
	capability, err := r.validate(req)
	if err != nil {
		return nil, err
	}
	chain, hold, err := r.plan(ctx, req, capability)
	hold.Release()
	return chain, err
}

func (r *Router) validate(req *Request) (providers.Capability, error) {
	if req == nil {
		return "", services.NewValidationError("request is required")
	}

	capability, err := providers.ParseCapability(req.Capability)
	if err != nil {
		return "", services.NewUnknownCapabilityError(req.Capability)
	}

	if err := utils.ValidateStruct(req); err != nil {
		verr := services.NewValidationError("invalid route request")
		if fields := utils.GetValidationFields(err); fields != nil {
			verr.WithDetail("fields", fields)
		}
		return "", verr
	}

	if req.PreferredProvider != "" {
		if _, err := r.registry.Get(req.PreferredProvider); err != nil {
			return "", services.NewValidationError(fmt.Sprintf("unknown preferred provider: %s", req.PreferredProvider))
		}
	}

	return capability, nil
}

// plan builds the fallback chain. The returned hold reserves budget for the
// chain and must be released once the route completes.
func (r *Router) plan(ctx context.Context, req *Request, capability providers.Capability) ([]Candidate, *ledger.Hold, error) {
	call := req.providerRequest(capability)

	remotes := r.registry.Supporting(capability)
	chain := make([]Candidate, 0, len(remotes)+1)
	for _, p := range remotes {
		estimate := p.EstimateCost(call)
		if req.MaxCost != nil && estimate > *req.MaxCost {
			continue
		}
		chain = append(chain, Candidate{
			Provider:    p,
			ID:          p.ID,
			Estimate:    estimate,
			SuccessRate: r.health.SuccessRate(p.ID),
		})
	}

	sort.SliceStable(chain, func(i, j int) bool {
		a, b := chain[i], chain[j]
		if ap, bp := a.ID == req.PreferredProvider, b.ID == req.PreferredProvider; ap != bp {
			return ap
		}
		if a.Estimate != b.Estimate {
			return a.Estimate < b.Estimate
		}
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		return a.ID < b.ID
	})

	if r.config.MaxCandidates > 0 && len(chain) > r.config.MaxCandidates {
		chain = chain[:r.config.MaxCandidates]
	}

	chain, hold, err := r.applyBudget(ctx, req.UserID, chain)
	if err != nil {
		return nil, nil, err
	}

	local := r.registry.Local()
	return append(chain, Candidate{
		Provider:    local,
		ID:          local.CandidateID(),
		SuccessRate: 1,
		Local:       true,
	}), hold, nil
}

// applyBudget rejects the request when even the cheapest remote candidate
// would overrun the user's budget, and drops the ones that exceed what is
// left. Spend of other routes still in flight counts through their holds.
func (r *Router) applyBudget(ctx context.Context, userID string, chain []Candidate) ([]Candidate, *ledger.Hold, error) {
	if len(chain) == 0 || r.budgets == nil {
		return chain, nil, nil
	}
	budget := r.budgets.DailyBudget(userID)
	if budget <= 0 {
		return chain, nil, nil
	}

	estimates := make([]models.Money, len(chain))
	for i, c := range chain {
		estimates[i] = c.Estimate
	}
	hold, remaining, err := r.ledger.Reserve(ctx, userID, budget, estimates...)
	if err != nil {
		return nil, nil, err
	}

	kept := chain[:0]
	for _, c := range chain {
		if c.Estimate <= remaining {
			kept = append(kept, c)
		}
	}
	return kept, hold, nil
}

func (r *Router) route(ctx context.Context, req *Request, capability providers.Capability) (*Result, error) {
	requestID := uuid.NewString()
	logger := r.logger.With(
		zap.String("request_id", requestID),
		zap.String("user_id", req.UserID),
		zap.String("capability", string(capability)),
	)
	audit := models.NewRouteAudit(requestID, req.UserID, string(capability))

	chain, hold, err := r.plan(ctx, req, capability)
	if err != nil {
		r.submit(logger, audit.WithError(err.Error()))
		return nil, err
	}
	defer hold.Release()

	chainCtx, cancel := context.WithTimeout(ctx, r.config.ChainTimeout)
	defer cancel()

	call := req.providerRequest(capability)
	result := &Result{RequestID: requestID}

	for _, candidate := range chain {
		switch p := candidate.Provider.(type) {
		case providers.LocalFallback:
			resp := p.Serve(call)
			result.Attempts = append(result.Attempts, models.AttemptRecord{
				Provider: p.CandidateID(),
				Outcome:  models.OutcomeSuccess,
			})
			r.fill(result, p.CandidateID(), resp)
			logger.Warn("Served by local fallback", zap.Int("attempts", len(result.Attempts)))
			r.submit(logger, r.finish(audit, result))
			return result, nil

		case *providers.Remote:
			if chainCtx.Err() != nil {
				if err := ctx.Err(); err != nil {
					r.submit(logger, r.finish(audit, result).WithError(err.Error()))
					return nil, err
				}
				result.Attempts = append(result.Attempts, skipped(p.ID, "chain deadline exceeded"))
				continue
			}

			attempt, ok := r.gate.Acquire(p.ID)
			if !ok {
				result.Attempts = append(result.Attempts, skipped(p.ID, "circuit open"))
				continue
			}

			resp, latency, callErr := r.dispatch(chainCtx, p, call)
			outcome := providers.Classify(callErr)
			if outcome == models.OutcomeCancelled && ctx.Err() == nil {
				outcome = models.OutcomeServerError
			}
			if callErr != nil && ctx.Err() != nil {
				outcome = models.OutcomeCancelled
			}

			record := models.AttemptRecord{
				Provider:  p.ID,
				Outcome:   outcome,
				LatencyMs: latency.Milliseconds(),
			}
			if callErr != nil {
				record.Error = callErr.Error()
			}
			result.Attempts = append(result.Attempts, record)

			attemptLogger := logger.With(zap.String("provider_id", p.ID), zap.String("outcome", string(outcome)))

			switch outcome {
			case models.OutcomeSuccess:
				r.health.Record(p.ID, true, latency)
				attempt.Success()
				charge := p.Pricing.Charge(resp.Usage)
				r.bill(ctx, attemptLogger, req, requestID, p.ID, charge)
				result.CostIncurred += charge
				r.fill(result, p.ID, resp)
				attemptLogger.Info("Request routed",
					zap.Duration("latency", latency),
					zap.String("cost", charge.String()),
				)
				r.submit(logger, r.finish(audit, result))
				return result, nil

			case models.OutcomeCancelled:
				attempt.Release()
				attemptLogger.Info("Route cancelled by caller")
				err := ctx.Err()
				r.submit(logger, r.finish(audit, result).WithError(err.Error()))
				return nil, err

			case models.OutcomeInvalidRequest:
				// The vendor rejected this request, not its own health
				attempt.Release()
				attemptLogger.Warn("Provider rejected request, advancing", zap.Error(callErr))

			case models.OutcomeAuthError:
				attempt.Release()
				attemptLogger.Error("Provider rejected credentials", zap.Error(callErr))
				err := services.NewProviderAuthError(p.ID, callErr)
				r.submit(logger, r.finish(audit, result).WithError(err.Error()))
				return nil, err

			default:
				r.health.Record(p.ID, false, latency)
				attempt.Failure()
				if r.config.BillFailedAttempts {
					if cost := providers.IncurredCost(callErr); cost > 0 {
						r.bill(ctx, attemptLogger, req, requestID, p.ID, cost)
						result.CostIncurred += cost
					}
				}
				attemptLogger.Warn("Provider attempt failed, advancing", zap.Error(callErr))
			}
		}
	}

	logger.Error("Fallback chain ended without the local fallback", zap.Int("attempts", len(result.Attempts)))
	err = services.NewAllProvidersExhaustedError(string(capability))
	r.submit(logger, r.finish(audit, result).WithError(err.Error()))
	return nil, err
}

// dispatch runs one vendor call under the per-attempt timeout
func (r *Router) dispatch(chainCtx context.Context, p *providers.Remote, call *providers.Request) (*providers.Response, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(chainCtx, r.config.AttemptTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Invoke(attemptCtx, call)
	latency := time.Since(start)
	if err == nil && resp == nil {
		err = providers.NewProviderError(p.ID, models.OutcomeServerError, "empty response", 0, nil)
	}
	return resp, latency, err
}

// bill writes a cost record. The write outlives caller cancellation: the
// vendor has already charged. Failures are logged, never surfaced.
func (r *Router) bill(ctx context.Context, logger *zap.Logger, req *Request, requestID, providerID string, amount models.Money) {
	if amount <= 0 {
		return
	}
	_, err := r.ledger.Record(context.WithoutCancel(ctx), ledger.Entry{
		UserID:         req.UserID,
		ProviderID:     providerID,
		Amount:         amount,
		IdempotencyKey: req.IdempotencyKey,
		RequestID:      requestID,
	})
	if err != nil {
		logger.Error("Failed to record cost", zap.String("amount", amount.String()), zap.Error(err))
	}
}

func (r *Router) fill(result *Result, providerID string, resp *providers.Response) {
	result.Success = true
	result.ProviderUsed = providerID
	result.Output = resp.Output
	result.Model = resp.Model
}

func (r *Router) finish(audit *models.RouteAudit, result *Result) *models.RouteAudit {
	return audit.
		WithResult(result.ProviderUsed, result.Success, result.CostIncurred).
		WithAttempts(result.Attempts)
}

func (r *Router) submit(logger *zap.Logger, audit *models.RouteAudit) {
	if r.audit == nil {
		return
	}
	if !r.audit.Record(audit) {
		logger.Warn("Route audit dropped")
	}
}

func skipped(providerID, reason string) models.AttemptRecord {
	return models.AttemptRecord{
		Provider: providerID,
		Outcome:  models.OutcomeSkipped,
		Error:    reason,
	}
}
