package breaker

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/services/health"
)

// State is the circuit state of a provider
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config controls when circuits open and how long they stay open
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens a closed circuit
	FailureThreshold int

	// Cooldown is how long an open circuit rejects calls before allowing a probe
	Cooldown time.Duration
}

// DefaultConfig returns the default breaker configuration
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.FailureThreshold <= 0 {
		return fmt.Errorf("breaker failure threshold must be positive, got %d", c.FailureThreshold)
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("breaker cooldown must be positive, got %s", c.Cooldown)
	}
	return nil
}

// HealthSource reports provider health. *health.Tracker implements it.
type HealthSource interface {
	Status(providerID string) health.Status
}

// Snapshot is a point-in-time view of one circuit
type Snapshot struct {
	ProviderID          string     `json:"provider_id"`
	State               State      `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty"`
}

// circuit is the state of a single provider
type circuit struct {
	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// Breaker holds one circuit per provider
type Breaker struct {
	cfg      Config
	health   HealthSource
	logger   *zap.Logger
	mu       sync.RWMutex
	circuits map[string]*circuit
	nowFunc  func() time.Time // for testing
}

// New creates a breaker. hs may be nil, in which case only the
// consecutive failure count opens circuits.
func New(cfg Config, hs HealthSource, logger *zap.Logger) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		cfg:      cfg,
		health:   hs,
		logger:   logger,
		circuits: make(map[string]*circuit),
		nowFunc:  time.Now,
	}, nil
}

// SetNowFunc overrides the time source (for testing)
func (b *Breaker) SetNowFunc(fn func() time.Time) {
	b.mu.Lock()
	b.nowFunc = fn
	b.mu.Unlock()
}

func (b *Breaker) now() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nowFunc()
}

func (b *Breaker) circuitFor(providerID string) *circuit {
	b.mu.RLock()
	c, ok := b.circuits[providerID]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok = b.circuits[providerID]; !ok {
		c = &circuit{state: StateClosed}
		b.circuits[providerID] = c
	}
	return c
}

// effectiveLocked reports the state as seen at now: an open circuit whose
// cooldown has elapsed is half open. Caller holds c.mu.
func (b *Breaker) effectiveLocked(c *circuit, now time.Time) State {
	if c.state == StateOpen && !now.Before(c.openedAt.Add(b.cfg.Cooldown)) {
		return StateHalfOpen
	}
	return c.state
}

// IsEligible reports whether a call to the provider would be admitted.
// It does not change any state.
func (b *Breaker) IsEligible(providerID string) bool {
	now := b.now()
	c := b.circuitFor(providerID)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch b.effectiveLocked(c, now) {
	case StateClosed:
		return true
	case StateHalfOpen:
		return !c.probing
	default:
		return false
	}
}

// Acquire admits a call to the provider. When the circuit is half open the
// caller becomes the single probe. The returned Attempt must be resolved
// with Success, Failure or Release.
func (b *Breaker) Acquire(providerID string) (*Attempt, bool) {
	now := b.now()
	c := b.circuitFor(providerID)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch b.effectiveLocked(c, now) {
	case StateClosed:
		return &Attempt{breaker: b, circuit: c, providerID: providerID}, true
	case StateHalfOpen:
		if c.probing {
			return nil, false
		}
		if c.state == StateOpen {
			b.logger.Info("circuit half-open, admitting probe",
				zap.String("provider_id", providerID),
				zap.Duration("open_for", now.Sub(c.openedAt)))
		}
		c.state = StateHalfOpen
		c.probing = true
		return &Attempt{breaker: b, circuit: c, providerID: providerID, probe: true}, true
	default:
		return nil, false
	}
}

// State returns the provider's effective circuit state
func (b *Breaker) State(providerID string) State {
	return b.Snapshot(providerID).State
}

// Snapshot returns the provider's circuit summary
func (b *Breaker) Snapshot(providerID string) Snapshot {
	now := b.now()
	c := b.circuitFor(providerID)

	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		ProviderID:          providerID,
		State:               b.effectiveLocked(c, now),
		ConsecutiveFailures: c.failures,
	}
	if c.state == StateOpen {
		opened := c.openedAt
		until := opened.Add(b.cfg.Cooldown)
		snap.OpenedAt = &opened
		snap.CooldownUntil = &until
	}
	return snap
}

// Reset closes the provider's circuit and clears its failure count
func (b *Breaker) Reset(providerID string) {
	c := b.circuitFor(providerID)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = StateClosed
	c.failures = 0
	c.probing = false
	b.logger.Info("circuit reset", zap.String("provider_id", providerID))
}

func (b *Breaker) onSuccess(a *Attempt) {
	c := a.circuit
	c.mu.Lock()
	defer c.mu.Unlock()

	if a.probe {
		c.state = StateClosed
		c.failures = 0
		c.probing = false
		b.logger.Info("circuit closed after successful probe", zap.String("provider_id", a.providerID))
		return
	}
	if c.state == StateClosed {
		c.failures = 0
	}
}

func (b *Breaker) onFailure(a *Attempt) {
	unhealthy := false
	if b.health != nil {
		unhealthy = b.health.Status(a.providerID) == health.StatusUnhealthy
	}
	now := b.now()

	c := a.circuit
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++

	if a.probe {
		c.state = StateOpen
		c.openedAt = now
		c.probing = false
		b.logger.Warn("circuit reopened after failed probe",
			zap.String("provider_id", a.providerID),
			zap.Int("consecutive_failures", c.failures),
			zap.Duration("cooldown", b.cfg.Cooldown))
		return
	}

	if c.state != StateClosed {
		return
	}
	if c.failures >= b.cfg.FailureThreshold || unhealthy {
		c.state = StateOpen
		c.openedAt = now
		b.logger.Warn("circuit opened",
			zap.String("provider_id", a.providerID),
			zap.Int("consecutive_failures", c.failures),
			zap.Bool("unhealthy", unhealthy),
			zap.Duration("cooldown", b.cfg.Cooldown))
	}
}

func (b *Breaker) onRelease(a *Attempt) {
	if !a.probe {
		return
	}
	c := a.circuit
	c.mu.Lock()
	c.probing = false
	c.mu.Unlock()
}

// Attempt is an admitted call. Exactly one of Success, Failure or Release
// takes effect; later calls are no-ops.
type Attempt struct {
	breaker    *Breaker
	circuit    *circuit
	providerID string
	probe      bool
	once       sync.Once
}

// ProviderID returns the provider the attempt was admitted for
func (a *Attempt) ProviderID() string {
	return a.providerID
}

// Probe reports whether the attempt is the half-open probe
func (a *Attempt) Probe() bool {
	return a.probe
}

// Success records a successful call
func (a *Attempt) Success() {
	a.once.Do(func() { a.breaker.onSuccess(a) })
}

// Failure records a failed call
func (a *Attempt) Failure() {
	a.once.Do(func() { a.breaker.onFailure(a) })
}

// Release gives the slot back without a verdict
func (a *Attempt) Release() {
	a.once.Do(func() { a.breaker.onRelease(a) })
}
