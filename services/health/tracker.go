package health

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the coarse health classification of a provider
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Config controls the rolling window and the classification thresholds
type Config struct {
	// WindowSize is the maximum number of samples kept per provider
	WindowSize int

	// WindowSpan drops samples older than this. Zero keeps samples regardless of age.
	WindowSpan time.Duration

	// DegradedBelow is the success rate under which a provider is degraded
	DegradedBelow float64

	// UnhealthyBelow is the success rate under which a provider is unhealthy
	UnhealthyBelow float64

	// MinSamples is the number of samples needed before a provider can be
	// classified as anything but healthy
	MinSamples int
}

// DefaultConfig returns the default tracker configuration
func DefaultConfig() Config {
	return Config{
		WindowSize:     20,
		WindowSpan:     5 * time.Minute,
		DegradedBelow:  0.9,
		UnhealthyBelow: 0.5,
		MinSamples:     5,
	}
}

// Validate checks the configuration for consistency
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("health window size must be positive, got %d", c.WindowSize)
	}
	if c.WindowSpan < 0 {
		return fmt.Errorf("health window span cannot be negative, got %s", c.WindowSpan)
	}
	if c.UnhealthyBelow < 0 || c.DegradedBelow > 1 || c.UnhealthyBelow > c.DegradedBelow {
		return fmt.Errorf("health thresholds must satisfy 0 <= unhealthy (%v) <= degraded (%v) <= 1",
			c.UnhealthyBelow, c.DegradedBelow)
	}
	if c.MinSamples < 0 {
		return fmt.Errorf("health min samples cannot be negative, got %d", c.MinSamples)
	}
	return nil
}

// Sample is one observed call outcome
type Sample struct {
	At      time.Time
	Success bool
	Latency time.Duration
}

// Snapshot is a point-in-time view of one provider's window
type Snapshot struct {
	ProviderID   string  `json:"provider_id"`
	Status       Status  `json:"status"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMs int64   `json:"avg_latency_ms"`
	Samples      int     `json:"samples"`
}

// window holds the samples of a single provider, oldest first
type window struct {
	mu         sync.Mutex
	samples    []Sample
	lastStatus Status
}

// Tracker keeps a rolling success window per provider.
// Each window has its own lock; the tracker lock only guards the window map.
type Tracker struct {
	cfg     Config
	logger  *zap.Logger
	mu      sync.RWMutex
	windows map[string]*window
	nowFunc func() time.Time // for testing
}

// NewTracker creates a health tracker
func NewTracker(cfg Config, logger *zap.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		cfg:     cfg,
		logger:  logger,
		windows: make(map[string]*window),
		nowFunc: time.Now,
	}, nil
}

// SetNowFunc overrides the time source (for testing)
func (t *Tracker) SetNowFunc(fn func() time.Time) {
	t.mu.Lock()
	t.nowFunc = fn
	t.mu.Unlock()
}

func (t *Tracker) now() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nowFunc()
}

// lookup returns the provider's window, creating it when create is set
func (t *Tracker) lookup(providerID string, create bool) *window {
	t.mu.RLock()
	w, ok := t.windows[providerID]
	t.mu.RUnlock()
	if ok || !create {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok = t.windows[providerID]; !ok {
		w = &window{lastStatus: StatusHealthy}
		t.windows[providerID] = w
	}
	return w
}

// Record adds a call outcome to the provider's window
func (t *Tracker) Record(providerID string, success bool, latency time.Duration) {
	now := t.now()
	w := t.lookup(providerID, true)

	w.mu.Lock()
	w.samples = append(w.samples, Sample{At: now, Success: success, Latency: latency})
	if over := len(w.samples) - t.cfg.WindowSize; over > 0 {
		w.samples = append(w.samples[:0], w.samples[over:]...)
	}
	t.pruneLocked(w, now)
	status, rate := t.classifyLocked(w)
	previous := w.lastStatus
	w.lastStatus = status
	w.mu.Unlock()

	if status != previous {
		t.logger.Info("provider health changed",
			zap.String("provider_id", providerID),
			zap.String("from", string(previous)),
			zap.String("to", string(status)),
			zap.Float64("success_rate", rate))
	}
}

// Status returns the provider's current classification
func (t *Tracker) Status(providerID string) Status {
	return t.Snapshot(providerID).Status
}

// SuccessRate returns the fraction of successful samples in the window,
// or 1.0 for a provider with no samples
func (t *Tracker) SuccessRate(providerID string) float64 {
	return t.Snapshot(providerID).SuccessRate
}

// Snapshot returns the provider's window summary
func (t *Tracker) Snapshot(providerID string) Snapshot {
	snap := Snapshot{ProviderID: providerID, Status: StatusHealthy, SuccessRate: 1.0}

	w := t.lookup(providerID, false)
	if w == nil {
		return snap
	}
	now := t.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	t.pruneLocked(w, now)
	snap.Status, snap.SuccessRate = t.classifyLocked(w)
	snap.Samples = len(w.samples)
	if snap.Samples > 0 {
		var total time.Duration
		for _, s := range w.samples {
			total += s.Latency
		}
		snap.AvgLatencyMs = (total / time.Duration(snap.Samples)).Milliseconds()
	}
	return snap
}

// Snapshots returns a summary for every provider with a window
func (t *Tracker) Snapshots() map[string]Snapshot {
	t.mu.RLock()
	ids := make([]string, 0, len(t.windows))
	for id := range t.windows {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	out := make(map[string]Snapshot, len(ids))
	for _, id := range ids {
		out[id] = t.Snapshot(id)
	}
	return out
}

// pruneLocked drops samples older than the window span. Caller holds w.mu.
func (t *Tracker) pruneLocked(w *window, now time.Time) {
	if t.cfg.WindowSpan <= 0 {
		return
	}
	cutoff := now.Add(-t.cfg.WindowSpan)
	i := 0
	for i < len(w.samples) && w.samples[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

// classifyLocked computes status and success rate. Caller holds w.mu.
func (t *Tracker) classifyLocked(w *window) (Status, float64) {
	n := len(w.samples)
	if n == 0 {
		return StatusHealthy, 1.0
	}

	successes := 0
	for _, s := range w.samples {
		if s.Success {
			successes++
		}
	}
	rate := float64(successes) / float64(n)

	switch {
	case n < t.cfg.MinSamples:
		return StatusHealthy, rate
	case rate < t.cfg.UnhealthyBelow:
		return StatusUnhealthy, rate
	case rate < t.cfg.DegradedBelow:
		return StatusDegraded, rate
	default:
		return StatusHealthy, rate
	}
}
