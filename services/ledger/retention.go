package ledger

import (
	"context"
	"fmt"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger deletes stored rows created before a cutoff
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type purgeTarget struct {
	name   string
	purger Purger
}

// Retention runs scheduled purges of ledger and audit data
type Retention struct {
	cron      *cronlib.Cron
	schedule  string
	retention time.Duration
	targets   []purgeTarget
	nowFunc   func() time.Time
	logger    *zap.Logger
}

// NewRetention validates the cron expression and prepares the job.
// Standard five-field expressions and descriptors such as @daily are accepted.
func NewRetention(schedule string, retention time.Duration, loc *time.Location, logger *zap.Logger) (*Retention, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", retention)
	}
	if loc == nil {
		loc = time.UTC
	}

	parser := cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	return &Retention{
		cron:      cronlib.New(cronlib.WithParser(parser), cronlib.WithLocation(loc)),
		schedule:  schedule,
		retention: retention,
		nowFunc:   time.Now,
		logger:    logger,
	}, nil
}

// AddTarget registers a store to purge on each run
func (r *Retention) AddTarget(name string, p Purger) *Retention {
	r.targets = append(r.targets, purgeTarget{name: name, purger: p})
	return r
}

// RunOnce purges every target with the configured retention.
// Failures are logged and do not stop the remaining targets.
func (r *Retention) RunOnce(ctx context.Context) map[string]int64 {
	cutoff := r.nowFunc().Add(-r.retention)
	removed := make(map[string]int64, len(r.targets))

	for _, t := range r.targets {
		n, err := t.purger.Purge(ctx, cutoff)
		if err != nil {
			r.logger.Error("retention purge failed", zap.String("target", t.name), zap.Error(err))
			continue
		}
		removed[t.name] = n
		r.logger.Info("retention purge completed",
			zap.String("target", t.name),
			zap.Int64("removed", n),
			zap.Time("cutoff", cutoff))
	}
	return removed
}

// Start schedules RunOnce and starts the scheduler goroutine
func (r *Retention) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.schedule, func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		r.RunOnce(runCtx)
	})
	if err != nil {
		return fmt.Errorf("scheduling retention job: %w", err)
	}
	r.cron.Start()
	r.logger.Info("retention job scheduled",
		zap.String("schedule", r.schedule),
		zap.Duration("retention", r.retention))
	return nil
}

// Stop stops the scheduler and waits for a running purge to finish
func (r *Retention) Stop(timeout time.Duration) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.logger.Info("retention job stopped")
	case <-time.After(timeout):
		r.logger.Warn("retention job stop timed out")
	}
}
