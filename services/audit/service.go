package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/repositories"
	"github.com/upb/ai-integration-platform/services"
)

// Service persists route audits asynchronously. Record never blocks the
// caller: when the buffer is full the audit is dropped with a warning.
type Service struct {
	repo        repositories.RouteAuditRepository
	logger      *zap.Logger
	auditChan   chan *models.RouteAudit
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup

	// mu guards started/stopped and the channel close
	mu      sync.RWMutex
	started bool
	stopped bool

	persisted atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// Config holds configuration for the Service
type Config struct {
	BufferSize  int // Size of the audit buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 4,
	}
}

// NewService creates a new Service instance
func NewService(repo repositories.RouteAuditRepository, logger *zap.Logger, config Config) *Service {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		repo:        repo,
		logger:      logger,
		auditChan:   make(chan *models.RouteAudit, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting audits and waits for pending ones to be written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	close(s.auditChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_audits", len(s.auditChan)))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues an audit without blocking. It reports false when the
// service is not running or the buffer is full.
func (s *Service) Record(audit *models.RouteAudit) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		s.dropped.Add(1)
		return false
	}

	select {
	case s.auditChan <- audit:
		return true
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit channel full, dropping route audit",
			zap.String("request_id", audit.RequestID),
			zap.String("user_id", audit.UserID))
		return false
	}
}

// Get returns the audit of a route call
func (s *Service) Get(ctx context.Context, requestID string) (*models.RouteAudit, error) {
	audit, err := s.repo.GetByRequestID(ctx, requestID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "route audit not found", err).
			WithDetail("request_id", requestID)
	}
	if err != nil {
		return nil, services.WrapInternal("failed to get route audit", err)
	}
	return audit, nil
}

// List returns a user's route audits, newest first
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]*models.RouteAudit, error) {
	audits, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, services.WrapInternal("failed to list route audits", err)
	}
	if audits == nil {
		audits = []*models.RouteAudit{}
	}
	return audits, nil
}

// Purge deletes audits older than before
func (s *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	removed, err := s.repo.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge route audits: %w", err)
	}
	return removed, nil
}

// worker writes audits from the channel until it is closed
func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for audit := range s.auditChan {
		if err := s.persist(audit); err != nil {
			s.failed.Add(1)
			s.logger.Error("failed to persist route audit",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("request_id", audit.RequestID),
				zap.String("user_id", audit.UserID))
			continue
		}
		s.persisted.Add(1)
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *Service) persist(audit *models.RouteAudit) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Insert(ctx, audit); err != nil {
		return fmt.Errorf("failed to insert route audit: %w", err)
	}
	return nil
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int    `json:"buffer_size"`
	PendingAudits int    `json:"pending_audits"`
	WorkerCount   int    `json:"worker_count"`
	Started       bool   `json:"started"`
	Persisted     uint64 `json:"persisted"`
	Failed        uint64 `json:"failed"`
	Dropped       uint64 `json:"dropped"`
}

// GetStats returns statistics about the audit service
func (s *Service) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingAudits: len(s.auditChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
		Persisted:     s.persisted.Load(),
		Failed:        s.failed.Load(),
		Dropped:       s.dropped.Load(),
	}
}
