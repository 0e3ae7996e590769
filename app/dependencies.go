package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/config"
	"github.com/upb/ai-integration-platform/middleware"
	"github.com/upb/ai-integration-platform/repositories"
	"github.com/upb/ai-integration-platform/repositories/memory"
	"github.com/upb/ai-integration-platform/repositories/postgres"
	"github.com/upb/ai-integration-platform/repositories/sqlite"
	"github.com/upb/ai-integration-platform/services/audit"
	"github.com/upb/ai-integration-platform/services/breaker"
	"github.com/upb/ai-integration-platform/services/health"
	"github.com/upb/ai-integration-platform/services/ledger"
	"github.com/upb/ai-integration-platform/services/providers"
	"github.com/upb/ai-integration-platform/services/providers/anthropic"
	"github.com/upb/ai-integration-platform/services/providers/google"
	"github.com/upb/ai-integration-platform/services/providers/openai"
	"github.com/upb/ai-integration-platform/services/providers/stability"
	"github.com/upb/ai-integration-platform/services/routing"
)

// Store is a database backing the repositories. The memory store has none.
type Store interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	Store  Store

	Repositories *repositories.Repositories

	// Providers
	Catalog  *providers.Catalog
	Registry *providers.Registry

	// Services
	Health    *health.Tracker
	Breaker   *breaker.Breaker
	Ledger    *ledger.Ledger
	Audit     *audit.Service
	Router    *routing.Router
	Retention *ledger.Retention // nil when the purge job is disabled

	Identity *middleware.Identity

	stopCleanup chan struct{}
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	if err := deps.initStore(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := deps.initProviders(cfg); err != nil {
		_ = deps.closeStore()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		_ = deps.closeStore()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.Identity = middleware.NewIdentity(cfg.Auth.JWTSecret, logger)

	logger.Info("all dependencies initialized successfully",
		zap.String("store", cfg.Storage.Driver),
		zap.Int("providers", deps.Registry.Count()))
	return deps, nil
}

// initStore opens the configured ledger and audit store
func (d *Dependencies) initStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		if err := factory.InitSchema(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		d.Store = factory
		d.Repositories = factory.NewRepositories()
		d.Logger.Info("database connection established",
			zap.String("connection", cfg.Database.LogString()))

	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.Storage.SQLitePath, d.Logger)
		if err != nil {
			return err
		}
		d.Store = store
		d.Repositories = store.Repositories()

	default:
		d.Repositories = memory.NewRepositories()
		d.Logger.Warn("using in-memory ledger, spend is lost on restart")
	}
	return nil
}

// initProviders loads the catalog and builds the registry with every vendor adapter
func (d *Dependencies) initProviders(cfg *config.Config) error {
	catalog := providers.DefaultCatalog()
	if cfg.Providers.CatalogPath != "" {
		loaded, err := providers.LoadCatalog(cfg.Providers.CatalogPath)
		if err != nil {
			return err
		}
		catalog = loaded
	}

	credentials := make(map[string]providers.ProviderConfig)
	for vendor, v := range cfg.Providers.Credentials() {
		pc := providers.DefaultProviderConfig()
		pc.APIKey = v.APIKey
		pc.BaseURL = v.BaseURL
		if v.Timeout > 0 {
			pc.Timeout = v.Timeout
		}
		credentials[vendor] = pc
	}

	registry, err := providers.NewRegistryBuilder(d.Logger).
		WithFactory("openai", openai.Factory).
		WithFactory("anthropic", anthropic.Factory).
		WithFactory("google", google.Factory).
		WithFactory("stability", stability.Factory).
		Build(catalog, credentials)
	if err != nil {
		return err
	}

	if !anyEnabled(registry) {
		d.Logger.Warn("no remote providers enabled, every request is served by the local fallback")
	}

	d.Catalog = catalog
	d.Registry = registry
	return nil
}

func anyEnabled(registry *providers.Registry) bool {
	for _, p := range registry.List() {
		if p.Enabled {
			return true
		}
	}
	return false
}

// initServices wires health, breaker, ledger, audit and router
func (d *Dependencies) initServices(cfg *config.Config) error {
	tracker, err := health.NewTracker(health.Config{
		WindowSize:     cfg.Health.WindowSize,
		WindowSpan:     cfg.Health.WindowSpan,
		DegradedBelow:  cfg.Health.DegradedBelow,
		UnhealthyBelow: cfg.Health.UnhealthyBelow,
		MinSamples:     cfg.Health.MinSamples,
	}, d.Logger)
	if err != nil {
		return err
	}

	br, err := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
	}, tracker, d.Logger)
	if err != nil {
		return err
	}

	loc, err := cfg.Ledger.Location()
	if err != nil {
		return err
	}
	defaultBudget, userBudgets := d.Catalog.DailyBudgets()
	budgets := ledger.NewBudgetResolver(defaultBudget, userBudgets).
		WithDefaultOverride(cfg.Ledger.DefaultDailyBudget)
	costLedger := ledger.New(d.Repositories, budgets, loc, d.Logger)

	auditService := audit.NewService(d.Repositories.RouteAudits, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})

	router, err := routing.NewRouter(routing.Config{
		AttemptTimeout:     cfg.Routing.AttemptTimeout,
		ChainTimeout:       cfg.Routing.ChainTimeout,
		MaxCandidates:      cfg.Routing.MaxCandidates,
		DedupWindow:        cfg.Routing.DedupWindow,
		DedupCapacity:      cfg.Routing.DedupCapacity,
		BillFailedAttempts: cfg.Ledger.BillFailedAttempts,
	}, routing.Dependencies{
		Registry: d.Registry,
		Health:   tracker,
		Gate:     br,
		Ledger:   costLedger,
		Budgets:  budgets,
		Audit:    auditService,
		Logger:   d.Logger,
	})
	if err != nil {
		return err
	}

	if cfg.Ledger.RetentionSchedule != "" {
		retention, err := ledger.NewRetention(cfg.Ledger.RetentionSchedule, cfg.Ledger.Retention, loc, d.Logger)
		if err != nil {
			return err
		}
		retention.AddTarget("cost_records", costLedger).AddTarget("route_audits", auditService)
		d.Retention = retention
	}

	d.Health = tracker
	d.Breaker = br
	d.Ledger = costLedger
	d.Audit = auditService
	d.Router = router
	return nil
}

// Start launches the background workers: audit writers, the retention job
// and the idempotency cache cleanup
func (d *Dependencies) Start(ctx context.Context) error {
	if err := d.Audit.Start(); err != nil {
		return err
	}
	if d.Retention != nil {
		if err := d.Retention.Start(ctx); err != nil {
			return err
		}
	}
	go d.Router.Results().StartCleanupWorker(time.Minute, d.stopCleanup)
	return nil
}

// Ready checks the backing store, if any
func (d *Dependencies) Ready(ctx context.Context) error {
	if d.Store == nil {
		return nil
	}
	return d.Store.HealthCheck(ctx)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	var errs []error

	select {
	case <-d.stopCleanup:
	default:
		close(d.stopCleanup)
	}

	if d.Retention != nil {
		d.Retention.Stop(timeout)
	}

	if d.Audit != nil && d.Audit.GetStats().Started {
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if err := d.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}

func (d *Dependencies) closeStore() error {
	if d.Store == nil {
		return nil
	}
	err := d.Store.Close()
	d.Store = nil
	if err == nil {
		d.Logger.Info("store closed")
	}
	return err
}
