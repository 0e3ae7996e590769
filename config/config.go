package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers for the ledger and route audit store
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Database      DatabaseConfig
	AuditDatabase *DatabaseConfig // Optional: separate DB for route audits. When nil, audits use the main DB.
	Providers     ProvidersConfig
	Health        HealthConfig
	Breaker       BreakerConfig
	Routing       RoutingConfig
	Ledger        LedgerConfig
	Audit         AuditConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// StorageConfig selects where cost records and route audits live
type StorageConfig struct {
	Driver     string // memory, postgres or sqlite
	SQLitePath string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ProvidersConfig holds vendor credentials and the provider catalog location
type ProvidersConfig struct {
	CatalogPath string // YAML catalog; empty uses the built-in catalog
	OpenAI      VendorConfig
	Anthropic   VendorConfig
	Google      VendorConfig
	Stability   VendorConfig
}

// VendorConfig holds one vendor's API credentials
type VendorConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// HealthConfig holds the rolling health window settings
type HealthConfig struct {
	WindowSize     int
	WindowSpan     time.Duration
	DegradedBelow  float64
	UnhealthyBelow float64
	MinSamples     int
}

// BreakerConfig holds circuit breaker settings
type BreakerConfig struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// RoutingConfig holds fallback chain settings
type RoutingConfig struct {
	AttemptTimeout time.Duration
	ChainTimeout   time.Duration
	MaxCandidates  int
	DedupWindow    time.Duration
	DedupCapacity  int
	ExposeAttempts bool
}

// LedgerConfig holds cost ledger settings
type LedgerConfig struct {
	Timezone           string
	BillFailedAttempts bool
	// DefaultDailyBudget overrides the catalog default when set. Zero means unlimited.
	DefaultDailyBudget *float64
	RetentionSchedule  string // cron expression; empty disables the purge job
	Retention          time.Duration
}

// AuditConfig holds route audit worker pool settings
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// AuthConfig holds caller identity settings
type AuthConfig struct {
	// JWTSecret enables HS256 bearer tokens. When empty the X-User-ID header is trusted.
	JWTSecret string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or text
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(getEnv("LEDGER_STORE", StorageMemory)),
			SQLitePath: getEnv("SQLITE_PATH", "data/platform.db"),
		},
		Database:      loadDatabaseConfig(),
		AuditDatabase: loadAuditDatabaseConfig(),
		Providers: ProvidersConfig{
			CatalogPath: getEnv("PROVIDER_CATALOG", ""),
			OpenAI:      loadVendorConfig("OPENAI", ""),
			Anthropic:   loadVendorConfig("ANTHROPIC", ""),
			Google:      loadVendorConfig("GOOGLE", ""),
			Stability:   loadVendorConfig("STABILITY", "https://api.stability.ai"),
		},
		Health: HealthConfig{
			WindowSize:     getEnvAsInt("HEALTH_WINDOW_SIZE", 20),
			WindowSpan:     getEnvAsDuration("HEALTH_WINDOW_SPAN", 5*time.Minute),
			DegradedBelow:  getEnvAsFloat("HEALTH_DEGRADED_BELOW", 0.9),
			UnhealthyBelow: getEnvAsFloat("HEALTH_UNHEALTHY_BELOW", 0.5),
			MinSamples:     getEnvAsInt("HEALTH_MIN_SAMPLES", 5),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getEnvAsInt("BREAKER_FAILURE_THRESHOLD", 5),
			Cooldown:         getEnvAsDuration("BREAKER_COOLDOWN", 60*time.Second),
		},
		Routing: RoutingConfig{
			AttemptTimeout: getEnvAsDuration("ROUTING_ATTEMPT_TIMEOUT", 15*time.Second),
			ChainTimeout:   getEnvAsDuration("ROUTING_CHAIN_TIMEOUT", 45*time.Second),
			MaxCandidates:  getEnvAsInt("ROUTING_MAX_CANDIDATES", 4),
			DedupWindow:    getEnvAsDuration("ROUTING_DEDUP_WINDOW", 10*time.Minute),
			DedupCapacity:  getEnvAsInt("ROUTING_DEDUP_CAPACITY", 10000),
			ExposeAttempts: getEnvAsBool("ROUTING_EXPOSE_ATTEMPTS", false),
		},
		Ledger: LedgerConfig{
			Timezone:           getEnv("LEDGER_TIMEZONE", "UTC"),
			BillFailedAttempts: getEnvAsBool("LEDGER_BILL_FAILED_ATTEMPTS", false),
			DefaultDailyBudget: getEnvAsOptionalFloat("LEDGER_DEFAULT_DAILY_BUDGET"),
			RetentionSchedule:  getEnv("LEDGER_RETENTION_SCHEDULE", "0 3 * * *"),
			Retention:          getEnvAsDuration("LEDGER_RETENTION", 90*24*time.Hour),
		},
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 10000),
			WorkerCount: getEnvAsInt("AUDIT_WORKER_COUNT", 4),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required when LEDGER_STORE=sqlite")
		}
	case StoragePostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	default:
		return fmt.Errorf("unknown ledger store %q (want memory, postgres or sqlite)", c.Storage.Driver)
	}

	if c.Health.WindowSize <= 0 {
		return fmt.Errorf("health window size must be positive")
	}
	if c.Health.UnhealthyBelow < 0 || c.Health.DegradedBelow > 1 || c.Health.UnhealthyBelow > c.Health.DegradedBelow {
		return fmt.Errorf("health thresholds must satisfy 0 <= unhealthy <= degraded <= 1")
	}

	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker failure threshold must be positive")
	}
	if c.Breaker.Cooldown <= 0 {
		return fmt.Errorf("breaker cooldown must be positive")
	}

	if c.Routing.AttemptTimeout <= 0 || c.Routing.ChainTimeout <= 0 {
		return fmt.Errorf("routing timeouts must be positive")
	}
	if c.Routing.ChainTimeout < c.Routing.AttemptTimeout {
		return fmt.Errorf("routing chain timeout (%s) must not be shorter than the attempt timeout (%s)",
			c.Routing.ChainTimeout, c.Routing.AttemptTimeout)
	}
	if c.Routing.MaxCandidates <= 0 {
		return fmt.Errorf("routing max candidates must be positive")
	}
	if c.Routing.DedupCapacity <= 0 {
		return fmt.Errorf("routing dedup capacity must be positive")
	}

	if _, err := c.Ledger.Location(); err != nil {
		return err
	}
	if c.Ledger.DefaultDailyBudget != nil && *c.Ledger.DefaultDailyBudget < 0 {
		return fmt.Errorf("default daily budget cannot be negative")
	}
	if c.Ledger.RetentionSchedule != "" && c.Ledger.Retention <= 0 {
		return fmt.Errorf("ledger retention must be positive when a retention schedule is set")
	}

	if c.Audit.BufferSize <= 0 || c.Audit.WorkerCount <= 0 {
		return fmt.Errorf("audit buffer size and worker count must be positive")
	}

	// Provider validation (at least one vendor API key required in production)
	if c.IsProduction() && len(c.Providers.Credentials()) == 0 {
		return fmt.Errorf("at least one AI provider must be configured in production")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Location resolves the ledger timezone
func (c *LedgerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Credentials returns the configured vendors keyed by vendor name.
// Vendors without an API key are omitted.
func (p *ProvidersConfig) Credentials() map[string]VendorConfig {
	out := make(map[string]VendorConfig)
	for vendor, v := range map[string]VendorConfig{
		"openai":    p.OpenAI,
		"anthropic": p.Anthropic,
		"google":    p.Google,
		"stability": p.Stability,
	} {
		if v.APIKey != "" {
			out[vendor] = v
		}
	}
	return out
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "platform"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "ai_platform"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadAuditDatabaseConfig loads audit DB config from DATABASE_URL_AUDIT.
// Returns nil when not set (audit uses main DB).
func loadAuditDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL_AUDIT", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadVendorConfig reads <PREFIX>_API_KEY, <PREFIX>_BASE_URL and <PREFIX>_TIMEOUT
func loadVendorConfig(prefix, defaultBaseURL string) VendorConfig {
	return VendorConfig{
		APIKey:  getEnv(prefix+"_API_KEY", ""),
		BaseURL: getEnv(prefix+"_BASE_URL", defaultBaseURL),
		Timeout: getEnvAsDuration(prefix+"_TIMEOUT", 60*time.Second),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsOptionalFloat returns nil when the variable is unset or unparseable
func getEnvAsOptionalFloat(key string) *float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return nil
	}
	return &value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
