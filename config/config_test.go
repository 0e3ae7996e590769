package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.False(t, cfg.Server.TLS.Enabled)
				assert.Equal(t, StorageMemory, cfg.Storage.Driver)
				assert.Nil(t, cfg.AuditDatabase)

				assert.Equal(t, 20, cfg.Health.WindowSize)
				assert.Equal(t, 5*time.Minute, cfg.Health.WindowSpan)
				assert.Equal(t, 0.9, cfg.Health.DegradedBelow)
				assert.Equal(t, 0.5, cfg.Health.UnhealthyBelow)
				assert.Equal(t, 5, cfg.Health.MinSamples)

				assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
				assert.Equal(t, 60*time.Second, cfg.Breaker.Cooldown)

				assert.Equal(t, 15*time.Second, cfg.Routing.AttemptTimeout)
				assert.Equal(t, 45*time.Second, cfg.Routing.ChainTimeout)
				assert.False(t, cfg.Routing.ExposeAttempts)

				assert.Equal(t, "UTC", cfg.Ledger.Timezone)
				assert.False(t, cfg.Ledger.BillFailedAttempts)
				assert.Nil(t, cfg.Ledger.DefaultDailyBudget)
				assert.Equal(t, "0 3 * * *", cfg.Ledger.RetentionSchedule)

				assert.Empty(t, cfg.Providers.Credentials())
				assert.Equal(t, "https://api.stability.ai", cfg.Providers.Stability.BaseURL)
			},
		},
		{
			name: "production configuration with providers",
			envVars: map[string]string{
				"ENVIRONMENT":       "production",
				"SERVER_PORT":       "9000",
				"LEDGER_STORE":      "postgres",
				"DB_HOST":           "prod-db.example.com",
				"DB_PORT":           "5433",
				"OPENAI_API_KEY":    "sk-xxxxx",
				"ANTHROPIC_API_KEY": "sk-ant-xxxxx",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.False(t, cfg.IsDevelopment())
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
				assert.Equal(t, "prod-db.example.com", cfg.Database.Host)
				assert.Equal(t, 5433, cfg.Database.Port)

				creds := cfg.Providers.Credentials()
				assert.Len(t, creds, 2)
				assert.Equal(t, "sk-xxxxx", creds["openai"].APIKey)
			},
		},
		{
			name: "routing and ledger overrides",
			envVars: map[string]string{
				"ROUTING_ATTEMPT_TIMEOUT":     "5s",
				"ROUTING_CHAIN_TIMEOUT":       "20s",
				"ROUTING_MAX_CANDIDATES":      "2",
				"ROUTING_EXPOSE_ATTEMPTS":     "true",
				"LEDGER_BILL_FAILED_ATTEMPTS": "true",
				"LEDGER_DEFAULT_DAILY_BUDGET": "12.5",
				"LEDGER_STORE":                "SQLite",
				"SQLITE_PATH":                 "/tmp/ledger.db",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 5*time.Second, cfg.Routing.AttemptTimeout)
				assert.Equal(t, 20*time.Second, cfg.Routing.ChainTimeout)
				assert.Equal(t, 2, cfg.Routing.MaxCandidates)
				assert.True(t, cfg.Routing.ExposeAttempts)
				assert.True(t, cfg.Ledger.BillFailedAttempts)
				require.NotNil(t, cfg.Ledger.DefaultDailyBudget)
				assert.Equal(t, 12.5, *cfg.Ledger.DefaultDailyBudget)
				assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
				assert.Equal(t, "/tmp/ledger.db", cfg.Storage.SQLitePath)
			},
		},
		{
			name: "separate audit database",
			envVars: map[string]string{
				"LEDGER_STORE":       "postgres",
				"DATABASE_URL":       "postgres://u:p@db:5432/ledger",
				"DATABASE_URL_AUDIT": "postgres://u:p@audit-db:5432/audit",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.AuditDatabase)
				assert.Equal(t, "host=audit-db port=5432 database=audit", cfg.AuditDatabase.LogString())
				assert.Equal(t, "host=db port=5432 database=ledger", cfg.Database.LogString())
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			wantErr: false,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "production without any provider",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
			},
			wantErr: true,
		},
		{
			name: "unknown ledger store",
			envVars: map[string]string{
				"LEDGER_STORE": "redis",
			},
			wantErr: true,
		},
		{
			name: "chain timeout shorter than attempt timeout",
			envVars: map[string]string{
				"ROUTING_ATTEMPT_TIMEOUT": "30s",
				"ROUTING_CHAIN_TIMEOUT":   "10s",
			},
			wantErr: true,
		},
		{
			name: "invalid ledger timezone",
			envVars: map[string]string{
				"LEDGER_TIMEZONE": "Not/AZone",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			// Create config
			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Environment:   "development",
		Storage:       StorageConfig{Driver: StorageMemory},
		Health:        HealthConfig{WindowSize: 20, DegradedBelow: 0.9, UnhealthyBelow: 0.5, MinSamples: 5},
		Breaker:       BreakerConfig{FailureThreshold: 5, Cooldown: time.Minute},
		Routing:       RoutingConfig{AttemptTimeout: 15 * time.Second, ChainTimeout: 45 * time.Second, MaxCandidates: 4, DedupCapacity: 100},
		Ledger:        LedgerConfig{Timezone: "UTC"},
		Audit:         AuditConfig{BufferSize: 10, WorkerCount: 1},
		Observability: ObservabilityConfig{LogLevel: "info"},
	}
}

func TestConfig_Validate(t *testing.T) {
	negative := -1.0

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid memory config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "postgres without database host",
			mutate: func(c *Config) {
				c.Storage.Driver = StoragePostgres
				c.Database = DatabaseConfig{User: "user", Database: "db"}
			},
			wantErr: true,
			errMsg:  "database configuration required",
		},
		{
			name: "postgres without database user",
			mutate: func(c *Config) {
				c.Storage.Driver = StoragePostgres
				c.Database = DatabaseConfig{Host: "localhost", Database: "db"}
			},
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name: "postgres with connection string",
			mutate: func(c *Config) {
				c.Storage.Driver = StoragePostgres
				c.Database = DatabaseConfig{ConnectionString: "postgres://localhost/db"}
			},
			wantErr: false,
		},
		{
			name: "sqlite without path",
			mutate: func(c *Config) {
				c.Storage.Driver = StorageSQLite
			},
			wantErr: true,
			errMsg:  "sqlite path",
		},
		{
			name: "inverted health thresholds",
			mutate: func(c *Config) {
				c.Health.UnhealthyBelow = 0.95
			},
			wantErr: true,
			errMsg:  "health thresholds",
		},
		{
			name: "zero breaker cooldown",
			mutate: func(c *Config) {
				c.Breaker.Cooldown = 0
			},
			wantErr: true,
			errMsg:  "cooldown",
		},
		{
			name: "negative default budget",
			mutate: func(c *Config) {
				c.Ledger.DefaultDailyBudget = &negative
			},
			wantErr: true,
			errMsg:  "budget",
		},
		{
			name: "retention schedule without retention",
			mutate: func(c *Config) {
				c.Ledger.RetentionSchedule = "@daily"
			},
			wantErr: true,
			errMsg:  "retention",
		},
		{
			name: "missing log level",
			mutate: func(c *Config) {
				c.Observability.LogLevel = ""
			},
			wantErr: true,
			errMsg:  "log level is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"dev", "dev", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	assert.Equal(t, expected, cfg.DSN())
	assert.Equal(t, "host=localhost port=5432 database=testdb", cfg.LogString())
}

func TestLedgerConfig_Location(t *testing.T) {
	cfg := LedgerConfig{Timezone: "UTC"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	cfg.Timezone = "Mars/Olympus"
	_, err = cfg.Location()
	assert.Error(t, err)
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "0.0.0.0",
		Port: 8080,
	}

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue int
		want         int
	}{
		{"valid int", "TEST_INT", "42", 10, 42},
		{"empty value", "TEST_INT", "", 10, 10},
		{"invalid int", "TEST_INT", "not-a-number", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			got := getEnvAsInt(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "TEST_BOOL", "true", false, true},
		{"false", "TEST_BOOL", "false", true, false},
		{"empty value", "TEST_BOOL", "", true, true},
		{"invalid bool", "TEST_BOOL", "not-a-bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			got := getEnvAsBool(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetEnvAsOptionalFloat(t *testing.T) {
	os.Clearenv()
	assert.Nil(t, getEnvAsOptionalFloat("TEST_FLOAT"))

	os.Setenv("TEST_FLOAT", "bogus")
	assert.Nil(t, getEnvAsOptionalFloat("TEST_FLOAT"))

	os.Setenv("TEST_FLOAT", "0")
	got := getEnvAsOptionalFloat("TEST_FLOAT")
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		value        string
		defaultValue time.Duration
		want         time.Duration
	}{
		{"valid duration", "TEST_DURATION", "30s", 10 * time.Second, 30 * time.Second},
		{"empty value", "TEST_DURATION", "", 10 * time.Second, 10 * time.Second},
		{"invalid duration", "TEST_DURATION", "not-a-duration", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv(tt.key, tt.value)
			}
			got := getEnvAsDuration(tt.key, tt.defaultValue)
			assert.Equal(t, tt.want, got)
		})
	}
}
