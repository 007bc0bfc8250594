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
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.False(t, cfg.Server.TLS.Enabled)
				assert.Equal(t, []string{"http://localhost:*"}, cfg.Server.AllowedOrigins)
				assert.Nil(t, cfg.Database)
				assert.Nil(t, cfg.AuditDatabase)
				assert.Empty(t, cfg.Kratos.PublicURL)
				assert.False(t, cfg.FederatedEnabled())
				assert.Equal(t, GuardModeRedirect, cfg.Guard.Mode)
				assert.Equal(t, 800*time.Millisecond, cfg.Guard.SettleDelay)
				assert.Equal(t, "default", cfg.Session.RoleResolver)
				assert.True(t, cfg.RateLimit.Enabled)
				assert.Equal(t, 5, cfg.RateLimit.AttemptsPerMinute)
				assert.Equal(t, 1024, cfg.Audit.BufferSize)
			},
		},
		{
			name: "database from individual fields",
			envVars: map[string]string{
				"DB_HOST":           "db.local",
				"DB_PORT":           "5433",
				"DB_MAX_OPEN_CONNS": "50",
			},
			check: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.Database)
				assert.Equal(t, "db.local", cfg.Database.Host)
				assert.Equal(t, 5433, cfg.Database.Port)
				assert.Equal(t, "shell", cfg.Database.User)
				assert.Equal(t, 50, cfg.Database.MaxOpenConns)
			},
		},
		{
			name: "database url with separate audit database",
			envVars: map[string]string{
				"DATABASE_URL":       "postgres://shell:pw@db:5432/ticketing",
				"DATABASE_URL_AUDIT": "postgres://audit:pw@audit-db:5432/audit",
			},
			check: func(t *testing.T, cfg *Config) {
				require.NotNil(t, cfg.Database)
				require.NotNil(t, cfg.AuditDatabase)
				assert.Equal(t, "postgres://shell:pw@db:5432/ticketing", cfg.Database.DSN())
				assert.Equal(t, "host=audit-db port=5432 database=audit", cfg.AuditDatabase.LogString())
			},
		},
		{
			name: "providers and guard",
			envVars: map[string]string{
				"KRATOS_PUBLIC_URL":    "http://kratos:4433",
				"COGNITO_USER_POOL_ID": "us-east-1_pool",
				"COGNITO_CLIENT_ID":    "client123",
				"COGNITO_DOMAIN":       "https://kiosk.auth.us-east-1.amazoncognito.com",
				"GUARD_MODE":           "Blocking",
				"GUARD_SETTLE_DELAY":   "250ms",
				"ROUTES_FILE":          "/etc/shell/routes.yaml",
				"ROLE_RESOLVER":        "assigned",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "http://kratos:4433", cfg.Kratos.PublicURL)
				assert.True(t, cfg.FederatedEnabled())
				assert.True(t, cfg.HostedUIEnabled())
				assert.Equal(t, GuardModeBlocking, cfg.Guard.Mode)
				assert.Equal(t, 250*time.Millisecond, cfg.Guard.SettleDelay)
				assert.Equal(t, "/etc/shell/routes.yaml", cfg.Guard.RoutesFile)
				assert.Equal(t, "assigned", cfg.Session.RoleResolver)
			},
		},
		{
			name: "cors origins list",
			envVars: map[string]string{
				"CORS_ALLOWED_ORIGINS": "https://kiosk.local, http://localhost:5173 ,",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"https://kiosk.local", "http://localhost:5173"}, cfg.Server.AllowedOrigins)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "production with kratos",
			envVars: map[string]string{
				"ENVIRONMENT":       "production",
				"KRATOS_PUBLIC_URL": "http://kratos:4433",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.False(t, cfg.IsDevelopment())
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
			name: "production with demo accounts",
			envVars: map[string]string{
				"ENVIRONMENT":       "production",
				"KRATOS_PUBLIC_URL": "http://kratos:4433",
				"DEMO_ACCOUNTS":     "ana@example.com:secret",
			},
			wantErr: true,
		},
		{
			name: "unknown guard mode",
			envVars: map[string]string{
				"GUARD_MODE": "modal",
			},
			wantErr: true,
		},
		{
			name: "audit database without main database",
			envVars: map[string]string{
				"DATABASE_URL_AUDIT": "postgres://audit@audit-db/audit",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

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
		Guard:         GuardConfig{Mode: GuardModeRedirect},
		Session:       SessionConfig{RoleResolver: "default"},
		RateLimit:     RateLimitConfig{Enabled: true, AttemptsPerMinute: 5},
		Observability: ObservabilityConfig{LogLevel: "info"},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid development config",
			mutate: func(*Config) {},
		},
		{
			name: "missing database user",
			mutate: func(c *Config) {
				c.Database = &DatabaseConfig{Host: "localhost", Database: "db"}
			},
			wantErr: true,
			errMsg:  "database user is required",
		},
		{
			name: "missing database name",
			mutate: func(c *Config) {
				c.Database = &DatabaseConfig{Host: "localhost", User: "shell"}
			},
			wantErr: true,
			errMsg:  "database name is required",
		},
		{
			name: "negative settle delay",
			mutate: func(c *Config) {
				c.Guard.SettleDelay = -time.Second
			},
			wantErr: true,
			errMsg:  "settle delay",
		},
		{
			name: "unknown resolver",
			mutate: func(c *Config) {
				c.Session.RoleResolver = "strict"
			},
			wantErr: true,
			errMsg:  "unknown role resolver",
		},
		{
			name: "rate limit without attempts",
			mutate: func(c *Config) {
				c.RateLimit.AttemptsPerMinute = 0
			},
			wantErr: true,
			errMsg:  "attempts per minute",
		},
		{
			name: "disabled rate limit ignores attempts",
			mutate: func(c *Config) {
				c.RateLimit = RateLimitConfig{}
			},
		},
		{
			name: "user pool without client",
			mutate: func(c *Config) {
				c.Cognito.UserPoolID = "pool"
			},
			wantErr: true,
			errMsg:  "client ID",
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
				require.Error(t, err)
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
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestConfig_HostedUIEnabled(t *testing.T) {
	cfg := &Config{Cognito: CognitoConfig{UserPoolID: "pool", ClientID: "client"}}
	assert.True(t, cfg.FederatedEnabled())
	assert.False(t, cfg.HostedUIEnabled())

	cfg.Cognito.Domain = "https://kiosk.auth.example.com"
	assert.True(t, cfg.HostedUIEnabled())
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
		value        string
		defaultValue int
		want         int
	}{
		{"valid int", "42", 10, 42},
		{"empty value", "", 10, 10},
		{"invalid int", "not-a-number", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_INT", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsInt("TEST_INT", tt.defaultValue))
		})
	}
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"false", "false", true, false},
		{"empty value", "", true, true},
		{"invalid bool", "not-a-bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_BOOL", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsBool("TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue time.Duration
		want         time.Duration
	}{
		{"valid duration", "30s", 10 * time.Second, 30 * time.Second},
		{"empty value", "", 10 * time.Second, 10 * time.Second},
		{"invalid duration", "not-a-duration", 10 * time.Second, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_DURATION", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsDuration("TEST_DURATION", tt.defaultValue))
		})
	}
}
