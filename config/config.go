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

// Guard modes
const (
	GuardModeRedirect = "redirect"
	GuardModeBlocking = "blocking"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      *DatabaseConfig // Optional: role assignments and the auth event trail need it
	AuditDatabase *DatabaseConfig // Optional: separate DB for auth events. When nil, events use the main DB.
	Kratos        KratosConfig
	Cognito       CognitoConfig
	Guard         GuardConfig
	Session       SessionConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
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
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
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

// KratosConfig holds the primary (email/password) session service configuration
type KratosConfig struct {
	PublicURL string // Empty disables the primary provider
	Timeout   time.Duration
}

// CognitoConfig holds the federated (hosted UI / phone) provider configuration
type CognitoConfig struct {
	Region       string
	UserPoolID   string
	ClientID     string
	ClientSecret string
	Domain       string // Hosted UI domain (e.g., https://kiosk.auth.us-east-1.amazoncognito.com)
	RedirectURI  string // OAuth2 callback URL
	FrontEndURL  string // Post-logout landing page (loaded from FRONT_END_URL)
}

// GuardConfig holds route guard configuration
type GuardConfig struct {
	RoutesFile  string // Empty uses the embedded route table
	SettleDelay time.Duration
	Mode        string // redirect or blocking
}

// SessionConfig holds session store configuration
type SessionConfig struct {
	RoleResolver        string // default or assigned
	DemoAccounts        string // email:password[:role[:name]], comma separated
	TokenCacheDir       string // Empty keeps provider tokens in memory
	AssignmentCacheSize int
	AssignmentCacheTTL  time.Duration
}

// RateLimitConfig holds sign-in throttling configuration
type RateLimitConfig struct {
	Enabled           bool
	AttemptsPerMinute int // Sign-in attempts per client address and per identifier
	Burst             int
	MaxKeys           int
	RequestsPerMinute int // All /auth requests per client address
}

// AuditConfig holds auth event trail configuration
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
	Retention   time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
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
		Database:      loadDatabaseConfig(),
		AuditDatabase: loadAuditDatabaseConfig(),
		Kratos: KratosConfig{
			PublicURL: getEnv("KRATOS_PUBLIC_URL", ""),
			Timeout:   getEnvAsDuration("KRATOS_TIMEOUT", 10*time.Second),
		},
		Cognito: CognitoConfig{
			Region:       getEnv("COGNITO_REGION", "us-east-1"),
			UserPoolID:   getEnv("COGNITO_USER_POOL_ID", ""),
			ClientID:     getEnv("COGNITO_CLIENT_ID", ""),
			ClientSecret: getEnv("COGNITO_CLIENT_SECRET", ""),
			Domain:       getEnv("COGNITO_DOMAIN", ""),
			RedirectURI:  getEnv("COGNITO_REDIRECT_URI", "http://localhost:8080/oauth2/idpresponse"),
			FrontEndURL:  getEnv("FRONT_END_URL", "/"),
		},
		Guard: GuardConfig{
			RoutesFile:  getEnv("ROUTES_FILE", ""),
			SettleDelay: getEnvAsDuration("GUARD_SETTLE_DELAY", 800*time.Millisecond),
			Mode:        strings.ToLower(getEnv("GUARD_MODE", GuardModeRedirect)),
		},
		Session: SessionConfig{
			RoleResolver:        strings.ToLower(getEnv("ROLE_RESOLVER", "default")),
			DemoAccounts:        getEnv("DEMO_ACCOUNTS", ""),
			TokenCacheDir:       getEnv("TOKEN_CACHE_DIR", ""),
			AssignmentCacheSize: getEnvAsInt("ROLE_CACHE_SIZE", 1024),
			AssignmentCacheTTL:  getEnvAsDuration("ROLE_CACHE_TTL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("SIGNIN_RATE_LIMIT_ENABLED", true),
			AttemptsPerMinute: getEnvAsInt("SIGNIN_ATTEMPTS_PER_MINUTE", 5),
			Burst:             getEnvAsInt("SIGNIN_BURST", 5),
			MaxKeys:           getEnvAsInt("SIGNIN_RATE_LIMIT_MAX_KEYS", 10000),
			RequestsPerMinute: getEnvAsInt("AUTH_REQUESTS_PER_MINUTE", 60),
		},
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1024),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 2),
			Retention:   getEnvAsDuration("AUDIT_RETENTION", 90*24*time.Hour),
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

// Validate checks the configuration for contradictions
func (c *Config) Validate() error {
	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}
	if c.AuditDatabase != nil && c.Database == nil {
		return fmt.Errorf("DATABASE_URL_AUDIT requires a main database")
	}

	switch c.Guard.Mode {
	case GuardModeRedirect, GuardModeBlocking:
	default:
		return fmt.Errorf("guard mode must be %q or %q, got %q", GuardModeRedirect, GuardModeBlocking, c.Guard.Mode)
	}
	if c.Guard.SettleDelay < 0 {
		return fmt.Errorf("guard settle delay must not be negative")
	}

	switch c.Session.RoleResolver {
	case "default", "assigned":
	default:
		return fmt.Errorf("unknown role resolver %q", c.Session.RoleResolver)
	}

	if c.RateLimit.Enabled && c.RateLimit.AttemptsPerMinute <= 0 {
		return fmt.Errorf("sign-in attempts per minute must be positive")
	}

	if c.Cognito.UserPoolID != "" && c.Cognito.ClientID == "" {
		return fmt.Errorf("cognito client ID is required when a user pool is set")
	}

	// At least one real identity provider is required in production
	if c.IsProduction() {
		if c.Kratos.PublicURL == "" && c.Cognito.UserPoolID == "" {
			return fmt.Errorf("at least one identity provider must be configured in production")
		}
		if c.Session.DemoAccounts != "" {
			return fmt.Errorf("demo accounts are not allowed in production")
		}
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

// FederatedEnabled reports whether the federated provider can verify tokens
func (c *Config) FederatedEnabled() bool {
	return c.Cognito.UserPoolID != "" && c.Cognito.ClientID != ""
}

// HostedUIEnabled reports whether the authorization code flow is available
func (c *Config) HostedUIEnabled() bool {
	return c.FederatedEnabled() && c.Cognito.Domain != ""
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

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither DATABASE_URL nor DB_HOST is set.
func loadDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	if os.Getenv("DB_HOST") == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "shell"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "ticketing"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// loadAuditDatabaseConfig loads audit DB config from DATABASE_URL_AUDIT.
// Returns nil when not set (auth events use main DB).
func loadAuditDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL_AUDIT", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
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

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
