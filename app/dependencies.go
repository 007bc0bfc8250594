package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/ticketing-shell/auth"
	"github.com/upb/ticketing-shell/cognito"
	"github.com/upb/ticketing-shell/config"
	"github.com/upb/ticketing-shell/guard"
	"github.com/upb/ticketing-shell/kratos"
	"github.com/upb/ticketing-shell/middleware"
	"github.com/upb/ticketing-shell/redirect"
	"github.com/upb/ticketing-shell/repositories"
	"github.com/upb/ticketing-shell/repositories/postgres"
	"github.com/upb/ticketing-shell/services"
	"github.com/upb/ticketing-shell/services/assignment"
	"github.com/upb/ticketing-shell/services/audit"
	"github.com/upb/ticketing-shell/services/ratelimit"
	"github.com/upb/ticketing-shell/session"
	"github.com/upb/ticketing-shell/tokencache"
	"go.uber.org/zap"
)

// restorer is implemented by the identity sources that rehydrate a session
// from the token cache on start
type restorer interface {
	Restore(ctx context.Context)
	Settled() bool
}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Database, nil when no database is configured
	RepoFactory *postgres.RepositoryFactory
	DB          *postgres.DB
	Repos       *repositories.Repositories
	TxManager   repositories.TransactionManager

	// Session core
	Table       *guard.Table
	Tokens      tokencache.Cache
	KeyCache    *cognito.Validator // nil without the federated provider
	Primary     session.IdentitySource
	Federated   session.IdentitySource
	Store       *session.Store
	Guard       *guard.Guard
	Coordinator *redirect.Coordinator

	// Services
	Audit          *audit.Service
	Assignments    *assignment.Service // nil without a database
	SignInLimiter  *ratelimit.Limiter
	RequestLimiter *ratelimit.Limiter
	AuthService    *services.AuthService

	// HTTP
	GuardMiddleware *middleware.GuardMiddleware
	APIGuard        *middleware.GuardMiddleware // always answers denials with JSON
	EntryPoints     *middleware.EntryPointMiddleware
	RateLimiter     *middleware.RateLimiter
	AuthHandler     *auth.Handler

	restorers     []restorer
	restoreCancel context.CancelFunc
	restoreWG     sync.WaitGroup
	stopObserving func()
}

// NewDependencies creates and wires up all application dependencies. The
// identity sources start restoring their sessions in the background; use
// Restored to find out when they are done.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initTable(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to load route table: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := deps.initSources(cfg); err != nil {
		_ = deps.Audit.Stop(time.Second)
		deps.closeDatabase()
		return nil, fmt.Errorf("failed to initialize identity providers: %w", err)
	}

	deps.initSession(cfg)
	deps.initHTTP(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Bool("database", deps.DB != nil),
		zap.Bool("primary_provider", deps.Primary != nil),
		zap.Bool("federated_provider", deps.Federated != nil),
		zap.String("role_resolver", cfg.Session.RoleResolver),
		zap.String("guard_mode", cfg.Guard.Mode))
	return deps, nil
}

// initDatabase opens the PostgreSQL pools and creates the schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if cfg.Database == nil {
		d.Logger.Info("no database configured, role assignments disabled and auth events logged only")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(*cfg.Database, cfg.AuditDatabase, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.HealthCheck(ctx); err != nil {
		d.closeDatabase()
		return err
	}
	if err := factory.InitSchema(ctx); err != nil {
		d.closeDatabase()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Repos = factory.NewRepositories()
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()),
		zap.Bool("separate_audit_db", cfg.AuditDatabase != nil))
	return nil
}

func (d *Dependencies) initTable(cfg *config.Config) error {
	table, err := guard.LoadTable(cfg.Guard.RoutesFile)
	if err != nil {
		return err
	}
	for _, path := range table.Misconfigurations() {
		d.Logger.Warn("route excludes guests through allowed roles only", zap.String("path", path))
	}
	d.Table = table
	d.Logger.Info("route table loaded",
		zap.String("file", cfg.Guard.RoutesFile),
		zap.Int("routes", len(table.Routes)))
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	var events repositories.AuthEventRepository
	if d.Repos != nil {
		events = d.Repos.AuthEvents
		d.Assignments = assignment.NewService(d.Repos.RoleAssignments, d.TxManager, assignment.Config{
			CacheSize: cfg.Session.AssignmentCacheSize,
			CacheTTL:  cfg.Session.AssignmentCacheTTL,
		}, d.Logger)
	}

	d.Audit = audit.NewService(events, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := d.Audit.Start(); err != nil {
		return err
	}

	if cfg.RateLimit.Enabled {
		signIn := ratelimit.PerMinute(cfg.RateLimit.AttemptsPerMinute, cfg.RateLimit.Burst)
		signIn.MaxKeys = cfg.RateLimit.MaxKeys
		d.SignInLimiter = ratelimit.New(signIn)

		requests := ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.RequestsPerMinute)
		requests.MaxKeys = cfg.RateLimit.MaxKeys
		d.RequestLimiter = ratelimit.New(requests)
	}
	return nil
}

// initSources builds the identity providers. Kratos is the primary provider
// when configured, otherwise the demo accounts are. Cognito is the federated
// provider.
func (d *Dependencies) initSources(cfg *config.Config) error {
	if cfg.Session.TokenCacheDir != "" {
		file, err := tokencache.NewFile(cfg.Session.TokenCacheDir)
		if err != nil {
			return err
		}
		d.Tokens = file
	} else {
		d.Tokens = tokencache.NewMemory()
	}

	switch {
	case cfg.Kratos.PublicURL != "":
		src, err := kratos.New(kratos.Config{
			PublicURL: cfg.Kratos.PublicURL,
			Timeout:   cfg.Kratos.Timeout,
			Cache:     d.Tokens,
			Logger:    d.Logger,
		})
		if err != nil {
			return err
		}
		d.Primary = src
		d.restorers = append(d.restorers, src)
		if cfg.Session.DemoAccounts != "" {
			d.Logger.Warn("demo accounts ignored while kratos is configured")
		}
	case cfg.Session.DemoAccounts != "":
		accounts := session.ParseAccounts(cfg.Session.DemoAccounts)
		d.Primary = session.NewMemorySource(session.ProviderPrimary, accounts...)
		d.Logger.Warn("using demo accounts as the primary provider", zap.Int("accounts", len(accounts)))
	default:
		d.Logger.Warn("no primary identity provider configured")
	}

	if cfg.FederatedEnabled() {
		d.KeyCache = cognito.NewValidator(cognito.Config{
			Region:      cfg.Cognito.Region,
			UserPoolID:  cfg.Cognito.UserPoolID,
			ClientID:    cfg.Cognito.ClientID,
			CacheTTL:    time.Hour,
			HTTPTimeout: 10 * time.Second,
		})
		var exchanger *cognito.Exchanger
		if cfg.HostedUIEnabled() {
			exchanger = cognito.NewExchanger(cognito.ExchangerConfig{
				Domain:       cfg.Cognito.Domain,
				ClientID:     cfg.Cognito.ClientID,
				ClientSecret: cfg.Cognito.ClientSecret,
				HTTPTimeout:  10 * time.Second,
			})
		}
		src := cognito.NewSource(d.KeyCache, exchanger, d.Tokens, d.Logger)
		d.Federated = src
		d.restorers = append(d.restorers, src)
	}

	if cfg.Session.RoleResolver == "assigned" {
		if d.Assignments == nil {
			d.Logger.Warn("assigned role resolver without a database, only provider-assigned roles apply")
		} else {
			if d.Primary != nil {
				d.Primary = assignment.Decorate(d.Primary, d.Assignments, d.Logger)
			}
			if d.Federated != nil {
				d.Federated = assignment.Decorate(d.Federated, d.Assignments, d.Logger)
			}
		}
	}
	return nil
}

// initSession starts the store, the background restores and the guard
func (d *Dependencies) initSession(cfg *config.Config) {
	d.Store = session.NewStore(session.StoreConfig{
		Primary:   d.Primary,
		Federated: d.Federated,
		Resolver:  session.ResolverByName(cfg.Session.RoleResolver),
		Logger:    d.Logger,
	})
	d.Store.Start()
	d.stopObserving = d.Audit.Observe(d.Store)

	ctx, cancel := context.WithCancel(context.Background())
	d.restoreCancel = cancel
	for _, r := range d.restorers {
		d.restoreWG.Add(1)
		go func(r restorer) {
			defer d.restoreWG.Done()
			r.Restore(ctx)
		}(r)
	}

	d.Guard = guard.New(d.Store, guard.Config{
		LoginPath:       d.Table.LoginPath,
		DefaultFallback: d.Table.Fallback,
		SettleDelay:     cfg.Guard.SettleDelay,
		Logger:          d.Logger,
	})
	d.Coordinator = redirect.NewCoordinator(d.Table, d.Logger)
}

func (d *Dependencies) initHTTP(cfg *config.Config) {
	d.AuthService = services.NewAuthService(services.AuthServiceConfig{
		Store:     d.Store,
		Primary:   d.Primary,
		Federated: d.Federated,
		Limiter:   d.SignInLimiter,
		Audit:     d.Audit,
		Logger:    d.Logger,
	})

	d.GuardMiddleware = middleware.NewGuardMiddleware(middleware.GuardMiddlewareConfig{
		Guard:    d.Guard,
		Store:    d.Store,
		Audit:    d.Audit,
		Mode:     cfg.Guard.Mode,
		Restored: d.Restored,
		Logger:   d.Logger,
	})
	d.APIGuard = middleware.NewGuardMiddleware(middleware.GuardMiddlewareConfig{
		Guard:    d.Guard,
		Store:    d.Store,
		Audit:    d.Audit,
		Mode:     config.GuardModeBlocking,
		Restored: d.Restored,
		Logger:   d.Logger,
	})
	d.EntryPoints = middleware.NewEntryPointMiddleware(d.Coordinator, d.Store, d.Audit, d.Logger)
	d.RateLimiter = middleware.NewRateLimiter(d.RequestLimiter, d.Logger)
	d.AuthHandler = auth.NewHandler(cfg, d.AuthService, d.Coordinator, d.Table.LoginPath, d.Logger)
}

// Restored reports whether every identity provider has settled its
// initial session
func (d *Dependencies) Restored() bool {
	for _, r := range d.restorers {
		if !r.Settled() {
			return false
		}
	}
	return true
}

// WaitRestored blocks until every provider has settled or ctx ends
func (d *Dependencies) WaitRestored(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.restoreWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close gracefully shuts down all dependencies in reverse order
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.restoreCancel != nil {
		d.restoreCancel()
		d.restoreCancel = nil
		if err := d.WaitRestored(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session restore still running: %w", err))
		}
	}

	if d.stopObserving != nil {
		d.stopObserving()
		d.stopObserving = nil
	}
	if d.Store != nil {
		d.Store.Close()
	}

	if d.Audit != nil {
		timeout := 5 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := d.Audit.Stop(timeout); err != nil && !errors.Is(err, audit.ErrNotStarted) {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}
	return nil
}

func (d *Dependencies) closeDatabase() {
	if d.RepoFactory == nil {
		return
	}
	if err := d.RepoFactory.Close(); err != nil {
		d.Logger.Warn("failed to close database", zap.Error(err))
	}
	d.RepoFactory = nil
	d.DB = nil
}
