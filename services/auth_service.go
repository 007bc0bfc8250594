package services

import (
	"context"
	"errors"
	"strings"

	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/services/audit"
	"github.com/upb/ticketing-shell/services/ratelimit"
	"github.com/upb/ticketing-shell/session"
	"go.uber.org/zap"
)

// SessionReader is the part of the session store the auth service reads
type SessionReader interface {
	GetSession() session.Session
}

// AuthServiceConfig wires an AuthService. Primary and Federated may be nil
// when the corresponding provider is not configured.
type AuthServiceConfig struct {
	Store     SessionReader
	Primary   session.IdentitySource
	Federated session.IdentitySource
	Limiter   *ratelimit.Limiter
	Audit     *audit.Service
	Logger    *zap.Logger
}

// AuthService performs the explicit, user-initiated authentication actions.
// Everything else about the session flows through the store.
type AuthService struct {
	store     SessionReader
	primary   session.IdentitySource
	federated session.IdentitySource
	limiter   *ratelimit.Limiter
	audit     *audit.Service
	logger    *zap.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(cfg AuthServiceConfig) *AuthService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &AuthService{
		store:     cfg.Store,
		primary:   cfg.Primary,
		federated: cfg.Federated,
		limiter:   cfg.Limiter,
		audit:     cfg.Audit,
		logger:    cfg.Logger,
	}
}

// Session returns the current session snapshot
func (s *AuthService) Session() session.Session {
	return s.store.GetSession()
}

// Providers reports which identity providers are configured
func (s *AuthService) Providers() map[string]bool {
	return map[string]bool{
		session.ProviderPrimary:   s.primary != nil,
		session.ProviderFederated: s.federated != nil,
	}
}

// SignInPrimary signs in with the email/password provider
func (s *AuthService) SignInPrimary(ctx context.Context, creds session.Credentials, meta audit.RequestMeta) (session.Session, error) {
	return s.signIn(ctx, session.ProviderPrimary, s.primary, creds, creds.Email, meta)
}

// SignInFederated signs in with the federated provider, using an
// authorization code or a pre-obtained ID token
func (s *AuthService) SignInFederated(ctx context.Context, creds session.Credentials, meta audit.RequestMeta) (session.Session, error) {
	return s.signIn(ctx, session.ProviderFederated, s.federated, creds, creds.Phone, meta)
}

func (s *AuthService) signIn(ctx context.Context, provider string, src session.IdentitySource, creds session.Credentials, identifier string, meta audit.RequestMeta) (session.Session, error) {
	if src == nil {
		return s.store.GetSession(), shared.NewDomainError(shared.ErrorTypeProviderUnavailable, "identity provider not configured", nil).
			WithDetail("provider", provider)
	}

	keys := rateLimitKeys(provider, meta.IPAddress, identifier)
	for _, key := range keys {
		if res := s.limiter.Allow(key); !res.Allowed {
			s.logger.Warn("sign-in attempt rate limited",
				zap.String("provider", provider),
				zap.String("key", key),
				zap.String("request_id", meta.RequestID))
			s.record(func(a *audit.Service) error {
				return a.LogRateLimited(provider, key, s.store.GetSession(), meta)
			})
			return s.store.GetSession(), shared.NewDomainError(shared.ErrorTypeRateLimit, "too many sign-in attempts", nil).
				WithDetail("retry_after_seconds", int(res.RetryAfter.Seconds()))
		}
	}

	id, err := src.SignIn(ctx, creds)
	if err != nil {
		s.logger.Info("sign-in failed",
			zap.String("provider", provider),
			zap.String("request_id", meta.RequestID),
			zap.Error(err))
		s.record(func(a *audit.Service) error {
			return a.LogSignInFailed(provider, creds.Email, err, s.store.GetSession(), meta)
		})
		if shared.GetErrorType(err) == "" {
			err = shared.WrapAuth("sign-in failed", err)
		}
		return s.store.GetSession(), err
	}

	for _, key := range keys {
		if strings.HasPrefix(key, "id:") {
			s.limiter.Reset(key)
		}
	}

	current := s.store.GetSession()
	s.logger.Info("sign-in succeeded",
		zap.String("provider", provider),
		zap.String("identity_id", id.ID),
		zap.String("role", current.Role.String()),
		zap.String("request_id", meta.RequestID))
	s.record(func(a *audit.Service) error {
		return a.LogSignIn(provider, id, current, meta)
	})
	return current, nil
}

// SignOut signs out of every configured provider. Every provider is asked
// even when an earlier one fails; the failures are returned joined.
func (s *AuthService) SignOut(ctx context.Context, meta audit.RequestMeta) (session.Session, error) {
	prev := s.store.GetSession()

	var errs []error
	for _, src := range []session.IdentitySource{s.primary, s.federated} {
		if src == nil {
			continue
		}
		if err := src.SignOut(ctx); err != nil {
			s.logger.Warn("provider sign-out failed",
				zap.String("provider", src.Name()),
				zap.String("request_id", meta.RequestID),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	if prev.IsAuthenticated() {
		s.logger.Info("signed out",
			zap.String("session_id", prev.ID.String()),
			zap.String("request_id", meta.RequestID))
		s.record(func(a *audit.Service) error {
			return a.LogSignOut(prev, meta)
		})
	}

	if err := errors.Join(errs...); err != nil {
		return s.store.GetSession(), shared.WrapAuth("sign-out incomplete", err)
	}
	return s.store.GetSession(), nil
}

func (s *AuthService) record(fn func(*audit.Service) error) {
	if s.audit == nil {
		return
	}
	if err := fn(s.audit); err != nil {
		s.logger.Debug("auth event not recorded", zap.Error(err))
	}
}

// rateLimitKeys limits by client address and, when known, by the identifier
// being tried so that one account cannot be guessed from many addresses
func rateLimitKeys(provider, ip, identifier string) []string {
	if ip == "" {
		ip = "unknown"
	}
	keys := []string{"ip:" + ip}
	if identifier = strings.ToLower(strings.TrimSpace(identifier)); identifier != "" {
		keys = append(keys, "id:"+provider+":"+identifier)
	}
	return keys
}
