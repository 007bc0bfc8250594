package cognito

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/session"
	"github.com/upb/ticketing-shell/tokencache"
	"go.uber.org/zap"
)

type tokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (*ParsedClaims, error)
}

type codeExchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error)
}

// Source is the federated IdentitySource. It accepts either an OAuth2
// authorization code from the hosted UI or an ID token obtained by an
// embedded widget (phone OTP), verifies the ID token and emits the identity.
type Source struct {
	*session.Emitter

	validator tokenValidator
	exchanger codeExchanger
	cache     tokencache.Cache
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	idToken string
}

// NewSource creates a federated source. exchanger may be nil when the
// hosted UI is not used; code sign-in then reports ProviderUnavailable.
func NewSource(validator *Validator, exchanger *Exchanger, cache tokencache.Cache, logger *zap.Logger) *Source {
	var ex codeExchanger
	if exchanger != nil {
		ex = exchanger
	}
	return newSource(validator, ex, cache, logger)
}

func newSource(validator tokenValidator, exchanger codeExchanger, cache tokencache.Cache, logger *zap.Logger) *Source {
	if cache == nil {
		cache = tokencache.NewMemory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		Emitter:   &session.Emitter{},
		validator: validator,
		exchanger: exchanger,
		cache:     cache,
		logger:    logger.With(zap.String("provider", session.ProviderFederated)),
		now:       time.Now,
	}
}

// Name implements session.IdentitySource
func (s *Source) Name() string {
	return session.ProviderFederated
}

// SignIn verifies creds.IDToken, or exchanges creds.Code first
func (s *Source) SignIn(ctx context.Context, creds session.Credentials) (*session.Identity, error) {
	idToken := creds.IDToken
	if idToken == "" {
		if creds.Code == "" {
			return nil, shared.NewDomainError(shared.ErrorTypeValidation, "authorization code or id token required", nil)
		}
		if s.exchanger == nil {
			return nil, shared.ErrProviderUnavailable
		}

		tokens, err := s.exchanger.ExchangeCode(ctx, creds.Code, creds.RedirectURI)
		if err != nil {
			s.logger.Info("authorization code exchange failed", zap.Error(err))
			var exErr *ExchangeError
			if errors.As(err, &exErr) && exErr.Rejected() {
				return nil, shared.NewDomainError(shared.ErrorTypeAuth, "invalid credentials", err)
			}
			return nil, shared.NewDomainError(shared.ErrorTypeAuth, "identity provider unreachable", err)
		}
		idToken = tokens.IDToken
	}

	claims, err := s.validator.ValidateToken(ctx, idToken)
	if err != nil {
		s.logger.Info("id token rejected", zap.Error(err))
		if errors.Is(err, ErrJWKSFetchFailed) {
			return nil, shared.NewDomainError(shared.ErrorTypeAuth, "identity provider unreachable", err)
		}
		return nil, shared.NewDomainError(shared.ErrorTypeAuth, "invalid credentials", err)
	}

	id := claims.ToIdentity()
	s.mu.Lock()
	s.idToken = idToken
	s.mu.Unlock()

	if err := s.cache.Save(session.ProviderFederated, tokencache.Token{
		Value:     idToken,
		Subject:   id.ID,
		ExpiresAt: claims.ExpiresAt,
		SavedAt:   s.now(),
	}); err != nil {
		s.logger.Warn("failed to cache id token", zap.Error(err))
	}

	s.logger.Info("federated sign-in succeeded", zap.String("identity_id", id.ID))
	s.Emit(id)
	return id.Clone(), nil
}

// SignOut forgets the ID token. Ending the hosted UI session is the job of
// the logout redirect.
func (s *Source) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.idToken = ""
	s.mu.Unlock()

	if err := s.cache.Clear(session.ProviderFederated); err != nil {
		s.logger.Warn("failed to clear cached id token", zap.Error(err))
	}
	s.Emit(nil)
	return nil
}

// Restore re-verifies the cached ID token and settles the source
func (s *Source) Restore(ctx context.Context) {
	cached, err := s.cache.Load(session.ProviderFederated)
	if err != nil {
		if !errors.Is(err, tokencache.ErrNotFound) {
			s.logger.Warn("failed to read cached id token", zap.Error(err))
		}
		s.Emit(nil)
		return
	}

	claims, err := s.validator.ValidateToken(ctx, cached.Value)
	if err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			s.logger.Warn("cannot verify cached id token", zap.Error(err))
		} else {
			s.logger.Info("cached id token no longer valid", zap.Error(err))
			if err := s.cache.Clear(session.ProviderFederated); err != nil {
				s.logger.Warn("failed to clear cached id token", zap.Error(err))
			}
		}
		s.Emit(nil)
		return
	}

	id := claims.ToIdentity()
	s.mu.Lock()
	s.idToken = cached.Value
	s.mu.Unlock()
	s.logger.Info("federated session restored", zap.String("identity_id", id.ID))
	s.Emit(id)
}
