package kratos

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	kratosclient "github.com/ory/kratos-client-go"
	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/session"
	"github.com/upb/ticketing-shell/tokencache"
	"github.com/upb/ticketing-shell/utils"
	"go.uber.org/zap"
)

// Config configures the Kratos source
type Config struct {
	PublicURL string
	Timeout   time.Duration
	Cache     tokencache.Cache
	Logger    *zap.Logger
}

type passwordCredentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,max=1024"`
}

// Source is the primary IdentitySource. The session token issued by Kratos
// is kept in a token cache so Restore can rehydrate the session on start.
type Source struct {
	*session.Emitter

	api    flowAPI
	cache  tokencache.Cache
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	token string
}

// New creates a Source talking to the Kratos public API at cfg.PublicURL
func New(cfg Config) (*Source, error) {
	if cfg.PublicURL == "" {
		return nil, shared.ErrProviderUnavailable
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return newSource(newSDKAPI(cfg.PublicURL, cfg.Timeout), cfg.Cache, cfg.Logger), nil
}

func newSource(api flowAPI, cache tokencache.Cache, logger *zap.Logger) *Source {
	if cache == nil {
		cache = tokencache.NewMemory()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		Emitter: &session.Emitter{},
		api:     api,
		cache:   cache,
		logger:  logger.With(zap.String("provider", session.ProviderPrimary)),
		now:     time.Now,
	}
}

// Name implements session.IdentitySource
func (s *Source) Name() string {
	return session.ProviderPrimary
}

// SignIn runs a native login flow with the password method
func (s *Source) SignIn(ctx context.Context, creds session.Credentials) (*session.Identity, error) {
	input := passwordCredentials{Email: strings.TrimSpace(creds.Email), Password: creds.Password}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, shared.NewDomainError(shared.ErrorTypeValidation, "email and password are required", err).
			WithDetail("fields", utils.GetValidationFields(err))
	}

	flow, resp, err := s.api.CreateLoginFlow(ctx)
	if err != nil {
		s.logger.Warn("failed to create login flow", zap.Int("http_status", statusOf(resp)), zap.Error(err))
		return nil, classify(resp, err)
	}

	result, resp, err := s.api.SubmitPassword(ctx, flow.Id, input.Email, input.Password)
	if err != nil {
		s.logger.Info("password login rejected", zap.Int("http_status", statusOf(resp)), zap.Error(err))
		return nil, classify(resp, err)
	}
	if result.SessionToken == nil || *result.SessionToken == "" {
		return nil, shared.WrapAuth("login response carried no session token", nil)
	}

	id, err := identityFromSession(&result.Session)
	if err != nil {
		return nil, shared.WrapAuth("login response carried no identity", err)
	}

	s.remember(*result.SessionToken, id, result.Session.ExpiresAt)
	s.logger.Info("primary sign-in succeeded", zap.String("identity_id", id.ID))
	s.Emit(id)
	return id.Clone(), nil
}

// SignOut forgets the local session and revokes it at Kratos. The identity
// is reported absent even when revocation fails.
func (s *Source) SignOut(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.token = ""
	s.mu.Unlock()

	if err := s.cache.Clear(session.ProviderPrimary); err != nil {
		s.logger.Warn("failed to clear cached session token", zap.Error(err))
	}
	s.Emit(nil)

	if token == "" {
		return nil
	}
	resp, err := s.api.Logout(ctx, token)
	if err != nil && statusOf(resp) != http.StatusUnauthorized {
		s.logger.Warn("failed to revoke kratos session", zap.Int("http_status", statusOf(resp)), zap.Error(err))
		return shared.WrapError(shared.ErrorTypeAuth, "failed to revoke session", err)
	}
	return nil
}

// Restore rehydrates the session from the token cache. It always settles
// the source: an unusable cache reports an absent identity.
func (s *Source) Restore(ctx context.Context) {
	cached, err := s.cache.Load(session.ProviderPrimary)
	if err != nil {
		if !errors.Is(err, tokencache.ErrNotFound) {
			s.logger.Warn("failed to read cached session token", zap.Error(err))
		}
		s.Emit(nil)
		return
	}
	if cached.Expired(s.now()) {
		s.logger.Debug("cached session token expired")
		s.forget()
		s.Emit(nil)
		return
	}

	sess, resp, err := s.api.Whoami(ctx, cached.Value)
	if err != nil {
		if status := statusOf(resp); status == http.StatusUnauthorized || status == http.StatusForbidden {
			s.logger.Info("cached session no longer valid")
			s.forget()
		} else {
			s.logger.Warn("failed to verify cached session", zap.Int("http_status", status), zap.Error(err))
		}
		s.Emit(nil)
		return
	}
	if sess.Active != nil && !*sess.Active {
		s.forget()
		s.Emit(nil)
		return
	}

	id, err := identityFromSession(sess)
	if err != nil {
		s.logger.Warn("restored session has no identity", zap.Error(err))
		s.Emit(nil)
		return
	}

	s.mu.Lock()
	s.token = cached.Value
	s.mu.Unlock()
	s.logger.Info("primary session restored", zap.String("identity_id", id.ID))
	s.Emit(id)
}

func (s *Source) remember(token string, id *session.Identity, expiresAt *time.Time) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	cached := tokencache.Token{Value: token, Subject: id.ID, SavedAt: s.now()}
	if expiresAt != nil {
		cached.ExpiresAt = *expiresAt
	}
	if err := s.cache.Save(session.ProviderPrimary, cached); err != nil {
		s.logger.Warn("failed to cache session token", zap.Error(err))
	}
}

func (s *Source) forget() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
	if err := s.cache.Clear(session.ProviderPrimary); err != nil {
		s.logger.Warn("failed to clear cached session token", zap.Error(err))
	}
}

// classify maps a failed Kratos call to the auth taxonomy. Rejections are
// invalid credentials, everything else is a transport failure.
func classify(resp *http.Response, err error) error {
	switch statusOf(resp) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
		return shared.NewDomainError(shared.ErrorTypeAuth, "invalid credentials", err)
	case http.StatusGone:
		return shared.NewDomainError(shared.ErrorTypeAuth, "login flow expired", err)
	}
	return shared.NewDomainError(shared.ErrorTypeAuth, "identity provider unreachable", err)
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func identityFromSession(sess *kratosclient.Session) (*session.Identity, error) {
	if sess == nil || sess.Identity == nil || sess.Identity.Id == "" {
		return nil, errors.New("missing identity in session")
	}

	id := &session.Identity{
		ID:       sess.Identity.Id,
		Provider: session.ProviderPrimary,
	}
	if traits, ok := sess.Identity.Traits.(map[string]interface{}); ok {
		id.Email = stringTrait(traits, "email")
		id.Phone = stringTrait(traits, "phone")
		id.DisplayName = displayName(traits["name"])
	}
	if meta, ok := sess.Identity.MetadataPublic.(map[string]interface{}); ok {
		if role, ok := session.ParseRole(stringTrait(meta, "role")); ok {
			id.AssignedRole = role
		}
	}
	return id, nil
}

func stringTrait(traits map[string]interface{}, key string) string {
	if v, ok := traits[key].(string); ok {
		return v
	}
	return ""
}

func displayName(v interface{}) string {
	switch name := v.(type) {
	case string:
		return name
	case map[string]interface{}:
		return strings.TrimSpace(fmt.Sprintf("%s %s", stringTrait(name, "first"), stringTrait(name, "last")))
	}
	return ""
}
