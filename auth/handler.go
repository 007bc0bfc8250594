package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/upb/ticketing-shell/config"
	"github.com/upb/ticketing-shell/handlers"
	"github.com/upb/ticketing-shell/internal/shared"
	"github.com/upb/ticketing-shell/middleware"
	"github.com/upb/ticketing-shell/navigation"
	"github.com/upb/ticketing-shell/services/audit"
	"github.com/upb/ticketing-shell/session"
	"github.com/upb/ticketing-shell/utils"
	"go.uber.org/zap"
)

const (
	// StateCookieName is the cookie name for OAuth state (CSRF)
	StateCookieName = "oauth_state"
	// RedirectCookieName keeps the post-login destination across the hosted UI round trip
	RedirectCookieName = "post_login_redirect"
	stateCookieMaxAge  = 600
)

// Authenticator performs the explicit sign-in and sign-out actions
type Authenticator interface {
	SignInPrimary(ctx context.Context, creds session.Credentials, meta audit.RequestMeta) (session.Session, error)
	SignInFederated(ctx context.Context, creds session.Credentials, meta audit.RequestMeta) (session.Session, error)
	SignOut(ctx context.Context, meta audit.RequestMeta) (session.Session, error)
}

// IntentConsumer is told when an explicit redirect destination replaces the
// role home redirect of a new session
type IntentConsumer interface {
	Consume(s session.Session)
}

// LoginRequest is the email/password form of the primary provider
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=1024"`
	Redirect string `json:"redirect,omitempty"`
}

// TokenRequest carries an ID token obtained by an embedded sign-in widget
type TokenRequest struct {
	IDToken  string `json:"id_token" validate:"required"`
	Redirect string `json:"redirect,omitempty"`
}

// AuthResponse is returned to API clients after a sign-in or sign-out
type AuthResponse struct {
	Session    session.Session `json:"session"`
	RedirectTo string          `json:"redirect_to"`
}

// Handler handles the login, federated callback and logout flows
type Handler struct {
	cfg       *config.Config
	auth      Authenticator
	intents   IntentConsumer
	loginPath string
	logger    *zap.Logger
}

// NewHandler creates a new auth handler. intents may be nil; an empty
// loginPath means /login.
func NewHandler(cfg *config.Config, auth Authenticator, intents IntentConsumer, loginPath string, logger *zap.Logger) *Handler {
	if loginPath == "" {
		loginPath = "/login"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:       cfg,
		auth:      auth,
		intents:   intents,
		loginPath: loginPath,
		logger:    logger,
	}
}

// HandleLogin handles POST /auth/login with a JSON body or a form post
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = utils.WriteBadRequest(w, "Invalid request body", nil)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			_ = utils.WriteBadRequest(w, "Invalid form", nil)
			return
		}
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
		req.Redirect = r.PostForm.Get(navigation.RedirectParam)
	}
	if req.Redirect == "" {
		req.Redirect = r.URL.Query().Get(navigation.RedirectParam)
	}
	req.Email = strings.TrimSpace(req.Email)

	if err := utils.ValidateStruct(req); err != nil {
		handlers.HandleValidationError(w, err, h.logger)
		return
	}

	s, err := h.auth.SignInPrimary(r.Context(), session.Credentials{
		Email:    req.Email,
		Password: req.Password,
	}, middleware.RequestMeta(r))
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.finish(w, r, s, req.Redirect)
}

// HandleFederatedLogin handles GET /auth/federated/login by redirecting to
// the hosted UI
func (h *Handler) HandleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.HostedUIEnabled() {
		handlers.HandleServiceError(w, shared.NewDomainError(shared.ErrorTypeProviderUnavailable, "hosted sign-in not configured", nil).
			WithDetail("provider", session.ProviderFederated), h.logger)
		return
	}

	state, err := generateSecureState()
	if err != nil {
		h.logger.Error("failed to generate state", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	h.setCookie(w, StateCookieName, state, stateCookieMaxAge)
	if target := navigation.SafeRedirect(r.URL.Query().Get(navigation.RedirectParam), ""); target != "" {
		h.setCookie(w, RedirectCookieName, target, stateCookieMaxAge)
	}

	authURL := buildAuthURL(h.cfg.Cognito.Domain, h.cfg.Cognito.ClientID, h.cfg.Cognito.RedirectURI, state)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback handles the hosted UI callback: it checks the state and
// signs in to the federated provider with the authorization code
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.Info("hosted sign-in cancelled",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("error", providerErr),
			zap.String("description", query.Get("error_description")))
		h.clearCookie(w, StateCookieName)
		h.clearCookie(w, RedirectCookieName)
		http.Redirect(w, r, h.loginPath, http.StatusFound)
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" {
		_ = utils.WriteBadRequest(w, "Missing authorization code", nil)
		return
	}
	if state == "" {
		_ = utils.WriteBadRequest(w, "Missing state parameter", nil)
		return
	}

	stateCookie, err := r.Cookie(StateCookieName)
	if err != nil || stateCookie.Value != state {
		_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		return
	}
	h.clearCookie(w, StateCookieName)

	var target string
	if c, err := r.Cookie(RedirectCookieName); err == nil {
		target = c.Value
		h.clearCookie(w, RedirectCookieName)
	}

	s, err := h.auth.SignInFederated(r.Context(), session.Credentials{
		Code:        code,
		RedirectURI: h.cfg.Cognito.RedirectURI,
		State:       state,
	}, middleware.RequestMeta(r))
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.finish(w, r, s, target)
}

// HandleToken handles POST /auth/token with an ID token from an embedded
// sign-in widget
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		handlers.HandleValidationError(w, err, h.logger)
		return
	}

	s, err := h.auth.SignInFederated(r.Context(), session.Credentials{IDToken: req.IDToken}, middleware.RequestMeta(r))
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	target := h.destination(s, req.Redirect)
	_ = utils.WriteOK(w, AuthResponse{Session: s, RedirectTo: target})
}

// HandleLogout signs out of every provider. Browsers are sent through the
// hosted UI logout when it is configured, otherwise to the front end.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	s, err := h.auth.SignOut(r.Context(), middleware.RequestMeta(r))
	if err != nil {
		// The providers that did sign out stay signed out.
		h.logger.Warn("sign-out incomplete",
			zap.String("request_id", requestID),
			zap.Error(err))
	}

	target := h.cfg.Cognito.FrontEndURL
	if target == "" {
		target = "/"
	}

	if wantsJSON(r) {
		_ = utils.WriteOK(w, AuthResponse{Session: s, RedirectTo: target})
		return
	}
	if h.cfg.HostedUIEnabled() {
		target = buildLogoutURL(h.cfg.Cognito.Domain, h.cfg.Cognito.ClientID, h.cfg.Cognito.RedirectURI)
	}
	http.Redirect(w, r, target, redirectStatus(r))
}

// finish answers a successful sign-in. API clients get the session and the
// destination; browsers are redirected there.
func (h *Handler) finish(w http.ResponseWriter, r *http.Request, s session.Session, requested string) {
	target := h.destination(s, requested)
	if wantsJSON(r) {
		_ = utils.WriteOK(w, AuthResponse{Session: s, RedirectTo: target})
		return
	}
	http.Redirect(w, r, target, redirectStatus(r))
}

// destination honours a safe requested path, which replaces the role home
// redirect of the new session. Without one the browser lands on the root
// entry point and is sent home from there.
func (h *Handler) destination(s session.Session, requested string) string {
	target := navigation.SafeRedirect(requested, "")
	if target == "" {
		return "/"
	}
	if h.intents != nil {
		h.intents.Consume(s)
	}
	return target
}

func (h *Handler) secure() bool {
	return strings.HasPrefix(h.cfg.Cognito.RedirectURI, "https")
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	h.setCookie(w, name, "", -1)
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func wantsJSON(r *http.Request) bool {
	return isJSON(r) || strings.Contains(r.Header.Get("Accept"), "application/json")
}

// redirectStatus turns a form post into a GET on the destination
func redirectStatus(r *http.Request) int {
	if r.Method == http.MethodPost {
		return http.StatusSeeOther
	}
	return http.StatusFound
}

func buildAuthURL(domain, clientID, redirectURI, state string) string {
	base := strings.TrimSuffix(domain, "/") + "/oauth2/authorize"
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
		"state":         {state},
		"scope":         {"openid email phone profile"},
	}
	return base + "?" + params.Encode()
}

func buildLogoutURL(domain, clientID, redirectURI string) string {
	parsed, err := url.Parse(redirectURI)
	logoutURI := redirectURI
	if err == nil {
		logoutURI = parsed.Scheme + "://" + parsed.Host
	}
	base := strings.TrimSuffix(domain, "/") + "/logout"
	params := url.Values{
		"client_id":  {clientID},
		"logout_uri": {logoutURI},
	}
	return base + "?" + params.Encode()
}

func generateSecureState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
