package cognito

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotConfigured is returned by the exchanger when the hosted UI domain
// or app client is missing
var ErrNotConfigured = errors.New("cognito not configured")

// TokenResponse represents the OAuth2 token endpoint response from Cognito
type TokenResponse struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// ExchangerConfig configures the hosted-UI token endpoint client
type ExchangerConfig struct {
	Domain       string
	ClientID     string
	ClientSecret string
	HTTPTimeout  time.Duration
}

// Exchanger exchanges authorization codes for tokens at the hosted UI
type Exchanger struct {
	cfg        ExchangerConfig
	httpClient *http.Client
}

// NewExchanger creates a new token exchanger
func NewExchanger(cfg ExchangerConfig) *Exchanger {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &Exchanger{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}
}

// ExchangeCode exchanges an authorization code for ID and access tokens
func (e *Exchanger) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	if e.cfg.Domain == "" || e.cfg.ClientID == "" {
		return nil, ErrNotConfigured
	}

	tokenURL := strings.TrimSuffix(e.cfg.Domain, "/") + "/oauth2/token"
	data := url.Values{
		"grant_type":   {"authorization_code"},
		"client_id":    {e.cfg.ClientID},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}

	if e.cfg.ClientSecret != "" {
		data.Set("client_secret", e.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}

	if tokenResp.IDToken == "" {
		return nil, errors.New("no id_token in response")
	}

	return &tokenResp, nil
}

// ExchangeError is a non-200 answer of the token endpoint
type ExchangeError struct {
	StatusCode int
	Body       string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: status %d, body: %s", e.StatusCode, e.Body)
}

// Rejected reports whether the endpoint refused the grant itself, e.g. a
// reused or expired code
func (e *ExchangeError) Rejected() bool {
	return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnauthorized
}
