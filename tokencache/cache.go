// Package tokencache persists provider session tokens so a restarted shell
// can restore the session without a new sign-in.
package tokencache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

// ErrNotFound is returned by Load when nothing is cached for a provider
var ErrNotFound = errors.New("token not cached")

// Token is one cached provider credential
type Token struct {
	Value     string    `json:"value"`
	Subject   string    `json:"subject,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
}

// Expired reports whether the token carries an expiry that has passed
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Cache stores at most one token per provider
type Cache interface {
	Load(provider string) (Token, error)
	Save(provider string, token Token) error
	Clear(provider string) error
}

// Memory is an in-process Cache
type Memory struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewMemory creates an empty Memory cache
func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]Token)}
}

// Load implements Cache
func (m *Memory) Load(provider string) (Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[provider]
	if !ok {
		return Token{}, ErrNotFound
	}
	return t, nil
}

// Save implements Cache
func (m *Memory) Save(provider string, token Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[provider] = token
	return nil
}

// Clear implements Cache
func (m *Memory) Clear(provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, provider)
	return nil
}

var providerName = regexp.MustCompile(`^[a-z0-9_-]+$`)

// File keeps one JSON document per provider in a directory, readable only
// by the owner
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile creates the directory if needed and returns a File cache
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("token cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create token cache directory: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(provider string) (string, error) {
	if !providerName.MatchString(provider) {
		return "", fmt.Errorf("invalid provider name %q", provider)
	}
	return filepath.Join(f.dir, provider+".json"), nil
}

// Load implements Cache
func (f *File) Load(provider string) (Token, error) {
	p, err := f.path(provider)
	if err != nil {
		return Token{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return Token{}, ErrNotFound
	}
	if err != nil {
		return Token{}, fmt.Errorf("failed to read cached token: %w", err)
	}

	var t Token
	if err := json.Unmarshal(data, &t); err != nil {
		return Token{}, fmt.Errorf("failed to decode cached token: %w", err)
	}
	if t.Value == "" {
		return Token{}, ErrNotFound
	}
	return t, nil
}

// Save implements Cache. The document is written to a temp file and
// renamed into place.
func (f *File) Save(provider string, token Token) error {
	p, err := f.path(provider)
	if err != nil {
		return err
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, provider+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set token file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Clear implements Cache
func (f *File) Clear(provider string) error {
	p, err := f.path(provider)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear cached token: %w", err)
	}
	return nil
}
