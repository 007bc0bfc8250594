package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/upb/ticketing-shell/guard"
	"github.com/upb/ticketing-shell/models"
	"github.com/upb/ticketing-shell/repositories"
	"github.com/upb/ticketing-shell/session"
	"go.uber.org/zap"
)

var (
	ErrNotStarted = errors.New("audit service not started")
	ErrStopped    = errors.New("audit service stopped")
	ErrBufferFull = errors.New("audit event buffer full")
)

// RequestMeta identifies the HTTP request an event was raised by
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// Service records authentication events asynchronously. Without a
// repository the events are only written to the log.
type Service struct {
	repo        repositories.AuthEventRepository
	logger      *zap.Logger
	eventChan   chan *models.AuthEvent
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc

	mu      sync.RWMutex
	started bool
	stopped bool
}

// Config holds configuration for the Service
type Config struct {
	BufferSize  int // Size of the event buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1024,
		WorkerCount: 2,
	}
}

// NewService creates a new Service. repo may be nil.
func NewService(repo repositories.AuthEventRepository, logger *zap.Logger, config Config) *Service {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		repo:        repo,
		logger:      logger,
		eventChan:   make(chan *models.AuthEvent, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize),
		zap.Bool("persistent", s.repo != nil))

	return nil
}

// Stop stops accepting events and waits for the queued ones to be written
func (s *Service) Stop(timeout time.Duration) error {
	s.cancel()

	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	pending := len(s.eventChan)
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues an event without blocking
func (s *Service) Record(event *models.AuthEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.acceptingLocked(); err != nil {
		return err
	}

	select {
	case s.eventChan <- event:
		return nil
	default:
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(event.Action)),
			zap.String("role", string(event.Role)))
		return ErrBufferFull
	}
}

// RecordBlocking waits until the event is queued or ctx is done
func (s *Service) RecordBlocking(ctx context.Context, event *models.AuthEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.acceptingLocked(); err != nil {
		return err
	}

	select {
	case s.eventChan <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrStopped
	}
}

func (s *Service) acceptingLocked() error {
	if s.stopped {
		return ErrStopped
	}
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		if err := s.processEvent(event); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(event.Action)))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *Service) processEvent(event *models.AuthEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID.String()),
		zap.String("action", string(event.Action)),
		zap.String("role", string(event.Role)),
		zap.String("provider", event.Provider),
		zap.String("path", event.Path),
		zap.String("request_id", event.RequestID),
	}
	if event.SessionID != nil {
		fields = append(fields, zap.String("session_id", event.SessionID.String()))
	}
	s.logger.Info("auth event", fields...)

	if s.repo == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.repo.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}
	return nil
}

// Stats returns statistics about the audit service
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
		Persistent:    s.repo != nil,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int  `json:"buffer_size"`
	PendingEvents int  `json:"pending_events"`
	WorkerCount   int  `json:"worker_count"`
	Started       bool `json:"started"`
	Persistent    bool `json:"persistent"`
}

// Recent returns the newest persisted events
func (s *Service) Recent(ctx context.Context, limit int) ([]*models.AuthEvent, error) {
	if s.repo == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListRecent(ctx, limit)
}

// Prune deletes persisted events older than retention
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if s.repo == nil || retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention)
	n, err := s.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune auth events: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned auth events",
			zap.Int64("deleted", n),
			zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// RunRetention prunes once per interval until ctx ends. Failed runs are
// logged and retried on the next tick.
func (s *Service) RunRetention(ctx context.Context, retention, interval time.Duration) error {
	if s.repo == nil || retention <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Prune(ctx, retention); err != nil && ctx.Err() == nil {
			s.logger.Warn("auth event retention run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Convenience methods for common events

// LogSignIn records a successful explicit sign-in
func (s *Service) LogSignIn(provider string, id *session.Identity, current session.Session, meta RequestMeta) error {
	event := models.NewAuthEvent(models.AuthActionSignIn, current.Role).
		WithSession(current.ID).
		WithIdentity(provider, id).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	return s.Record(event)
}

// LogSignInFailed records a rejected explicit sign-in
func (s *Service) LogSignInFailed(provider, email string, cause error, current session.Session, meta RequestMeta) error {
	event := models.NewAuthEvent(models.AuthActionSignInFailed, current.Role).
		WithSession(current.ID).
		WithIdentity(provider, &session.Identity{Email: email}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent).
		WithError(cause)
	return s.Record(event)
}

// LogRateLimited records a sign-in attempt refused by the limiter
func (s *Service) LogRateLimited(provider, key string, current session.Session, meta RequestMeta) error {
	event := models.NewAuthEvent(models.AuthActionRateLimited, current.Role).
		WithSession(current.ID).
		WithIdentity(provider, nil).
		WithDetails(map[string]string{"key": key}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	return s.Record(event)
}

// LogSignOut records an explicit sign-out of the session prev
func (s *Service) LogSignOut(prev session.Session, meta RequestMeta) error {
	event := models.NewAuthEvent(models.AuthActionSignOut, prev.Role).
		WithSession(prev.ID).
		WithIdentity("", prev.User()).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	return s.Record(event)
}

// LogAccessDenied records a guard denial
func (s *Service) LogAccessDenied(d guard.Decision, current session.Session, meta RequestMeta) error {
	event := models.NewAuthEvent(models.AuthActionAccessDenied, current.Role).
		WithSession(current.ID).
		WithIdentity("", current.User()).
		WithPath(d.Path).
		WithDetails(map[string]interface{}{
			"state":          d.State.String(),
			"required_roles": d.RequiredRoles,
			"redirect_to":    d.RedirectTo,
		}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	return s.Record(event)
}

// LogHomeRedirect records a role-home redirect issued from an entry point
func (s *Service) LogHomeRedirect(from, to string, current session.Session, meta RequestMeta) error {
	event := models.NewAuthEvent(models.AuthActionHomeRedirect, current.Role).
		WithSession(current.ID).
		WithIdentity("", current.User()).
		WithPath(from).
		WithDetails(map[string]string{"redirect_to": to}).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	return s.Record(event)
}

// SessionSource is the part of the session store Observe needs
type SessionSource interface {
	GetSession() session.Session
	Subscribe(fn func(session.Session)) (unsubscribe func())
}

// Observe records a role_changed event for every role transition of store.
// The returned function stops observing.
func (s *Service) Observe(store SessionSource) func() {
	var mu sync.Mutex
	last := store.GetSession()

	return store.Subscribe(func(next session.Session) {
		mu.Lock()
		prev := last
		last = next
		mu.Unlock()

		if prev.Role == next.Role && prev.ID == next.ID {
			return
		}

		sessionID := next.ID
		if next.IsGuest() {
			sessionID = prev.ID
		}
		event := models.NewAuthEvent(models.AuthActionRoleChanged, next.Role).
			WithSession(sessionID).
			WithIdentity("", next.User()).
			WithDetails(map[string]interface{}{
				"previous_role": prev.Role,
				"version":       next.Version,
			})
		if err := s.Record(event); err != nil {
			s.logger.Debug("role change not recorded", zap.Error(err))
		}
	})
}
