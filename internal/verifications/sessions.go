package verifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/warden/internal/verification"
	"github.com/JaimeStill/warden/pkg/lifecycle"
)

// SessionConfig bounds the session registry. A zero TTL disables expiry and
// a zero MaxSessions disables the cap.
type SessionConfig struct {
	TTL           time.Duration
	MaxSessions   int
	SweepInterval time.Duration
}

// InstanceFactory builds a workflow instance whose background work is bound to ctx.
type InstanceFactory func(ctx context.Context) *verification.Instance

type session struct {
	inst    *verification.Instance
	touched time.Time
}

// lastActive is the later of the last request and the last state change.
func (s *session) lastActive() time.Time {
	if u := s.inst.UpdatedAt(); u.After(s.touched) {
		return u
	}
	return s.touched
}

// Sessions holds one workflow instance per user session.
type Sessions struct {
	cfg     SessionConfig
	factory InstanceFactory
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	items  map[uuid.UUID]*session
	closed bool
}

// NewSessions creates an empty registry.
func NewSessions(cfg SessionConfig, factory InstanceFactory, logger *slog.Logger) *Sessions {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sessions{
		cfg:     cfg,
		factory: factory,
		logger:  logger.With("system", "sessions"),
		ctx:     ctx,
		cancel:  cancel,
		items:   make(map[uuid.UUID]*session),
	}
}

// Start runs the expiry sweeper until shutdown and closes every session
// when the coordinator shuts down.
func (s *Sessions) Start(lc *lifecycle.Coordinator) error {
	s.logger.Info("starting session registry",
		"ttl", s.cfg.TTL,
		"max_sessions", s.cfg.MaxSessions,
	)

	if s.cfg.TTL > 0 {
		interval := s.cfg.SweepInterval
		if interval <= 0 {
			interval = max(s.cfg.TTL/4, time.Second)
		}
		go s.sweep(lc.Context(), interval)
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		n := s.CloseAll()
		s.logger.Info("session registry drained", "closed", n)
	})

	return nil
}

// Open creates a session. At capacity the least recently active session that
// is not processing is evicted; when every session is processing Open fails
// with ErrTooManySessions.
func (s *Sessions) Open() (*verification.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, verification.ErrClosed
	}

	if s.cfg.MaxSessions > 0 && len(s.items) >= s.cfg.MaxSessions {
		if !s.evictOldest() {
			return nil, ErrTooManySessions
		}
	}

	inst := s.factory(s.ctx)
	s.items[inst.ID()] = &session{inst: inst, touched: time.Now()}

	s.logger.Debug("session opened", "session", inst.ID(), "active", len(s.items))
	return inst, nil
}

// Get returns the session's instance and marks the session active.
func (s *Sessions) Get(id uuid.UUID) (*verification.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.items[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touched = time.Now()
	return sess.inst, nil
}

// Close removes the session and cancels any in-flight processing.
func (s *Sessions) Close(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.items[id]
	delete(s.items, id)
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	sess.inst.Close()
	s.logger.Debug("session closed", "session", id)
	return nil
}

// Len reports the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sweep closes sessions inactive for longer than the TTL as of now.
// Processing sessions never expire. It returns the number closed.
func (s *Sessions) Sweep(now time.Time) int {
	if s.cfg.TTL <= 0 {
		return 0
	}

	s.mu.Lock()
	var expired []*session
	for id, sess := range s.items {
		if sess.inst.Status() == verification.StatusProcessing {
			continue
		}
		if now.Sub(sess.lastActive()) > s.cfg.TTL {
			expired = append(expired, sess)
			delete(s.items, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.inst.Close()
	}

	if len(expired) > 0 {
		s.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// CloseAll closes every session and rejects further Opens.
func (s *Sessions) CloseAll() int {
	s.mu.Lock()
	s.closed = true
	items := s.items
	s.items = make(map[uuid.UUID]*session)
	s.mu.Unlock()

	for _, sess := range items {
		sess.inst.Close()
	}
	s.cancel()
	return len(items)
}

// evictOldest must be called with mu held.
func (s *Sessions) evictOldest() bool {
	var (
		oldestID uuid.UUID
		oldest   *session
	)
	for id, sess := range s.items {
		if sess.inst.Status() == verification.StatusProcessing {
			continue
		}
		if oldest == nil || sess.lastActive().Before(oldest.lastActive()) {
			oldestID, oldest = id, sess
		}
	}

	if oldest == nil {
		return false
	}

	delete(s.items, oldestID)
	oldest.inst.Close()
	s.logger.Info("evicted session at capacity", "session", oldestID)
	return true
}

func (s *Sessions) sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}
