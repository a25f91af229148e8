package payment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chaetesh/medichain/internal/metrics"
)

// DefaultCooldown absorbs accidental rapid re-opens after a transaction was
// sent. Heuristic, so it stays configurable.
const DefaultCooldown = 3 * time.Second

// ErrSessionClosed is returned when Pay is called without an open session.
var ErrSessionClosed = errors.New("payment: session not open")

// Session owns the modal-driven payment lifecycle: opening resets the
// attempt to a clean slate, closing before a broadcast discards it, and
// closing after a broadcast preserves the sent lock through a cool-down
// window so the same payment cannot be re-broadcast by an immediate reopen.
type Session struct {
	orch       *Orchestrator
	cooldown   time.Duration
	onComplete func(*Handle)
	log        *slog.Logger

	mu         sync.Mutex
	open       bool
	lastSentAt time.Time // close time of the last attempt that broadcast
}

// SessionOption configures a session.
type SessionOption func(*Session)

// WithCooldown overrides the post-broadcast reopen cool-down.
func WithCooldown(d time.Duration) SessionOption {
	return func(s *Session) { s.cooldown = d }
}

// WithOnComplete sets the completion callback invoked with the handle after
// a successful broadcast, before the session closes itself.
func WithOnComplete(fn func(*Handle)) SessionOption {
	return func(s *Session) { s.onComplete = fn }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(log *slog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// NewSession creates a session around an orchestrator.
func NewSession(orch *Orchestrator, opts ...SessionOption) *Session {
	s := &Session{
		orch:     orch,
		cooldown: DefaultCooldown,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open prepares a fresh payment attempt. If the previous attempt broadcast a
// transaction and the cool-down has not elapsed, the locked attempt is kept
// instead: Pay then returns ErrAlreadySent rather than re-sending.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return
	}

	withinCooldown := !s.lastSentAt.IsZero() && time.Since(s.lastSentAt) < s.cooldown
	if withinCooldown {
		s.log.Debug("reopened within cool-down of a sent transaction; keeping lock")
	} else {
		s.orch.resetAttempt()
		s.lastSentAt = time.Time{}
	}

	s.open = true
	metrics.ActivePaymentSessions.Inc()
}

// Close tears the session down. Before a broadcast this resets all attempt
// state, sent lock included, so the next open is a clean slate. After a
// broadcast the transaction cannot be recalled, so the lock is preserved
// and the cool-down clock starts.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return
	}
	s.open = false
	metrics.ActivePaymentSessions.Dec()

	if s.orch.Pending().Hash() != "" {
		s.lastSentAt = time.Now()
		return
	}
	s.orch.resetAttempt()
}

// Pay submits the payment for an open session. On a successful broadcast it
// invokes the completion callback with the handle and then closes the
// session, mirroring a modal that dismisses itself once the hash exists.
func (s *Session) Pay(ctx context.Context, req Request) (*Handle, error) {
	s.mu.Lock()
	open := s.open
	s.mu.Unlock()
	if !open {
		return nil, ErrSessionClosed
	}

	handle, err := s.orch.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.onComplete != nil {
		s.onComplete(handle)
	}
	s.Close()
	return handle, nil
}
