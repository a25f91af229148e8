// Package txlog keeps a best-effort local record of payments for user
// reference. It is not authoritative: the chain and the backend are the
// source of truth, and a failed write never fails the payment path.
package txlog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no entry matches.
var ErrNotFound = errors.New("txlog: entry not found")

// Entry is one recorded payment.
type Entry struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	TxHash    string    `json:"txHash"`
	Amount    string    `json:"amount"` // human units
	FromAddr  string    `json:"from"`
	ToAddr    string    `json:"to"`
	CreatedAt time.Time `json:"timestamp"`
}

// Store persists entries.
type Store interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, limit int) ([]*Entry, error)
	ByHash(ctx context.Context, txHash string) (*Entry, error)
}

// Service wraps a store with best-effort semantics.
type Service struct {
	store Store
	log   *slog.Logger
}

// NewService creates a txlog service.
func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, log: log}
}

// Record persists a payment record, assigning an id and timestamp. Errors
// are logged and swallowed.
func (s *Service) Record(ctx context.Context, service, txHash, amount, from, to string) {
	e := &Entry{
		ID:        uuid.NewString(),
		Service:   service,
		TxHash:    txHash,
		Amount:    amount,
		FromAddr:  from,
		ToAddr:    to,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Record(ctx, e); err != nil {
		s.log.Warn("failed to record transaction",
			"tx_hash", txHash,
			"service", service,
			"error", err,
		)
	}
}

// History lists the most recent entries.
func (s *Service) History(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.List(ctx, limit)
}

// ByHash looks up a single entry by transaction hash.
func (s *Service) ByHash(ctx context.Context, txHash string) (*Entry, error) {
	return s.store.ByHash(ctx, txHash)
}
