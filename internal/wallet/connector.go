// Package wallet handles browser-wallet detection and connection state.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chaetesh/medichain/internal/provider"
)

var (
	ErrProviderUnavailable = errors.New("wallet: no wallet provider installed")
	ErrUserRejected        = errors.New("wallet: connection request rejected")
	ErrNoAccounts          = errors.New("wallet: no accounts authorized")
)

// Session is the connected-wallet state. The wallet extension owns the real
// connection; this is the application's last observed view of it.
type Session struct {
	Address       string // lowercase hex, "" when disconnected
	Connected     bool
	ActiveChainID string // hex-encoded, as reported by the wallet
}

// Registrar records a connected address with the backend. Registration is a
// best-effort side effect: its failure never fails the connect operation.
type Registrar interface {
	RegisterWallet(ctx context.Context, address string) error
}

// Connector detects the wallet provider, restores or requests account
// access, and tracks the session.
type Connector struct {
	provider  provider.Provider
	registrar Registrar
	log       *slog.Logger

	mu      sync.Mutex
	session Session
}

// Option configures the connector.
type Option func(*Connector)

// WithRegistrar sets the backend registrar called after a successful connect.
func WithRegistrar(r Registrar) Option {
	return func(c *Connector) { c.registrar = r }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Connector) { c.log = log }
}

// NewConnector creates a connector around the given provider. A nil provider
// means no wallet is installed; operations then fail with
// ErrProviderUnavailable and the caller should render an install prompt.
func NewConnector(p provider.Provider, opts ...Option) *Connector {
	c := &Connector{provider: p, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Detect reports whether a wallet provider is available. Absence is
// non-fatal.
func (c *Connector) Detect() bool {
	return c.provider != nil
}

// Session returns the last observed session state.
func (c *Connector) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Restore silently probes for an already-authorized connection
// (no user prompt). An empty account list leaves the session disconnected
// and is not an error.
func (c *Connector) Restore(ctx context.Context) (Session, error) {
	if c.provider == nil {
		return Session{}, ErrProviderUnavailable
	}

	accounts, err := c.provider.Accounts(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("wallet: reading authorized accounts: %w", err)
	}
	if len(accounts) == 0 {
		return c.update(Session{}), nil
	}

	chainID, err := c.provider.ChainID(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("wallet: reading chain id: %w", err)
	}

	return c.update(Session{
		Address:       normalizeAddress(accounts[0]),
		Connected:     true,
		ActiveChainID: chainID,
	}), nil
}

// Connect interactively requests account access, triggering the wallet's
// approval prompt. On success the address is also registered with the
// backend, best-effort: a registration failure is logged and swallowed
// because the wallet-level connection is still valid.
func (c *Connector) Connect(ctx context.Context) (Session, error) {
	if c.provider == nil {
		return Session{}, ErrProviderUnavailable
	}

	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		if provider.IsCode(err, provider.CodeUserRejected) {
			return Session{}, fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
		return Session{}, fmt.Errorf("wallet: requesting accounts: %w", err)
	}
	if len(accounts) == 0 {
		return Session{}, ErrNoAccounts
	}

	chainID, err := c.provider.ChainID(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("wallet: reading chain id: %w", err)
	}

	session := c.update(Session{
		Address:       normalizeAddress(accounts[0]),
		Connected:     true,
		ActiveChainID: chainID,
	})

	if c.registrar != nil {
		if regErr := c.registrar.RegisterWallet(ctx, session.Address); regErr != nil {
			c.log.Warn("wallet connected but backend registration failed",
				"address", session.Address,
				"error", regErr,
			)
		}
	}

	return session, nil
}

// Refresh re-reads the authorized accounts and active chain. Called at the
// start of every payment attempt: the wallet is an externally-owned resource
// and the user may have switched accounts or chains, or revoked access,
// since the last call.
func (c *Connector) Refresh(ctx context.Context) (Session, error) {
	if c.provider == nil {
		return Session{}, ErrProviderUnavailable
	}

	accounts, err := c.provider.Accounts(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("wallet: reading authorized accounts: %w", err)
	}
	if len(accounts) == 0 {
		// Access revoked since the last observation.
		return c.update(Session{}), nil
	}

	chainID, err := c.provider.ChainID(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("wallet: reading chain id: %w", err)
	}

	return c.update(Session{
		Address:       normalizeAddress(accounts[0]),
		Connected:     true,
		ActiveChainID: chainID,
	}), nil
}

func (c *Connector) update(s Session) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	return s
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
