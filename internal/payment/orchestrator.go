package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/chaetesh/medichain/internal/metrics"
	"github.com/chaetesh/medichain/internal/network"
	"github.com/chaetesh/medichain/internal/provider"
	"github.com/chaetesh/medichain/internal/traces"
	"github.com/chaetesh/medichain/internal/wallet"
)

const (
	// TransferGasLimit is the standard gas limit for a native transfer.
	TransferGasLimit = uint64(21000)

	// DefaultGasMarginPercent is added to the observed gas price to reduce
	// stuck-transaction risk.
	DefaultGasMarginPercent = int64(20)

	// DefaultConfirmTimeout bounds the background confirmation wait.
	DefaultConfirmTimeout = 2 * time.Minute

	// DefaultPollInterval between receipt checks.
	DefaultPollInterval = 2 * time.Second
)

// Config tunes the orchestrator. Zero values fall back to the defaults.
type Config struct {
	TransferGasLimit uint64
	GasMarginPercent int64
	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.TransferGasLimit == 0 {
		c.TransferGasLimit = TransferGasLimit
	}
	if c.GasMarginPercent == 0 {
		c.GasMarginPercent = DefaultGasMarginPercent
	}
	if c.ConfirmTimeout == 0 {
		c.ConfirmTimeout = DefaultConfirmTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// ConfirmationResult is delivered on a handle once the background
// reconciliation finishes. Informational only: the caller has already
// proceeded with the hash.
type ConfirmationResult struct {
	Hash        string
	BlockNumber uint64
	GasUsed     uint64
	Err         error
}

// Handle is returned to the caller immediately after broadcast. The hash is
// usable as payment proof before confirmation.
type Handle struct {
	Hash        string
	From        string
	To          string
	Amount      string // human units, sanitized
	ServiceName string
	ExplorerURL string

	confirmed chan ConfirmationResult
}

// Confirmed delivers the background confirmation result exactly once.
func (h *Handle) Confirmed() <-chan ConfirmationResult { return h.confirmed }

// EventFunc receives payment lifecycle events (broadcast, confirmed,
// failed) for realtime fan-out.
type EventFunc func(event string, fields map[string]any)

// Orchestrator coordinates one payment flow: preconditions, affordability,
// broadcast with the at-most-once guarantee, and background reconciliation.
type Orchestrator struct {
	provider  provider.Provider
	connector *wallet.Connector
	guard     *network.Guard
	cfg       Config
	log       *slog.Logger
	validate  *validator.Validate
	notify    EventFunc

	mu      sync.Mutex
	pending *PendingTransaction
}

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.log = log }
}

// WithNotify sets the lifecycle event hook.
func WithNotify(fn EventFunc) OrchestratorOption {
	return func(o *Orchestrator) { o.notify = fn }
}

// NewOrchestrator creates an orchestrator bound to one wallet connector and
// network guard. provider may be nil when no wallet is installed; Submit
// then fails with ErrProviderUnavailable.
func NewOrchestrator(p provider.Provider, connector *wallet.Connector, guard *network.Guard, cfg Config, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		provider:  p,
		connector: connector,
		guard:     guard,
		cfg:       cfg.withDefaults(),
		log:       slog.Default(),
		validate:  validator.New(),
		pending:   newPendingTransaction(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Pending returns the current attempt's transaction state.
func (o *Orchestrator) Pending() *PendingTransaction {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending
}

// resetAttempt swaps in a fresh PendingTransaction. Only the owning session
// calls this, and never mid-flow.
func (o *Orchestrator) resetAttempt() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = newPendingTransaction()
}

// Submit runs the payment state machine for req and returns a handle
// carrying the transaction hash as soon as the network has accepted the
// transaction for inclusion. It does not wait for confirmation: that
// happens in the background and its failure is logged, never surfaced.
//
// Re-entrancy: repeated calls against the same attempt return
// ErrAlreadySent without side effects, regardless of how the calls
// interleave with in-flight wallet prompts.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Handle, error) {
	pending := o.Pending()
	if err := pending.begin(); err != nil {
		o.log.Debug("duplicate payment attempt ignored", "service", req.ServiceName)
		return nil, err
	}
	defer pending.endProcessing()

	ctx, span := traces.StartSpan(ctx, "payment.submit",
		traces.Service(req.ServiceName),
		traces.Amount(req.Amount),
	)
	defer span.End()

	handle, err := o.submit(ctx, pending, req)
	if err != nil {
		o.fail(req, err)
		return nil, err
	}
	return handle, nil
}

func (o *Orchestrator) submit(ctx context.Context, pending *PendingTransaction, req Request) (*Handle, error) {
	if o.provider == nil {
		return nil, ErrProviderUnavailable
	}

	// The wallet is externally owned: the user may have switched accounts
	// or revoked access since the last call, so state is re-validated on
	// every attempt instead of cached.
	session, err := o.connector.Refresh(ctx)
	if err != nil {
		if errors.Is(err, wallet.ErrProviderUnavailable) {
			return nil, ErrProviderUnavailable
		}
		return nil, fmt.Errorf("%w: %v", ErrRPCFailure, err)
	}
	if !session.Connected {
		return nil, ErrWalletNotConnected
	}

	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	amount, err := ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	amountWei := ToBaseUnits(amount)

	if err := o.guard.EnsureChain(ctx); err != nil {
		return nil, mismatchError(err)
	}

	from := common.HexToAddress(session.Address)
	balance, err := o.provider.Balance(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: reading balance: %v", ErrRPCFailure, err)
	}
	gasPrice, err := o.provider.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: reading gas price: %v", ErrRPCFailure, err)
	}

	// Advisory affordability check: prevents a doomed submission, but the
	// chain is the final arbiter.
	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(o.cfg.TransferGasLimit), gasPrice)
	need := new(big.Int).Add(amountWei, gasCost)
	if balance.Cmp(need) < 0 {
		shortfall := new(big.Int).Sub(need, balance)
		return nil, fmt.Errorf("%w: you have %s but need approximately %s including gas (short %s)",
			ErrInsufficientFunds,
			FormatBaseUnits(balance),
			FormatBaseUnits(need),
			FormatBaseUnits(shortfall),
		)
	}

	// Commit point. The lock is set synchronously with the decision to
	// broadcast, before the wallet call suspends, so a second invocation
	// arriving while the approval prompt is open cannot send again.
	if err := pending.lockForBroadcast(); err != nil {
		return nil, err
	}

	adjusted := new(big.Int).Div(
		new(big.Int).Mul(gasPrice, big.NewInt(100+o.cfg.GasMarginPercent)),
		big.NewInt(100),
	)

	o.log.Info("submitting payment",
		"service", req.ServiceName,
		"to", req.Recipient,
		"amount", amount.String(),
		"gas_price", adjusted.String(),
	)

	hash, err := o.provider.SendTransaction(ctx, provider.TxParams{
		To:       common.HexToAddress(req.Recipient),
		Value:    amountWei,
		GasLimit: o.cfg.TransferGasLimit,
		GasPrice: adjusted,
	})
	if err != nil {
		// No hash was obtained, so the lock is released and a retry is
		// permitted.
		pending.releasePreBroadcast()
		return nil, classifyBroadcastError(err)
	}

	pending.setBroadcast(hash.Hex())
	metrics.PaymentsBroadcastTotal.Inc()
	o.emit("payment_broadcast", map[string]any{
		"service": req.ServiceName,
		"tx_hash": hash.Hex(),
		"amount":  amount.String(),
	})
	o.log.Info("payment broadcast", "tx_hash", hash.Hex(), "service", req.ServiceName)

	handle := &Handle{
		Hash:        hash.Hex(),
		From:        session.Address,
		To:          req.Recipient,
		Amount:      amount.String(),
		ServiceName: req.ServiceName,
		ExplorerURL: o.guard.Params().ExplorerTxURL(hash.Hex()),
		confirmed:   make(chan ConfirmationResult, 1),
	}

	// Hand-off ordering: the goroutine is detached, so the caller receives
	// the hash without ever waiting on confirmation.
	go o.awaitConfirmation(pending, handle)

	return handle, nil
}

// awaitConfirmation reconciles the broadcast in the background. Outcomes are
// informational: the hand-off already happened, so failures are logged and
// sentLock is never cleared (the transaction may still land).
func (o *Orchestrator) awaitConfirmation(pending *PendingTransaction, handle *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ConfirmTimeout)
	defer cancel()

	hash := common.HexToHash(handle.Hash)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Warn("transaction sent but confirmation timed out; check the explorer, do not resubmit",
				"tx_hash", handle.Hash,
				"explorer", handle.ExplorerURL,
			)
			handle.confirmed <- ConfirmationResult{
				Hash: handle.Hash,
				Err:  fmt.Errorf("%w: %s", ErrConfirmationTimeout, handle.Hash),
			}
			return

		case <-ticker.C:
			receipt, err := o.provider.TransactionReceipt(ctx, hash)
			if err != nil {
				// Not mined yet.
				continue
			}
			if receipt.Status == 0 {
				pending.setState(StateFailed)
				o.log.Error("transaction reverted on-chain", "tx_hash", handle.Hash)
				o.emit("payment_failed", map[string]any{"tx_hash": handle.Hash, "reason": "reverted"})
				handle.confirmed <- ConfirmationResult{
					Hash: handle.Hash,
					Err:  fmt.Errorf("payment: transaction %s reverted", handle.Hash),
				}
				return
			}

			pending.setState(StateConfirmed)
			metrics.PaymentsConfirmedTotal.Inc()
			o.emit("payment_confirmed", map[string]any{
				"tx_hash": handle.Hash,
				"block":   receipt.BlockNumber.Uint64(),
			})
			o.log.Info("payment confirmed",
				"tx_hash", handle.Hash,
				"block", receipt.BlockNumber.Uint64(),
				"gas_used", receipt.GasUsed,
			)
			handle.confirmed <- ConfirmationResult{
				Hash:        handle.Hash,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}
			return
		}
	}
}

func (o *Orchestrator) fail(req Request, err error) {
	if errors.Is(err, ErrAlreadySent) {
		return
	}
	metrics.PaymentFailuresTotal.WithLabelValues(Category(err)).Inc()
	o.emit("payment_failed", map[string]any{
		"service":  req.ServiceName,
		"category": Category(err),
	})
	o.log.Warn("payment attempt failed",
		"service", req.ServiceName,
		"category", Category(err),
		"error", err,
	)
}

func (o *Orchestrator) emit(event string, fields map[string]any) {
	if o.notify != nil {
		o.notify(event, fields)
	}
}
