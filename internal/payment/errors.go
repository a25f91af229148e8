package payment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chaetesh/medichain/internal/network"
	"github.com/chaetesh/medichain/internal/provider"
)

// Error taxonomy. Raw provider errors are translated at the orchestrator
// boundary and never reach callers.
var (
	// ErrProviderUnavailable: no wallet installed. Not retryable without
	// user action (installing a wallet).
	ErrProviderUnavailable = errors.New("payment: wallet provider unavailable")

	// ErrWalletNotConnected: no authorized account. Connect first.
	ErrWalletNotConnected = errors.New("payment: wallet not connected")

	// ErrUserRejected: the user declined the wallet prompt. Retryable
	// immediately.
	ErrUserRejected = errors.New("payment: transaction rejected in wallet")

	// ErrNetworkMismatch: the wallet could not be moved onto the required
	// chain. Retryable after manual wallet configuration.
	ErrNetworkMismatch = errors.New("payment: wrong network")

	// ErrInvalidAmount: the requested amount does not parse to a positive
	// decimal. Programmer or backend error, not user-retryable.
	ErrInvalidAmount = errors.New("payment: invalid amount")

	// ErrInsufficientFunds: balance cannot cover amount plus estimated gas.
	// Retryable after funding.
	ErrInsufficientFunds = errors.New("payment: insufficient funds")

	// ErrRPCFailure: transient node or network issue. Retryable.
	ErrRPCFailure = errors.New("payment: rpc failure")

	// ErrBroadcastFailed: unrecognized wallet error during broadcast. The
	// message retains the original error text.
	ErrBroadcastFailed = errors.New("payment: broadcast failed")

	// ErrConfirmationTimeout: a hash exists but confirmation was not
	// observed in time. The transaction may still land; the only valid user
	// action is to check the explorer, never to resubmit.
	ErrConfirmationTimeout = errors.New("payment: confirmation timed out")

	// ErrAlreadySent: a transaction was already broadcast (or is being
	// broadcast) for this attempt. The call is a no-op, not a failure of
	// the payment itself.
	ErrAlreadySent = errors.New("payment: transaction already sent for this session")
)

// classifyBroadcastError maps a wallet/RPC broadcast failure to the
// taxonomy. Happens only before a hash is obtained; post-hash failures are
// background-logged instead.
func classifyBroadcastError(err error) error {
	switch {
	case provider.IsCode(err, provider.CodeUserRejected):
		return fmt.Errorf("%w: payment cancelled, you rejected the transaction in your wallet", ErrUserRejected)
	case provider.IsCode(err, provider.CodeInternalError):
		return fmt.Errorf("%w: internal JSON-RPC error; this could be network congestion, insufficient gas funds, or an RPC endpoint issue", ErrRPCFailure)
	case strings.Contains(strings.ToLower(err.Error()), "insufficient funds"):
		return fmt.Errorf("%w: make sure you have enough for both the payment and gas fees", ErrInsufficientFunds)
	default:
		return fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}
}

// mismatchError wraps a network guard failure, keeping the manual
// configuration hint reachable via errors.As on *network.MismatchError.
func mismatchError(err error) error {
	var mm *network.MismatchError
	if errors.As(err, &mm) {
		return fmt.Errorf("%w: %s", ErrNetworkMismatch, mm.Hint())
	}
	return fmt.Errorf("%w: %v", ErrNetworkMismatch, err)
}

// Category returns the metrics/reporting label for a taxonomy error.
func Category(err error) string {
	switch {
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrWalletNotConnected):
		return "wallet_not_connected"
	case errors.Is(err, ErrUserRejected):
		return "user_rejected"
	case errors.Is(err, ErrNetworkMismatch):
		return "network_mismatch"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrRPCFailure):
		return "rpc_failure"
	case errors.Is(err, ErrConfirmationTimeout):
		return "confirmation_timeout"
	case errors.Is(err, ErrAlreadySent):
		return "already_sent"
	case err == nil:
		return "none"
	default:
		return "other"
	}
}
