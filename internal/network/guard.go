// Package network guarantees the wallet is pointed at the required chain
// before any transfer is attempted. Wallets do not ship with every chain
// preconfigured, so a failed switch falls back to registering the chain and
// trying again.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/chaetesh/medichain/internal/provider"
)

// ErrMismatch is the terminal failure for a payment attempt when the wallet
// cannot be moved onto the required chain. Not retried automatically; the
// wrapped MismatchError carries manual-configuration instructions.
var ErrMismatch = errors.New("network: wallet is on the wrong chain")

// ChainParams describes the required chain, including everything needed to
// register it with a wallet that does not know it.
type ChainParams struct {
	ChainID          string `validate:"required,startswith=0x"` // hex, e.g. "0x13882"
	Name             string `validate:"required"`
	RPCURL           string `validate:"required,url"`
	CurrencyName     string `validate:"required"`
	CurrencySymbol   string `validate:"required"`
	CurrencyDecimals int    `validate:"required,gt=0"`
	ExplorerURL      string `validate:"omitempty,url"`
}

// Validate checks the chain parameters for completeness.
func (p ChainParams) Validate() error {
	return validator.New().Struct(p)
}

// DecimalID returns the chain id as a decimal number (0 if unparseable).
func (p ChainParams) DecimalID() int64 {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(p.ChainID), "0x"), 16, 64)
	if err != nil {
		return 0
	}
	return id
}

// ExplorerTxURL returns the explorer link for a transaction hash, or "" when
// no explorer is configured.
func (p ChainParams) ExplorerTxURL(txHash string) string {
	if p.ExplorerURL == "" {
		return ""
	}
	return strings.TrimSuffix(p.ExplorerURL, "/") + "/tx/" + txHash
}

// ManualSetupHint renders the parameters a user needs to add the chain to
// their wallet by hand. Shown when both switching and registration fail.
func (p ChainParams) ManualSetupHint() string {
	return fmt.Sprintf(
		"Add the network manually: Network Name: %s, RPC URL: %s, Chain ID: %d (%s in hex), Currency Symbol: %s",
		p.Name, p.RPCURL, p.DecimalID(), p.ChainID, p.CurrencySymbol,
	)
}

func (p ChainParams) addParams() provider.AddChainParams {
	return provider.AddChainParams{
		ChainID:   p.ChainID,
		ChainName: p.Name,
		NativeCurrency: provider.NativeCurrency{
			Name:     p.CurrencyName,
			Symbol:   p.CurrencySymbol,
			Decimals: p.CurrencyDecimals,
		},
		RPCURLs:           []string{p.RPCURL},
		BlockExplorerURLs: []string{p.ExplorerURL},
	}
}

// MismatchError wraps ErrMismatch with the failing operation and the manual
// configuration hint for the user.
type MismatchError struct {
	Op     string // "switch" or "add"
	Params ChainParams
	Err    error
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("network: %s chain %s failed: %v", e.Op, e.Params.ChainID, e.Err)
}

func (e *MismatchError) Unwrap() error { return ErrMismatch }

// Hint returns the manual-configuration instructions for the required chain.
func (e *MismatchError) Hint() string { return e.Params.ManualSetupHint() }

// Guard ensures the wallet's active chain equals the required chain.
type Guard struct {
	provider provider.Provider
	params   ChainParams
	log      *slog.Logger
}

// NewGuard creates a guard for the given chain.
func NewGuard(p provider.Provider, params ChainParams, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{provider: p, params: params, log: log}
}

// Params returns the required chain parameters.
func (g *Guard) Params() ChainParams { return g.params }

// EnsureChain makes the wallet's active chain match the required one.
//
// Matching is a no-op. Otherwise a switch is requested; if the wallet does
// not recognize the chain (code 4902), registration is attempted exactly
// once and the active chain re-checked. Any other failure is terminal for
// the current payment attempt and surfaces as a MismatchError.
func (g *Guard) EnsureChain(ctx context.Context) error {
	current, err := g.provider.ChainID(ctx)
	if err != nil {
		return &MismatchError{Op: "read", Params: g.params, Err: err}
	}
	if strings.EqualFold(current, g.params.ChainID) {
		return nil
	}

	g.log.Info("switching wallet chain",
		"from", current,
		"to", g.params.ChainID,
	)

	switchErr := g.provider.SwitchChain(ctx, g.params.ChainID)
	if switchErr == nil {
		return nil
	}

	if !provider.IsCode(switchErr, provider.CodeUnrecognizedChain) {
		return &MismatchError{Op: "switch", Params: g.params, Err: switchErr}
	}

	// Chain unknown to the wallet: register it, then re-attempt use.
	g.log.Info("registering chain with wallet", "chain_id", g.params.ChainID, "name", g.params.Name)
	if addErr := g.provider.AddChain(ctx, g.params.addParams()); addErr != nil {
		g.log.Warn("chain registration failed", "chain_id", g.params.ChainID, "error", addErr)
		return &MismatchError{Op: "add", Params: g.params, Err: addErr}
	}

	current, err = g.provider.ChainID(ctx)
	if err != nil {
		return &MismatchError{Op: "read", Params: g.params, Err: err}
	}
	if strings.EqualFold(current, g.params.ChainID) {
		return nil
	}

	// Some wallets register without activating; one more switch settles it.
	if err := g.provider.SwitchChain(ctx, g.params.ChainID); err != nil {
		return &MismatchError{Op: "switch", Params: g.params, Err: err}
	}
	return nil
}
