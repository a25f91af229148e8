// Package provider defines the wallet provider capability consumed by the
// payment core. The browser extension (or any other EVM wallet bridge) is
// modeled as an injected interface so that core logic never touches a global
// and tests can substitute a fake.
package provider

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NativeCurrency describes the chain's base asset for chain registration.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// AddChainParams is the payload for registering a chain with the wallet
// (wallet_addEthereumChain semantics).
type AddChainParams struct {
	ChainID           string         `json:"chainId"` // hex-encoded, e.g. "0x13882"
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

// TxParams describes a native-asset transfer to be submitted by the wallet.
type TxParams struct {
	To       common.Address
	Value    *big.Int // base units (wei)
	GasLimit uint64
	GasPrice *big.Int
}

// Provider is the wallet bridge consumed by the connector, the network guard
// and the payment orchestrator. Every method is a suspension point: the
// wallet may show a prompt, hit its RPC node, or both.
type Provider interface {
	// RequestAccounts triggers the wallet's connect prompt and returns the
	// authorized accounts (eth_requestAccounts).
	RequestAccounts(ctx context.Context) ([]string, error)

	// Accounts returns already-authorized accounts without prompting
	// (eth_accounts). An empty slice means not connected.
	Accounts(ctx context.Context) ([]string, error)

	// ChainID returns the wallet's active chain id, hex-encoded.
	ChainID(ctx context.Context) (string, error)

	// SwitchChain asks the wallet to switch to the given chain id.
	SwitchChain(ctx context.Context, chainID string) error

	// AddChain asks the wallet to register a chain it does not know yet.
	AddChain(ctx context.Context, params AddChainParams) error

	// GasPrice returns the wallet node's current gas price suggestion.
	GasPrice(ctx context.Context) (*big.Int, error)

	// Balance returns the native-asset balance of addr in base units.
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)

	// SendTransaction submits a native transfer after user approval and
	// returns the transaction hash once the wallet has broadcast it.
	SendTransaction(ctx context.Context, tx TxParams) (common.Hash, error)

	// TransactionReceipt returns the receipt for a mined transaction, or an
	// error while the transaction is still pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}
