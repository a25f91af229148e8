package provider

import (
	"errors"
	"fmt"
)

// Standard EIP-1193 / JSON-RPC error codes surfaced by wallet providers.
const (
	// CodeUserRejected is returned when the user dismisses a wallet prompt.
	CodeUserRejected = 4001

	// CodeUnrecognizedChain is returned by wallet_switchEthereumChain when
	// the target chain is not configured in the wallet.
	CodeUnrecognizedChain = 4902

	// CodeInternalError is the generic internal JSON-RPC failure.
	CodeInternalError = -32603
)

// RPCError is a provider-level failure carrying the wallet's error code.
// Core packages translate these into their own error taxonomy; raw RPCError
// values never reach callers of the payment API.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("provider: rpc error %d: %s", e.Code, e.Message)
}

// IsCode reports whether err is an RPCError with the given code.
func IsCode(err error, code int) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}
