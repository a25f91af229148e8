// Package payment implements the one-shot payment orchestrator: affordability
// estimation, native-asset transfer submission, an at-most-once broadcast
// guarantee per session, and background confirmation reconciliation.
package payment

import (
	"sync"
)

// State of a PendingTransaction.
type State string

const (
	StateNotStarted       State = "not_started"
	StateAwaitingApproval State = "awaiting_wallet_approval"
	StateBroadcast        State = "broadcast"
	StateConfirmed        State = "confirmed_background"
	StateFailed           State = "failed"
)

// Request describes one required payment.
type Request struct {
	// Amount in human units, possibly display-formatted (e.g. "$0.05 POL").
	Amount string `validate:"required"`

	// Recipient is the fee collector's hex address.
	Recipient string `validate:"required,eth_addr"`

	// ChainID is the required chain, hex-encoded.
	ChainID string `validate:"required,startswith=0x"`

	// ServiceName is an opaque label for display and logging.
	ServiceName string
}

// PendingTransaction is the in-flight or completed transfer for one payment
// attempt. It is owned exclusively by the orchestrator instance backing one
// session invocation and never shared across concurrent invocations.
//
// sentLock and processing independently uphold the at-most-once broadcast
// invariant: sentLock is the one-way primary guard (set strictly before the
// broadcast call, cleared only on a full attempt reset), processing is the
// secondary in-flight guard (cleared when the attempt finishes either way).
// Either one failing alone must not break the invariant.
type PendingTransaction struct {
	mu         sync.Mutex
	state      State
	hash       string
	sentLock   bool
	processing bool
}

func newPendingTransaction() *PendingTransaction {
	return &PendingTransaction{state: StateNotStarted}
}

// begin marks the attempt as processing. It fails with ErrAlreadySent when a
// broadcast already happened (sentLock) or another invocation is in flight
// (processing). The check-and-set is atomic: there is no suspension point
// between the two guards and the flag update.
func (p *PendingTransaction) begin() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sentLock {
		return ErrAlreadySent
	}
	if p.processing {
		return ErrAlreadySent
	}
	p.processing = true
	return nil
}

// endProcessing clears the secondary guard. sentLock is left untouched.
func (p *PendingTransaction) endProcessing() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processing = false
}

// lockForBroadcast sets sentLock. Called synchronously with the decision to
// broadcast, before the send call, so a slow wallet-approval prompt cannot
// open a double-submit window.
func (p *PendingTransaction) lockForBroadcast() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sentLock {
		return ErrAlreadySent
	}
	p.sentLock = true
	p.state = StateAwaitingApproval
	return nil
}

// releasePreBroadcast clears sentLock after a failure that happened before
// any hash was obtained, so a retry is permitted.
func (p *PendingTransaction) releasePreBroadcast() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sentLock = false
	p.state = StateFailed
}

// setBroadcast records the hash once the wallet has accepted the
// transaction. sentLock stays set for the lifetime of this attempt.
func (p *PendingTransaction) setBroadcast(hash string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hash = hash
	p.state = StateBroadcast
}

func (p *PendingTransaction) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// State returns the current state.
func (p *PendingTransaction) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Hash returns the transaction hash, or "" before broadcast.
func (p *PendingTransaction) Hash() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hash
}

// Sent reports whether a broadcast was committed for this attempt.
func (p *PendingTransaction) Sent() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sentLock
}
