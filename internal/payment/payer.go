package payment

import (
	"context"

	"github.com/chaetesh/medichain/pkg/x402"
)

// ChallengePayer adapts a payment session to the x402 Payer interface so the
// retry-with-proof HTTP client can settle challenges through the
// orchestrator. Each challenge opens a fresh attempt; the session's sent
// lock and cool-down still apply, so a duplicate challenge inside the
// window cannot double-pay.
type ChallengePayer struct {
	session *Session
	chainID string // required chain, hex-encoded
}

// NewChallengePayer creates a payer that settles challenges on the given
// chain.
func NewChallengePayer(session *Session, chainID string) *ChallengePayer {
	return &ChallengePayer{session: session, chainID: chainID}
}

// Pay implements x402.Payer.
func (p *ChallengePayer) Pay(ctx context.Context, details *x402.PaymentDetails) (string, error) {
	service := details.Config.Description
	if service == "" {
		service = details.Network
	}

	p.session.Open()
	handle, err := p.session.Pay(ctx, Request{
		Amount:      details.Price,
		Recipient:   details.ReceivingAddress,
		ChainID:     p.chainID,
		ServiceName: service,
	})
	if err != nil {
		return "", err
	}
	return handle.Hash, nil
}

var _ x402.Payer = (*ChallengePayer)(nil)
