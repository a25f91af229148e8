// Package x402 implements the client side of the HTTP 402 payment flow:
// challenge parsing, proof headers, and an http.Client wrapper that pays
// and retries automatically.
package x402

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Header names used by the payment-gated backend.
const (
	// ProofHeader carries the transaction hash proving a native-asset
	// payment.
	ProofHeader = "X-Pol-Payment-Tx"

	// ResponseHeader is set by the server on a successfully proved request.
	ResponseHeader = "X-Payment-Response"
)

// ServiceConfig describes the paid service inside a challenge.
type ServiceConfig struct {
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// PaymentDetails is the payment requirement embedded in a 402 response and
// served by the requirements endpoint.
type PaymentDetails struct {
	ReceivingAddress string        `json:"receivingAddress"`
	FacilitatorURL   string        `json:"facilitatorUrl,omitempty"`
	Price            string        `json:"price"`
	Network          string        `json:"network"`
	TokenType        string        `json:"tokenType,omitempty"`
	Config           ServiceConfig `json:"config"`
}

// Challenge is the body of a 402 response.
type Challenge struct {
	Error          string          `json:"error"`
	PaymentDetails *PaymentDetails `json:"paymentDetails"`
}

// PaymentResponse is the server's acknowledgment of a proved payment,
// carried in ResponseHeader.
type PaymentResponse struct {
	Status          string `json:"status"`
	TransactionHash string `json:"transactionHash"`
	Timestamp       int64  `json:"timestamp"`
	Method          string `json:"method"`
}

// Is402 reports whether resp is a payment-required signal.
func Is402(resp *http.Response) bool {
	return resp.StatusCode == http.StatusPaymentRequired
}

// ParseChallenge extracts the payment details from a 402 response body.
func ParseChallenge(resp *http.Response) (*PaymentDetails, error) {
	if resp.StatusCode != http.StatusPaymentRequired {
		return nil, fmt.Errorf("x402: not a 402 response: got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("x402: reading challenge body: %w", err)
	}

	var challenge Challenge
	if err := json.Unmarshal(body, &challenge); err != nil {
		return nil, fmt.Errorf("x402: parsing challenge: %w", err)
	}
	if challenge.PaymentDetails == nil {
		return nil, fmt.Errorf("x402: challenge missing paymentDetails")
	}
	return challenge.PaymentDetails, nil
}

// ParsePaymentResponse reads the server's payment acknowledgment header, if
// present.
func ParsePaymentResponse(resp *http.Response) (*PaymentResponse, bool) {
	header := resp.Header.Get(ResponseHeader)
	if header == "" {
		return nil, false
	}
	var pr PaymentResponse
	if err := json.Unmarshal([]byte(header), &pr); err != nil {
		return nil, false
	}
	return &pr, true
}

// AddProof attaches a transaction-hash proof to a request.
func AddProof(req *http.Request, txHash string) {
	req.Header.Set(ProofHeader, txHash)
}
