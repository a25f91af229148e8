package x402

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Payer executes one payment for a 402 challenge and returns the
// transaction hash usable as proof. Implementations are expected to enforce
// their own at-most-once semantics per attempt.
type Payer interface {
	Pay(ctx context.Context, details *PaymentDetails) (txHash string, err error)
}

// Client wraps http.Client with automatic 402 handling: a request that
// comes back payment-required is paid through the Payer and re-issued once
// with the proof attached. The proved request is never sent before a hash
// exists, and never sent twice with the same hash.
type Client struct {
	httpClient *http.Client
	payer      Payer

	// AutoPay pays 402 challenges automatically (default true). When
	// false, the 402 response is returned as-is.
	AutoPay bool

	// MaxPayment caps the price this client will pay, in human units.
	// Empty means unlimited.
	MaxPayment string

	// OnPayment is called after each successful payment, before the
	// proved retry.
	OnPayment func(details *PaymentDetails, txHash string)
}

// NewClient creates a 402-aware HTTP client around payer.
func NewClient(payer Payer) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		payer:      payer,
		AutoPay:    true,
	}
}

// Do performs req, transparently paying a 402 challenge and retrying with
// proof.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoContext(req.Context(), req)
}

// DoContext is Do with an explicit context for the payment.
func (c *Client) DoContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	// The body may be needed twice: once without proof, once with.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("x402: reading request body: %w", err)
		}
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("x402: request failed: %w", err)
	}

	if !Is402(resp) || !c.AutoPay {
		return resp, nil
	}

	details, err := ParseChallenge(resp)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}

	if c.MaxPayment != "" {
		if err := c.checkLimit(details.Price); err != nil {
			return nil, err
		}
	}

	txHash, err := c.payer.Pay(ctx, details)
	if err != nil {
		return nil, fmt.Errorf("x402: payment failed: %w", err)
	}

	if c.OnPayment != nil {
		c.OnPayment(details, txHash)
	}

	// Exactly one proved retry; idempotency on the hash is the backend's
	// responsibility.
	if bodyBytes != nil {
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}
	AddProof(req, txHash)

	proved, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("x402: proved request failed (tx %s): %w", txHash, err)
	}
	return proved, nil
}

// Get performs a GET with automatic 402 handling.
func (c *Client) Get(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post performs a POST with automatic 402 handling.
func (c *Client) Post(url, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.Do(req)
}

func (c *Client) checkLimit(price string) error {
	maxAmount, err := decimal.NewFromString(c.MaxPayment)
	if err != nil {
		return fmt.Errorf("x402: invalid max payment %q: %w", c.MaxPayment, err)
	}
	reqAmount, err := decimal.NewFromString(price)
	if err != nil {
		return fmt.Errorf("x402: invalid challenge price %q: %w", price, err)
	}
	if reqAmount.GreaterThan(maxAmount) {
		return fmt.Errorf("x402: challenge price %s exceeds max payment %s", price, c.MaxPayment)
	}
	return nil
}
