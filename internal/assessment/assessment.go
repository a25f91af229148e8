// Package assessment is the client for the payment-gated genetic risk
// assessment workflow. It supports both integration shapes: the
// modal-callback flow (price known up front, proof attached directly) and
// the retry-with-proof flow (402 discovered and paid automatically).
package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chaetesh/medichain/internal/retry"
	"github.com/chaetesh/medichain/pkg/x402"
)

// ServiceName identifies the genetic-risk service in the requirements
// catalog.
const ServiceName = "genetic-risk"

// Assessment is one generated risk assessment.
type Assessment struct {
	ID          string    `json:"id"`
	Condition   string    `json:"condition"`
	RiskLevel   string    `json:"riskLevel"`
	Score       float64   `json:"score"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Client talks to the backend's genetic-risk and payment-requirements
// endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	payClient  *x402.Client // nil disables auto-pay
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithToken sets the bearer token for authenticated endpoints.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithPayClient enables the retry-with-proof flow through the given
// 402-aware client.
func WithPayClient(pc *x402.Client) ClientOption {
	return func(c *Client) { c.payClient = pc }
}

// NewClient creates an assessment client for the backend at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Requirements fetches the pre-payment price quote for the service. The
// read is idempotent, so transient failures are retried with backoff.
func (c *Client) Requirements(ctx context.Context) (*x402.PaymentDetails, error) {
	var details x402.PaymentDetails
	err := retry.Do(ctx, 3, 300*time.Millisecond, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, "/api/payments/requirements/"+ServiceName, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("assessment: requirements returned status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&details)
	})
	if err != nil {
		return nil, err
	}
	return &details, nil
}

// List returns the user's existing assessments.
func (c *Client) List(ctx context.Context) ([]Assessment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/genetic-risk/assessments", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assessment: listing assessments: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assessment: list returned status %d", resp.StatusCode)
	}
	return decodeAssessments(resp.Body)
}

// Generate issues the protected generate request exactly once, attaching
// txHash as payment proof. Modal-callback shape: payment is already known
// to be required and already made, so the no-proof attempt is skipped.
func (c *Client) Generate(ctx context.Context, txHash string) ([]Assessment, error) {
	if txHash == "" {
		return nil, fmt.Errorf("assessment: generate requires a payment proof hash")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/genetic-risk/generate", nil)
	if err != nil {
		return nil, err
	}
	x402.AddProof(req, txHash)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assessment: generate failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assessment: generate returned status %d", resp.StatusCode)
	}
	return decodeAssessments(resp.Body)
}

// GenerateAutoPay runs the retry-with-proof flow: the generate request is
// attempted without proof, and a 402 challenge is paid and retried by the
// 402-aware client.
func (c *Client) GenerateAutoPay(ctx context.Context) ([]Assessment, error) {
	if c.payClient == nil {
		return nil, fmt.Errorf("assessment: auto-pay not configured")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/genetic-risk/generate", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.payClient.DoContext(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assessment: generate returned status %d", resp.StatusCode)
	}
	return decodeAssessments(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("assessment: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func decodeAssessments(r io.Reader) ([]Assessment, error) {
	var assessments []Assessment
	if err := json.NewDecoder(r).Decode(&assessments); err != nil {
		return nil, fmt.Errorf("assessment: decoding response: %w", err)
	}
	return assessments, nil
}
