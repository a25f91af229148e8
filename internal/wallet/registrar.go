package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPRegistrar registers connected addresses with the backend wallet
// endpoint (POST {base}/api/wallet/connect).
type HTTPRegistrar struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPRegistrar creates a registrar for the given backend base URL.
// token, if set, is sent as a bearer token.
func NewHTTPRegistrar(baseURL, token string) *HTTPRegistrar {
	return &HTTPRegistrar{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// RegisterWallet implements Registrar.
func (r *HTTPRegistrar) RegisterWallet(ctx context.Context, address string) error {
	body, err := json.Marshal(map[string]string{"walletAddress": address})
	if err != nil {
		return fmt.Errorf("wallet: marshaling registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/api/wallet/connect", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("wallet: building registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("wallet: registration request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("wallet: registration returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Registrar = (*HTTPRegistrar)(nil)
