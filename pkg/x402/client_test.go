package x402

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeTxHash = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

type fakePayer struct {
	mu    sync.Mutex
	hash  string
	err   error
	calls int
	seen  []*PaymentDetails
}

func (p *fakePayer) Pay(_ context.Context, details *PaymentDetails) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.seen = append(p.seen, details)
	if p.err != nil {
		return "", p.err
	}
	return p.hash, nil
}

func testChallenge() Challenge {
	return Challenge{
		Error: "Payment required",
		PaymentDetails: &PaymentDetails{
			ReceivingAddress: "0x9876543210987654321098765432109876543210",
			Price:            "0.05",
			Network:          "polygon-amoy",
			TokenType:        "native",
			Config: ServiceConfig{
				Description: "genetic-risk",
			},
		},
	}
}

// newPaywalledServer returns a server that demands payment until the proof
// header is present, and a counter of requests it saw.
func newPaywalledServer(t *testing.T) (*httptest.Server, *[]*http.Request) {
	t.Helper()

	var mu sync.Mutex
	var requests []*http.Request

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		clone := r.Clone(context.Background())
		clone.Body = io.NopCloser(strings.NewReader(string(body)))
		mu.Lock()
		requests = append(requests, clone)
		mu.Unlock()

		if r.Header.Get(ProofHeader) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			_ = json.NewEncoder(w).Encode(testChallenge())
			return
		}

		ack, _ := json.Marshal(PaymentResponse{
			Status:          "success",
			TransactionHash: r.Header.Get(ProofHeader),
			Method:          "polygon-native",
		})
		w.Header().Set(ResponseHeader, string(ack))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestClient_PaysAndRetries(t *testing.T) {
	srv, requests := newPaywalledServer(t)
	payer := &fakePayer{hash: fakeTxHash}
	client := NewClient(payer)

	resp, err := client.Get(srv.URL + "/paid")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, payer.calls)

	// Exactly one bare request and exactly one proved retry.
	require.Len(t, *requests, 2)
	assert.Empty(t, (*requests)[0].Header.Get(ProofHeader))
	assert.Equal(t, fakeTxHash, (*requests)[1].Header.Get(ProofHeader))

	// The payer saw the challenge's own details.
	require.Len(t, payer.seen, 1)
	assert.Equal(t, "0.05", payer.seen[0].Price)
	assert.Equal(t, "genetic-risk", payer.seen[0].Config.Description)

	ack, ok := ParsePaymentResponse(resp)
	require.True(t, ok)
	assert.Equal(t, "success", ack.Status)
	assert.Equal(t, fakeTxHash, ack.TransactionHash)
}

func TestClient_PreservesPostBodyAcrossRetry(t *testing.T) {
	srv, requests := newPaywalledServer(t)
	client := NewClient(&fakePayer{hash: fakeTxHash})

	resp, err := client.Post(srv.URL+"/paid", "application/json", []byte(`{"patient":"p-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Len(t, *requests, 2)
	for _, r := range *requests {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"patient":"p-1"}`, string(body))
	}
}

func TestClient_NoChallengePassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("free"))
	}))
	defer srv.Close()

	payer := &fakePayer{hash: fakeTxHash}
	client := NewClient(payer)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, payer.calls)
}

func TestClient_AutoPayDisabled(t *testing.T) {
	srv, requests := newPaywalledServer(t)
	payer := &fakePayer{hash: fakeTxHash}
	client := NewClient(payer)
	client.AutoPay = false

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The raw 402 comes back for the caller to inspect.
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, 0, payer.calls)
	assert.Len(t, *requests, 1)

	details, err := ParseChallenge(resp)
	require.NoError(t, err)
	assert.Equal(t, "0.05", details.Price)
}

func TestClient_MaxPaymentRefusesExpensiveChallenge(t *testing.T) {
	srv, _ := newPaywalledServer(t)
	payer := &fakePayer{hash: fakeTxHash}
	client := NewClient(payer)
	client.MaxPayment = "0.01"

	_, err := client.Get(srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds max payment")
	assert.Equal(t, 0, payer.calls)
}

func TestClient_MaxPaymentAllowsCheapChallenge(t *testing.T) {
	srv, _ := newPaywalledServer(t)
	client := NewClient(&fakePayer{hash: fakeTxHash})
	client.MaxPayment = "0.05"

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_PayerErrorPropagates(t *testing.T) {
	srv, requests := newPaywalledServer(t)
	payer := &fakePayer{err: errors.New("wallet rejected")}
	client := NewClient(payer)

	_, err := client.Get(srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment failed")
	assert.Contains(t, err.Error(), "wallet rejected")

	// No proved retry was attempted without a hash.
	assert.Len(t, *requests, 1)
}

func TestClient_OnPaymentHook(t *testing.T) {
	srv, _ := newPaywalledServer(t)
	client := NewClient(&fakePayer{hash: fakeTxHash})

	var hookHash string
	var hookPrice string
	client.OnPayment = func(details *PaymentDetails, txHash string) {
		hookHash = txHash
		hookPrice = details.Price
	}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fakeTxHash, hookHash)
	assert.Equal(t, "0.05", hookPrice)
}

func TestIs402(t *testing.T) {
	assert.True(t, Is402(&http.Response{StatusCode: http.StatusPaymentRequired}))
	assert.False(t, Is402(&http.Response{StatusCode: http.StatusOK}))
	assert.False(t, Is402(&http.Response{StatusCode: http.StatusForbidden}))
}

func TestParseChallenge_Errors(t *testing.T) {
	t.Run("wrong status", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("{}")),
		}
		_, err := ParseChallenge(resp)
		assert.Error(t, err)
	})

	t.Run("missing payment details", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: http.StatusPaymentRequired,
			Body:       io.NopCloser(strings.NewReader(`{"error":"Payment required"}`)),
		}
		_, err := ParseChallenge(resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing paymentDetails")
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := &http.Response{
			StatusCode: http.StatusPaymentRequired,
			Body:       io.NopCloser(strings.NewReader("not json")),
		}
		_, err := ParseChallenge(resp)
		assert.Error(t, err)
	})
}

func TestParsePaymentResponse_AbsentHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	_, ok := ParsePaymentResponse(resp)
	assert.False(t, ok)
}

func TestAddProof(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://localhost/paid", nil)
	require.NoError(t, err)

	AddProof(req, fakeTxHash)
	assert.Equal(t, fakeTxHash, req.Header.Get(ProofHeader))
}
