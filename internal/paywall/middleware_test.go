package paywall

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaetesh/medichain/pkg/x402"
)

var validProof = "0x" + strings.Repeat("ab12", 16)

func testDetails() *x402.PaymentDetails {
	return &x402.PaymentDetails{
		ReceivingAddress: "0x9876543210987654321098765432109876543210",
		Price:            "0.05",
		Network:          "polygon-amoy",
		TokenType:        "native",
		Config: x402.ServiceConfig{
			Description: "genetic-risk assessment",
		},
	}
}

func newGatedRouter(cfg Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/paid", Middleware(cfg, "genetic-risk"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"proof": ProofFromContext(c)})
	})
	return r
}

func catalogConfig() Config {
	catalog := NewCatalog()
	catalog.Register("genetic-risk", testDetails())
	return Config{Requirements: catalog.Lookup}
}

func TestMiddleware_ChallengesWithoutProof(t *testing.T) {
	r := newGatedRouter(catalogConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/paid", nil))

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Payment-Required"))

	var challenge x402.Challenge
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &challenge))
	assert.Equal(t, "Payment required", challenge.Error)
	require.NotNil(t, challenge.PaymentDetails)
	assert.Equal(t, "0.05", challenge.PaymentDetails.Price)
	assert.Equal(t, "polygon-amoy", challenge.PaymentDetails.Network)
}

func TestMiddleware_RejectsMalformedProof(t *testing.T) {
	r := newGatedRouter(catalogConfig())

	// too short, missing prefix, non-hex
	for _, proof := range []string{
		"not-a-hash",
		"0x1234",
		strings.Repeat("a", 66),
		"0x" + strings.Repeat("g", 64),
	} {
		req := httptest.NewRequest(http.MethodPost, "/paid", nil)
		req.Header.Set(x402.ProofHeader, proof)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "proof %q", proof)
		assert.Contains(t, w.Body.String(), "invalid_payment_proof")
	}
}

func TestMiddleware_AcceptsProof(t *testing.T) {
	var acceptedService, acceptedHash string
	cfg := catalogConfig()
	cfg.OnProofAccepted = func(service, txHash string) {
		acceptedService = service
		acceptedHash = txHash
	}
	r := newGatedRouter(cfg)

	req := httptest.NewRequest(http.MethodPost, "/paid", nil)
	req.Header.Set(x402.ProofHeader, validProof)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "genetic-risk", acceptedService)
	assert.Equal(t, validProof, acceptedHash)

	// The handler saw the proof through the context.
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, validProof, body["proof"])

	// Acknowledgment header round-trips through the client-side parser.
	resp := &http.Response{Header: w.Header()}
	ack, ok := x402.ParsePaymentResponse(resp)
	require.True(t, ok)
	assert.Equal(t, "success", ack.Status)
	assert.Equal(t, validProof, ack.TransactionHash)
	assert.NotZero(t, ack.Timestamp)
}

func TestMiddleware_UnknownService(t *testing.T) {
	r := newGatedRouter(Config{
		Requirements: func(string) (*x402.PaymentDetails, bool) { return nil, false },
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/paid", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "unknown_service")
}

func TestProofFromContext_Empty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", ProofFromContext(c))
}

func TestCatalog_LookupReturnsCopy(t *testing.T) {
	catalog := NewCatalog()
	catalog.Register("genetic-risk", testDetails())

	first, ok := catalog.Lookup("genetic-risk")
	require.True(t, ok)
	first.Price = "99.99"

	second, ok := catalog.Lookup("genetic-risk")
	require.True(t, ok)
	assert.Equal(t, "0.05", second.Price)
}

func TestCatalog_UnknownService(t *testing.T) {
	_, ok := NewCatalog().Lookup("nope")
	assert.False(t, ok)
}

func TestCatalog_RegisterReplaces(t *testing.T) {
	catalog := NewCatalog()
	catalog.Register("genetic-risk", testDetails())

	updated := testDetails()
	updated.Price = "0.10"
	catalog.Register("genetic-risk", updated)

	got, ok := catalog.Lookup("genetic-risk")
	require.True(t, ok)
	assert.Equal(t, "0.10", got.Price)
}
