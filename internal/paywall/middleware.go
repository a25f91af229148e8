// Package paywall implements the HTTP 402 Payment Required middleware: a
// request without a transaction-hash proof gets a challenge carrying the
// payment details; a request with one passes through with an acknowledgment
// header set.
package paywall

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaetesh/medichain/internal/logging"
	"github.com/chaetesh/medichain/internal/metrics"
	"github.com/chaetesh/medichain/internal/traces"
	"github.com/chaetesh/medichain/pkg/x402"
)

var txHashRe = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Config for the paywall middleware.
type Config struct {
	// Requirements resolves a service name to its payment details.
	Requirements func(service string) (*x402.PaymentDetails, bool)

	// OnProofAccepted is called after a proof passes format validation.
	OnProofAccepted func(service, txHash string)

	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Middleware gates a route behind payment for the named service. On-chain
// verification of the hash happens out of band against the chain; the
// middleware enforces presence and shape of the proof.
func Middleware(cfg Config, service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := traces.StartSpan(c.Request.Context(), "paywall.check", traces.Service(service))
		defer span.End()

		proof := c.GetHeader(x402.ProofHeader)
		if proof == "" {
			challenge(c, cfg, service)
			return
		}

		if !txHashRe.MatchString(proof) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_payment_proof",
				"message": "payment proof is not a transaction hash",
			})
			return
		}

		cfg.logger().Info("payment proof received",
			"service", service,
			"tx_hash", proof,
		)
		metrics.PaymentProofsAcceptedTotal.WithLabelValues(service).Inc()
		if cfg.OnProofAccepted != nil {
			cfg.OnProofAccepted(service, proof)
		}

		ack, _ := json.Marshal(x402.PaymentResponse{
			Status:          "success",
			TransactionHash: proof,
			Timestamp:       time.Now().UnixMilli(),
			Method:          "POL",
		})
		c.Header(x402.ResponseHeader, string(ack))
		c.Set("payment_tx_hash", proof)

		// Downstream log lines carry the proof hash.
		c.Request = c.Request.WithContext(logging.WithTxHash(c.Request.Context(), proof))

		c.Next()
	}
}

func challenge(c *gin.Context, cfg Config, service string) {
	details, ok := cfg.Requirements(service)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "unknown_service",
			"message": "no payment requirements configured for " + service,
		})
		return
	}

	cfg.logger().Info("payment required", "service", service)
	metrics.PaymentChallengesTotal.WithLabelValues(service).Inc()

	c.Header("X-Payment-Required", "true")
	c.AbortWithStatusJSON(http.StatusPaymentRequired, x402.Challenge{
		Error:          "Payment required",
		PaymentDetails: details,
	})
}

// ProofFromContext returns the accepted proof hash for the request, if any.
func ProofFromContext(c *gin.Context) string {
	if v, ok := c.Get("payment_tx_hash"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
