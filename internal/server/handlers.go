package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chaetesh/medichain/internal/assessment"
	"github.com/chaetesh/medichain/internal/events"
	"github.com/chaetesh/medichain/internal/logging"
	"github.com/chaetesh/medichain/internal/paywall"
	"github.com/chaetesh/medichain/internal/txlog"
	"github.com/chaetesh/medichain/internal/validation"
)

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Payments
// -----------------------------------------------------------------------------

// requirementsHandler serves the pre-payment price quote for a paid service.
func (s *Server) requirementsHandler(c *gin.Context) {
	service := validation.SanitizeString(c.Param("service"), 128)

	details, ok := s.catalog.Lookup(service)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown_service",
			"message": "no paid service named " + service,
		})
		return
	}

	c.JSON(http.StatusOK, details)
}

// walletConnectHandler registers a connected wallet address.
func (s *Server) walletConnectHandler(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "walletAddress is required",
		})
		return
	}

	addr := validation.SanitizeAddress(req.WalletAddress)
	if !validation.IsValidEthAddress(addr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_address",
			"message": "walletAddress must be a valid Ethereum address (0x + 40 hex chars)",
		})
		return
	}

	s.walletsMu.Lock()
	_, known := s.wallets[addr]
	s.wallets[addr] = time.Now().UTC()
	s.walletsMu.Unlock()

	logging.L(c.Request.Context()).Info("wallet connected", "address", addr, "known", known)

	s.hub.Broadcast(&events.Event{
		Type:      events.EventWalletConnected,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"from": addr},
	})

	c.JSON(http.StatusOK, gin.H{
		"walletAddress": addr,
		"registered":    true,
	})
}

// walletTransactionsHandler lists recorded payments, newest first. Passing
// ?hash=0x... looks up a single payment instead.
func (s *Server) walletTransactionsHandler(c *gin.Context) {
	if hash := c.Query("hash"); hash != "" {
		if !validation.IsValidTxHash(hash) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_tx_hash",
				"message": "hash must be 0x followed by 64 hex characters",
			})
			return
		}

		entry, err := s.txlog.ByHash(c.Request.Context(), hash)
		if errors.Is(err, txlog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "no payment recorded for " + hash,
			})
			return
		}
		if err != nil {
			logging.L(c.Request.Context()).Error("transaction lookup failed", "error", err, "tx_hash", hash)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to look up transaction",
			})
			return
		}

		c.JSON(http.StatusOK, entry)
		return
	}

	entries, err := s.txlog.History(c.Request.Context(), 50)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to read transaction history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to read transaction history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": entries,
		"count":        len(entries),
	})
}

// -----------------------------------------------------------------------------
// Genetic risk assessments
// -----------------------------------------------------------------------------

// Conditions covered by the demo risk model.
var conditions = []struct {
	name  string
	score float64
}{
	{"Type 2 Diabetes", 0.62},
	{"Coronary Artery Disease", 0.41},
	{"Hypertension", 0.78},
}

func riskLevel(score float64) string {
	switch {
	case score >= 0.7:
		return "high"
	case score >= 0.4:
		return "moderate"
	default:
		return "low"
	}
}

func (s *Server) listAssessmentsHandler(c *gin.Context) {
	s.assessMu.RLock()
	out := make([]assessment.Assessment, len(s.assessments))
	copy(out, s.assessments)
	s.assessMu.RUnlock()

	c.JSON(http.StatusOK, out)
}

// generateAssessmentsHandler runs behind the paywall: it only executes once
// a payment proof has been accepted for the request.
func (s *Server) generateAssessmentsHandler(c *gin.Context) {
	txHash := paywall.ProofFromContext(c)

	now := time.Now().UTC()
	generated := make([]assessment.Assessment, 0, len(conditions))
	for _, cond := range conditions {
		generated = append(generated, assessment.Assessment{
			ID:          uuid.NewString(),
			Condition:   cond.name,
			RiskLevel:   riskLevel(cond.score),
			Score:       cond.score,
			GeneratedAt: now,
		})
	}

	s.assessMu.Lock()
	s.assessments = append(s.assessments, generated...)
	s.assessMu.Unlock()

	logging.L(c.Request.Context()).Info("assessments generated",
		"count", len(generated),
		"tx_hash", txHash,
	)

	c.JSON(http.StatusOK, generated)
}
