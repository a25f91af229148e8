package paywall

import (
	"sync"

	"github.com/chaetesh/medichain/pkg/x402"
)

// Catalog maps service names to their payment requirements. Served by the
// requirements endpoint and embedded in 402 challenges.
type Catalog struct {
	mu       sync.RWMutex
	services map[string]*x402.PaymentDetails
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{services: make(map[string]*x402.PaymentDetails)}
}

// Register adds or replaces a paid service.
func (c *Catalog) Register(service string, details *x402.PaymentDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[service] = details
}

// Lookup resolves a service's payment details.
func (c *Catalog) Lookup(service string) (*x402.PaymentDetails, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	details, ok := c.services[service]
	if !ok {
		return nil, false
	}
	cp := *details
	return &cp, true
}
