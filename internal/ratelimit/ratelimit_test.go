package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(burst int, perMinute int) *Limiter {
	return New(Config{
		RequestsPerMinute: perMinute,
		BurstSize:         burst,
		CleanupInterval:   time.Minute,
	})
}

func TestAllow_BurstThenDeny(t *testing.T) {
	limiter := newTestLimiter(5, 60)
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("203.0.113.7"), "request %d within burst", i)
	}
	assert.False(t, limiter.Allow("203.0.113.7"))
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	limiter := newTestLimiter(2, 60)
	defer limiter.Stop()

	limiter.Allow("wallet-a")
	limiter.Allow("wallet-a")
	assert.False(t, limiter.Allow("wallet-a"))

	// A different caller still has a full bucket.
	assert.True(t, limiter.Allow("wallet-b"))
}

func TestAllow_Replenishes(t *testing.T) {
	// 600/min = one token every 100ms.
	limiter := newTestLimiter(1, 600)
	defer limiter.Stop()

	assert.True(t, limiter.Allow("k"))
	assert.False(t, limiter.Allow("k"))

	time.Sleep(120 * time.Millisecond)
	assert.True(t, limiter.Allow("k"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 60, cfg.RequestsPerMinute)
	assert.Equal(t, 10, cfg.BurstSize)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
}
