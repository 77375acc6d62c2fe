package worker

import (
	"math/rand"
	"time"
)

// BackoffConfig shapes the delay between reconnect attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Jitter scales each delay by a random factor in [0.5, 1.5).
	Jitter bool
}

// NextBackoffDelay returns the delay before attempt (1-based):
// InitialDelay * Multiplier^(attempt-1), capped at MaxDelay. A nil rng with
// Jitter set uses the lowest factor.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	limit := float64(cfg.MaxDelay)

	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= mult
		if limit > 0 && delay >= limit {
			break
		}
	}
	if limit > 0 && delay > limit {
		delay = limit
	}

	if cfg.Jitter {
		factor := 0.5
		if rng != nil {
			factor += rng.Float64()
		}
		delay *= factor
	}
	return time.Duration(delay)
}

// reconnectBackoff counts consecutive unproductive attempts within one Run.
// A failed dial and a connection that closed before answering a batch both
// count; a connection that served at least one batch starts the count over.
type reconnectBackoff struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
}

func newReconnectBackoff(cfg BackoffConfig, rng *rand.Rand) *reconnectBackoff {
	return &reconnectBackoff{cfg: cfg, rng: rng}
}

// failed records an unproductive attempt and returns its number and delay.
func (b *reconnectBackoff) failed() (int, time.Duration) {
	b.attempt++
	return b.attempt, NextBackoffDelay(b.cfg, b.attempt, b.rng)
}

// sessionEnded applies the policy for a dropped connection. It reports whether
// the caller should wait before redialing.
func (b *reconnectBackoff) sessionEnded(served int) bool {
	if served > 0 {
		b.attempt = 0
		return false
	}
	return true
}
