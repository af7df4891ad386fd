// Package readiness waits for the GraphDB server and retries flaky calls.
package readiness

import (
	"math"
	"math/rand"
	"time"

	"graphseed/internal/config"
)

// Policy describes a retry schedule.
type Policy struct {
	Attempts     int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// ReadinessPolicy converts the readiness section of the configuration.
func ReadinessPolicy(cfg config.ReadinessConfig) Policy {
	return Policy{
		Attempts:     cfg.Attempts,
		InitialDelay: cfg.InitialDelay,
		Multiplier:   cfg.Multiplier,
		MaxDelay:     cfg.MaxDelay,
		Jitter:       cfg.Jitter,
	}
}

// UploadPolicy converts the upload section of the configuration.
func UploadPolicy(cfg config.UploadConfig) Policy {
	return Policy{
		Attempts:     cfg.Attempts,
		InitialDelay: cfg.InitialDelay,
		Multiplier:   cfg.Multiplier,
		MaxDelay:     cfg.MaxDelay,
		Jitter:       cfg.Jitter,
	}
}

// Delay returns the wait before attempt N (1-based). The first attempt runs
// immediately; attempt N waits InitialDelay*Multiplier^(N-2), capped at
// MaxDelay, then scaled by [0.5, 1.5) when Jitter is set.
func (p Policy) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || p.InitialDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}

	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-2))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

func (p Policy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}
