package daemon

import (
	"math/rand/v2"
	"time"
)

const percent = 100

// NextInterval spreads interval by up to ±jitterPercent. random must return
// values in [0, 1); nil uses math/rand.
func NextInterval(interval time.Duration, jitterPercent int, random func() float64) time.Duration {
	if jitterPercent <= 0 || interval <= 0 {
		return interval
	}

	if random == nil {
		random = rand.Float64 //nolint:gosec // Jitter does not need a secure source.
	}

	spread := float64(interval) * float64(jitterPercent) / percent
	offset := (random()*2 - 1) * spread

	return interval + time.Duration(offset)
}
