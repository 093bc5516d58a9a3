package llm

import (
	"math/rand/v2"
	"time"
)

const maxRetries = 3

// backoff returns the wait before retry attempt n (0-indexed), exponential
// with jitter and capped at 30s.
func backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}
