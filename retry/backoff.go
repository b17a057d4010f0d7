package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/use-agent/gallerydiscover/models"
)

// Delay computes the full-jitter exponential backoff for attempt (1-based)
// under policy, per §4.9's formula:
//
//	delay = min(max, base * mult^(attempt-1))
//	if jitter: delay = uniform(0, delay)
//	clamp >= 100ms
func Delay(policy models.RetryPolicy, attempt uint32) time.Duration {
	raw := float64(policy.BaseDelay) * math.Pow(policy.BackoffMultiplier, float64(attempt-1))
	d := time.Duration(math.Min(raw, float64(policy.MaxDelay)))
	if policy.Jitter && d > 0 {
		d = time.Duration(rand.Int63n(int64(d) + 1))
	}
	if d < models.MinRetryDelay {
		d = models.MinRetryDelay
	}
	return d
}
