package worker

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ignite/outreach-orchestrator/internal/domain"
)

// FallbackDelayMs is used when a campaign's pacing bounds are unusable.
const FallbackDelayMs int64 = 60000

// DelayCalculator samples inter-send delays from a normal distribution
// clamped to the campaign's bounds. Safe for concurrent use.
type DelayCalculator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDelayCalculator creates a calculator. A zero seed uses the clock.
func NewDelayCalculator(seed int64) *DelayCalculator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DelayCalculator{rng: rand.New(rand.NewSource(seed))}
}

// Sample returns a delay in milliseconds within [minMs, maxMs]. mean
// defaults to the midpoint and stdDev to a sixth of the range, so the
// bounds sit about three deviations out. Invalid bounds yield
// FallbackDelayMs.
func (d *DelayCalculator) Sample(minMs, maxMs int64, mean, stdDev *float64) int64 {
	if minMs <= 0 || maxMs <= 0 || minMs > maxMs {
		return FallbackDelayMs
	}
	if minMs == maxMs {
		return minMs
	}

	mu := float64(minMs+maxMs) / 2
	if mean != nil && !math.IsNaN(*mean) && !math.IsInf(*mean, 0) {
		mu = *mean
	}
	sigma := float64(maxMs-minMs) / 6
	if stdDev != nil && *stdDev > 0 && !math.IsInf(*stdDev, 0) {
		sigma = *stdDev
	}

	d.mu.Lock()
	z := d.rng.NormFloat64()
	d.mu.Unlock()

	v := int64(math.Round(mu + z*sigma))
	if v < minMs {
		return minMs
	}
	if v > maxMs {
		return maxMs
	}
	return v
}

// Next samples the delay for a campaign.
func (d *DelayCalculator) Next(c *domain.Campaign) time.Duration {
	return time.Duration(d.Sample(c.MinDelayMs, c.MaxDelayMs, c.GaussianMean, c.GaussianStdDev)) * time.Millisecond
}
