package httpretry

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes exponential delays with full jitter. It is shared by the
// HTTP retry client and the SDK-based gateways so every external call backs
// off the same way.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Floor avoids busy-looping when the jittered delay comes out tiny.
	Floor time.Duration
}

// DefaultBackoff returns 1s base, 30s cap, 100ms floor.
func DefaultBackoff() Backoff {
	return Backoff{Base: 1 * time.Second, Max: 30 * time.Second, Floor: 100 * time.Millisecond}
}

var (
	jitterMu  sync.Mutex
	jitterRnd = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Delay returns the backoff duration for the given retry attempt (1-based):
// random(0, min(Max, Base * 2^(attempt-1))), never below Floor.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	expDelay := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if b.Max > 0 && expDelay > float64(b.Max) {
		expDelay = float64(b.Max)
	}

	jitterMu.Lock()
	f := jitterRnd.Float64()
	jitterMu.Unlock()

	jittered := time.Duration(f * expDelay)
	if jittered < b.Floor {
		jittered = b.Floor
	}
	return jittered
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
