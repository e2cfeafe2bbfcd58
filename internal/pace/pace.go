// Package pace provides context-aware waits with human-like jitter for
// interaction loops that must not hammer a remote page.
package pace

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jitter picks a uniform duration in [min, max]. A degenerate range
// collapses to min.
func Jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	rngMu.Lock()
	defer rngMu.Unlock()
	return min + time.Duration(rng.Int63n(int64(max-min)+1))
}

// SleepJitter sleeps a jittered duration in [min, max], honoring ctx.
func SleepJitter(ctx context.Context, min, max time.Duration) error {
	return Sleep(ctx, Jitter(min, max))
}
