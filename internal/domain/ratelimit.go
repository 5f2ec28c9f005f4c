package domain

import (
	"context"
	"time"
)

// RateLimiter bounds how often a keyed action may run. Implementations must
// be safe for concurrent use.
type RateLimiter interface {
	// Allow reports whether the action identified by key may proceed, given
	// a budget of limit calls per window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
