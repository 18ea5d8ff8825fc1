// Package replay reserves single-use token identifiers for a bounded time.
package replay

import (
	"context"
	"time"
)

// Guard is a keyed TTL store with an atomic reserve-if-absent primitive.
type Guard interface {
	// Reserve marks jti as used for ttl. It returns true only for the first caller
	// while the reservation is live; concurrent and later callers get false.
	Reserve(ctx context.Context, jti string, ttl time.Duration) (bool, error)
	// Has reports whether jti is currently reserved. Diagnostics only; never gate access on it.
	Has(ctx context.Context, jti string) (bool, error)
}

// Sweeper drops expired reservations.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}
