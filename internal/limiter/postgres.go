package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/and161185/course-stream/internal/clock"
)

// PG keeps per-address failure counters in redeem_limiter. Counters reset once
// window has passed since the last failure; maxFails failures block for blockFor.
type PG struct {
	pool     pgxQuerier
	clock    clock.Clock
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Options tune the window and lockout.
type Options struct {
	Window   time.Duration
	MaxFails int
	BlockFor time.Duration
	Clock    clock.Clock
}

// NewPG constructs a PostgreSQL-backed limiter. *pgxpool.Pool satisfies q.
func NewPG(q pgxQuerier, o Options) *PG {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.MaxFails <= 0 {
		o.MaxFails = 10
	}
	return &PG{pool: q, clock: o.Clock, window: o.Window, maxFails: o.MaxFails, blockFor: o.BlockFor}
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

// Allow reports whether an attempt is currently allowed and a retry-after duration.
func (l *PG) Allow(ctx context.Context, scope string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM redeem_limiter WHERE scope=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, scope, ipHash).Scan(&blockedUntil)
	switch {
	case err == nil:
		now := l.clock.Now()
		if blockedUntil.After(now) {
			return false, blockedUntil.Sub(now), nil
		}
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for (scope, ip).
func (l *PG) Success(ctx context.Context, scope string, ipHash []byte) error {
	const q = `
INSERT INTO redeem_limiter (scope, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,0,'epoch',$3)
ON CONFLICT (scope, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=$3`
	_, err := l.pool.Exec(ctx, q, scope, ipHash, l.clock.Now())
	return err
}

// Failure records a failed attempt. Counting and lockout happen in one statement,
// so concurrent failures from the same address cannot undercount.
func (l *PG) Failure(ctx context.Context, scope string, ipHash []byte) (bool, time.Duration, error) {
	now := l.clock.Now()

	const q = `
INSERT INTO redeem_limiter AS l (scope, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, CASE WHEN $5 <= 1 THEN $6 ELSE 'epoch'::timestamptz END, $4)
ON CONFLICT (scope, ip_hash) DO UPDATE
SET fail_count = CASE WHEN EXCLUDED.updated_at - l.updated_at > $3::interval THEN 1 ELSE l.fail_count + 1 END,
    blocked_until = CASE
        WHEN (CASE WHEN EXCLUDED.updated_at - l.updated_at > $3::interval THEN 1 ELSE l.fail_count + 1 END) >= $5
        THEN $6 ELSE l.blocked_until END,
    updated_at = EXCLUDED.updated_at
RETURNING fail_count, blocked_until`
	var (
		fails int
		until time.Time
	)
	err := l.pool.QueryRow(ctx, q, scope, ipHash, l.window, now, l.maxFails, now.Add(l.blockFor)).Scan(&fails, &until)
	if err != nil {
		return false, 0, err
	}
	if until.After(now) {
		return true, until.Sub(now), nil
	}
	return false, 0, nil
}
