package replay

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/and161185/course-stream/internal/clock"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG keeps reservations in replay_reservations.
type PG struct {
	pool  pgxQuerier
	clock clock.Clock
}

// NewPG constructs a PostgreSQL-backed guard.
func NewPG(q pgxQuerier, c clock.Clock) *PG {
	if c == nil {
		c = clock.Real()
	}
	return &PG{pool: q, clock: c}
}

// Reserve inserts jti, or takes over an expired row, in a single statement.
// Concurrent inserts of one jti serialize on the conflicting row; only one gets a row back.
func (g *PG) Reserve(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if jti == "" {
		return false, errors.New("empty jti")
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	now := g.clock.Now()

	const q = `
INSERT INTO replay_reservations (jti, expires_at)
VALUES ($1, $2)
ON CONFLICT (jti) DO UPDATE SET expires_at = EXCLUDED.expires_at
WHERE replay_reservations.expires_at <= $3
RETURNING jti`
	var got string
	err := g.pool.QueryRow(ctx, q, jti, now.Add(ttl), now).Scan(&got)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, err
	}
}

// Has implements Guard.
func (g *PG) Has(ctx context.Context, jti string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM replay_reservations WHERE jti=$1 AND expires_at > $2)`
	var ok bool
	if err := g.pool.QueryRow(ctx, q, jti, g.clock.Now()).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Sweep deletes expired reservations and returns how many were removed.
func (g *PG) Sweep(ctx context.Context) (int64, error) {
	const q = `DELETE FROM replay_reservations WHERE expires_at <= $1`
	tag, err := g.pool.Exec(ctx, q, g.clock.Now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
