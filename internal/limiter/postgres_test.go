package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/course-stream/internal/clock"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const (
	allowSQL   = `SELECT blocked_until FROM redeem_limiter WHERE scope=\$1 AND ip_hash=\$2`
	successSQL = `INSERT INTO redeem_limiter \(scope, ip_hash, fail_count, blocked_until, updated_at\)`
	failureSQL = `INSERT INTO redeem_limiter AS l .* RETURNING fail_count, blocked_until`
)

var ipHash = HashIP("203.0.113.9")

func newLimiter(t *testing.T, maxFails int, blockFor time.Duration) (*PG, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return NewPG(mock, Options{Window: 5 * time.Minute, MaxFails: maxFails, BlockFor: blockFor, Clock: clock.NewFake(now)}), mock
}

func TestAllow(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		rows    *pgxmock.Rows
		err     error
		wantOK  bool
		wantDur time.Duration
		wantErr bool
	}{
		{name: "no row", err: pgx.ErrNoRows, wantOK: true},
		{name: "blocked", rows: pgxmock.NewRows([]string{"blocked_until"}).AddRow(now.Add(10 * time.Minute)), wantDur: 10 * time.Minute},
		{name: "block expired", rows: pgxmock.NewRows([]string{"blocked_until"}).AddRow(now.Add(-time.Minute)), wantOK: true},
		{name: "epoch", rows: pgxmock.NewRows([]string{"blocked_until"}).AddRow(time.Unix(0, 0)), wantOK: true},
		{name: "db error", err: errors.New("db boom"), wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			l, mock := newLimiter(t, 5, 15*time.Minute)
			exp := mock.ExpectQuery(allowSQL).WithArgs(ScopeDeepLinkLogin, ipHash)
			if tc.err != nil {
				exp.WillReturnError(tc.err)
			} else {
				exp.WillReturnRows(tc.rows)
			}

			ok, dur, err := l.Allow(context.Background(), ScopeDeepLinkLogin, ipHash)
			if tc.wantErr {
				require.Error(t, err)
				require.False(t, ok)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantOK, ok)
			require.Equal(t, tc.wantDur, dur)
		})
	}
}

func TestSuccess(t *testing.T) {
	t.Parallel()

	l, mock := newLimiter(t, 5, 15*time.Minute)
	mock.ExpectExec(successSQL).WithArgs(ScopeDeepLinkLogin, ipHash, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, l.Success(context.Background(), ScopeDeepLinkLogin, ipHash))

	mock.ExpectExec(successSQL).WithArgs(ScopeDeepLinkLogin, ipHash, now).
		WillReturnError(errors.New("exec fail"))
	require.Error(t, l.Success(context.Background(), ScopeDeepLinkLogin, ipHash))
}

func TestFailure(t *testing.T) {
	t.Parallel()

	const blockFor = 10 * time.Minute
	cols := []string{"fail_count", "blocked_until"}

	t.Run("below threshold", func(t *testing.T) {
		t.Parallel()
		l, mock := newLimiter(t, 5, blockFor)
		mock.ExpectQuery(failureSQL).
			WithArgs(ScopeDeepLinkLogin, ipHash, 5*time.Minute, now, 5, now.Add(blockFor)).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(2, time.Unix(0, 0)))

		blocked, dur, err := l.Failure(context.Background(), ScopeDeepLinkLogin, ipHash)
		require.NoError(t, err)
		require.False(t, blocked)
		require.Zero(t, dur)
	})

	t.Run("threshold blocks", func(t *testing.T) {
		t.Parallel()
		l, mock := newLimiter(t, 5, blockFor)
		mock.ExpectQuery(failureSQL).
			WithArgs(ScopeDeepLinkLogin, ipHash, 5*time.Minute, now, 5, now.Add(blockFor)).
			WillReturnRows(pgxmock.NewRows(cols).AddRow(5, now.Add(blockFor)))

		blocked, dur, err := l.Failure(context.Background(), ScopeDeepLinkLogin, ipHash)
		require.NoError(t, err)
		require.True(t, blocked)
		require.Equal(t, blockFor, dur)
	})

	t.Run("db error", func(t *testing.T) {
		t.Parallel()
		l, mock := newLimiter(t, 5, blockFor)
		mock.ExpectQuery(failureSQL).WillReturnError(errors.New("query error"))

		_, _, err := l.Failure(context.Background(), ScopeDeepLinkLogin, ipHash)
		require.Error(t, err)
	})
}

func TestNewPG_DefaultMaxFails(t *testing.T) {
	t.Parallel()

	l := NewPG(nil, Options{})
	require.Equal(t, 10, l.maxFails)
}

func TestHashIP(t *testing.T) {
	t.Parallel()

	a, b, c := HashIP("1.2.3.4"), HashIP("1.2.3.4"), HashIP("5.6.7.8")
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 32)
}
