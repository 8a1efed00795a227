package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the authoritative fixed-window limiter. State lives in the
// shared database behind a row lock, so any number of service instances
// agree on the count.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Check performs an atomic check-and-increment for the key. The first
// request for a key creates its window; later requests share the row
// lock so concurrent checks serialize.
func (s *Store) Check(ctx context.Context, key string, max int, windowDur time.Duration) (Decision, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("beginning rate limit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	tag, err := tx.Exec(ctx,
		`INSERT INTO rate_limit_windows (key, count, window_start)
		 VALUES ($1, 1, $2)
		 ON CONFLICT (key) DO NOTHING`,
		key, now)
	if err != nil {
		return Decision{}, fmt.Errorf("creating rate limit window: %w", err)
	}

	var dec Decision
	if tag.RowsAffected() > 0 {
		// Fresh key: this request opened the window and counts as its first.
		dec = Decision{Allowed: true, Remaining: max - 1, ResetAt: now.Add(windowDur)}
	} else {
		var w window
		err := tx.QueryRow(ctx,
			`SELECT count, window_start FROM rate_limit_windows WHERE key = $1 FOR UPDATE`,
			key,
		).Scan(&w.Count, &w.WindowStart)
		if err != nil {
			return Decision{}, fmt.Errorf("locking rate limit window: %w", err)
		}

		dec = w.apply(now, max, windowDur)

		_, err = tx.Exec(ctx,
			`UPDATE rate_limit_windows SET count = $2, window_start = $3 WHERE key = $1`,
			key, w.Count, w.WindowStart)
		if err != nil {
			return Decision{}, fmt.Errorf("updating rate limit window: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Decision{}, fmt.Errorf("committing rate limit check: %w", err)
	}
	return dec, nil
}

// Cleanup purges windows whose window_start is older than the retention
// threshold. Independently schedulable from checks.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM rate_limit_windows WHERE window_start < $1`,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleaning rate limit windows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// StartCleanupLoop runs Cleanup on the given interval until ctx is done.
func StartCleanupLoop(ctx context.Context, store *Store, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := store.Cleanup(ctx, retention)
			if err != nil {
				slog.Warn("rate limit cleanup failed", "error", err)
				continue
			}
			if purged > 0 {
				slog.Debug("rate limit windows purged", "count", purged)
			}
		}
	}
}
