package kiosk

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Insert(ctx context.Context, tx pgx.Tx, session *Session) error
	// GetForUpdate takes the row lock that serializes validation against
	// concurrent revocation.
	GetForUpdate(ctx context.Context, tx pgx.Tx, jti uuid.UUID) (*Session, error)
	// RecordUse updates last_used_at and bumps the use counter. Called
	// only after a validation has succeeded, under the row lock.
	RecordUse(ctx context.Context, tx pgx.Tx, jti uuid.UUID) error
	// Revoke sets revocation fields once. The guard makes retried
	// administrative revocations no-ops.
	Revoke(ctx context.Context, tx pgx.Tx, jti uuid.UUID, actor, reason string) (bool, error)
	RevokeAllForKiosk(ctx context.Context, tx pgx.Tx, kioskID, actor, reason string) (int64, error)
	ListActive(ctx context.Context) ([]Session, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const sessionColumns = `jti, kiosk_id, location, issued_at, expires_at, revoked_at, revoked_by, revoke_reason, last_used_at, use_count`

func (r *postgresRepository) Insert(ctx context.Context, tx pgx.Tx, session *Session) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO kiosk_sessions (jti, kiosk_id, location, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.JTI, session.KioskID, session.Location, session.IssuedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("inserting kiosk session: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, jti uuid.UUID) (*Session, error) {
	s := &Session{}
	err := tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM kiosk_sessions WHERE jti = $1 FOR UPDATE`, jti,
	).Scan(&s.JTI, &s.KioskID, &s.Location, &s.IssuedAt, &s.ExpiresAt,
		&s.RevokedAt, &s.RevokedBy, &s.RevokeReason, &s.LastUsedAt, &s.UseCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying kiosk session: %w", err)
	}
	return s, nil
}

func (r *postgresRepository) RecordUse(ctx context.Context, tx pgx.Tx, jti uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE kiosk_sessions SET last_used_at = NOW(), use_count = use_count + 1 WHERE jti = $1`, jti)
	if err != nil {
		return fmt.Errorf("recording session use: %w", err)
	}
	return nil
}

func (r *postgresRepository) Revoke(ctx context.Context, tx pgx.Tx, jti uuid.UUID, actor, reason string) (bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE kiosk_sessions
		 SET revoked_at = NOW(), revoked_by = $2, revoke_reason = $3
		 WHERE jti = $1 AND revoked_at IS NULL`,
		jti, actor, reason)
	if err != nil {
		return false, fmt.Errorf("revoking kiosk session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresRepository) RevokeAllForKiosk(ctx context.Context, tx pgx.Tx, kioskID, actor, reason string) (int64, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE kiosk_sessions
		 SET revoked_at = NOW(), revoked_by = $2, revoke_reason = $3
		 WHERE kiosk_id = $1 AND revoked_at IS NULL`,
		kioskID, actor, reason)
	if err != nil {
		return 0, fmt.Errorf("revoking kiosk sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *postgresRepository) ListActive(ctx context.Context) ([]Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM kiosk_sessions
		 WHERE revoked_at IS NULL AND (expires_at IS NULL OR expires_at > NOW())
		 ORDER BY issued_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.JTI, &s.KioskID, &s.Location, &s.IssuedAt, &s.ExpiresAt,
			&s.RevokedAt, &s.RevokedBy, &s.RevokeReason, &s.LastUsedAt, &s.UseCount); err != nil {
			return nil, fmt.Errorf("scanning kiosk session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
