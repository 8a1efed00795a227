package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateToken means a redemption row already references this
// token. Reaching it implies the token row lock failed to serialize two
// attempts, so it is reported loudly rather than folded into a code.
var ErrDuplicateToken = errors.New("redemption already recorded for token")

type Repository interface {
	InsertTx(ctx context.Context, tx pgx.Tx, r *Redemption) error
	GetByTokenJTI(ctx context.Context, jti uuid.UUID) (*Redemption, error)
	ListByCustomerDate(ctx context.Context, customerID uuid.UUID, serviceDate time.Time) ([]Redemption, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) InsertTx(ctx context.Context, tx pgx.Tx, red *Redemption) error {
	query := `
		INSERT INTO redemptions (id, customer_id, service_date, token_jti, kiosk_id, kiosk_location, redeemed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := tx.Exec(ctx, query,
		red.ID, red.CustomerID, red.ServiceDate, red.TokenJTI,
		red.KioskID, red.KioskLocation, red.RedeemedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "redemptions_token_jti_key" {
			return ErrDuplicateToken
		}
		return fmt.Errorf("failed to insert redemption: %w", err)
	}

	return nil
}

func (r *repository) GetByTokenJTI(ctx context.Context, jti uuid.UUID) (*Redemption, error) {
	query := `
		SELECT id, customer_id, service_date, token_jti, kiosk_id, kiosk_location, redeemed_at
		FROM redemptions
		WHERE token_jti = $1
	`

	red := &Redemption{}
	err := r.pool.QueryRow(ctx, query, jti).Scan(
		&red.ID, &red.CustomerID, &red.ServiceDate, &red.TokenJTI,
		&red.KioskID, &red.KioskLocation, &red.RedeemedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get redemption: %w", err)
	}

	return red, nil
}

func (r *repository) ListByCustomerDate(ctx context.Context, customerID uuid.UUID, serviceDate time.Time) ([]Redemption, error) {
	query := `
		SELECT id, customer_id, service_date, token_jti, kiosk_id, kiosk_location, redeemed_at
		FROM redemptions
		WHERE customer_id = $1 AND service_date = $2
		ORDER BY redeemed_at
	`

	rows, err := r.pool.Query(ctx, query, customerID, serviceDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	defer rows.Close()

	var out []Redemption
	for rows.Next() {
		var red Redemption
		if err := rows.Scan(
			&red.ID, &red.CustomerID, &red.ServiceDate, &red.TokenJTI,
			&red.KioskID, &red.KioskLocation, &red.RedeemedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		out = append(out, red)
	}

	return out, rows.Err()
}
