package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAtCapacity is returned when an increment would push meals_redeemed
// past meals_allowed. The redemption transaction treats it as a
// should-not-happen state because it re-checks capacity under the row lock.
var ErrAtCapacity = errors.New("entitlement already at capacity")

type Repository interface {
	Get(ctx context.Context, customerID uuid.UUID, serviceDate time.Time) (*Entitlement, error)
	// Upsert creates or adjusts the day's allowance. It never touches
	// meals_redeemed; only the redemption transaction writes that column.
	Upsert(ctx context.Context, customerID uuid.UUID, serviceDate time.Time, mealsAllowed int) (*Entitlement, error)
	// GetForUpdate takes the exclusive row lock that serializes all
	// redemption attempts for this (customer, date).
	GetForUpdate(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, serviceDate time.Time) (*Entitlement, error)
	// IncrementRedeemed bumps meals_redeemed under the caller's lock.
	// The WHERE guard rejects out-of-order calls that would breach the allowance.
	IncrementRedeemed(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, serviceDate time.Time) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const entitlementColumns = `customer_id, service_date, meals_allowed, meals_redeemed, created_at, updated_at`

func (r *postgresRepository) Get(ctx context.Context, customerID uuid.UUID, serviceDate time.Time) (*Entitlement, error) {
	return scanEntitlement(r.pool.QueryRow(ctx,
		`SELECT `+entitlementColumns+`
		 FROM entitlements WHERE customer_id = $1 AND service_date = $2`,
		customerID, serviceDate))
}

func (r *postgresRepository) Upsert(ctx context.Context, customerID uuid.UUID, serviceDate time.Time, mealsAllowed int) (*Entitlement, error) {
	return scanEntitlement(r.pool.QueryRow(ctx,
		`INSERT INTO entitlements (customer_id, service_date, meals_allowed)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (customer_id, service_date)
		 DO UPDATE SET meals_allowed = EXCLUDED.meals_allowed, updated_at = NOW()
		 RETURNING `+entitlementColumns,
		customerID, serviceDate, mealsAllowed))
}

func (r *postgresRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, serviceDate time.Time) (*Entitlement, error) {
	return scanEntitlement(tx.QueryRow(ctx,
		`SELECT `+entitlementColumns+`
		 FROM entitlements WHERE customer_id = $1 AND service_date = $2
		 FOR UPDATE`,
		customerID, serviceDate))
}

func (r *postgresRepository) IncrementRedeemed(ctx context.Context, tx pgx.Tx, customerID uuid.UUID, serviceDate time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE entitlements
		 SET meals_redeemed = meals_redeemed + 1, updated_at = NOW()
		 WHERE customer_id = $1 AND service_date = $2 AND meals_redeemed < meals_allowed`,
		customerID, serviceDate)
	if err != nil {
		return fmt.Errorf("incrementing meals_redeemed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAtCapacity
	}
	return nil
}

func scanEntitlement(row pgx.Row) (*Entitlement, error) {
	e := &Entitlement{}
	err := row.Scan(&e.CustomerID, &e.ServiceDate, &e.MealsAllowed, &e.MealsRedeemed, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying entitlement: %w", err)
	}
	return e, nil
}
