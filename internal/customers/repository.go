package customers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Customer, error)
	// GetActiveSubscriptionTx takes a shared lock on the newest
	// active/trialing subscription row so a concurrent status change
	// cannot race the redemption decision.
	GetActiveSubscriptionTx(ctx context.Context, tx pgx.Tx, customerID uuid.UUID) (*Subscription, error)
	// ListEntitledIDs returns customers holding a positive allowance for the day.
	ListEntitledIDs(ctx context.Context, serviceDate time.Time) ([]uuid.UUID, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const customerColumns = `id, email, display_name, dietary_flags, created_at, updated_at`

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (r *postgresRepository) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Customer, error) {
	return scanCustomer(tx.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (r *postgresRepository) GetActiveSubscriptionTx(ctx context.Context, tx pgx.Tx, customerID uuid.UUID) (*Subscription, error) {
	sub := &Subscription{}
	err := tx.QueryRow(ctx,
		`SELECT id, customer_id, status, current_period_end, created_at, updated_at
		 FROM subscriptions
		 WHERE customer_id = $1 AND status IN ($2, $3)
		 ORDER BY created_at DESC
		 LIMIT 1
		 FOR SHARE`,
		customerID, StatusActive, StatusTrialing,
	).Scan(&sub.ID, &sub.CustomerID, &sub.Status, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying active subscription: %w", err)
	}
	return sub, nil
}

func (r *postgresRepository) ListEntitledIDs(ctx context.Context, serviceDate time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id
		 FROM customers c
		 JOIN entitlements e ON e.customer_id = c.id
		 WHERE e.service_date = $1 AND e.meals_allowed > 0`, serviceDate)
	if err != nil {
		return nil, fmt.Errorf("querying entitled customers: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning customer id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCustomer(row pgx.Row) (*Customer, error) {
	c := &Customer{}
	err := row.Scan(&c.ID, &c.Email, &c.DisplayName, &c.DietaryFlags, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying customer: %w", err)
	}
	return c, nil
}
