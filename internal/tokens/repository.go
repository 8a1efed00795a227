package tokens

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

var (
	// ErrDuplicatePair means a token already exists for (customer, date).
	ErrDuplicatePair = errors.New("token already issued for customer and date")
	// ErrDuplicateShortCode means the generated display code collided.
	ErrDuplicateShortCode = errors.New("short code already in use")
	// ErrAlreadyUsed means the used_at guard rejected a second consumption.
	ErrAlreadyUsed = errors.New("token already used")
)

// Constraint names from the redemption_tokens schema.
const (
	pairConstraint      = "redemption_tokens_customer_id_service_date_key"
	shortCodeConstraint = "redemption_tokens_short_code_key"
)

type Repository interface {
	Insert(ctx context.Context, token *Token) error
	GetByPair(ctx context.Context, customerID uuid.UUID, serviceDate time.Time) (*Token, error)
	GetByShortCode(ctx context.Context, code string) (*Token, error)
	// GetByJTIForUpdate takes the exclusive lock that serializes all
	// attempts to consume this token.
	GetByJTIForUpdate(ctx context.Context, tx pgx.Tx, jti uuid.UUID) (*Token, error)
	// MarkUsed performs the one-way used_at transition under the caller's lock.
	MarkUsed(ctx context.Context, tx pgx.Tx, jti uuid.UUID, usedAt time.Time) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const tokenColumns = `jti, customer_id, service_date, short_code, issued_at, expires_at, used_at`

func (r *postgresRepository) Insert(ctx context.Context, token *Token) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO redemption_tokens (jti, customer_id, service_date, short_code, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		token.JTI, token.CustomerID, token.ServiceDate, token.ShortCode, token.IssuedAt, token.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case pairConstraint:
				return ErrDuplicatePair
			case shortCodeConstraint:
				return ErrDuplicateShortCode
			}
		}
		return fmt.Errorf("inserting token: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByPair(ctx context.Context, customerID uuid.UUID, serviceDate time.Time) (*Token, error) {
	return scanToken(r.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM redemption_tokens
		 WHERE customer_id = $1 AND service_date = $2`,
		customerID, serviceDate))
}

func (r *postgresRepository) GetByShortCode(ctx context.Context, code string) (*Token, error) {
	return scanToken(r.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM redemption_tokens WHERE short_code = $1`, code))
}

func (r *postgresRepository) GetByJTIForUpdate(ctx context.Context, tx pgx.Tx, jti uuid.UUID) (*Token, error) {
	return scanToken(tx.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM redemption_tokens WHERE jti = $1 FOR UPDATE`, jti))
}

func (r *postgresRepository) MarkUsed(ctx context.Context, tx pgx.Tx, jti uuid.UUID, usedAt time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE redemption_tokens SET used_at = $2 WHERE jti = $1 AND used_at IS NULL`,
		jti, usedAt)
	if err != nil {
		return fmt.Errorf("marking token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyUsed
	}
	return nil
}

func scanToken(row pgx.Row) (*Token, error) {
	t := &Token{}
	err := row.Scan(&t.JTI, &t.CustomerID, &t.ServiceDate, &t.ShortCode, &t.IssuedAt, &t.ExpiresAt, &t.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying token: %w", err)
	}
	return t, nil
}
