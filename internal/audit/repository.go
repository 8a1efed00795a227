package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles audit_log PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new audit Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertQuery = `INSERT INTO audit_log (id, actor, event_type, severity, kiosk_id, customer_id, details)
	 VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Insert persists a single audit entry outside any transaction.
func (r *Repository) Insert(ctx context.Context, entry *Entry) error {
	prepareEntry(entry)
	_, err := r.pool.Exec(ctx, insertQuery,
		entry.ID, entry.Actor, entry.EventType, entry.Severity, entry.KioskID, entry.CustomerID, entry.Details)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// InsertTx persists an audit entry inside the caller's transaction so it
// commits or rolls back together with the state change it records.
func (r *Repository) InsertTx(ctx context.Context, tx pgx.Tx, entry *Entry) error {
	prepareEntry(entry)
	_, err := tx.Exec(ctx, insertQuery,
		entry.ID, entry.Actor, entry.EventType, entry.Severity, entry.KioskID, entry.CustomerID, entry.Details)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

func prepareEntry(entry *Entry) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Severity == "" {
		entry.Severity = "info"
	}
	if len(entry.Details) == 0 {
		entry.Details = json.RawMessage(`{}`)
	}
}

// List returns paginated audit entries with optional filters.
func (r *Repository) List(ctx context.Context, params ListParams) ([]Entry, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	var conditions []string
	var args []any
	argIdx := 1

	if params.EventType != "" {
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", argIdx))
		args = append(args, params.EventType)
		argIdx++
	}

	if params.Actor != "" {
		conditions = append(conditions, fmt.Sprintf("actor = $%d", argIdx))
		args = append(args, params.Actor)
		argIdx++
	}

	if params.KioskID != "" {
		conditions = append(conditions, fmt.Sprintf("kiosk_id = $%d", argIdx))
		args = append(args, params.KioskID)
		argIdx++
	}

	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}

	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "TRUE"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	// Count query
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_log WHERE %s", where)
	var totalCount int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	// Data query
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(
		`SELECT id, actor, event_type, severity, kiosk_id, customer_id, details, created_at
		 FROM audit_log WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Actor, &e.EventType, &e.Severity,
			&e.KioskID, &e.CustomerID, &e.Details, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, totalCount, nil
}
