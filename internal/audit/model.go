package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types written by the engine.
const (
	EventRedemption       = "redemption"
	EventSessionIssued    = "session_issued"
	EventSessionRevoked   = "session_revoked"
	EventSessionRejected  = "session_rejected"
	EventRateLimitTrip    = "rate_limit_trip"
	EventRedemptionDenied = "redemption_denied"
	EventEntitlementSet   = "entitlement_set"
	EventTokensIssued     = "tokens_issued"
)

// Entry matches the audit_log table schema. The table is append-only;
// rows are never updated or deleted.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	Actor      string          `json:"actor"`
	EventType  string          `json:"event_type"`
	Severity   string          `json:"severity"`
	KioskID    string          `json:"kiosk_id,omitempty"`
	CustomerID *uuid.UUID      `json:"customer_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for audit queries.
type ListParams struct {
	EventType string
	Actor     string
	KioskID   string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
