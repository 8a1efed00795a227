package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "MEALS_EVENTS"
)

// Subject constants.
const (
	SubjectForensicEvent = "meals.events.forensic"
)

// Forensic event types consumed into the audit log.
const (
	EventRateLimitTrip    = "rate_limit_trip"
	EventSessionRejected  = "session_rejected"
	EventRedemptionDenied = "redemption_denied"
)

// ForensicEvent is published for authority actions that happen outside a
// database transaction (rate-limit trips, rejected session validations).
// Transactional audit rows are written by the owning transaction instead.
type ForensicEvent struct {
	EventType  string     `json:"event_type"`
	Severity   string     `json:"severity"` // info, warn, error
	Actor      string     `json:"actor"`
	KioskID    string     `json:"kiosk_id,omitempty"`
	CustomerID *uuid.UUID `json:"customer_id,omitempty"`
	Details    string     `json:"details,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
