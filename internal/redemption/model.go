package redemption

import (
	"time"

	"github.com/google/uuid"
)

// Redemption is the permanent record of a fulfilled pickup. One row per
// meal handed over; the unique token reference makes the row itself the
// last line of defense against double use.
type Redemption struct {
	ID            uuid.UUID `json:"id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	ServiceDate   time.Time `json:"service_date"`
	TokenJTI      uuid.UUID `json:"token_jti"`
	KioskID       string    `json:"kiosk_id"`
	KioskLocation string    `json:"kiosk_location,omitempty"`
	RedeemedAt    time.Time `json:"redeemed_at"`
}

// Request identifies the member and credential a kiosk scanned. Exactly
// one of ShortCode or TokenJTI is set: short codes come from manual
// entry, JTIs from QR scans.
type Request struct {
	CustomerID  uuid.UUID
	ServiceDate time.Time
	ShortCode   string
	TokenJTI    *uuid.UUID
	KioskID     string
	Location    string
}

// Result is what the counter staff see on a successful pickup.
type Result struct {
	RedemptionID   uuid.UUID `json:"redemption_id"`
	CustomerName   string    `json:"customer_name"`
	DietaryFlags   []string  `json:"dietary_flags"`
	MealsRemaining int       `json:"meals_remaining"`
	RedeemedAt     time.Time `json:"redeemed_at"`
}
