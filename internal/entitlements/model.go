package entitlements

import (
	"time"

	"github.com/google/uuid"
)

// Entitlement is one subscriber's meal allowance for one service day.
// meals_redeemed never exceeds meals_allowed; the schema enforces this
// with a CHECK constraint in addition to the guarded increment.
type Entitlement struct {
	CustomerID    uuid.UUID `json:"customer_id"`
	ServiceDate   time.Time `json:"service_date"`
	MealsAllowed  int       `json:"meals_allowed"`
	MealsRedeemed int       `json:"meals_redeemed"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Remaining reports how many meals the subscriber may still redeem today.
func (e *Entitlement) Remaining() int {
	if e.MealsRedeemed >= e.MealsAllowed {
		return 0
	}
	return e.MealsAllowed - e.MealsRedeemed
}
