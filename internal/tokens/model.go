package tokens

import (
	"time"

	"github.com/google/uuid"
)

// Token is a single-use redemption credential for one subscriber on one
// service day. Immutable after issuance except for the one-way used_at
// transition performed by the redemption transaction.
type Token struct {
	JTI         uuid.UUID  `json:"jti"`
	CustomerID  uuid.UUID  `json:"customer_id"`
	ServiceDate time.Time  `json:"service_date"`
	ShortCode   string     `json:"short_code"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
}

// Used reports whether the token has been consumed.
func (t *Token) Used() bool {
	return t.UsedAt != nil
}

// Expired reports whether the token's service day has ended.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
