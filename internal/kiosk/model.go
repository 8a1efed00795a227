package kiosk

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is the persisted bearer credential for one scanning device.
// The JWT handed to the kiosk only carries the jti; this row is the
// authority. Rows are never deleted, only revoked, so revocation takes
// effect on the next validation regardless of the JWT's own lifetime.
type Session struct {
	JTI          uuid.UUID  `json:"jti"`
	KioskID      string     `json:"kiosk_id"`
	Location     string     `json:"location"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokedBy    *string    `json:"revoked_by,omitempty"`
	RevokeReason *string    `json:"revoke_reason,omitempty"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	UseCount     int64      `json:"use_count"`
}

// Revoked reports whether the session has been administratively killed.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// Expired reports whether the session has aged out. A session past its
// expiry is equivalent to revoked for authorization purposes.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// InvalidReason tags why a session failed validation.
type InvalidReason string

const (
	ReasonNotFound InvalidReason = "SESSION_NOT_FOUND"
	ReasonRevoked  InvalidReason = "SESSION_REVOKED"
	ReasonExpired  InvalidReason = "SESSION_EXPIRED"
)

// ValidationError is the terminal authorization failure. The kiosk sees
// a generic rejection; the precise reason lands in the audit log.
type ValidationError struct {
	Reason InvalidReason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session invalid: %s", e.Reason)
}
