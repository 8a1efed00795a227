package redemption

import "net/http"

// FailureCode tags every terminal way a redemption attempt can fail.
// Terminal means: retrying the same request cannot succeed; the kiosk
// needs a new credential, not a retry. Transient infrastructure faults
// are plain errors and never carry one of these codes.
type FailureCode string

const (
	CodeNoEntitlement        FailureCode = "NO_ENTITLEMENT"
	CodeAlreadyRedeemed      FailureCode = "ALREADY_REDEEMED"
	CodeInvalidToken         FailureCode = "INVALID_TOKEN"
	CodeTokenMismatch        FailureCode = "TOKEN_MISMATCH"
	CodeAlreadyUsed          FailureCode = "ALREADY_USED"
	CodeExpired              FailureCode = "EXPIRED"
	CodeCustomerNotFound     FailureCode = "CUSTOMER_NOT_FOUND"
	CodeSubscriptionInactive FailureCode = "SUBSCRIPTION_INACTIVE"
)

// Error is the terminal redemption failure returned to the caller as a
// structured result, never as an unhandled fault.
type Error struct {
	Code FailureCode
}

func (e *Error) Error() string {
	return "redemption failed: " + string(e.Code)
}

// HTTPStatus maps each code to a distinct status class so automated
// callers can tell terminal failures from retriable ones. The switch is
// exhaustive over FailureCode; a new code without a mapping falls
// through to 500 and shows up immediately in tests.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNoEntitlement, CodeCustomerNotFound, CodeInvalidToken:
		return http.StatusNotFound
	case CodeAlreadyRedeemed, CodeAlreadyUsed, CodeTokenMismatch:
		return http.StatusConflict
	case CodeExpired:
		return http.StatusGone
	case CodeSubscriptionInactive:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// Message is the staff-facing text a kiosk displays. Specific enough to
// be actionable at the counter without leaking anything a probing
// client could use; the audit log keeps the precise reason either way.
func (e *Error) Message() string {
	switch e.Code {
	case CodeNoEntitlement:
		return "no meal scheduled for today"
	case CodeAlreadyRedeemed:
		return "today's meal has already been picked up"
	case CodeInvalidToken:
		return "code not recognized"
	case CodeTokenMismatch:
		return "code does not match this member"
	case CodeAlreadyUsed:
		return "code already used"
	case CodeExpired:
		return "code expired at end of day"
	case CodeCustomerNotFound:
		return "member not found"
	case CodeSubscriptionInactive:
		return "subscription inactive — ask member to contact support"
	}
	return "redemption failed"
}
