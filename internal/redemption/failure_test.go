package redemption

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHTTPStatus(t *testing.T) {
	tests := []struct {
		code   FailureCode
		status int
	}{
		{CodeNoEntitlement, http.StatusNotFound},
		{CodeCustomerNotFound, http.StatusNotFound},
		{CodeInvalidToken, http.StatusNotFound},
		{CodeAlreadyRedeemed, http.StatusConflict},
		{CodeAlreadyUsed, http.StatusConflict},
		{CodeTokenMismatch, http.StatusConflict},
		{CodeExpired, http.StatusGone},
		{CodeSubscriptionInactive, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := &Error{Code: tt.code}
			assert.Equal(t, tt.status, err.HTTPStatus())
		})
	}
}

func TestErrorEveryCodeHasMessage(t *testing.T) {
	codes := []FailureCode{
		CodeNoEntitlement, CodeAlreadyRedeemed, CodeInvalidToken,
		CodeTokenMismatch, CodeAlreadyUsed, CodeExpired,
		CodeCustomerNotFound, CodeSubscriptionInactive,
	}

	for _, code := range codes {
		err := &Error{Code: code}
		assert.NotEqual(t, "redemption failed", err.Message(), "code %s fell through to the default message", code)
		assert.NotEqual(t, http.StatusInternalServerError, err.HTTPStatus(), "code %s has no status mapping", code)
	}
}

func TestErrorUnknownCodeFallsThrough(t *testing.T) {
	err := &Error{Code: FailureCode("BOGUS")}
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.Equal(t, "redemption failed", err.Message())
}
