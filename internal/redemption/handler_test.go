package redemption

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ejmockler/frontier-meals/internal/kiosk"
)

// The handler's input checks fire before the service is touched, so a
// nil service is fine for these.
func postRedemption(t *testing.T, body string, withSession bool) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(nil)

	req := httptest.NewRequest("POST", "/api/v1/redemptions", strings.NewReader(body))
	if withSession {
		session := &kiosk.Session{JTI: uuid.New(), KioskID: "kiosk-test", Location: "Test Hall"}
		req = req.WithContext(kiosk.WithSession(req.Context(), session))
	}
	rec := httptest.NewRecorder()
	h.Redeem(rec, req)
	return rec
}

func TestRedeemRejectsWithoutSession(t *testing.T) {
	rec := postRedemption(t, `{}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRedeemRejectsMalformedBody(t *testing.T) {
	rec := postRedemption(t, `{not json`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRedeemRequiresExactlyOneCredential(t *testing.T) {
	customerID := uuid.New().String()
	jti := uuid.New().String()

	// Neither credential.
	rec := postRedemption(t,
		`{"customer_id":"`+customerID+`","service_date":"2030-03-04"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Both credentials.
	rec = postRedemption(t,
		`{"customer_id":"`+customerID+`","service_date":"2030-03-04","token_jti":"`+jti+`","short_code":"ABCD2345"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRedeemRejectsBadDate(t *testing.T) {
	customerID := uuid.New().String()
	jti := uuid.New().String()

	rec := postRedemption(t,
		`{"customer_id":"`+customerID+`","service_date":"03/04/2030","token_jti":"`+jti+`"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
