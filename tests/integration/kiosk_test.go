//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRevocationTakesEffectNextRequest(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	customerID := CreateCustomer(t, env, "Revocation Member", nil)
	serviceDate := utcDate(2030, time.April, 1)
	_, err := env.Entitlements.Upsert(ctx, customerID, serviceDate, 2)
	require.NoError(t, err)
	token, _, err := env.TokenSvc.Issue(ctx, customerID, serviceDate)
	require.NoError(t, err)

	jti, bearer := IssueKioskSession(t, env, "kiosk-revoke")

	body := map[string]string{
		"customer_id":  customerID.String(),
		"service_date": "2030-04-01",
		"token_jti":    token.JTI.String(),
	}

	resp := DoRequest(t, env, "POST", "/api/v1/redemptions", body, bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Admin pulls the session.
	resp = DoRequest(t, env, "DELETE", "/api/v1/admin/sessions/"+jti.String(), map[string]string{
		"actor":  "test-admin",
		"reason": "device reported stolen",
	}, testAdminKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The very next request with the same JWT dies at the session check.
	resp = DoRequest(t, env, "POST", "/api/v1/redemptions", body, bearer)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	rejected := ParseResponse(t, resp)
	assert.Equal(t, "SESSION_INVALID", rejected["code"])

	// Without NATS the rejection still lands in the audit trail.
	var count int
	err = env.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE event_type = 'session_rejected' AND kiosk_id = 'kiosk-revoke'`).
		Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRevokeAllKillsEverySessionForKiosk(t *testing.T) {
	env := SetupTestEnv(t)

	_, bearerA := IssueKioskSession(t, env, "kiosk-bulk")
	_, bearerB := IssueKioskSession(t, env, "kiosk-bulk")

	resp := DoRequest(t, env, "DELETE", "/api/v1/admin/kiosks/kiosk-bulk/sessions", map[string]string{
		"actor":  "test-admin",
		"reason": "site decommissioned",
	}, testAdminKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	assert.Equal(t, float64(2), data["revoked"])

	for _, bearer := range []string{bearerA, bearerB} {
		resp := DoRequest(t, env, "POST", "/api/v1/redemptions", map[string]string{}, bearer)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestSessionRevokeIsIdempotent(t *testing.T) {
	env := SetupTestEnv(t)

	jti, _ := IssueKioskSession(t, env, "kiosk-idem")

	for i := 0; i < 2; i++ {
		resp := DoRequest(t, env, "DELETE", "/api/v1/admin/sessions/"+jti.String(), map[string]string{
			"actor":  "test-admin",
			"reason": "rotation",
		}, testAdminKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := ParseResponse(t, resp)
		data := result["data"].(map[string]any)
		assert.Equal(t, i == 0, data["revoked"], "attempt %d", i)
	}
}

func TestAdminSurfaceRequiresKey(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "GET", "/api/v1/admin/sessions/", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "GET", "/api/v1/admin/sessions/", nil, "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// The scheduler key does not open the admin surface.
	resp = DoRequest(t, env, "GET", "/api/v1/admin/sessions/", nil, testSchedulerKey)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestKioskWithoutSessionRejected(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "POST", "/api/v1/redemptions", map[string]string{}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "POST", "/api/v1/redemptions", map[string]string{}, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRedemptionRateLimitPerKiosk(t *testing.T) {
	env := SetupTestEnv(t)

	customerID := CreateCustomer(t, env, "Limited Member", nil)
	_, bearer := IssueKioskSession(t, env, "kiosk-limited")

	body := map[string]string{
		"customer_id":  customerID.String(),
		"service_date": "2030-04-02",
		"short_code":   "AAAA2222",
	}

	// Burn the window. Denied lookups still count against the limiter.
	for i := 0; i < testRedemptionMax; i++ {
		resp := DoRequest(t, env, "POST", "/api/v1/redemptions", body, bearer)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, "attempt %d", i)
		resp.Body.Close()
	}

	resp := DoRequest(t, env, "POST", "/api/v1/redemptions", body, bearer)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	limited := ParseResponse(t, resp)
	assert.Equal(t, "RATE_LIMITED", limited["code"])

	// The trip is recorded synchronously when no forensic pipeline runs.
	var count int
	err := env.Pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM audit_log WHERE event_type = 'rate_limit_trip' AND actor = 'kiosk-limited'`).
		Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A different kiosk is unaffected.
	_, otherBearer := IssueKioskSession(t, env, "kiosk-unlimited")
	resp = DoRequest(t, env, "POST", "/api/v1/redemptions", body, otherBearer)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
