//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetEntitlementUpsert(t *testing.T) {
	env := SetupTestEnv(t)

	customerID := CreateCustomer(t, env, "Planned Member", nil)

	body := map[string]any{
		"customer_id":   customerID.String(),
		"service_date":  "2030-05-01",
		"meals_allowed": 1,
		"actor":         "meal-planner",
	}
	resp := DoRequest(t, env, "PUT", "/api/v1/schedule/entitlements", body, testSchedulerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	assert.Equal(t, float64(1), data["meals_allowed"])

	// Re-running with a new allowance adjusts in place.
	body["meals_allowed"] = 2
	resp = DoRequest(t, env, "PUT", "/api/v1/schedule/entitlements", body, testSchedulerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result = ParseResponse(t, resp)
	data = result["data"].(map[string]any)
	assert.Equal(t, float64(2), data["meals_allowed"])
	assert.Equal(t, float64(0), data["meals_redeemed"])
}

func TestSetEntitlementUnknownCustomer(t *testing.T) {
	env := SetupTestEnv(t)

	body := map[string]any{
		"customer_id":   uuid.NewString(),
		"service_date":  "2030-05-01",
		"meals_allowed": 1,
		"actor":         "meal-planner",
	}
	resp := DoRequest(t, env, "PUT", "/api/v1/schedule/entitlements", body, testSchedulerKey)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	result := ParseResponse(t, resp)
	assert.Equal(t, "CUSTOMER_NOT_FOUND", result["code"])
}

func TestSetEntitlementRequiresSchedulerKey(t *testing.T) {
	env := SetupTestEnv(t)

	customerID := CreateCustomer(t, env, "Keyless Member", nil)
	body := map[string]any{
		"customer_id":   customerID.String(),
		"service_date":  "2030-05-02",
		"meals_allowed": 1,
		"actor":         "meal-planner",
	}

	resp := DoRequest(t, env, "PUT", "/api/v1/schedule/entitlements", body, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "PUT", "/api/v1/schedule/entitlements", body, testAdminKey)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestDailyTokenIssuanceIsIdempotent(t *testing.T) {
	env := SetupTestEnv(t)

	memberA := CreateCustomer(t, env, "Batch A", nil)
	memberB := CreateCustomer(t, env, "Batch B", nil)
	for _, id := range []string{memberA.String(), memberB.String()} {
		resp := DoRequest(t, env, "PUT", "/api/v1/schedule/entitlements", map[string]any{
			"customer_id":   id,
			"service_date":  "2030-05-03",
			"meals_allowed": 1,
			"actor":         "meal-planner",
		}, testSchedulerKey)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	issueBody := map[string]any{
		"service_date": "2030-05-03",
		"actor":        "meal-planner",
	}
	resp := DoRequest(t, env, "POST", "/api/v1/schedule/tokens/issue", issueBody, testSchedulerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	assert.Equal(t, float64(2), data["minted"])

	// Second run mints nothing new.
	resp = DoRequest(t, env, "POST", "/api/v1/schedule/tokens/issue", issueBody, testSchedulerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result = ParseResponse(t, resp)
	data = result["data"].(map[string]any)
	assert.Equal(t, float64(0), data["minted"])
}

func TestSingleTokenReissueReturnsExisting(t *testing.T) {
	env := SetupTestEnv(t)

	customerID := CreateCustomer(t, env, "Replacement Member", nil)
	resp := DoRequest(t, env, "PUT", "/api/v1/schedule/entitlements", map[string]any{
		"customer_id":   customerID.String(),
		"service_date":  "2030-05-04",
		"meals_allowed": 1,
		"actor":         "meal-planner",
	}, testSchedulerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	issueBody := map[string]any{
		"service_date": "2030-05-04",
		"customer_id":  customerID.String(),
		"actor":        "support-desk",
	}

	resp = DoRequest(t, env, "POST", "/api/v1/schedule/tokens/issue", issueBody, testSchedulerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := ParseResponse(t, resp)
	firstData := first["data"].(map[string]any)
	assert.Equal(t, float64(1), firstData["minted"])
	firstToken := firstData["token"].(map[string]any)

	resp = DoRequest(t, env, "POST", "/api/v1/schedule/tokens/issue", issueBody, testSchedulerKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := ParseResponse(t, resp)
	secondData := second["data"].(map[string]any)
	assert.Equal(t, float64(0), secondData["minted"])
	secondToken := secondData["token"].(map[string]any)

	assert.Equal(t, firstToken["jti"], secondToken["jti"])
	assert.Equal(t, firstToken["short_code"], secondToken["short_code"])
}

func TestAuditTrailListing(t *testing.T) {
	env := SetupTestEnv(t)

	// Session issuance writes an audit row we can query back.
	IssueKioskSession(t, env, "kiosk-trail")

	resp := DoRequest(t, env, "GET", "/api/v1/admin/audit?event_type=session_issued", nil, testAdminKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseResponse(t, resp)
	assert.Greater(t, result["total_count"].(float64), float64(0))

	entries := result["data"].([]any)
	require.NotEmpty(t, entries)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "session_issued", entry["event_type"])
}
