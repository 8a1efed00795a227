//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ejmockler/frontier-meals/internal/redemption"
)

func utcDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRedemptionHappyPath(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	customerID := CreateCustomer(t, env, "Ada Lovelace", []string{"vegetarian"})
	serviceDate := utcDate(2030, time.March, 4)

	_, err := env.Entitlements.Upsert(ctx, customerID, serviceDate, 1)
	require.NoError(t, err)

	token, created, err := env.TokenSvc.Issue(ctx, customerID, serviceDate)
	require.NoError(t, err)
	require.True(t, created)

	_, bearer := IssueKioskSession(t, env, "kiosk-happy")

	resp := DoRequest(t, env, "POST", "/api/v1/redemptions", map[string]string{
		"customer_id":  customerID.String(),
		"service_date": "2030-03-04",
		"token_jti":    token.JTI.String(),
	}, bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := ParseResponse(t, resp)
	data := result["data"].(map[string]any)
	assert.Equal(t, "Ada Lovelace", data["customer_name"])
	assert.Equal(t, float64(0), data["meals_remaining"])

	// Replaying the same token is terminal.
	resp = DoRequest(t, env, "POST", "/api/v1/redemptions", map[string]string{
		"customer_id":  customerID.String(),
		"service_date": "2030-03-04",
		"token_jti":    token.JTI.String(),
	}, bearer)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	replay := ParseResponse(t, resp)
	// The entitlement is exhausted before the token is even examined.
	assert.Equal(t, "ALREADY_REDEEMED", replay["code"])
}

func TestRedemptionByShortCode(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	customerID := CreateCustomer(t, env, "Short Code Member", nil)
	serviceDate := utcDate(2030, time.March, 5)

	_, err := env.Entitlements.Upsert(ctx, customerID, serviceDate, 1)
	require.NoError(t, err)
	token, _, err := env.TokenSvc.Issue(ctx, customerID, serviceDate)
	require.NoError(t, err)

	_, bearer := IssueKioskSession(t, env, "kiosk-shortcode")

	resp := DoRequest(t, env, "POST", "/api/v1/redemptions", map[string]string{
		"customer_id":  customerID.String(),
		"service_date": "2030-03-05",
		"short_code":   token.ShortCode,
	}, bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRedemptionConcurrentReplayExactlyOnce(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	customerID := CreateCustomer(t, env, "Race Member", nil)
	serviceDate := utcDate(2030, time.March, 6)

	_, err := env.Entitlements.Upsert(ctx, customerID, serviceDate, 1)
	require.NoError(t, err)
	token, _, err := env.TokenSvc.Issue(ctx, customerID, serviceDate)
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.RedemptionSvc.Redeem(ctx, redemption.Request{
				CustomerID:  customerID,
				ServiceDate: serviceDate,
				TokenJTI:    &token.JTI,
				KioskID:     "kiosk-race",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, terminal := 0, 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var redErr *redemption.Error
		require.ErrorAs(t, err, &redErr, "unexpected non-terminal failure: %v", err)
		terminal++
	}

	assert.Equal(t, 1, successes, "exactly one attempt may dispense the meal")
	assert.Equal(t, attempts-1, terminal)

	var redeemed int
	err = env.Pool.QueryRow(ctx,
		`SELECT meals_redeemed FROM entitlements WHERE customer_id = $1 AND service_date = $2`,
		customerID, serviceDate).Scan(&redeemed)
	require.NoError(t, err)
	assert.Equal(t, 1, redeemed)
}

func TestRedemptionTokenMismatch(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	memberA := CreateCustomer(t, env, "Member A", nil)
	memberB := CreateCustomer(t, env, "Member B", nil)
	serviceDate := utcDate(2030, time.March, 7)

	_, err := env.Entitlements.Upsert(ctx, memberA, serviceDate, 1)
	require.NoError(t, err)
	_, err = env.Entitlements.Upsert(ctx, memberB, serviceDate, 1)
	require.NoError(t, err)

	tokenB, _, err := env.TokenSvc.Issue(ctx, memberB, serviceDate)
	require.NoError(t, err)

	_, err = env.RedemptionSvc.Redeem(ctx, redemption.Request{
		CustomerID:  memberA,
		ServiceDate: serviceDate,
		TokenJTI:    &tokenB.JTI,
		KioskID:     "kiosk-mismatch",
	})
	var redErr *redemption.Error
	require.ErrorAs(t, err, &redErr)
	assert.Equal(t, redemption.CodeTokenMismatch, redErr.Code)

	// Member B's token survives the failed attempt untouched.
	_, err = env.RedemptionSvc.Redeem(ctx, redemption.Request{
		CustomerID:  memberB,
		ServiceDate: serviceDate,
		TokenJTI:    &tokenB.JTI,
		KioskID:     "kiosk-mismatch",
	})
	require.NoError(t, err)
}

func TestRedemptionZeroAllowance(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	customerID := CreateCustomer(t, env, "Paused Member", nil)
	serviceDate := utcDate(2030, time.March, 8)

	_, err := env.Entitlements.Upsert(ctx, customerID, serviceDate, 0)
	require.NoError(t, err)
	token, _, err := env.TokenSvc.Issue(ctx, customerID, serviceDate)
	require.NoError(t, err)

	_, err = env.RedemptionSvc.Redeem(ctx, redemption.Request{
		CustomerID:  customerID,
		ServiceDate: serviceDate,
		TokenJTI:    &token.JTI,
		KioskID:     "kiosk-zero",
	})
	var redErr *redemption.Error
	require.ErrorAs(t, err, &redErr)
	assert.Equal(t, redemption.CodeAlreadyRedeemed, redErr.Code)
}

func TestRedemptionNoEntitlement(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	customerID := CreateCustomer(t, env, "Unscheduled Member", nil)
	serviceDate := utcDate(2030, time.March, 9)
	jti := customerID // any uuid; the entitlement check fires first

	_, err := env.RedemptionSvc.Redeem(ctx, redemption.Request{
		CustomerID:  customerID,
		ServiceDate: serviceDate,
		TokenJTI:    &jti,
		KioskID:     "kiosk-none",
	})
	var redErr *redemption.Error
	require.ErrorAs(t, err, &redErr)
	assert.Equal(t, redemption.CodeNoEntitlement, redErr.Code)
}

func TestRedemptionExpiredToken(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	customerID := CreateCustomer(t, env, "Late Member", nil)
	// A past service date: end-of-day expiry is long gone.
	serviceDate := utcDate(2020, time.January, 15)

	_, err := env.Entitlements.Upsert(ctx, customerID, serviceDate, 1)
	require.NoError(t, err)
	token, _, err := env.TokenSvc.Issue(ctx, customerID, serviceDate)
	require.NoError(t, err)

	_, err = env.RedemptionSvc.Redeem(ctx, redemption.Request{
		CustomerID:  customerID,
		ServiceDate: serviceDate,
		TokenJTI:    &token.JTI,
		KioskID:     "kiosk-late",
	})
	var redErr *redemption.Error
	require.ErrorAs(t, err, &redErr)
	assert.Equal(t, redemption.CodeExpired, redErr.Code)
}

func TestRedemptionInactiveSubscription(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	customerID := CreateCustomer(t, env, "Lapsed Member", nil)
	serviceDate := utcDate(2030, time.March, 10)

	_, err := env.Entitlements.Upsert(ctx, customerID, serviceDate, 1)
	require.NoError(t, err)
	token, _, err := env.TokenSvc.Issue(ctx, customerID, serviceDate)
	require.NoError(t, err)

	CancelSubscriptions(t, env, customerID)

	_, err = env.RedemptionSvc.Redeem(ctx, redemption.Request{
		CustomerID:  customerID,
		ServiceDate: serviceDate,
		TokenJTI:    &token.JTI,
		KioskID:     "kiosk-lapsed",
	})
	var redErr *redemption.Error
	require.ErrorAs(t, err, &redErr)
	assert.Equal(t, redemption.CodeSubscriptionInactive, redErr.Code)

	// The denial leaves the token consumable once the subscription is fixed.
	var usedAt *time.Time
	err = env.Pool.QueryRow(ctx,
		`SELECT used_at FROM redemption_tokens WHERE jti = $1`, token.JTI).Scan(&usedAt)
	require.NoError(t, err)
	assert.Nil(t, usedAt)
}

func TestRedemptionDenialIsAudited(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	customerID := CreateCustomer(t, env, "Audited Member", nil)
	serviceDate := utcDate(2030, time.March, 11)
	jti := customerID

	_, err := env.RedemptionSvc.Redeem(ctx, redemption.Request{
		CustomerID:  customerID,
		ServiceDate: serviceDate,
		TokenJTI:    &jti,
		KioskID:     "kiosk-audit",
	})
	var redErr *redemption.Error
	require.True(t, errors.As(err, &redErr))

	var count int
	err = env.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_log WHERE event_type = 'redemption_denied' AND customer_id = $1`,
		customerID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRedemptionReplayWithRemainingAllowance(t *testing.T) {
	env := SetupTestEnv(t)
	ctx := context.Background()

	customerID := CreateCustomer(t, env, "Two Meal Member", nil)
	serviceDate := utcDate(2030, time.March, 12)

	// Two meals allowed, so a token replay is caught by the token's own
	// used_at mark rather than by an exhausted entitlement.
	_, err := env.Entitlements.Upsert(ctx, customerID, serviceDate, 2)
	require.NoError(t, err)
	token, _, err := env.TokenSvc.Issue(ctx, customerID, serviceDate)
	require.NoError(t, err)

	result, err := env.RedemptionSvc.Redeem(ctx, redemption.Request{
		CustomerID:  customerID,
		ServiceDate: serviceDate,
		TokenJTI:    &token.JTI,
		KioskID:     "kiosk-replay",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.MealsRemaining)

	_, err = env.RedemptionSvc.Redeem(ctx, redemption.Request{
		CustomerID:  customerID,
		ServiceDate: serviceDate,
		TokenJTI:    &token.JTI,
		KioskID:     "kiosk-replay",
	})
	var redErr *redemption.Error
	require.True(t, errors.As(err, &redErr))
	assert.Equal(t, redemption.CodeAlreadyUsed, redErr.Code)

	recorded, err := env.Redemptions.GetByTokenJTI(ctx, token.JTI)
	require.NoError(t, err)
	require.NotNil(t, recorded)
	assert.Equal(t, customerID, recorded.CustomerID)

	rows, err := env.Redemptions.ListByCustomerDate(ctx, customerID, serviceDate)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
