package kiosk

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_MintAndParse(t *testing.T) {
	mgr := NewJWTManager("test-secret-that-is-long-enough-123")
	jti := uuid.New()
	exp := time.Now().Add(time.Hour)

	signed, err := mgr.Mint(jti, "kiosk-01", &exp)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := mgr.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, jti.String(), claims.ID)
	assert.Equal(t, "kiosk-01", claims.KioskID)
	assert.Equal(t, "frontier-meals", claims.Issuer)
}

func TestJWTManager_MintWithoutExpiry(t *testing.T) {
	mgr := NewJWTManager("test-secret-that-is-long-enough-123")

	signed, err := mgr.Mint(uuid.New(), "kiosk-02", nil)
	require.NoError(t, err)

	claims, err := mgr.Parse(signed)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt)
}

func TestJWTManager_RejectsWrongSecret(t *testing.T) {
	mgr := NewJWTManager("test-secret-that-is-long-enough-123")
	other := NewJWTManager("another-secret-that-is-long-enough")

	signed, err := mgr.Mint(uuid.New(), "kiosk-03", nil)
	require.NoError(t, err)

	_, err = other.Parse(signed)
	assert.Error(t, err)
}

func TestJWTManager_RejectsExpiredToken(t *testing.T) {
	mgr := NewJWTManager("test-secret-that-is-long-enough-123")
	exp := time.Now().Add(-time.Minute)

	signed, err := mgr.Mint(uuid.New(), "kiosk-04", &exp)
	require.NoError(t, err)

	_, err = mgr.Parse(signed)
	assert.Error(t, err)
}

func TestJWTManager_RejectsGarbage(t *testing.T) {
	mgr := NewJWTManager("test-secret-that-is-long-enough-123")
	_, err := mgr.Parse("not.a.jwt")
	assert.Error(t, err)
}

func TestSessionRevokedAndExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	s := &Session{}
	assert.False(t, s.Revoked())
	assert.False(t, s.Expired(now), "no expiry means never expired")

	s.ExpiresAt = &future
	assert.False(t, s.Expired(now))

	s.ExpiresAt = &past
	assert.True(t, s.Expired(now))

	s.RevokedAt = &past
	assert.True(t, s.Revoked())
}
