package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemaining(t *testing.T) {
	tests := []struct {
		name     string
		allowed  int
		redeemed int
		want     int
	}{
		{"full allowance", 1, 0, 1},
		{"exhausted", 1, 1, 0},
		{"opted out", 0, 0, 0},
		{"multi-meal plan", 3, 1, 2},
		{"redeemed past allowed never goes negative", 1, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entitlement{MealsAllowed: tt.allowed, MealsRedeemed: tt.redeemed}
			assert.Equal(t, tt.want, e.Remaining())
		})
	}
}
