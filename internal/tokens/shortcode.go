package tokens

import (
	"crypto/rand"
	"fmt"
)

// shortCodeAlphabet omits 0/O/1/I/L so staff can read codes back over
// the counter without ambiguity.
const shortCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// ShortCodeLength gives ~31^8 (~8.5e11) possibilities, far beyond what a
// rate-limited kiosk could enumerate within a service day.
const ShortCodeLength = 8

func generateShortCode() (string, error) {
	buf := make([]byte, ShortCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = shortCodeAlphabet[int(b)%len(shortCodeAlphabet)]
	}
	return string(buf), nil
}
