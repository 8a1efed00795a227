package ratelimit

import "time"

// Decision is the outcome of one check against a keyed window.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// window mirrors one rate_limit_windows row.
type window struct {
	Count       int
	WindowStart time.Time
}

// apply advances the window state for one request at now and returns the
// decision. An elapsed window resets to count 1; an active window at max
// is rejected without incrementing, so the counter never grows past max
// during a sustained attack.
func (w *window) apply(now time.Time, max int, dur time.Duration) Decision {
	resetAt := w.WindowStart.Add(dur)

	if !now.Before(resetAt) {
		w.Count = 1
		w.WindowStart = now
		return Decision{Allowed: true, Remaining: max - 1, ResetAt: now.Add(dur)}
	}

	if w.Count >= max {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	w.Count++
	return Decision{Allowed: true, Remaining: max - w.Count, ResetAt: resetAt}
}
