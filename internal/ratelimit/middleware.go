package ratelimit

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ejmockler/frontier-meals/internal/api"
	"github.com/ejmockler/frontier-meals/internal/audit"
	"github.com/ejmockler/frontier-meals/internal/metrics"
	inats "github.com/ejmockler/frontier-meals/internal/nats"
)

// KeyFunc derives the limiter key from a request (client IP, session jti).
type KeyFunc func(*http.Request) string

// Middleware enforces the authoritative window limiter on a route. A
// rejection is non-terminal for the client: the Retry-After header says
// when the window reopens. Trips reach the audit trail through the
// forensic pipeline or, without a publisher, a synchronous row.
func Middleware(store *Store, auditRepo *audit.Repository, publisher *inats.Publisher, scope string, keyFn KeyFunc, max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + keyFn(r)

			dec, err := store.Check(r.Context(), key, max, window)
			if err != nil {
				slog.Error("rate limit check failed", "error", err, "key", key)
				api.HandleError(w, api.ErrTransientStore)
				return
			}

			if !dec.Allowed {
				metrics.RateLimitTripsTotal.WithLabelValues(scope).Inc()
				if publisher != nil {
					pubErr := publisher.PublishForensicEvent(r.Context(), inats.ForensicEvent{
						EventType: inats.EventRateLimitTrip,
						Severity:  "warn",
						Actor:     keyFn(r),
						Details:   "limiter " + scope + " tripped",
						Timestamp: time.Now().UTC(),
					})
					if pubErr != nil {
						slog.Warn("publishing rate limit event", "error", pubErr)
					}
				} else if auditRepo != nil {
					details, _ := json.Marshal(map[string]string{"scope": scope, "key": keyFn(r)})
					if insErr := auditRepo.Insert(r.Context(), &audit.Entry{
						Actor:     keyFn(r),
						EventType: audit.EventRateLimitTrip,
						Severity:  "warn",
						Details:   details,
					}); insErr != nil {
						slog.Error("recording rate limit trip", "error", insErr, "key", key)
					}
				}

				retryAfter := int(math.Ceil(time.Until(dec.ResetAt).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				api.HandleError(w, api.NewTaggedError(http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
