package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meals_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meals_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meals_redemptions_total",
			Help: "Total number of redemption attempts by outcome.",
		},
		[]string{"result"},
	)

	SessionValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meals_session_validations_total",
			Help: "Total number of kiosk session validations by outcome.",
		},
		[]string{"outcome"},
	)

	RateLimitTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meals_rate_limit_trips_total",
			Help: "Total number of rejected requests by limiter scope.",
		},
		[]string{"scope"},
	)

	TokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meals_tokens_issued_total",
			Help: "Total number of redemption tokens minted.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RedemptionsTotal,
		SessionValidationsTotal,
		RateLimitTripsTotal,
		TokensIssuedTotal,
	)
}
