package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth subsystem metrics.
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"result"},
	)

	tokenVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_verifications_total",
			Help: "Access token verifications by outcome.",
		},
		[]string{"result"},
	)

	refreshRotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_refresh_rotations_total",
			Help: "Refresh token rotations by outcome.",
		},
		[]string{"result"},
	)

	reuseDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_reuse_detected_total",
		Help: "Revoked refresh tokens presented again.",
	})

	passwordHashDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_password_hash_seconds",
		Help:    "Password hashing latency in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// Init registers the auth metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		loginsTotal,
		tokenVerificationsTotal,
		refreshRotationsTotal,
		reuseDetectedTotal,
		passwordHashDuration,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records a login attempt outcome ("ok", "invalid", "throttled", "error").
func ObserveLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// ObserveTokenVerification records an access token verification outcome.
func ObserveTokenVerification(result string) {
	tokenVerificationsTotal.WithLabelValues(result).Inc()
}

// ObserveRotation records a refresh rotation outcome ("ok", "rejected", "reuse", "error").
func ObserveRotation(result string) {
	refreshRotationsTotal.WithLabelValues(result).Inc()
}

// ObserveReuse counts a replayed, already-revoked refresh token.
func ObserveReuse() {
	reuseDetectedTotal.Inc()
}

// TimePasswordHash records the wall time spent hashing one password.
func TimePasswordHash(start time.Time) {
	passwordHashDuration.Observe(time.Since(start).Seconds())
}
