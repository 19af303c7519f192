// Package metrics exposes Prometheus instruments for the wheel.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequests counts logical campus API requests by method and outcome (ok, client, transient).
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wheel_api_requests_total",
			Help: "Logical campus API requests by outcome.",
		},
		[]string{"method", "outcome"},
	)

	// APIAttempts counts individual HTTP attempts by status class.
	APIAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wheel_api_attempts_total",
			Help: "HTTP attempts against the campus API by status.",
		},
		[]string{"method", "status"},
	)

	// APIRequestDuration observes logical request latency including retries.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wheel_api_request_duration_seconds",
			Help:    "Campus API request latency including retries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// TokenRefreshes counts OAuth token fetches.
	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wheel_api_token_refreshes_total",
			Help: "Client-credentials token fetches by result.",
		},
		[]string{"result"},
	)

	// Spins counts spins by wheel and action success.
	Spins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wheel_spins_total",
			Help: "Spins by wheel and action result.",
		},
		[]string{"wheel", "success"},
	)

	// Actions counts dispatched actions by function, phase (execute, compensate) and result kind.
	Actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wheel_actions_total",
			Help: "Dispatched actions by function, phase and result.",
		},
		[]string{"function", "phase", "result"},
	)

	// BalanceViolations reports adjacent-sector violations left after balancing each wheel.
	BalanceViolations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wheel_balance_violations",
			Help: "Adjacent label or color violations remaining after balancing.",
		},
		[]string{"wheel"},
	)
)

var registerOnce sync.Once

// Init registers every instrument in the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			APIRequests,
			APIAttempts,
			APIRequestDuration,
			TokenRefreshes,
			Spins,
			Actions,
			BalanceViolations,
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
