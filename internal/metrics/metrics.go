// Package metrics exposes the server's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the counters the handlers and the socket hub record into.
type Metrics struct {
	LoginAttempts   *prometheus.CounterVec // outcome: ok, invalid, rate_limited, error
	Registrations   prometheus.Counter
	MessagesRelayed prometheus.Counter
	MessagesStored  prometheus.Counter
	ActiveSessions  prometheus.Gauge
	NoncesPurged    prometheus.Counter
}

// New registers the instruments on reg and returns the bundle. Passing
// prometheus.DefaultRegisterer is the usual call.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cryptalk",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		Registrations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cryptalk",
			Name:      "registrations_total",
			Help:      "Successful identity registrations.",
		}),
		MessagesRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cryptalk",
			Name:      "messages_relayed_total",
			Help:      "Messages pushed to a connected recipient.",
		}),
		MessagesStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cryptalk",
			Name:      "messages_stored_total",
			Help:      "Sealed messages persisted.",
		}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "cryptalk",
			Name:      "active_sessions",
			Help:      "Open socket sessions.",
		}),
		NoncesPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cryptalk",
			Name:      "nonces_purged_total",
			Help:      "Expired login challenges removed by the janitor.",
		}),
	}
}

// Handler serves the default registry in the exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
