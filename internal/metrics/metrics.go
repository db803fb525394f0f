package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	serviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "suite",
			Subsystem: "service",
			Name:      "starts_total",
			Help:      "Number of service process spawns (including restarts).",
		}, []string{"service"},
	)
	serviceRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "suite",
			Subsystem: "service",
			Name:      "restarts_total",
			Help:      "Number of automatic restarts after unexpected exits.",
		}, []string{"service"},
	)
	serviceStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "suite",
			Subsystem: "service",
			Name:      "stops_total",
			Help:      "Number of observed service process exits.",
		}, []string{"service"},
	)
	healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "suite",
			Subsystem: "service",
			Name:      "healthcheck_attempts_total",
			Help:      "Health-check poll attempts by outcome.",
		}, []string{"service", "outcome"},
	)
	sessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "suite",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Number of browser-automation sessions created.",
		},
	)
	sessionsClosed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "suite",
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Number of browser-automation sessions closed.",
		},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "suite",
			Subsystem: "session",
			Name:      "active",
			Help:      "Currently tracked browser-automation sessions.",
		},
	)
	sessionActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "suite",
			Subsystem: "session",
			Name:      "actions_total",
			Help:      "Session actions dispatched, by action and result.",
		}, []string{"action", "result"},
	)
	actionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "suite",
			Subsystem: "session",
			Name:      "action_duration_seconds",
			Help:      "Wall time of remote session actions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"},
	)
)

// Register registers all collectors with r. Safe to call multiple times;
// collectors already registered elsewhere are tolerated.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		serviceStarts, serviceRestarts, serviceStops, healthChecks,
		sessionsCreated, sessionsClosed, sessionsActive, sessionActions, actionDuration,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler serves Prometheus metrics for the default gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncServiceStart(name string) {
	if regOK.Load() {
		serviceStarts.WithLabelValues(name).Inc()
	}
}

func IncServiceRestart(name string) {
	if regOK.Load() {
		serviceRestarts.WithLabelValues(name).Inc()
	}
}

func IncServiceStop(name string) {
	if regOK.Load() {
		serviceStops.WithLabelValues(name).Inc()
	}
}

func IncHealthCheck(name string, healthy bool) {
	if regOK.Load() {
		outcome := "unhealthy"
		if healthy {
			outcome = "healthy"
		}
		healthChecks.WithLabelValues(name, outcome).Inc()
	}
}

func IncSessionCreated() {
	if regOK.Load() {
		sessionsCreated.Inc()
	}
}

func IncSessionClosed() {
	if regOK.Load() {
		sessionsClosed.Inc()
	}
}

func SetSessionsActive(n int) {
	if regOK.Load() {
		sessionsActive.Set(float64(n))
	}
}

func IncSessionAction(action string, ok bool) {
	if regOK.Load() {
		result := "error"
		if ok {
			result = "ok"
		}
		sessionActions.WithLabelValues(action, result).Inc()
	}
}

func ObserveActionDuration(action string, seconds float64) {
	if regOK.Load() {
		actionDuration.WithLabelValues(action).Observe(seconds)
	}
}
