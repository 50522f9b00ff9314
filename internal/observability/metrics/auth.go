// Package metrics exposes Prometheus collectors for the session gating layer.
package metrics

import (
	"net/http"
	"time"

	domainauth "github.com/medibook/clinic-gate/internal/domain/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clinicgate"

// Collector records verify, login, guard and edge-filter activity.
// A nil *Collector is valid and records nothing.
type Collector struct {
	verifyTotal    *prometheus.CounterVec
	verifyLatency  *prometheus.HistogramVec
	loginTotal     *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
	edgeRedirects  *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_total",
			Help:      "Session verifications by scope and outcome.",
		}, []string{"scope", "outcome"}),
		verifyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verify_duration_seconds",
			Help:      "Latency of session verification calls.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"scope"}),
		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_total",
			Help:      "Login attempts by scope and outcome.",
		}, []string{"scope", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_state_transitions_total",
			Help:      "Auth state machine transitions by target status and reason.",
		}, []string{"scope", "status", "reason"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions by kind.",
		}, []string{"decision"}),
		edgeRedirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edge_redirects_total",
			Help:      "Edge filter redirects by rule.",
		}, []string{"rule"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the login rate limiter.",
		}, []string{"route"}),
	}
	reg.MustRegister(
		c.verifyTotal,
		c.verifyLatency,
		c.loginTotal,
		c.transitions,
		c.guardDecisions,
		c.edgeRedirects,
		c.rateLimited,
	)
	return c
}

// ObserveVerify records one verification outcome and its latency.
func (c *Collector) ObserveVerify(scope domainauth.Scope, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.verifyTotal.WithLabelValues(string(scope), outcome).Inc()
	c.verifyLatency.WithLabelValues(string(scope)).Observe(elapsed.Seconds())
}

// ObserveTransition records a state change.
func (c *Collector) ObserveTransition(scope domainauth.Scope, to domainauth.Status, reason string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(string(scope), string(to), reason).Inc()
}

// ObserveLogin records a login outcome.
func (c *Collector) ObserveLogin(scope domainauth.Scope, outcome string) {
	if c == nil {
		return
	}
	c.loginTotal.WithLabelValues(string(scope), outcome).Inc()
}

// ObserveDecision records a route guard decision.
func (c *Collector) ObserveDecision(kind domainauth.DecisionKind) {
	if c == nil {
		return
	}
	c.guardDecisions.WithLabelValues(string(kind)).Inc()
}

// ObserveEdgeRedirect records an edge filter redirect.
func (c *Collector) ObserveEdgeRedirect(rule string) {
	if c == nil {
		return
	}
	c.edgeRedirects.WithLabelValues(rule).Inc()
}

// ObserveRateLimited records a request rejected by the rate limiter.
func (c *Collector) ObserveRateLimited(route string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(route).Inc()
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
