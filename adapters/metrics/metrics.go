// Package metrics provides Prometheus metrics collection for the chat service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/RayBen445/ChatBot/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatbot"

// Collector holds all Prometheus metrics for the service.
type Collector struct {
	gatherer prometheus.Gatherer

	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Auth metrics
	AuthFailures *prometheus.CounterVec

	// Governance metrics
	EntitlementDecisions *prometheus.CounterVec
	UsageIncrements      *prometheus.CounterVec
	AdminActions         *prometheus.CounterVec
	PricingFallbacks     *prometheus.CounterVec

	// Generation provider metrics
	GenerationDuration *prometheus.HistogramVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// NewWithRegistry creates a collector on reg and serves gatherer from
// Handler. Each application instance owns its registry.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		gatherer: gatherer,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of identity verification failures",
			},
			[]string{"reason"},
		),
		EntitlementDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entitlement_decisions_total",
				Help:      "Entitlement decisions by reason",
			},
			[]string{"reason", "allowed"},
		),
		UsageIncrements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_increments_total",
				Help:      "Messages counted against monthly usage",
			},
			[]string{"tier"},
		),
		AdminActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_actions_total",
				Help:      "Administrative actions by outcome",
			},
			[]string{"action", "outcome"},
		),
		PricingFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pricing_fallbacks_total",
				Help:      "Quotes served from the default price table or without discounts",
			},
			[]string{"source"},
		),
		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Text generation provider call duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"outcome"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// Handler serves the collector's registry in Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ConfigReloaded records a config reload attempt.
func (c *Collector) ConfigReloaded(err error) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.SetToCurrentTime()
}

// AuthFailure records a rejected identity token.
func (c *Collector) AuthFailure(reason string) {
	c.AuthFailures.WithLabelValues(reason).Inc()
}

// EntitlementDecision implements ports.Metrics.
func (c *Collector) EntitlementDecision(reason string, allowed bool) {
	c.EntitlementDecisions.WithLabelValues(reason, strconv.FormatBool(allowed)).Inc()
}

// UsageIncrement implements ports.Metrics.
func (c *Collector) UsageIncrement(tier string) {
	c.UsageIncrements.WithLabelValues(tier).Inc()
}

// AdminAction implements ports.Metrics.
func (c *Collector) AdminAction(action, outcome string) {
	c.AdminActions.WithLabelValues(action, outcome).Inc()
}

// Generation implements ports.Metrics.
func (c *Collector) Generation(outcome string, d time.Duration) {
	c.GenerationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// PricingFallback implements ports.Metrics.
func (c *Collector) PricingFallback(source string) {
	c.PricingFallbacks.WithLabelValues(source).Inc()
}

// Ensure interface compliance.
var _ ports.Metrics = (*Collector)(nil)
