// Package telemetry exposes the portal's Prometheus metrics: HTTP server
// metrics recorded by middleware plus counters for validation, bundle import,
// export generation, MFA verification and audit writes.
//
// Every recording method is safe to call on a nil *Collector so callers can
// run without metrics (tests, CLI commands).
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the registered metric vectors.
type Collector struct {
	gatherer prometheus.Gatherer

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	ValidationsTotal   *prometheus.CounterVec
	ImportsTotal       *prometheus.CounterVec
	ImportEntriesTotal *prometheus.CounterVec
	ExportsTotal       *prometheus.CounterVec
	MFAVerifications   *prometheus.CounterVec
	AuditEntriesTotal  prometheus.Counter
}

// NewCollector registers the portal metrics on reg under the given namespace.
// A nil reg uses a fresh registry.
func NewCollector(namespace string, reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Collector{
		gatherer: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route", "status"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		ValidationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fhir",
			Name:      "validations_total",
			Help:      "Resources validated by resource type and result.",
		}, []string{"resource_type", "result"}),

		ImportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fhir",
			Name:      "imports_total",
			Help:      "Bundle import calls by outcome.",
		}, []string{"outcome"}),

		ImportEntriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fhir",
			Name:      "import_entries_total",
			Help:      "Imported bundle entries by status.",
		}, []string{"status"}),

		ExportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "generated_total",
			Help:      "Generated export files by format.",
		}, []string{"format"}),

		MFAVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "mfa_verifications_total",
			Help:      "TOTP verification attempts by result.",
		}, []string{"result"}),

		AuditEntriesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Total audit trail entries written.",
		}),
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// ObserveValidation counts one validated resource.
func (c *Collector) ObserveValidation(resourceType string, valid bool) {
	if c == nil {
		return
	}
	if resourceType == "" {
		resourceType = "unknown"
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	c.ValidationsTotal.WithLabelValues(resourceType, result).Inc()
}

// ObserveImport counts one import call and its processed/error entries.
func (c *Collector) ObserveImport(outcome string, processed, failed int) {
	if c == nil {
		return
	}
	c.ImportsTotal.WithLabelValues(outcome).Inc()
	c.ImportEntriesTotal.WithLabelValues("processed").Add(float64(processed))
	c.ImportEntriesTotal.WithLabelValues("error").Add(float64(failed))
}

// ObserveExport counts one generated export file.
func (c *Collector) ObserveExport(format string) {
	if c == nil {
		return
	}
	c.ExportsTotal.WithLabelValues(format).Inc()
}

// ObserveMFA counts one TOTP verification attempt.
func (c *Collector) ObserveMFA(ok bool) {
	if c == nil {
		return
	}
	result := "rejected"
	if ok {
		result = "accepted"
	}
	c.MFAVerifications.WithLabelValues(result).Inc()
}

// ObserveAuditEntry counts one audit trail write.
func (c *Collector) ObserveAuditEntry() {
	if c == nil {
		return
	}
	c.AuditEntriesTotal.Inc()
}

// MetricsMiddleware records request count, latency and in-flight requests.
// The route label uses the registered path pattern, never the raw URL.
func (c *Collector) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if c == nil {
				return next(ctx)
			}
			c.InFlightGauge.Inc()
			defer c.InFlightGauge.Dec()

			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}
			status := strconv.Itoa(ctx.Response().Status)
			method := ctx.Request().Method

			c.RequestsTotal.WithLabelValues(method, route, status).Inc()
			c.RequestDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}
