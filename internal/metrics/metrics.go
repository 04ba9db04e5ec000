// Package metrics collects and exposes Prometheus metrics for engine runs
// and channel sends.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records counters and latencies for the engine and its clients.
type Collector struct {
	runsTotal    *prometheus.CounterVec
	runDuration  prometheus.Histogram
	itemsNew     prometheus.Counter
	sendsTotal   *prometheus.CounterVec
	portalStatus *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewCollector creates a Collector backed by its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenderwatch_runs_total",
			Help: "Engine runs by terminal result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tenderwatch_run_duration_seconds",
			Help:    "Wall-clock duration of one engine run.",
			Buckets: prometheus.DefBuckets,
		}),
		itemsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenderwatch_items_new_total",
			Help: "New listing items accepted past the idempotency ledger.",
		}),
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenderwatch_sends_total",
			Help: "Notification dispatches by channel and status.",
		}, []string{"channel", "status"}),
		portalStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenderwatch_portal_responses_total",
			Help: "Portal responses by HTTP status code.",
		}, []string{"status_code"}),
		registry: registry,
	}

	registry.MustRegister(c.runsTotal, c.runDuration, c.itemsNew, c.sendsTotal, c.portalStatus)
	return c
}

// RecordRun counts one finished run and its duration.
func (c *Collector) RecordRun(result string, duration time.Duration) {
	c.runsTotal.WithLabelValues(result).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// RecordNewItems counts items that passed the ledger as new.
func (c *Collector) RecordNewItems(count int) {
	c.itemsNew.Add(float64(count))
}

// RecordSend counts one dispatch attempt.
func (c *Collector) RecordSend(channel string, success bool) {
	status := "failed"
	if success {
		status = "sent"
	}
	c.sendsTotal.WithLabelValues(channel, status).Inc()
}

// RecordPortalStatus counts one upstream response.
func (c *Collector) RecordPortalStatus(code int) {
	c.portalStatus.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Handler exposes the registry for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
