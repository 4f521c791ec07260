// Package metrics implements the observability hooks with Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tim-sandbox/barista/pkg/observability"
)

const namespace = "barista"

// Collector records scan, cache and registry client events.
type Collector struct {
	registry *prometheus.Registry

	scansQueued   *prometheus.CounterVec
	scansActive   *prometheus.GaugeVec
	scansTotal    *prometheus.CounterVec
	scanDuration  *prometheus.HistogramVec
	fetchDuration *prometheus.HistogramVec
	dependencies  *prometheus.HistogramVec

	cacheEvents *prometheus.CounterVec
	cacheBytes  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec
}

// New creates a Collector on a fresh registry with the Go and process
// collectors registered.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg)
}

// NewWithRegistry creates a Collector registering into reg.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	c := &Collector{
		registry: reg,
		scansQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "queued_total",
			Help: "Scans created in the pending state.",
		}, []string{"package_manager"}),
		scansActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scan", Name: "running",
			Help: "Scans currently in the running state.",
		}, []string{"package_manager"}),
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scan", Name: "finished_total",
			Help: "Scans that reached a terminal state.",
		}, []string{"package_manager", "state"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scan", Name: "duration_seconds",
			Help:    "Wall-clock time from running to terminal state.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"package_manager", "state"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "duration_seconds",
			Help:    "Dependency fetcher run time.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"package_manager", "result"}),
		dependencies: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "fetch", Name: "dependencies",
			Help:    "Dependencies reported per successful fetch.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"package_manager"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "events_total",
			Help: "Cache hits, misses and writes.",
		}, []string{"kind", "event"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "written_bytes_total",
			Help: "Bytes written to the cache.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http_client", Name: "requests_total",
			Help: "Outgoing registry and advisory requests by status code.",
		}, []string{"host", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http_client", Name: "request_duration_seconds",
			Help:    "Outgoing request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"host"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http_client", Name: "errors_total",
			Help: "Outgoing requests that failed before a response.",
		}, []string{"host"}),
	}
	reg.MustRegister(
		c.scansQueued, c.scansActive, c.scansTotal, c.scanDuration,
		c.fetchDuration, c.dependencies,
		c.cacheEvents, c.cacheBytes,
		c.httpRequests, c.httpDuration, c.httpErrors,
	)
	return c
}

// Register installs c as the scan, cache and HTTP hooks.
func (c *Collector) Register() {
	observability.SetScanHooks(c)
	observability.SetCacheHooks(c)
	observability.SetHTTPHooks(c)
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) OnScanQueued(_ context.Context, _ int64, pm string) {
	c.scansQueued.WithLabelValues(pm).Inc()
}

func (c *Collector) OnScanStart(_ context.Context, _ int64, pm string) {
	c.scansActive.WithLabelValues(pm).Inc()
}

func (c *Collector) OnScanComplete(_ context.Context, _ int64, pm, state string, d time.Duration, _ error) {
	c.scansActive.WithLabelValues(pm).Dec()
	c.scansTotal.WithLabelValues(pm, state).Inc()
	c.scanDuration.WithLabelValues(pm, state).Observe(d.Seconds())
}

func (c *Collector) OnFetchComplete(_ context.Context, pm string, deps int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	} else {
		c.dependencies.WithLabelValues(pm).Observe(float64(deps))
	}
	c.fetchDuration.WithLabelValues(pm, result).Observe(d.Seconds())
}

func (c *Collector) OnCacheHit(_ context.Context, kind string) {
	c.cacheEvents.WithLabelValues(kind, "hit").Inc()
}

func (c *Collector) OnCacheMiss(_ context.Context, kind string) {
	c.cacheEvents.WithLabelValues(kind, "miss").Inc()
}

func (c *Collector) OnCacheSet(_ context.Context, kind string, size int) {
	c.cacheEvents.WithLabelValues(kind, "set").Inc()
	c.cacheBytes.WithLabelValues(kind).Add(float64(size))
}

func (c *Collector) OnRequest(context.Context, string, string, string) {}

func (c *Collector) OnResponse(_ context.Context, method, host, _ string, code int, d time.Duration) {
	c.httpRequests.WithLabelValues(host, method, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(host).Observe(d.Seconds())
}

func (c *Collector) OnError(_ context.Context, _, host, _ string, _ error) {
	c.httpErrors.WithLabelValues(host).Inc()
}

var (
	_ observability.ScanHooks  = (*Collector)(nil)
	_ observability.CacheHooks = (*Collector)(nil)
	_ observability.HTTPHooks  = (*Collector)(nil)
)
