// Package metrics exposes gateway counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/accessgate/internal/access"
	"github.com/ppiankov/accessgate/internal/model"
)

const namespace = "accessgate"

// Source supplies the evaluator summary read at scrape time.
type Source interface {
	Metrics() access.Metrics
}

// Recorder owns a private registry with decision, latency and RPC metrics.
type Recorder struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	rpcs      *prometheus.CounterVec
}

// New registers the gateway metrics. src and auditLen may be nil.
func New(src Source, auditLen func() int) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Access decisions by tenant and outcome.",
			},
			[]string{"tenant", "decision"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Time to evaluate and audit one request.",
				Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
			},
			[]string{"decision"},
		),
		rpcs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grpc_requests_total",
				Help:      "gRPC requests by method and status code.",
			},
			[]string{"method", "code"},
		),
	}
	r.registry.MustRegister(
		r.decisions,
		r.latency,
		r.rpcs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if src != nil || auditLen != nil {
		r.registry.MustRegister(&snapshotCollector{src: src, auditLen: auditLen})
	}
	return r
}

// ObserveDecision records one evaluation.
func (r *Recorder) ObserveDecision(tenant string, d model.Decision, elapsed time.Duration) {
	r.decisions.WithLabelValues(tenant, string(d)).Inc()
	r.latency.WithLabelValues(string(d)).Observe(elapsed.Seconds())
}

// ObserveRPC records one gRPC call.
func (r *Recorder) ObserveRPC(method, code string) {
	r.rpcs.WithLabelValues(method, code).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var (
	descActivePolicies = prometheus.NewDesc(
		namespace+"_active_policies", "Enabled policies in the store.", nil, nil)
	descTenantsEncrypted = prometheus.NewDesc(
		namespace+"_tenants_encrypted", "Tenants with encryption key metadata.", nil, nil)
	descRequests24h = prometheus.NewDesc(
		namespace+"_requests_24h", "Audited requests in the trailing 24 hours.", nil, nil)
	descDenials24h = prometheus.NewDesc(
		namespace+"_denials_24h", "Audited denials in the trailing 24 hours.", nil, nil)
	descAuditEntries = prometheus.NewDesc(
		namespace+"_audit_entries", "Entries retained in the in-memory audit chain.", nil, nil)
)

// snapshotCollector reads the evaluator summary once per scrape.
type snapshotCollector struct {
	src      Source
	auditLen func() int
}

func (c *snapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descActivePolicies
	ch <- descTenantsEncrypted
	ch <- descRequests24h
	ch <- descDenials24h
	ch <- descAuditEntries
}

func (c *snapshotCollector) Collect(ch chan<- prometheus.Metric) {
	if c.src != nil {
		m := c.src.Metrics()
		ch <- prometheus.MustNewConstMetric(descActivePolicies, prometheus.GaugeValue, float64(m.ActivePolicies))
		ch <- prometheus.MustNewConstMetric(descTenantsEncrypted, prometheus.GaugeValue, float64(m.TenantsEncrypted))
		ch <- prometheus.MustNewConstMetric(descRequests24h, prometheus.GaugeValue, float64(m.Requests24h))
		ch <- prometheus.MustNewConstMetric(descDenials24h, prometheus.GaugeValue, float64(m.Denials24h))
	}
	if c.auditLen != nil {
		ch <- prometheus.MustNewConstMetric(descAuditEntries, prometheus.GaugeValue, float64(c.auditLen()))
	}
}
