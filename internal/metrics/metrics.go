// Package metrics exposes cart sync counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cartsync"

// Recorder owns the collectors for one process. A nil *Recorder is valid
// and records nothing, so components can be built without metrics in tests.
type Recorder struct {
	registry *prometheus.Registry

	syncs         *prometheus.CounterVec
	syncDuration  prometheus.Histogram
	coalesced     prometheus.Counter
	staleResults  prometheus.Counter
	cartsCreated  prometheus.Counter
	pointerWrites *prometheus.CounterVec
	remoteCalls   *prometheus.CounterVec
	sessions      prometheus.Gauge
}

// New creates a Recorder with its own registry to avoid conflicts with
// default collectors.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.syncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "syncs_total",
		Help:      "Completed sync jobs by outcome kind.",
	}, []string{"outcome"})
	r.syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_duration_seconds",
		Help:      "Duration of sync jobs from resolve to reconcile.",
		Buckets:   prometheus.DefBuckets,
	})
	r.coalesced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_requests_coalesced_total",
		Help:      "Sync requests folded into the pending slot while another job ran.",
	})
	r.staleResults = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_results_total",
		Help:      "Remote results discarded because a newer local revision existed.",
	})
	r.cartsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_carts_created_total",
		Help:      "Remote carts created by the resolver.",
	})
	r.pointerWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pointer_writes_total",
		Help:      "Identity pointer writes by result.",
	}, []string{"result"})
	r.remoteCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_calls_total",
		Help:      "Cart service calls by operation and result.",
	}, []string{"op", "result"})
	r.sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Cart sessions currently held in memory.",
	})

	r.registry.MustRegister(
		r.syncs, r.syncDuration, r.coalesced, r.staleResults,
		r.cartsCreated, r.pointerWrites, r.remoteCalls, r.sessions,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) SyncCompleted(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.syncs.WithLabelValues(outcome).Inc()
	r.syncDuration.Observe(d.Seconds())
}

func (r *Recorder) SyncCoalesced() {
	if r == nil {
		return
	}
	r.coalesced.Inc()
}

func (r *Recorder) StaleResult() {
	if r == nil {
		return
	}
	r.staleResults.Inc()
}

func (r *Recorder) CartCreated() {
	if r == nil {
		return
	}
	r.cartsCreated.Inc()
}

func (r *Recorder) PointerWrite(result string) {
	if r == nil {
		return
	}
	r.pointerWrites.WithLabelValues(result).Inc()
}

func (r *Recorder) RemoteCall(op string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.remoteCalls.WithLabelValues(op, result).Inc()
}

func (r *Recorder) SessionsActive(n int) {
	if r == nil {
		return
	}
	r.sessions.Set(float64(n))
}
