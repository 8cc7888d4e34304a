// Package metrics holds the ledger's Prometheus collectors.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ledger"

// Callback failure reasons.
const (
	ReasonMalformed = "malformed"
	ReasonAborted   = "aborted"
	ReasonStale     = "stale"
	ReasonStore     = "store"
)

type Metrics struct {
	Dispatched       *prometheus.CounterVec
	DispatchFailures *prometheus.CounterVec
	Settled          *prometheus.CounterVec
	CallbackFailures *prometheus.CounterVec
	SettleDuration   prometheus.Histogram
	Pending          prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what tests running several ledgers want.
func New(reg prometheus.Registerer) (*Metrics, error) { // A
	m := &Metrics{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatched_total",
			Help:      "Computations queued with the cluster, by kind",
		}, []string{"kind"}),
		DispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_failures_total",
			Help:      "Computations the cluster refused to queue, by kind",
		}, []string{"kind"}),
		Settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settled_total",
			Help:      "Callbacks settled, by kind and outcome",
		}, []string{"kind", "outcome"}),
		CallbackFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_failures_total",
			Help:      "Callbacks that did not settle, by reason",
		}, []string{"reason"}),
		SettleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "settle_duration_seconds",
			Help:      "Time spent applying a callback to the balance store",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_computations",
			Help:      "Computations queued and awaiting their callback",
		}),
	}
	if reg == nil {
		return m, nil
	}
	var errs []error
	for _, c := range []prometheus.Collector{
		m.Dispatched, m.DispatchFailures, m.Settled, m.CallbackFailures, m.SettleDuration, m.Pending,
	} {
		errs = append(errs, reg.Register(c))
	}
	return m, errors.Join(errs...)
}

// ObserveSettle records how long a settlement took since start.
func (m *Metrics) ObserveSettle(start time.Time) {
	m.SettleDuration.Observe(time.Since(start).Seconds())
}
