// Package metrics exposes the operational counters/gauges a DPU operator
// would want for this server: in-flight async ops, dispatch errors by
// opcode, and inode-table size. Grounded on gcsfuse's use of
// github.com/prometheus/client_golang, trimmed to a plain registry with no
// opencensus/stackdriver/otel exporter layered on top (see DESIGN.md) —
// there is no GCP-specific telemetry backend for a DPU-resident server to
// ship to.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the process-wide set of collectors this server registers.
// Constructed once at startup and threaded into the component that
// updates it (the dispatcher and its read/write completion path); the
// inode-table size is polled through the function passed to New.
type Metrics struct {
	Registry *prometheus.Registry

	DispatchTotal  *prometheus.CounterVec
	DispatchErrors *prometheus.CounterVec
	AsyncInFlight  prometheus.Gauge
	InodeTableSize prometheus.GaugeFunc
}

// New constructs and registers every collector. tableSize is polled
// on-demand by the InodeTableSize gauge rather than pushed, so the table
// never has to remember to update a metric on every insert/erase.
func New(tableSize func() int) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dpfs_dispatch_total",
			Help: "Total number of dispatched requests, by opcode.",
		}, []string{"op"}),
		DispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dpfs_dispatch_errors_total",
			Help: "Total number of dispatched requests that returned a non-zero errno, by opcode.",
		}, []string{"op"}),
		AsyncInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dpfs_async_inflight",
			Help: "Number of read/write requests submitted to the async I/O ring and not yet reaped.",
		}),
	}
	m.InodeTableSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dpfs_inode_table_size",
		Help: "Number of live records in the inode table.",
	}, func() float64 { return float64(tableSize()) })

	reg.MustRegister(m.DispatchTotal, m.DispatchErrors, m.AsyncInFlight, m.InodeTableSize)
	return m
}

// ObserveDispatch records one Dispatch call's opcode and whether it
// produced a non-zero errno.
func (m *Metrics) ObserveDispatch(op string, errno int32) {
	m.DispatchTotal.WithLabelValues(op).Inc()
	if errno != 0 {
		m.DispatchErrors.WithLabelValues(op).Inc()
	}
}
