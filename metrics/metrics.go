package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "ethtx"

type Metrics struct {
	ns       string
	registry *prometheus.Registry

	gasEstimates      *prometheus.HistogramVec
	ceilingRejections *prometheus.CounterVec

	submissions        *prometheus.CounterVec
	submissionDuration *prometheus.HistogramVec

	attachments  *prometheus.CounterVec
	stateChanges prometheus.Counter

	info prometheus.GaugeVec
	up   prometheus.Gauge
}

var _ Metricer = (*Metrics)(nil)

func NewMetrics(procName string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return newMetrics(procName, registry)
}

func newMetrics(procName string, registry *prometheus.Registry) *Metrics {
	if procName == "" {
		procName = "default"
	}
	ns := Namespace + "_" + procName

	factory := promauto.With(registry)
	return &Metrics{
		ns:       ns,
		registry: registry,

		info: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "info",
			Help:      "Pseudo-metric tracking version and config info",
		}, []string{
			"version",
		}),
		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "up",
			Help:      "1 if ethtx has finished starting up",
		}),

		gasEstimates: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "gas_estimate",
			Help:      "Gas estimates returned by the chain client",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 10),
		}, []string{"kind"}),
		ceilingRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "gas_ceiling_rejections_total",
			Help:      "Count of operations rejected because their estimate reached the gas ceiling",
		}, []string{"kind"}),

		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "submissions_total",
			Help:      "Count of submitted transactions",
		}, []string{"kind", "err"}),
		submissionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "submission_duration_seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			Help:      "Duration it takes to submit a transaction",
		}, []string{"kind"}),

		attachments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "attachments_total",
			Help:      "Count of chain client attachments",
		}, []string{"generation"}),
		stateChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "connection_changes_total",
			Help:      "Count of observed connection state changes",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordInfo sets a pseudo-metric that contains versioning and config info.
func (m *Metrics) RecordInfo(version string) {
	m.info.WithLabelValues(version).Set(1)
}

// RecordUp sets the up metric to 1.
func (m *Metrics) RecordUp() {
	m.up.Set(1)
}

func (m *Metrics) RecordGasEstimate(kind string, gas uint64) {
	m.gasEstimates.WithLabelValues(kind).Observe(float64(gas))
}

func (m *Metrics) RecordCeilingRejection(kind string) {
	m.ceilingRejections.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordSubmission(kind string) (onDone func(err error)) {
	timer := prometheus.NewTimer(m.submissionDuration.WithLabelValues(kind))
	return func(err error) {
		timer.ObserveDuration()
		errStr := "success"
		if err != nil {
			errStr = "failed"
		}
		m.submissions.WithLabelValues(kind, errStr).Inc()
	}
}

func (m *Metrics) RecordAttach(generation string) {
	m.attachments.WithLabelValues(generation).Inc()
}

func (m *Metrics) RecordConnectionChange() {
	m.stateChanges.Inc()
}
