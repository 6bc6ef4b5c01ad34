package kubernetes

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics records control-plane traffic. A nil *Metrics records nothing.
type Metrics struct {
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	decodeOutcomes  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. Collectors that are already
// registered (a second Metrics on the same registry) are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "executor_provisioner",
			Subsystem: "controlplane",
			Name:      "requests_total",
			Help:      "Control-plane HTTP exchanges by method and status.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "executor_provisioner",
			Subsystem: "controlplane",
			Name:      "request_duration_seconds",
			Help:      "Latency of control-plane HTTP exchanges.",
			Buckets:   histogramBuckets,
		}, []string{"method"}),
		decodeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "executor_provisioner",
			Subsystem: "controlplane",
			Name:      "decode_outcomes_total",
			Help:      "Response decode outcomes by operation.",
		}, []string{"operation", "outcome"}),
	}

	m.requestTotal = registerCounter(reg, m.requestTotal)
	m.decodeOutcomes = registerCounter(reg, m.decodeOutcomes)
	if err := reg.Register(m.requestDuration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				m.requestDuration = existing
			}
		}
	}
	return m
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

// observeRequest records one exchange. status is 0 when the exchange failed in transport.
func (m *Metrics) observeRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requestTotal.WithLabelValues(method, label).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) observeOutcome(operation string, kind OutcomeKind) {
	if m == nil {
		return
	}
	m.decodeOutcomes.WithLabelValues(operation, kind.String()).Inc()
}
