package runtime

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/wasmvm/errors"
)

// Metrics instruments a Runtime. A nil *Metrics records nothing.
type Metrics struct {
	invocations   *prometheus.CounterVec
	traps         *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	cachedModules prometheus.Gauge
}

// NewMetrics creates the runtime collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wasmvm_invocations_total",
				Help: "Counter for export invocations by function name."},
			[]string{"function"},
		),
		traps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wasmvm_traps_total",
				Help: "Counter for invocations that ended in a trap, by trap kind."},
			[]string{"kind"},
		),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wasmvm_invocation_duration_seconds",
			Help:    "Histogram for export invocation duration.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"function"}),
		cachedModules: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wasmvm_cached_modules",
				Help: "Gauge for compiled modules held in the cache."},
		),
	}
	for _, c := range []prometheus.Collector{m.invocations, m.traps, m.duration, m.cachedModules} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindRegistration, err, "register metrics")
		}
	}
	return m, nil
}

func (m *Metrics) observeCall(name string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(name).Inc()
	m.duration.WithLabelValues(name).Observe(d.Seconds())
	if trap, ok := errors.AsTrap(err); ok {
		m.traps.WithLabelValues(string(trap.Kind)).Inc()
	}
}

func (m *Metrics) setCached(n int) {
	if m == nil {
		return
	}
	m.cachedModules.Set(float64(n))
}
