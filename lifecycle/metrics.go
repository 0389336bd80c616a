package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"

	"sps30"
)

// Metrics is optional. Nil *Metrics is valid and records nothing
type Metrics struct {
	probeAttempts prometheus.Counter
	failures      *prometheus.CounterVec
	readings      *prometheus.CounterVec
	concentration *prometheus.GaugeVec
	state         prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	result := &Metrics{
		probeAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sps30_probe_attempts_total",
			Help: "Probe attempts made against the sensor.",
		}),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sps30_operation_failures_total",
				Help: "Failed sensor and transport operations.",
			},
			[]string{"operation"},
		),
		readings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sps30_readings_total",
				Help: "Successful measurement reads.",
			},
			[]string{"degraded"},
		),
		concentration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sps30_measurement",
				Help: "Latest measurement value per field.",
			},
			[]string{"field"},
		),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sps30_lifecycle_state",
			Help: "Current lifecycle state of the controller.",
		}),
	}
	for _, c := range []prometheus.Collector{result.probeAttempts, result.failures, result.readings, result.concentration, result.state} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (p *Metrics) probeAttempt() {
	if p == nil {
		return
	}
	p.probeAttempts.Inc()
}

func (p *Metrics) failure(op Operation) {
	if p == nil {
		return
	}
	p.failures.WithLabelValues(op.String()).Inc()
}

func (p *Metrics) reading(m sps30.Measurement, degraded bool) {
	if p == nil {
		return
	}
	if degraded {
		p.readings.WithLabelValues("true").Inc()
	} else {
		p.readings.WithLabelValues("false").Inc()
	}
	for i, v := range m.Values() {
		p.concentration.WithLabelValues(sps30.FieldNames[i]).Set(float64(v))
	}
}

func (p *Metrics) setState(s State) {
	if p == nil {
		return
	}
	p.state.Set(float64(s))
}
