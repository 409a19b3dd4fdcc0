package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports per-tick simulation metrics to Prometheus. Labels are
// bounded: phase names and event types only.
type Metrics struct {
	registry *prometheus.Registry

	tickDuration  prometheus.Histogram
	phaseDuration *prometheus.HistogramVec
	boids         prometheus.Gauge
	attacking     prometheus.Gauge
	bullets       prometheus.Gauge
	wave          prometheus.Gauge
	meanNeighbors prometheus.Gauge
	events        *prometheus.CounterVec
	flockRejected prometheus.Counter
}

// NewMetrics creates metrics on a fresh registry with the Go and process
// collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "swarm_tick_duration_seconds",
			Help:    "Time spent in a simulation tick",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.016, 0.033, 0.05, 0.1},
		}),
		phaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "swarm_phase_duration_seconds",
			Help:    "Time spent in each tick phase",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}, []string{"phase"}),
		boids: f.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_boids",
			Help: "Current number of boids",
		}),
		attacking: f.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_boids_attacking",
			Help: "Current number of attacking boids",
		}),
		bullets: f.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_bullets",
			Help: "Current number of bullets in flight",
		}),
		wave: f.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_wave",
			Help: "Current wave number",
		}),
		meanNeighbors: f.NewGauge(prometheus.GaugeOpts{
			Name: "swarm_mean_neighbors",
			Help: "Mean neighbor count of active boids in the last flock step",
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_events_total",
			Help: "Simulation events by type",
		}, []string{"type"}),
		flockRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "swarm_flock_rejected_total",
			Help: "Agents passed through a flock step because their state was not finite",
		}),
	}
}

// Registry returns the registry metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTick records the timing of one tick.
func (m *Metrics) ObserveTick(sample PerfSample) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(sample.TickDuration.Seconds())
	for phase, d := range sample.Phases {
		m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	}
}

// ObserveFrame updates gauges and counters from a trace frame.
func (m *Metrics) ObserveFrame(fr Frame) {
	if m == nil {
		return
	}
	m.boids.Set(float64(fr.Boids))
	m.attacking.Set(float64(fr.Attacking))
	m.bullets.Set(float64(fr.Bullets))
	m.wave.Set(float64(fr.Wave))
	m.meanNeighbors.Set(fr.MeanNeighbors)
	m.flockRejected.Add(float64(fr.Rejected))
	for _, ev := range fr.Events {
		m.events.WithLabelValues(ev.Type.String()).Add(float64(ev.Count))
	}
}
