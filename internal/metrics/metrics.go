// Package metrics exports engine activity in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pumpelf.ai/internal/protocol"
	"pumpelf.ai/internal/sim/events"
)

// Metrics implements the engine observer on its own registry.
type Metrics struct {
	reg   *prometheus.Registry
	world prometheus.Labels

	commands   *prometheus.CounterVec
	events     *prometheus.CounterVec
	tick       prometheus.Gauge
	queueDepth prometheus.Gauge
}

func New(worldID string) *Metrics {
	reg := prometheus.NewRegistry()
	world := prometheus.Labels{"world": worldID}
	m := &Metrics{
		reg:   reg,
		world: world,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ranch_commands_total",
			Help:        "Processed commands by kind and result code.",
			ConstLabels: world,
		}, []string{"kind", "code"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ranch_events_total",
			Help:        "Delivered events by kind and outcome.",
			ConstLabels: world,
		}, []string{"kind", "outcome"}),
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "ranch_tick",
			Help:        "Current tick counter.",
			ConstLabels: world,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "ranch_queue_depth",
			Help:        "Pending events in the delta queue.",
			ConstLabels: world,
		}),
	}
	reg.MustRegister(m.commands, m.events, m.tick, m.queueDepth)
	return m
}

func (m *Metrics) CommandApplied(kind protocol.Kind, code protocol.Code) {
	m.commands.WithLabelValues(string(kind), code.String()).Inc()
}

func (m *Metrics) EventHandled(kind events.Kind, rearmed bool) {
	outcome := "terminal"
	if rearmed {
		outcome = "rearmed"
	}
	m.events.WithLabelValues(kind.String(), outcome).Inc()
}

func (m *Metrics) QueueChanged(tick uint64, depth int) {
	m.tick.Set(float64(tick))
	m.queueDepth.Set(float64(depth))
}

// GaugeFunc registers a gauge sampled from fn at scrape time, for counters
// owned by other components such as the index writer or the mirror.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) error {
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: m.world,
	}, fn))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
