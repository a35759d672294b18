package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 模拟器运行指标，实现 simulator.Observer
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal    *prometheus.CounterVec
	PublishTotal  *prometheus.CounterVec
	DroppedTotal  prometheus.Counter
	CommandsTotal *prometheus.CounterVec
	PoweredOn     prometheus.Gauge
}

// New 创建并注册指标（独立 registry，便于测试）
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbine_simulator_ticks_total",
			Help: "Total generated readings by power state",
		}, []string{"power"}),
		PublishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbine_simulator_publish_total",
			Help: "Total publish attempts by result",
		}, []string{"result"}),
		DroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turbine_simulator_dropped_readings_total",
			Help: "Readings dropped because the publish backlog was full",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbine_simulator_commands_total",
			Help: "Control commands applied by action",
		}, []string{"action"}),
		PoweredOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "turbine_simulator_powered_on",
			Help: "1 when the simulated turbine is powered on",
		}),
	}
	m.registry.MustRegister(
		m.TicksTotal,
		m.PublishTotal,
		m.DroppedTotal,
		m.CommandsTotal,
		m.PoweredOn,
	)
	return m
}

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Tick(poweredOn bool) {
	if poweredOn {
		m.TicksTotal.WithLabelValues("on").Inc()
		m.PoweredOn.Set(1)
		return
	}
	m.TicksTotal.WithLabelValues("off").Inc()
	m.PoweredOn.Set(0)
}

func (m *Metrics) Published(err error) {
	if err != nil {
		m.PublishTotal.WithLabelValues("error").Inc()
		return
	}
	m.PublishTotal.WithLabelValues("ok").Inc()
}

func (m *Metrics) Dropped() { m.DroppedTotal.Inc() }

func (m *Metrics) Command(action string) { m.CommandsTotal.WithLabelValues(action).Inc() }
