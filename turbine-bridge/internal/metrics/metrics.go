package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 桥接服务指标，实现 hub.Observer、command.Observer 与 consumer.Observer
type Metrics struct {
	registry *prometheus.Registry

	ConnectedClients prometheus.Gauge
	ReadingsTotal    prometheus.Counter
	MalformedTotal   prometheus.Counter
	EvictionsTotal   prometheus.Counter
	CommandsTotal    *prometheus.CounterVec
}

// New 创建并注册指标
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "turbine_bridge_connected_clients",
			Help: "Currently connected viewers",
		}),
		ReadingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turbine_bridge_readings_broadcast_total",
			Help: "Sensor readings broadcast to viewers",
		}),
		MalformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turbine_bridge_malformed_readings_total",
			Help: "Sensor payloads dropped because they failed to decode",
		}),
		EvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turbine_bridge_client_evictions_total",
			Help: "Viewers closed because their send buffer was full",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turbine_bridge_commands_total",
			Help: "Control commands by result",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.ConnectedClients,
		m.ReadingsTotal,
		m.MalformedTotal,
		m.EvictionsTotal,
		m.CommandsTotal,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ClientsChanged(n int) { m.ConnectedClients.Set(float64(n)) }

func (m *Metrics) Broadcasted() { m.ReadingsTotal.Inc() }

func (m *Metrics) Evicted() { m.EvictionsTotal.Inc() }

func (m *Metrics) Malformed() { m.MalformedTotal.Inc() }

func (m *Metrics) Command(result string) { m.CommandsTotal.WithLabelValues(result).Inc() }
