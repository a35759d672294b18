package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"windturbine/turbine-common/models"
	"windturbine/turbine-common/pubsub"
	"windturbine/turbine-simulator/internal/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memBroker 进程内通道，按主题直接回调订阅者
type memBroker struct {
	mu       sync.Mutex
	handlers map[string]pubsub.Handler
	sent     map[string][][]byte
	closed   bool
}

func newMemBroker() *memBroker {
	return &memBroker{handlers: map[string]pubsub.Handler{}, sent: map[string][][]byte{}}
}

func (b *memBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	b.sent[topic] = append(b.sent[topic], payload)
	h := b.handlers[topic]
	b.mu.Unlock()
	if h != nil {
		_ = h(topic, payload)
	}
	return nil
}

func (b *memBroker) Subscribe(_ context.Context, topic string, handler pubsub.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *memBroker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		delete(b.handlers, t)
	}
	return nil
}

func (b *memBroker) IsConnected() bool { return true }

func (b *memBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *memBroker) last(topic string) (models.SensorReading, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.sent[topic]
	if len(msgs) == 0 {
		return models.SensorReading{}, false
	}
	r, err := models.DecodeReading(msgs[len(msgs)-1])
	return r, err == nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Topics.Sensor = "windturbine/sensors"
	cfg.Topics.Control = "windturbine/control"
	cfg.Simulator.PublishInterval = 5 * time.Millisecond
	cfg.Simulator.BaseWind = 8
	cfg.MetricsAddr = "127.0.0.1:0"
	return cfg
}

func TestSimulatorService_PublishesAndObeysCommands(t *testing.T) {
	b := newMemBroker()
	s := NewSimulatorServiceWithBroker(testConfig(), b, zap.NewNop())
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		r, ok := b.last("windturbine/sensors")
		return ok && r.Status != models.StatusPoweredOff
	}, time.Second, 5*time.Millisecond)

	cmd, _ := json.Marshal(models.NewPowerCommand(false))
	require.NoError(t, b.Publish(context.Background(), "windturbine/control", cmd))

	require.Eventually(t, func() bool {
		r, ok := b.last("windturbine/sensors")
		return ok && r.Status == models.StatusPoweredOff
	}, time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + s.MetricsAddr() + "/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	require.Equal(t, "ok", health["status"])
	require.Equal(t, "turbine-simulator", health["service"])
	require.Equal(t, true, health["brokerConnected"])

	resp, err = http.Get("http://" + s.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), `turbine_simulator_commands_total{action="power"} 1`)

	require.NoError(t, s.Stop(context.Background()))
	require.True(t, b.closed)
}

func TestSimulatorService_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsAddr = ""
	s := NewSimulatorServiceWithBroker(cfg, newMemBroker(), zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	require.Empty(t, s.MetricsAddr())
	require.NoError(t, s.Stop(context.Background()))
}
