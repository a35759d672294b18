package consumer

import (
	"context"
	"testing"

	"windturbine/turbine-common/models"
	"windturbine/turbine-common/pubsub"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscriber struct {
	handlers     map[string]pubsub.Handler
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe(_ context.Context, topic string, handler pubsub.Handler) error {
	if f.handlers == nil {
		f.handlers = map[string]pubsub.Handler{}
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

type fakeBroadcaster struct {
	readings []models.SensorReading
}

func (b *fakeBroadcaster) Broadcast(r models.SensorReading) error {
	b.readings = append(b.readings, r)
	return nil
}

type malformedCounter int

func (m *malformedCounter) Malformed() { *m++ }

func TestSensorConsumer_BroadcastsReadings(t *testing.T) {
	sub := &fakeSubscriber{}
	b := &fakeBroadcaster{}
	c := NewSensorConsumer(sub, b, "windturbine/sensors", zap.NewNop())
	require.NoError(t, c.Start(context.Background()))

	payload := `{"windSpeed":8.12,"rpm":12.3,"power":1210,"temperature":28.4,"status":"operational","timestamp":"2024-05-01T12:00:00.000Z"}`
	require.NoError(t, sub.handlers["windturbine/sensors"]("windturbine/sensors", []byte(payload)))

	require.Len(t, b.readings, 1)
	require.Equal(t, 8.12, b.readings[0].WindSpeed)
	require.Equal(t, int64(1210), b.readings[0].Power)

	require.NoError(t, c.Stop(context.Background()))
	require.Equal(t, []string{"windturbine/sensors"}, sub.unsubscribed)
}

func TestSensorConsumer_DropsMalformed(t *testing.T) {
	sub := &fakeSubscriber{}
	b := &fakeBroadcaster{}
	var count malformedCounter
	c := NewSensorConsumer(sub, b, "s", zap.NewNop())
	c.SetObserver(&count)
	require.NoError(t, c.Start(context.Background()))

	h := sub.handlers["s"]
	require.Error(t, h("s", []byte(`garbage`)))
	require.Error(t, h("s", []byte(`{"windSpeed":-1,"rpm":1,"power":1,"temperature":1,"status":"operational","timestamp":"x"}`)))
	require.Error(t, h("s", []byte(`{"windSpeed":1}`)))

	require.Empty(t, b.readings)
	require.Equal(t, malformedCounter(3), count)
}
