package redis

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"windturbine/turbine-common/config"
	"windturbine/turbine-common/pubsub"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBroker_ClosedRejectsOperations(t *testing.T) {
	b := NewBroker(&config.RedisConfig{Addr: "127.0.0.1:1"}, time.Millisecond, zap.NewNop())
	require.NoError(t, b.Close())

	err := b.Publish(context.Background(), "windturbine/control", []byte(`{}`))
	require.True(t, errors.Is(err, pubsub.ErrClosed))

	err = b.Subscribe(context.Background(), "windturbine/sensors", func(string, []byte) error { return nil })
	require.True(t, errors.Is(err, pubsub.ErrClosed))
	require.False(t, b.IsConnected())
}

func TestBroker_SubscribeRetriesUntilClosed(t *testing.T) {
	b := NewBroker(&config.RedisConfig{Addr: "127.0.0.1:1"}, 5*time.Millisecond, zap.NewNop())

	require.NoError(t, b.Subscribe(context.Background(), "windturbine/sensors", func(string, []byte) error { return nil }))
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = b.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the retrying subscription")
	}
}

func TestBroker_PublishSubscribeRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	b := NewBroker(&config.RedisConfig{Addr: mr.Addr()}, 5*time.Millisecond, zap.NewNop())
	defer b.Close()

	require.Eventually(t, b.IsConnected, time.Second, 5*time.Millisecond)

	received := make(chan string, 16)
	require.NoError(t, b.Subscribe(context.Background(), "windturbine/sensors", func(topic string, payload []byte) error {
		received <- topic + " " + string(payload)
		return nil
	}))

	// 订阅在后台建立，重复发布直到收到
	require.Eventually(t, func() bool {
		_ = b.Publish(context.Background(), "windturbine/sensors", []byte(`{"power":1}`))
		select {
		case msg := <-received:
			return msg == `windturbine/sensors {"power":1}`
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Unsubscribe("windturbine/sensors"))
}

func TestBroker_IsConnectedFollowsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	b := NewBroker(&config.RedisConfig{Addr: mr.Addr()}, 5*time.Millisecond, zap.NewNop())
	defer b.Close()

	require.Eventually(t, b.IsConnected, time.Second, 5*time.Millisecond)
	mr.Close()
	require.Eventually(t, func() bool { return !b.IsConnected() }, time.Second, 5*time.Millisecond)
}

func TestBroker_IsConnectedDoesNotBlock(t *testing.T) {
	// 接受连接但从不应答，PING 会一直等到超时
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	b := NewBroker(&config.RedisConfig{Addr: ln.Addr().String()}, time.Second, zap.NewNop())
	defer b.Close()

	for i := 0; i < 10; i++ {
		start := time.Now()
		require.False(t, b.IsConnected())
		require.Less(t, time.Since(start), 50*time.Millisecond)
	}
}

func TestNewBroker_DialTimeoutFollowsInterval(t *testing.T) {
	cfg := &config.RedisConfig{Addr: "127.0.0.1:1", Password: "secret", DB: 2}

	b := NewBroker(cfg, 300*time.Millisecond, zap.NewNop())
	defer b.Close()

	opts := b.client.Options()
	require.Equal(t, "127.0.0.1:1", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 300*time.Millisecond, opts.DialTimeout)

	require.Equal(t, minCheckTimeout, checkTimeout(time.Millisecond))
	require.Equal(t, maxCheckTimeout, checkTimeout(time.Minute))
	require.Equal(t, maxCheckTimeout, checkTimeout(0))
}
