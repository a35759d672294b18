package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"windturbine/turbine-common/models"
	"windturbine/turbine-common/pubsub"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	limit  int // 0 表示不限
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (c.limit > 0 && len(c.frames) >= c.limit) {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) received(t *testing.T) []int64 {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.frames))
	for _, f := range c.frames {
		var r models.SensorReading
		require.NoError(t, json.Unmarshal(f, &r))
		out = append(out, r.Power)
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type countingObserver struct {
	mu      sync.Mutex
	clients int
	evicted int
	sent    int
}

func (o *countingObserver) ClientsChanged(n int) {
	o.mu.Lock()
	o.clients = n
	o.mu.Unlock()
}

func (o *countingObserver) Broadcasted() {
	o.mu.Lock()
	o.sent++
	o.mu.Unlock()
}

func (o *countingObserver) Evicted() {
	o.mu.Lock()
	o.evicted++
	o.mu.Unlock()
}

func TestHub_NoReplayBeforeFirstReading(t *testing.T) {
	h := New(60, zap.NewNop())
	c := &fakeConn{id: "a"}
	require.NoError(t, h.Register(c))

	require.Empty(t, c.received(t))
	_, ok := h.Latest()
	require.False(t, ok)
}

func TestHub_ReplaysLatestOnRegister(t *testing.T) {
	h := New(60, zap.NewNop())
	require.NoError(t, h.Broadcast(reading(1)))
	require.NoError(t, h.Broadcast(reading(2)))

	c := &fakeConn{id: "late"}
	require.NoError(t, h.Register(c))
	require.Equal(t, []int64{2}, c.received(t))

	require.NoError(t, h.Broadcast(reading(3)))
	require.Equal(t, []int64{2, 3}, c.received(t))
}

func TestHub_FanOutSurvivesFailingClient(t *testing.T) {
	obs := &countingObserver{}
	h := New(60, zap.NewNop())
	h.SetObserver(obs)

	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b", limit: 1}
	c := &fakeConn{id: "c"}
	for _, conn := range []*fakeConn{a, b, c} {
		require.NoError(t, h.Register(conn))
	}

	require.NoError(t, h.Broadcast(reading(1)))
	require.NoError(t, h.Broadcast(reading(2)))
	require.NoError(t, h.Broadcast(reading(3)))

	require.Equal(t, []int64{1, 2, 3}, a.received(t))
	require.Equal(t, []int64{1, 2, 3}, c.received(t))
	require.Equal(t, []int64{1}, b.received(t))
	require.True(t, b.isClosed())
	require.Equal(t, 2, h.ConnectedClients())

	obs.mu.Lock()
	require.Equal(t, 1, obs.evicted)
	require.Equal(t, 3, obs.sent)
	require.Equal(t, 2, obs.clients)
	obs.mu.Unlock()
}

func TestHub_ConcurrentBroadcastKeepsOrderPerClient(t *testing.T) {
	h := New(60, zap.NewNop())
	c := &fakeConn{id: "a"}
	require.NoError(t, h.Register(c))

	// 单一生产者顺序到达，并发读取 Latest/History 不影响顺序
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.Latest()
			h.History()
			h.ConnectedClients()
		}
	}()
	for i := int64(1); i <= 100; i++ {
		require.NoError(t, h.Broadcast(reading(i)))
	}
	wg.Wait()

	got := c.received(t)
	require.Len(t, got, 100)
	for i, p := range got {
		require.Equal(t, int64(i+1), p)
	}
}

func TestHub_ConcurrentRegisterSeesEachReadingOnce(t *testing.T) {
	h := New(60, zap.NewNop())
	conns := make([]*fakeConn, 20)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(1); i <= 50; i++ {
			_ = h.Broadcast(reading(i))
		}
	}()
	for i := range conns {
		conns[i] = &fakeConn{id: fmt.Sprintf("c%d", i)}
		require.NoError(t, h.Register(conns[i]))
	}
	wg.Wait()

	for _, c := range conns {
		got := c.received(t)
		for i := 1; i < len(got); i++ {
			require.Equal(t, got[i-1]+1, got[i], "gap or duplicate for %s: %v", c.id, got)
		}
	}
}

func TestHub_HistoryWindow(t *testing.T) {
	h := New(3, zap.NewNop())
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, h.Broadcast(reading(i)))
	}

	rs, capacity := h.History()
	require.Equal(t, 3, capacity)
	require.Equal(t, []int64{3, 4, 5}, powers(rs))

	latest, ok := h.Latest()
	require.True(t, ok)
	require.Equal(t, int64(5), latest.Power)
}

func TestHub_LatestIsIdempotent(t *testing.T) {
	h := New(60, zap.NewNop())
	require.NoError(t, h.Broadcast(reading(7)))

	first, _ := h.Latest()
	second, _ := h.Latest()
	require.Equal(t, first, second)
	require.Equal(t, 0, h.ConnectedClients())
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	h := New(60, zap.NewNop())
	c := &fakeConn{id: "a"}
	require.NoError(t, h.Register(c))

	h.Unregister("a")
	h.Unregister("a")
	require.Equal(t, 0, h.ConnectedClients())

	require.NoError(t, h.Broadcast(reading(1)))
	require.Empty(t, c.received(t))
}

func TestHub_Close(t *testing.T) {
	h := New(60, zap.NewNop())
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	require.NoError(t, h.Register(a))
	require.NoError(t, h.Register(b))

	h.Close()
	h.Close()

	require.True(t, a.isClosed())
	require.True(t, b.isClosed())
	require.Equal(t, 0, h.ConnectedClients())
	require.ErrorIs(t, h.Register(&fakeConn{id: "c"}), pubsub.ErrClosed)
	require.ErrorIs(t, h.Broadcast(reading(1)), pubsub.ErrClosed)
}
