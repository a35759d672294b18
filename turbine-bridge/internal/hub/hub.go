// Package hub 维护观察端连接、最新读数缓存与最近读数窗口，并负责广播。
package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"windturbine/turbine-common/models"
	"windturbine/turbine-common/pubsub"

	"go.uber.org/zap"
)

// Conn 已注册的观察端
type Conn interface {
	ID() string
	// Enqueue 非阻塞入队；返回 false 表示缓冲已满或连接已关闭
	Enqueue(frame []byte) bool
	Close()
}

// Observer 广播指标回调
type Observer interface {
	ClientsChanged(n int)
	Broadcasted()
	Evicted()
}

type nopObserver struct{}

func (nopObserver) ClientsChanged(int) {}
func (nopObserver) Broadcasted()       {}
func (nopObserver) Evicted()           {}

// Hub 观察端注册表与广播器
//
// 锁顺序：broadcastMu → mu。缓存更新与注册表快照在 mu 内完成，
// Register 在同一把锁内补发缓存，因此新连接不会漏掉或重复收到同一条读数。
type Hub struct {
	broadcastMu sync.Mutex

	mu          sync.RWMutex
	clients     map[string]Conn
	latest      *models.SensorReading
	latestFrame []byte
	window      *Window
	closed      bool

	logger   *zap.Logger
	observer Observer
}

// New 创建 Hub；historySize 为最近读数窗口容量
func New(historySize int, logger *zap.Logger) *Hub {
	return &Hub{
		clients:  make(map[string]Conn),
		window:   NewWindow(historySize),
		logger:   logger,
		observer: nopObserver{},
	}
}

// SetObserver 设置指标回调（启动前调用）
func (h *Hub) SetObserver(o Observer) {
	if o != nil {
		h.observer = o
	}
}

// Register 注册连接并补发最新读数
func (h *Hub) Register(c Conn) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return pubsub.ErrClosed
	}
	h.clients[c.ID()] = c
	if h.latestFrame != nil {
		c.Enqueue(h.latestFrame)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.observer.ClientsChanged(n)
	h.logger.Info("Viewer connected", zap.String("client_id", c.ID()), zap.Int("clients", n))
	return nil
}

// Unregister 移除连接（重复调用无副作用）
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	_, ok := h.clients[id]
	delete(h.clients, id)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.observer.ClientsChanged(n)
		h.logger.Info("Viewer disconnected", zap.String("client_id", id), zap.Int("clients", n))
	}
}

// Broadcast 更新缓存并发送给所有连接；慢连接被关闭，不影响其他连接
func (h *Hub) Broadcast(r models.SensorReading) error {
	frame, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	h.broadcastMu.Lock()
	defer h.broadcastMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return pubsub.ErrClosed
	}
	latest := r
	h.latest = &latest
	h.latestFrame = frame
	h.window.Add(r)
	targets := make([]Conn, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if !c.Enqueue(frame) {
			h.evict(c)
		}
	}
	h.observer.Broadcasted()
	return nil
}

func (h *Hub) evict(c Conn) {
	h.logger.Warn("Evicting viewer that cannot keep up", zap.String("client_id", c.ID()))
	h.observer.Evicted()
	h.Unregister(c.ID())
	c.Close()
}

// Latest 最新读数；尚无读数时 ok 为 false
func (h *Hub) Latest() (models.SensorReading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return models.SensorReading{}, false
	}
	return *h.latest, true
}

// History 最近读数（旧→新）与窗口容量
func (h *Hub) History() ([]models.SensorReading, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.window.Snapshot(), h.window.Cap()
}

// ConnectedClients 当前连接数
func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 关闭所有连接，之后的 Register/Broadcast 返回 ErrClosed
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]Conn, 0, len(h.clients))
	for id, c := range h.clients {
		conns = append(conns, c)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	h.observer.ClientsChanged(0)
	h.logger.Info("Hub closed", zap.Int("closed_clients", len(conns)))
}
