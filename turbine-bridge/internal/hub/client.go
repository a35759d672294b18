package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"windturbine/turbine-common/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// State 连接状态：Connecting → Open → Closed（终态）
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// CommandFunc 处理观察端上行的控制命令
type CommandFunc func(cmd models.ControlCommand) error

// Client 单个观察端的 WebSocket 连接
// 一个读协程 + 一个写协程；send 通道从不关闭，通过 done 通知退出。
type Client struct {
	id        string
	conn      *websocket.Conn
	hub       *Hub
	send      chan []byte
	done      chan struct{}
	state     atomic.Int32
	closeOnce sync.Once
	onCommand CommandFunc
	logger    *zap.Logger
}

// NewClient 创建连接，状态为 Connecting
func NewClient(conn *websocket.Conn, h *Hub, buffer int, onCommand CommandFunc, logger *zap.Logger) *Client {
	if buffer < 1 {
		buffer = 1
	}
	id := uuid.New().String()
	return &Client{
		id:        id,
		conn:      conn,
		hub:       h,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		onCommand: onCommand,
		logger:    logger.With(zap.String("client_id", id)),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) State() State { return State(c.state.Load()) }

// Enqueue 非阻塞发送
func (c *Client) Enqueue(frame []byte) bool {
	if c.State() == StateClosed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close 进入 Closed；写协程发送关闭帧后断开
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
	})
}

// Serve 注册到 Hub 并运行读写循环，直到连接关闭
func (c *Client) Serve() {
	if err := c.hub.Register(c); err != nil {
		c.logger.Warn("Rejecting viewer", zap.Error(err))
		c.Close()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
		return
	}
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))

	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c.id)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("Viewer read error", zap.Error(err))
			}
			return
		}
		c.handleFrame(message)
	}
}

// handleFrame 只处理 {type:"control"} 帧，其余忽略
func (c *Client) handleFrame(message []byte) {
	var frame models.ControlFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.logger.Warn("Ignoring malformed viewer frame", zap.Error(err))
		return
	}
	if frame.Type != models.FrameTypeControl {
		c.logger.Debug("Ignoring viewer frame", zap.String("type", frame.Type))
		return
	}

	var cmd models.ControlCommand
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &cmd); err != nil {
			c.logger.Warn("Ignoring malformed control payload", zap.Error(err))
			return
		}
	}
	if c.onCommand == nil {
		return
	}
	if err := c.onCommand(cmd); err != nil {
		c.logger.Warn("Dropping viewer command", zap.String("action", cmd.Action), zap.Error(err))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("Viewer write error", zap.Error(err))
				c.hub.Unregister(c.id)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unregister(c.id)
				c.Close()
				return
			}
		}
	}
}
