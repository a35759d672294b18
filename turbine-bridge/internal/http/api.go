package httpapi

import (
	"errors"
	"net/http"
	"time"

	"windturbine/turbine-bridge/internal/command"
	"windturbine/turbine-bridge/internal/hub"
	"windturbine/turbine-common/models"
	"windturbine/turbine-common/pubsub"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const serviceName = "turbine-bridge"

// CommandSubmitter 命令入队（command.Publisher）
type CommandSubmitter interface {
	Submit(cmd models.ControlCommand) error
}

// ConnectionChecker 通道连接状态（pubsub.Broker）
type ConnectionChecker interface {
	IsConnected() bool
}

// API 桥接服务 HTTP/WebSocket 处理器
type API struct {
	hub          *hub.Hub
	commands     CommandSubmitter
	broker       ConnectionChecker
	clientBuffer int
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

func NewAPI(h *hub.Hub, commands CommandSubmitter, broker ConnectionChecker, clientBuffer int, logger *zap.Logger) *API {
	return &API{
		hub:          h,
		commands:     commands,
		broker:       broker,
		clientBuffer: clientBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

type healthResponse struct {
	Status           string                `json:"status"`
	Service          string                `json:"service"`
	Timestamp        string                `json:"timestamp"`
	ConnectedClients int                   `json:"connectedClients"`
	LatestData       *models.SensorReading `json:"latestData"`
	BrokerConnected  bool                  `json:"brokerConnected"`
}

// Health GET /health；只读取快照，不等待广播
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:           "ok",
		Service:          serviceName,
		Timestamp:        models.FormatTimestamp(time.Now()),
		ConnectedClients: a.hub.ConnectedClients(),
		BrokerConnected:  a.broker.IsConnected(),
	}
	if latest, ok := a.hub.Latest(); ok {
		resp.LatestData = &latest
	}
	writeJSON(w, http.StatusOK, resp)
}

// History GET /history
func (a *API) History(w http.ResponseWriter, r *http.Request) {
	readings, capacity := a.hub.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"size":     len(readings),
		"capacity": capacity,
	})
}

// Control POST /control；命令入队后立即返回，不等待代理确认
func (a *API) Control(w http.ResponseWriter, r *http.Request) {
	var cmd models.ControlCommand
	if err := readBodyJSON(r, maxBodyBytes, &cmd); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := a.commands.Submit(cmd); err != nil {
		switch {
		case errors.Is(err, models.ErrMissingAction):
			writeError(w, http.StatusBadRequest, "Action is required")
		case errors.Is(err, command.ErrQueueFull), errors.Is(err, pubsub.ErrClosed):
			a.logger.Warn("Rejecting control command", zap.String("action", cmd.Action), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			a.logger.Error("Failed to submit control command", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"command": cmd,
	})
}

// Stream GET / 与 /ws：升级为 WebSocket 并加入广播
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		writeError(w, http.StatusUpgradeRequired, "WebSocket upgrade required")
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写入错误响应
		a.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := hub.NewClient(conn, a.hub, a.clientBuffer, a.commands.Submit, a.logger)
	go client.Serve()
}
