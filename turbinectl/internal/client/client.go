// Package client 桥接服务 HTTP 接口客户端。
package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"windturbine/turbine-common/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Health GET /health 响应
type Health struct {
	Status           string                `json:"status"`
	Service          string                `json:"service"`
	Timestamp        string                `json:"timestamp"`
	ConnectedClients int                   `json:"connectedClients"`
	LatestData       *models.SensorReading `json:"latestData"`
	BrokerConnected  bool                  `json:"brokerConnected"`
}

// History GET /history 响应
type History struct {
	Readings []models.SensorReading `json:"readings"`
	Size     int                    `json:"size"`
	Capacity int                    `json:"capacity"`
}

// CommandResult POST /control 响应
type CommandResult struct {
	Success bool                  `json:"success"`
	Command models.ControlCommand `json:"command"`
}

// APIError 非 2xx 响应
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bridge returned %d", e.StatusCode)
	}
	return fmt.Sprintf("bridge returned %d: %s", e.StatusCode, e.Message)
}

// Client 桥接服务客户端
type Client struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// New 创建客户端
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar())

	return &Client{httpClient: client, logger: logger}
}

// Health 查询服务状态
func (c *Client) Health() (*Health, error) {
	var out Health
	if err := c.get("/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History 查询最近读数
func (c *Client) History() (*History, error) {
	var out History
	if err := c.get("/history", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetPower 发送开关机命令
func (c *Client) SetPower(on bool) (*CommandResult, error) {
	return c.Send(models.NewPowerCommand(on))
}

// Send 发送任意控制命令
func (c *Client) Send(cmd models.ControlCommand) (*CommandResult, error) {
	var out CommandResult
	var apiErr APIError
	resp, err := c.httpClient.R().
		SetHeader("Content-Type", "application/json").
		SetBody(cmd).
		SetResult(&out).
		SetError(&apiErr).
		Post("/control")
	if err != nil {
		return nil, fmt.Errorf("failed to call bridge: %w", err)
	}
	if err := checkResponse(resp, &apiErr); err != nil {
		return nil, err
	}

	c.logger.Debug("Command accepted", zap.String("action", cmd.Action))
	return &out, nil
}

func (c *Client) get(path string, out any) error {
	var apiErr APIError
	resp, err := c.httpClient.R().
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return fmt.Errorf("failed to call bridge: %w", err)
	}
	return checkResponse(resp, &apiErr)
}

func checkResponse(resp *resty.Response, apiErr *APIError) error {
	if resp.IsSuccess() {
		return nil
	}
	apiErr.StatusCode = resp.StatusCode()
	if apiErr.Message == "" {
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(resp.Body(), &body) == nil {
			apiErr.Message = body.Error
		}
	}
	if apiErr.StatusCode == 0 {
		apiErr.StatusCode = http.StatusBadGateway
	}
	return apiErr
}
