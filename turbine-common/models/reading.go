package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// 运行状态
const (
	StatusOperational     = "operational"
	StatusHighWind        = "high-wind"
	StatusHighTemperature = "high-temperature"
	StatusPoweredOff      = "powered-off"
)

// TimestampLayout ISO-8601 UTC，毫秒精度
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// ActionPower 唯一定义的控制动作
const ActionPower = "power"

// FrameTypeControl 观察端上行控制帧类型
const FrameTypeControl = "control"

var ErrMissingAction = errors.New("action is required")

// SensorReading 单次采样（不可变）
type SensorReading struct {
	WindSpeed   float64 `json:"windSpeed"`
	RPM         float64 `json:"rpm"`
	Power       int64   `json:"power"`
	Temperature float64 `json:"temperature"`
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
}

// FormatTimestamp 格式化采样时间
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// DecodeReading 解析并校验通道上的读数
func DecodeReading(payload []byte) (SensorReading, error) {
	var r SensorReading
	if err := json.Unmarshal(payload, &r); err != nil {
		return SensorReading{}, fmt.Errorf("failed to unmarshal sensor reading: %w", err)
	}
	if r.Timestamp == "" || r.Status == "" {
		return SensorReading{}, fmt.Errorf("incomplete sensor reading")
	}
	if r.WindSpeed < 0 || r.RPM < 0 || r.Power < 0 {
		return SensorReading{}, fmt.Errorf("negative magnitude in sensor reading")
	}
	return r, nil
}

// ControlCommand 控制命令，value 原样保留
type ControlCommand struct {
	Action string          `json:"action"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// Validate 只检查 action 是否存在，其余由模拟器处理
func (c ControlCommand) Validate() error {
	if c.Action == "" {
		return ErrMissingAction
	}
	return nil
}

// NewPowerCommand 构造开关机命令
func NewPowerCommand(on bool) ControlCommand {
	v, _ := json.Marshal(on)
	return ControlCommand{Action: ActionPower, Value: v}
}

// ControlFrame 观察端通过流连接发送的消息
type ControlFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Round2 保留两位小数
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
