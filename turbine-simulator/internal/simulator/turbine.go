package simulator

import (
	"math"
	"time"

	"windturbine/turbine-common/models"
)

// 物理模型参数
const (
	DefaultBaseWind = 8.0

	maxWindSpeed      = 25.0
	windNoise         = 1.5
	rpmPerWindSpeed   = 1.5
	rpmNoise          = 1.0
	ratedWindSpeed    = 12.0
	ratedPower        = 1800.0
	powerNoise        = 50.0
	ambientTemp       = 22.0
	tempRisePerRPM    = 15.0 / 30.0
	tempNoise         = 1.0
	highWindThreshold = 20.0
	highTempThreshold = 45.0

	windDecay  = 0.95
	rpmDecay   = 0.90
	powerDecay = 0.90
)

// Rand 随机源（*rand.Rand 满足该接口）
type Rand interface {
	Float64() float64
}

// TurbineState 模拟器持有的涡轮状态，只由运行循环修改
type TurbineState struct {
	IsPoweredOn        bool
	BaseWind           float64
	CurrentWindSpeed   float64
	CurrentRPM         float64
	CurrentPower       float64
	CurrentTemperature float64
}

// NewTurbineState 初始状态：运行中
func NewTurbineState(baseWind float64) *TurbineState {
	return &TurbineState{
		IsPoweredOn:        true,
		BaseWind:           baseWind,
		CurrentWindSpeed:   baseWind,
		CurrentRPM:         12,
		CurrentPower:       0,
		CurrentTemperature: ambientTemp,
	}
}

// SetPower 开关机
func (s *TurbineState) SetPower(on bool) {
	s.IsPoweredOn = on
}

// Next 推进一个周期并生成读数
func (s *TurbineState) Next(rng Rand, now time.Time) models.SensorReading {
	if !s.IsPoweredOn {
		return s.decay(now)
	}

	windSpeed := clamp(s.BaseWind+uniform(rng, -windNoise, windNoise), 0, maxWindSpeed)
	rpm := math.Max(0, windSpeed*rpmPerWindSpeed+uniform(rng, -rpmNoise, rpmNoise))

	powerFactor := math.Min(1, windSpeed/ratedWindSpeed)
	power := math.Max(0, math.Round(powerFactor*ratedPower+uniform(rng, -powerNoise, powerNoise)))

	temperature := ambientTemp + rpm*tempRisePerRPM + uniform(rng, -tempNoise, tempNoise)

	s.CurrentWindSpeed = windSpeed
	s.CurrentRPM = rpm
	s.CurrentPower = power
	s.CurrentTemperature = temperature

	return models.SensorReading{
		WindSpeed:   models.Round2(windSpeed),
		RPM:         models.Round2(rpm),
		Power:       int64(power),
		Temperature: models.Round2(temperature),
		Status:      statusFor(windSpeed, temperature),
		Timestamp:   models.FormatTimestamp(now),
	}
}

// decay 关机时风速/转速/功率按固定系数衰减，温度不变
func (s *TurbineState) decay(now time.Time) models.SensorReading {
	s.CurrentWindSpeed = math.Max(0, s.CurrentWindSpeed*windDecay)
	s.CurrentRPM = math.Max(0, s.CurrentRPM*rpmDecay)
	s.CurrentPower = math.Max(0, s.CurrentPower*powerDecay)

	return models.SensorReading{
		WindSpeed:   models.Round2(s.CurrentWindSpeed),
		RPM:         models.Round2(s.CurrentRPM),
		Power:       int64(math.Round(s.CurrentPower)),
		Temperature: models.Round2(s.CurrentTemperature),
		Status:      models.StatusPoweredOff,
		Timestamp:   models.FormatTimestamp(now),
	}
}

// statusFor 温度判断在风速之后，两者同时超限时以温度为准
func statusFor(windSpeed, temperature float64) string {
	status := models.StatusOperational
	if windSpeed > highWindThreshold {
		status = models.StatusHighWind
	}
	if temperature > highTempThreshold {
		status = models.StatusHighTemperature
	}
	return status
}

func uniform(rng Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
