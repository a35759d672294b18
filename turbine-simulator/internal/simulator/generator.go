package simulator

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"windturbine/turbine-common/models"

	"go.uber.org/zap"
)

const (
	commandBuffer = 16
	publishBuffer = 16
)

// Publisher 读数发布端（pubsub.Broker 满足该接口）
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Observer 运行指标回调
type Observer interface {
	Tick(poweredOn bool)
	Published(err error)
	Dropped()
	Command(action string)
}

type nopObserver struct{}

func (nopObserver) Tick(bool)       {}
func (nopObserver) Published(error) {}
func (nopObserver) Dropped()        {}
func (nopObserver) Command(string)  {}

// Generator 按固定周期生成并发布读数
// TurbineState 只在 Run 的循环中被读写，命令经 channel 送达。
type Generator struct {
	state     *TurbineState
	rng       Rand
	publisher Publisher
	topic     string
	interval  time.Duration
	logger    *zap.Logger
	observer  Observer
	now       func() time.Time

	commands chan models.ControlCommand
	readings chan models.SensorReading
}

// Option Generator 可选项
type Option func(*Generator)

// WithRand 指定随机源
func WithRand(rng Rand) Option {
	return func(g *Generator) { g.rng = rng }
}

// WithObserver 指定指标回调
func WithObserver(o Observer) Option {
	return func(g *Generator) { g.observer = o }
}

// WithClock 指定时钟
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator 创建读数生成器
func NewGenerator(state *TurbineState, publisher Publisher, topic string, interval time.Duration, logger *zap.Logger, opts ...Option) *Generator {
	g := &Generator{
		state:     state,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		logger:    logger,
		observer:  nopObserver{},
		now:       time.Now,
		commands:  make(chan models.ControlCommand, commandBuffer),
		readings:  make(chan models.SensorReading, publishBuffer),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit 投递控制命令，不阻塞调用方（通道回调线程）
func (g *Generator) Submit(cmd models.ControlCommand) bool {
	select {
	case g.commands <- cmd:
		return true
	default:
		g.logger.Warn("Command queue full, dropping command", zap.String("action", cmd.Action))
		return false
	}
}

// Run 运行直到 ctx 取消
func (g *Generator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.publishLoop(ctx)
	}()
	defer wg.Wait()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.logger.Info("Generator started",
		zap.String("topic", g.topic),
		zap.Duration("interval", g.interval),
		zap.Float64("base_wind", g.state.BaseWind),
	)

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("Generator stopped")
			return nil
		case cmd := <-g.commands:
			g.apply(cmd)
		case <-ticker.C:
			g.tick()
		}
	}
}

func (g *Generator) tick() {
	reading := g.state.Next(g.rng, g.now())
	g.observer.Tick(g.state.IsPoweredOn)

	select {
	case g.readings <- reading:
	default:
		g.observer.Dropped()
		g.logger.Warn("Publish backlog full, dropping reading", zap.String("timestamp", reading.Timestamp))
	}
}

func (g *Generator) apply(cmd models.ControlCommand) {
	g.observer.Command(cmd.Action)

	switch cmd.Action {
	case models.ActionPower:
		on := Truthy(cmd.Value)
		g.state.SetPower(on)
		g.logger.Info("Turbine power changed", zap.Bool("powered_on", on))
	default:
		g.logger.Debug("Ignoring unknown command", zap.String("action", cmd.Action))
	}
}

// publishLoop 按生成顺序发布；单次发布最长等待一个周期
func (g *Generator) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case reading := <-g.readings:
			payload, err := json.Marshal(reading)
			if err != nil {
				g.logger.Error("Failed to marshal reading", zap.Error(err))
				continue
			}

			pubCtx, cancel := context.WithTimeout(ctx, g.interval)
			err = g.publisher.Publish(pubCtx, g.topic, payload)
			cancel()
			g.observer.Published(err)

			if err != nil {
				g.logger.Error("Failed to publish reading", zap.String("topic", g.topic), zap.Error(err))
				continue
			}
			g.logger.Debug("Reading published",
				zap.Float64("wind_speed", reading.WindSpeed),
				zap.Float64("rpm", reading.RPM),
				zap.Int64("power", reading.Power),
				zap.Float64("temperature", reading.Temperature),
				zap.String("status", reading.Status),
			)
		}
	}
}
