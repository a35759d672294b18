// Package command 将观察端命令按到达顺序发布到控制主题。
package command

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"windturbine/turbine-common/models"
	"windturbine/turbine-common/pubsub"

	"go.uber.org/zap"
)

var ErrQueueFull = errors.New("command queue full")

const publishTimeout = 5 * time.Second

// Sink 命令发布端（pubsub.Broker 满足该接口）
type Sink interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Observer 命令指标回调；result 为 accepted/rejected/published/failed
type Observer interface {
	Command(result string)
}

type nopObserver struct{}

func (nopObserver) Command(string) {}

// Publisher 单工作协程的命令队列
// Submit 不等待代理确认；发布失败只记录日志。
type Publisher struct {
	sink     Sink
	topic    string
	logger   *zap.Logger
	observer Observer

	mu     sync.RWMutex
	queue  chan models.ControlCommand
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPublisher 创建并启动命令发布协程
func NewPublisher(sink Sink, topic string, size int, logger *zap.Logger) *Publisher {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		sink:     sink,
		topic:    topic,
		logger:   logger,
		observer: nopObserver{},
		queue:    make(chan models.ControlCommand, size),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

// SetObserver 设置指标回调
func (p *Publisher) SetObserver(o Observer) {
	if o != nil {
		p.observer = o
	}
}

// Submit 校验并入队
func (p *Publisher) Submit(cmd models.ControlCommand) error {
	if err := cmd.Validate(); err != nil {
		p.observer.Command("rejected")
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return pubsub.ErrClosed
	}
	select {
	case p.queue <- cmd:
		p.observer.Command("accepted")
		return nil
	default:
		p.observer.Command("rejected")
		return ErrQueueFull
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for cmd := range p.queue {
		p.publish(cmd)
	}
}

func (p *Publisher) publish(cmd models.ControlCommand) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		p.logger.Error("Failed to marshal command", zap.String("action", cmd.Action), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, publishTimeout)
	defer cancel()
	if err := p.sink.Publish(ctx, p.topic, payload); err != nil {
		p.observer.Command("failed")
		p.logger.Error("Failed to publish command",
			zap.String("topic", p.topic),
			zap.String("action", cmd.Action),
			zap.Error(err),
		)
		return
	}
	p.observer.Command("published")
	p.logger.Info("Command published", zap.String("topic", p.topic), zap.String("action", cmd.Action))
}

// Close 停止接收并排空队列；ctx 到期后放弃剩余命令
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.done
		return ctx.Err()
	}
}
