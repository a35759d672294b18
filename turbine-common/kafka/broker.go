package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"windturbine/turbine-common/config"
	"windturbine/turbine-common/pubsub"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const dialTimeout = 500 * time.Millisecond

// TopicName 将逻辑主题映射为合法的 Kafka 主题名（"/" -> "."）
func TopicName(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// newMessage 以主题名作为 key；Hash 按 key 选分区，同一主题的消息落在同一分区并保持顺序
func newMessage(topic string, payload []byte) kafka.Message {
	name := TopicName(topic)
	return kafka.Message{
		Topic: name,
		Key:   []byte(name),
		Value: payload,
		Time:  time.Now(),
	}
}

// Broker 基于 Kafka 的消息通道
// 每个订阅使用独立的消费者组成员，处理完成后提交 offset（至少一次）。
type Broker struct {
	writer   *kafka.Writer
	brokers  []string
	groupID  string
	interval time.Duration
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	subs map[string]context.CancelFunc

	state pubsub.ConnState
}

// NewBroker 创建 Kafka 通道
// 后台按重连间隔拨号探测，IsConnected 读取最近一次结果。
func NewBroker(cfg *config.KafkaConfig, reconnectInterval time.Duration, logger *zap.Logger) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
		brokers:  cfg.Brokers,
		groupID:  cfg.GroupID,
		interval: reconnectInterval,
		logger:   logger.With(zap.Strings("brokers", cfg.Brokers)),
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[string]context.CancelFunc),
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.state.Watch(ctx, reconnectInterval, dialTimeout, b.dialAny)
	}()
	return b
}

// dialAny 任一 broker 可拨通即返回 nil
func (b *Broker) dialAny(ctx context.Context) error {
	err := errors.New("no kafka brokers configured")
	for _, addr := range b.brokers {
		var conn *kafka.Conn
		conn, err = kafka.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return nil
		}
	}
	return err
}

// Publish 发布消息
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.ctx.Err() != nil {
		return pubsub.ErrClosed
	}
	if err := b.writer.WriteMessages(ctx, newMessage(topic, payload)); err != nil {
		if ctx.Err() == nil {
			b.state.Set(false)
		}
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	b.state.Set(true)
	return nil
}

// Subscribe 在后台消费主题，直到 Unsubscribe 或 Close
func (b *Broker) Subscribe(_ context.Context, topic string, handler pubsub.Handler) error {
	if b.ctx.Err() != nil {
		return pubsub.ErrClosed
	}

	subCtx, cancel := context.WithCancel(b.ctx)

	b.mu.Lock()
	if prev, ok := b.subs[topic]; ok {
		prev()
	}
	b.subs[topic] = cancel
	b.mu.Unlock()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		GroupID:     b.groupID,
		Topic:       TopicName(topic),
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
	})

	b.wg.Add(1)
	go b.run(subCtx, reader, topic, handler)

	b.logger.Info("Kafka consumer started",
		zap.String("topic", TopicName(topic)),
		zap.String("group_id", b.groupID),
	)
	return nil
}

func (b *Broker) run(ctx context.Context, reader *kafka.Reader, topic string, handler pubsub.Handler) {
	defer b.wg.Done()
	defer func() {
		if err := reader.Close(); err != nil {
			b.logger.Error("Failed to close kafka reader", zap.Error(err))
		}
	}()

	for {
		var msg kafka.Message
		err := pubsub.RetryEvery(ctx, b.interval, func(ctx context.Context) error {
			var fetchErr error
			msg, fetchErr = reader.FetchMessage(ctx)
			return fetchErr
		}, func(attempt int, err error) {
			b.state.Set(false)
			b.logger.Warn("Kafka fetch failed, retrying",
				zap.String("topic", topic),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		})
		if err != nil {
			return
		}
		b.state.Set(true)

		if err := handler(topic, msg.Value); err != nil {
			b.logger.Warn("Error handling Kafka message",
				zap.String("topic", topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			b.logger.Warn("Failed to commit kafka offset", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// Unsubscribe 取消订阅
func (b *Broker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		if cancel, ok := b.subs[t]; ok {
			cancel()
			delete(b.subs, t)
		}
	}
	return nil
}

// IsConnected 返回缓存的连接状态，不阻塞
func (b *Broker) IsConnected() bool {
	return b.ctx.Err() == nil && b.state.Connected()
}

// Close 停止消费者和探测并关闭 writer
func (b *Broker) Close() error {
	b.cancel()
	b.wg.Wait()
	if err := b.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

var _ pubsub.Broker = (*Broker)(nil)
