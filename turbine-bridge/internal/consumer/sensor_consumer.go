package consumer

import (
	"context"
	"fmt"

	"windturbine/turbine-common/models"
	"windturbine/turbine-common/pubsub"

	"go.uber.org/zap"
)

// Subscriber 传感器主题订阅端（pubsub.Broker 满足该接口）
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler pubsub.Handler) error
	Unsubscribe(topics ...string) error
}

// Broadcaster 读数分发端（hub.Hub）
type Broadcaster interface {
	Broadcast(r models.SensorReading) error
}

// Observer 消费指标回调
type Observer interface {
	Malformed()
}

type nopObserver struct{}

func (nopObserver) Malformed() {}

// SensorConsumer 传感器读数消费者
type SensorConsumer struct {
	subscriber  Subscriber
	broadcaster Broadcaster
	topic       string
	logger      *zap.Logger
	observer    Observer
}

// NewSensorConsumer 创建传感器读数消费者
func NewSensorConsumer(subscriber Subscriber, broadcaster Broadcaster, topic string, logger *zap.Logger) *SensorConsumer {
	return &SensorConsumer{
		subscriber:  subscriber,
		broadcaster: broadcaster,
		topic:       topic,
		logger:      logger,
		observer:    nopObserver{},
	}
}

// SetObserver 设置指标回调
func (c *SensorConsumer) SetObserver(o Observer) {
	if o != nil {
		c.observer = o
	}
}

// Start 订阅传感器主题
func (c *SensorConsumer) Start(ctx context.Context) error {
	if err := c.subscriber.Subscribe(ctx, c.topic, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
	}

	c.logger.Info("Sensor consumer started", zap.String("topic", c.topic))
	return nil
}

// Stop 取消订阅
func (c *SensorConsumer) Stop(ctx context.Context) error {
	if err := c.subscriber.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("Sensor consumer stopped")
	return nil
}

// handleMessage 解析读数并广播；格式错误的消息记录、计数后丢弃
func (c *SensorConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received sensor message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	reading, err := models.DecodeReading(payload)
	if err != nil {
		c.observer.Malformed()
		c.logger.Warn("Dropping malformed sensor reading",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return err
	}

	if err := c.broadcaster.Broadcast(reading); err != nil {
		return fmt.Errorf("failed to broadcast reading: %w", err)
	}
	return nil
}
