package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"windturbine/turbine-common/models"
	"windturbine/turbine-common/pubsub"

	"go.uber.org/zap"
)

// Subscriber 控制主题订阅端（pubsub.Broker 满足该接口）
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler pubsub.Handler) error
	Unsubscribe(topics ...string) error
}

// CommandSink 命令接收端（simulator.Generator）
type CommandSink interface {
	Submit(cmd models.ControlCommand) bool
}

// CommandConsumer 控制命令消费者
type CommandConsumer struct {
	subscriber Subscriber
	sink       CommandSink
	topic      string
	logger     *zap.Logger
}

// NewCommandConsumer 创建控制命令消费者
func NewCommandConsumer(subscriber Subscriber, sink CommandSink, topic string, logger *zap.Logger) *CommandConsumer {
	return &CommandConsumer{
		subscriber: subscriber,
		sink:       sink,
		topic:      topic,
		logger:     logger,
	}
}

// Start 订阅控制主题
func (c *CommandConsumer) Start(ctx context.Context) error {
	if err := c.subscriber.Subscribe(ctx, c.topic, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to control topic: %w", err)
	}

	c.logger.Info("Command consumer started", zap.String("topic", c.topic))
	return nil
}

// Stop 取消订阅
func (c *CommandConsumer) Stop(ctx context.Context) error {
	if err := c.subscriber.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("Command consumer stopped")
	return nil
}

// handleMessage 解析命令并交给生成器；格式错误的消息记录后丢弃
func (c *CommandConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received control message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	var cmd models.ControlCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		c.logger.Warn("Discarding malformed control message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	if !c.sink.Submit(cmd) {
		return fmt.Errorf("command queue full, dropped %q", cmd.Action)
	}
	return nil
}
