package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"windturbine/turbine-common/config"
	"windturbine/turbine-common/pubsub"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	connectWait    = 10 * time.Second
	subscribeWait  = 10 * time.Second
	disconnectWait = 250 // ms
)

// Client MQTT客户端封装
type Client struct {
	client mqtt.Client
	config *config.MQTTConfig
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]pubsub.Handler
}

// NewClient 创建MQTT客户端
// 代理不可达时不会返回错误：连接按 reconnectInterval 在后台无限重试，
// 连接建立后自动恢复所有订阅。
func NewClient(cfg *config.MQTTConfig, reconnectInterval time.Duration, logger *zap.Logger) (*Client, error) {
	c := &Client{
		config: cfg,
		logger: logger.With(zap.String("broker", cfg.Broker)),
		subs:   make(map[string]pubsub.Handler),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8]))

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnectInterval)
	opts.SetMaxReconnectInterval(reconnectInterval)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("Disconnected from MQTT broker, reconnecting", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		c.logger.Info("Reconnecting to MQTT broker")
	})

	c.client = mqtt.NewClient(opts)

	token := c.client.Connect()
	if !token.WaitTimeout(connectWait) {
		c.logger.Warn("MQTT broker not reachable yet, retrying in background",
			zap.Duration("retry_interval", reconnectInterval),
		)
		return c, nil
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return c, nil
}

// onConnect 每次（重新）连接后恢复订阅
func (c *Client) onConnect(_ mqtt.Client) {
	c.logger.Info("Connected to MQTT broker")

	c.mu.Lock()
	subs := make(map[string]pubsub.Handler, len(c.subs))
	for topic, h := range c.subs {
		subs[topic] = h
	}
	c.mu.Unlock()

	for topic, h := range subs {
		if err := c.subscribe(topic, h); err != nil {
			c.logger.Error("Failed to resubscribe", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// Subscribe 订阅主题
func (c *Client) Subscribe(_ context.Context, topic string, handler pubsub.Handler) error {
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		c.logger.Info("Subscription deferred until broker connects", zap.String("topic", topic))
		return nil
	}
	return c.subscribe(topic, handler)
}

func (c *Client) subscribe(topic string, handler pubsub.Handler) error {
	token := c.client.Subscribe(topic, c.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			// 记录错误，但不中断处理
			c.logger.Warn("Error handling MQTT message",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	})
	if !token.WaitTimeout(subscribeWait) {
		return fmt.Errorf("timed out subscribing to topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	c.logger.Info("Subscribed to MQTT topic", zap.String("topic", topic))
	return nil
}

// Publish 发布消息
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	token := c.client.Publish(topic, c.config.QoS, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to topic %s: %w", topic, ctx.Err())
	}

	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	return nil
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.subs, t)
	}
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		return nil
	}

	token := c.client.Unsubscribe(topics...)
	token.WaitTimeout(subscribeWait)

	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}

	return nil
}

// Close 断开连接
func (c *Client) Close() error {
	c.client.Disconnect(disconnectWait)
	return nil
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

var _ pubsub.Broker = (*Client)(nil)
