// Package broker 根据配置创建发布/订阅通道。
package broker

import (
	"errors"
	"fmt"

	"windturbine/turbine-common/config"
	"windturbine/turbine-common/kafka"
	"windturbine/turbine-common/mqtt"
	"windturbine/turbine-common/pubsub"
	"windturbine/turbine-common/redis"

	"go.uber.org/zap"
)

var ErrUnsupportedBroker = errors.New("unsupported broker kind")

// New 创建 BROKER_KIND 指定的通道
func New(cfg *config.BrokerConfig, logger *zap.Logger) (pubsub.Broker, error) {
	logger = logger.With(zap.String("broker_kind", cfg.Kind))

	switch cfg.Kind {
	case config.BrokerMQTT:
		client, err := mqtt.NewClient(&cfg.MQTT, cfg.ReconnectInterval, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create MQTT client: %w", err)
		}
		return client, nil
	case config.BrokerRedis:
		return redis.NewBroker(&cfg.Redis, cfg.ReconnectInterval, logger), nil
	case config.BrokerKafka:
		return kafka.NewBroker(&cfg.Kafka, cfg.ReconnectInterval, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBroker, cfg.Kind)
	}
}
