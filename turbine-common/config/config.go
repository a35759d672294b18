package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 支持的消息代理类型
const (
	BrokerMQTT  = "mqtt"
	BrokerRedis = "redis"
	BrokerKafka = "kafka"
)

// 默认主题（与仪表盘前端保持一致）
const (
	DefaultSensorTopic  = "windturbine/sensors"
	DefaultControlTopic = "windturbine/control"
)

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers []string
	GroupID string
}

// BrokerConfig 发布/订阅通道配置
type BrokerConfig struct {
	Kind              string
	MQTT              MQTTConfig
	Redis             RedisConfig
	Kafka             KafkaConfig
	ReconnectInterval time.Duration
}

// TopicsConfig 逻辑主题
type TopicsConfig struct {
	Sensor  string
	Control string
}

// DefaultBrokerConfig 返回指定服务的默认通道配置
func DefaultBrokerConfig(serviceName string) BrokerConfig {
	return BrokerConfig{
		Kind: BrokerMQTT,
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: serviceName,
			QoS:      1,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			GroupID: serviceName,
		},
		ReconnectInterval: 5 * time.Second,
	}
}

// LoadFromEnv 从环境变量加载MQTT配置
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	if broker := os.Getenv(prefix + "_BROKER"); broker != "" {
		c.Broker = broker
	}
	if clientID := os.Getenv(prefix + "_CLIENT_ID"); clientID != "" {
		c.ClientID = clientID
	}
	if username := os.Getenv(prefix + "_USERNAME"); username != "" {
		c.Username = username
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if qos := os.Getenv(prefix + "_QOS"); qos != "" {
		if v, err := strconv.Atoi(qos); err == nil && v >= 0 && v <= 2 {
			c.QoS = byte(v)
		}
	}
}

// LoadFromEnv 从环境变量加载Redis配置
func (c *RedisConfig) LoadFromEnv(prefix string) {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Addr = addr
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := os.Getenv(prefix + "_DB"); db != "" {
		fmt.Sscanf(db, "%d", &c.DB)
	}
}

// LoadFromEnv 从环境变量加载Kafka配置
// KAFKA_BROKERS 为逗号分隔的地址列表
func (c *KafkaConfig) LoadFromEnv(prefix string) {
	if brokers := os.Getenv(prefix + "_BROKERS"); brokers != "" {
		var list []string
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				list = append(list, b)
			}
		}
		if len(list) > 0 {
			c.Brokers = list
		}
	}
	if group := os.Getenv(prefix + "_GROUP_ID"); group != "" {
		c.GroupID = group
	}
}

// LoadFromEnv 从环境变量加载通道配置
func (c *BrokerConfig) LoadFromEnv() {
	if kind := os.Getenv("BROKER_KIND"); kind != "" {
		c.Kind = strings.ToLower(kind)
	}
	c.MQTT.LoadFromEnv("MQTT")
	c.Redis.LoadFromEnv("REDIS")
	c.Kafka.LoadFromEnv("KAFKA")
	if interval := os.Getenv("RECONNECT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil && d > 0 {
			c.ReconnectInterval = d
		}
	}
}

// Validate 检查代理类型
func (c *BrokerConfig) Validate() error {
	switch c.Kind {
	case BrokerMQTT, BrokerRedis, BrokerKafka:
		return nil
	default:
		return fmt.Errorf("unsupported BROKER_KIND %q", c.Kind)
	}
}

// LoadFromEnv 从环境变量加载主题
func (c *TopicsConfig) LoadFromEnv() {
	c.Sensor = DefaultSensorTopic
	c.Control = DefaultControlTopic
	if topic := os.Getenv("MQTT_TOPIC"); topic != "" {
		c.Sensor = topic
	}
	if topic := os.Getenv("CONTROL_TOPIC"); topic != "" {
		c.Control = topic
	}
}
