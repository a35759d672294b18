package config

import (
	"os"
	"strconv"

	"windturbine/turbine-common/config"

	"github.com/joho/godotenv"
)

const serviceName = "turbine-bridge"

// Config 桥接服务配置
type Config struct {
	Broker config.BrokerConfig
	Topics config.TopicsConfig

	HTTP struct {
		Port string
	}

	Bridge struct {
		HistorySize  int // 最近读数窗口容量
		ClientBuffer int // 每个观察端的发送缓冲
		CommandQueue int // 待发布命令队列长度
	}

	Log struct {
		Level  string
		Format string
		File   string
	}
}

// Load 加载配置（先读取 .env，环境变量优先）
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Broker = config.DefaultBrokerConfig(serviceName)
	cfg.Broker.LoadFromEnv()
	if err := cfg.Broker.Validate(); err != nil {
		return nil, err
	}
	cfg.Topics.LoadFromEnv()

	cfg.HTTP.Port = getEnv("PORT", "8080")

	cfg.Bridge.HistorySize = getEnvAsInt("HISTORY_SIZE", 60)
	cfg.Bridge.ClientBuffer = getEnvAsInt("CLIENT_BUFFER", 32)
	cfg.Bridge.CommandQueue = getEnvAsInt("COMMAND_QUEUE", 64)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.Log.File = getEnv("LOG_FILE", "")

	return cfg, nil
}

// Addr HTTP 监听地址
func (c *Config) Addr() string {
	return ":" + c.HTTP.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}
