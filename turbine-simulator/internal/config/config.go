package config

import (
	"os"
	"strconv"
	"time"

	"windturbine/turbine-common/config"

	"github.com/joho/godotenv"
)

const serviceName = "turbine-simulator"

// Config 模拟器服务配置
type Config struct {
	Broker config.BrokerConfig
	Topics config.TopicsConfig

	Simulator struct {
		PublishInterval time.Duration // PUBLISH_INTERVAL，毫秒
		BaseWind        float64
	}

	// MetricsAddr 为空时不启动 /metrics 与 /health
	MetricsAddr string

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

	cfg.Simulator.PublishInterval = time.Duration(getEnvAsInt("PUBLISH_INTERVAL", 1000)) * time.Millisecond
	cfg.Simulator.BaseWind = getEnvAsFloat("BASE_WIND", 8)

	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9101")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.Log.File = getEnv("LOG_FILE", "")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && v >= 0 {
		return v
	}
	return defaultValue
}
