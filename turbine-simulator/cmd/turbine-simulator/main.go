package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"windturbine/turbine-common/logger"
	"windturbine/turbine-simulator/internal/config"
	"windturbine/turbine-simulator/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.New(logger.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "turbine-simulator",
		File:        cfg.Log.File,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting turbine-simulator service",
		zap.String("broker_kind", cfg.Broker.Kind),
		zap.String("sensor_topic", cfg.Topics.Sensor),
		zap.String("control_topic", cfg.Topics.Control),
		zap.Duration("publish_interval", cfg.Simulator.PublishInterval),
	)

	// 创建服务
	simService, err := service.NewSimulatorService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create simulator service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := simService.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start simulator service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := simService.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
