package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"windturbine/turbine-bridge/internal/config"
	"windturbine/turbine-bridge/internal/service"
	"windturbine/turbine-common/logger"

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
		ServiceName: "turbine-bridge",
		File:        cfg.Log.File,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting turbine-bridge service",
		zap.String("broker_kind", cfg.Broker.Kind),
		zap.String("addr", cfg.Addr()),
		zap.String("sensor_topic", cfg.Topics.Sensor),
		zap.String("control_topic", cfg.Topics.Control),
	)

	// 创建服务
	bridgeService, err := service.NewBridgeService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create bridge service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bridgeService.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start bridge service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	cancel()
	if err := bridgeService.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
