package service

import (
	"context"
	"fmt"
	"net"
	"sync"

	"windturbine/turbine-bridge/internal/command"
	"windturbine/turbine-bridge/internal/config"
	"windturbine/turbine-bridge/internal/consumer"
	httpapi "windturbine/turbine-bridge/internal/http"
	"windturbine/turbine-bridge/internal/hub"
	"windturbine/turbine-bridge/internal/metrics"
	"windturbine/turbine-common/broker"
	"windturbine/turbine-common/httpserver"
	"windturbine/turbine-common/pubsub"

	"go.uber.org/zap"
)

// BridgeService 桥接服务
type BridgeService struct {
	config   *config.Config
	logger   *zap.Logger
	broker   pubsub.Broker
	hub      *hub.Hub
	commands *command.Publisher
	consumer *consumer.SensorConsumer
	metrics  *metrics.Metrics
	server   *httpserver.Server
	listener net.Listener

	wg sync.WaitGroup
}

// NewBridgeService 创建桥接服务
func NewBridgeService(cfg *config.Config, logger *zap.Logger) (*BridgeService, error) {
	b, err := broker.New(&cfg.Broker, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}
	return NewBridgeServiceWithBroker(cfg, b, logger), nil
}

// NewBridgeServiceWithBroker 使用已有通道创建服务
func NewBridgeServiceWithBroker(cfg *config.Config, b pubsub.Broker, logger *zap.Logger) *BridgeService {
	m := metrics.New()

	h := hub.New(cfg.Bridge.HistorySize, logger)
	h.SetObserver(m)

	commands := command.NewPublisher(b, cfg.Topics.Control, cfg.Bridge.CommandQueue, logger)
	commands.SetObserver(m)

	sensorConsumer := consumer.NewSensorConsumer(b, h, cfg.Topics.Sensor, logger)
	sensorConsumer.SetObserver(m)

	api := httpapi.NewAPI(h, commands, b, cfg.Bridge.ClientBuffer, logger)
	router := httpapi.NewRouter(api, m.Handler(), logger)

	return &BridgeService{
		config:   cfg,
		logger:   logger,
		broker:   b,
		hub:      h,
		commands: commands,
		consumer: sensorConsumer,
		metrics:  m,
		server:   httpserver.NewServer("turbine-bridge", cfg.Addr(), router, logger),
	}
}

// Start 启动服务；端口不可用时返回错误
func (s *BridgeService) Start(ctx context.Context) error {
	s.logger.Info("Starting bridge service components")

	ln, err := s.server.Listen()
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	s.listener = ln

	if err := s.consumer.Start(ctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to start sensor consumer: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil {
			s.logger.Error("HTTP server exited", zap.Error(err))
		}
	}()

	s.logger.Info("Bridge service started successfully", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr 实际监听地址
func (s *BridgeService) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop 停止服务
// 先关闭观察端连接（Shutdown 不处理已升级的连接），再停止 HTTP、取消订阅、排空命令队列、断开通道。
func (s *BridgeService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping bridge service")

	s.hub.Close()

	if s.listener != nil {
		if err := s.server.Stop(ctx); err != nil {
			s.logger.Error("Error stopping HTTP server", zap.Error(err))
		}
	}

	if err := s.consumer.Stop(ctx); err != nil {
		s.logger.Error("Error stopping consumer", zap.Error(err))
	}

	if err := s.commands.Close(ctx); err != nil {
		s.logger.Error("Error draining command queue", zap.Error(err))
	}

	if err := s.broker.Close(); err != nil {
		s.logger.Error("Error closing broker", zap.Error(err))
	}

	s.wg.Wait()
	s.logger.Info("Bridge service stopped")
	return nil
}
