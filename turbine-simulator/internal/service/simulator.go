package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"windturbine/turbine-common/broker"
	"windturbine/turbine-common/httpserver"
	"windturbine/turbine-common/models"
	"windturbine/turbine-common/pubsub"
	"windturbine/turbine-simulator/internal/config"
	"windturbine/turbine-simulator/internal/consumer"
	"windturbine/turbine-simulator/internal/metrics"
	"windturbine/turbine-simulator/internal/simulator"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const serviceName = "turbine-simulator"

// SimulatorService 模拟器服务
type SimulatorService struct {
	config    *config.Config
	logger    *zap.Logger
	broker    pubsub.Broker
	generator *simulator.Generator
	consumer  *consumer.CommandConsumer
	metrics   *metrics.Metrics
	server    *httpserver.Server
	listener  net.Listener

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimulatorService 创建模拟器服务
func NewSimulatorService(cfg *config.Config, logger *zap.Logger) (*SimulatorService, error) {
	b, err := broker.New(&cfg.Broker, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create broker: %w", err)
	}
	return NewSimulatorServiceWithBroker(cfg, b, logger), nil
}

// NewSimulatorServiceWithBroker 使用已有通道创建服务
func NewSimulatorServiceWithBroker(cfg *config.Config, b pubsub.Broker, logger *zap.Logger, opts ...simulator.Option) *SimulatorService {
	m := metrics.New()
	opts = append([]simulator.Option{simulator.WithObserver(m)}, opts...)

	gen := simulator.NewGenerator(
		simulator.NewTurbineState(cfg.Simulator.BaseWind),
		b,
		cfg.Topics.Sensor,
		cfg.Simulator.PublishInterval,
		logger,
		opts...,
	)

	s := &SimulatorService{
		config:    cfg,
		logger:    logger,
		broker:    b,
		generator: gen,
		consumer:  consumer.NewCommandConsumer(b, gen, cfg.Topics.Control, logger),
		metrics:   m,
	}
	if cfg.MetricsAddr != "" {
		s.server = httpserver.NewServer(serviceName, cfg.MetricsAddr, s.routes(), logger)
	}
	return s
}

func (s *SimulatorService) routes() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *SimulatorService) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"service":         serviceName,
		"timestamp":       models.FormatTimestamp(time.Now()),
		"brokerConnected": s.broker.IsConnected(),
	})
}

// Start 启动服务
func (s *SimulatorService) Start(ctx context.Context) error {
	s.logger.Info("Starting simulator service components")

	if s.server != nil {
		ln, err := s.server.Listen()
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.config.MetricsAddr, err)
		}
		s.listener = ln
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.consumer.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start command consumer: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.generator.Run(runCtx); err != nil {
			s.logger.Error("Generator exited", zap.Error(err))
		}
	}()

	if s.listener != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.server.Serve(s.listener); err != nil {
				s.logger.Error("Metrics server exited", zap.Error(err))
			}
		}()
	}

	s.logger.Info("Simulator service started successfully")
	return nil
}

// MetricsAddr 实际监听地址（未启用时为空）
func (s *SimulatorService) MetricsAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop 停止服务
func (s *SimulatorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping simulator service")

	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.server != nil && s.listener != nil {
		if err := s.server.Stop(ctx); err != nil {
			s.logger.Error("Error stopping metrics server", zap.Error(err))
		}
	}
	s.wg.Wait()

	if err := s.broker.Close(); err != nil {
		s.logger.Error("Error closing broker", zap.Error(err))
	}

	s.logger.Info("Simulator service stopped")
	return nil
}
