package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/11346070/HealthTrack/internal/aggregator"
	"github.com/11346070/HealthTrack/internal/analytics"
	"github.com/11346070/HealthTrack/internal/archiver"
	"github.com/11346070/HealthTrack/internal/common/database"
	rediscommon "github.com/11346070/HealthTrack/internal/common/redis"
	"github.com/11346070/HealthTrack/internal/config"
	"github.com/11346070/HealthTrack/internal/httpapi"
	"github.com/11346070/HealthTrack/internal/metrics"
	"github.com/11346070/HealthTrack/internal/producer"
	"github.com/11346070/HealthTrack/internal/repository"
	"github.com/11346070/HealthTrack/internal/sensor"
	"github.com/11346070/HealthTrack/internal/subscriber"
)

// MonitorService 健康监测服务
// 组合根：显式构建并持有存储句柄与全部组件，生命周期与进程一致。
// 各工作循环（生产者/聚合器/订阅者/归档器）相互独立并发运行，
// 跨组件协调完全依赖存储自身的单操作原子性保证
type MonitorService struct {
	config      *config.Config
	logger      *zap.Logger
	redisClient *rediscommon.Client
	db          *sql.DB

	producer       *producer.Producer
	simulator      *sensor.Simulator
	streamAggr     *aggregator.Aggregator
	alertSub       *subscriber.AlertSubscriber
	alertArchiver  *archiver.Archiver
	queryAnalytics *analytics.Analytics
	httpServer     *Server

	wg sync.WaitGroup
}

// NewMonitorService 创建健康监测服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	// 初始化 Redis（遥测存储）
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	metrics.Init()

	// 创建 Repository
	telemetryRepo := repository.NewTelemetryRepository(redisClient, cfg.Streams.Events, logger)
	aggRepo := repository.NewAggregateRepository(redisClient, logger)
	cursorRepo := repository.NewCursorRepository(redisClient)
	alertRepo := repository.NewAlertRepository(redisClient, cfg.Streams.Alerts, cfg.AlertChannel, logger)

	svc := &MonitorService{
		config:      cfg,
		logger:      logger,
		redisClient: redisClient,
	}

	// 核心组件
	svc.producer = producer.NewProducer(cfg, telemetryRepo, alertRepo, logger)
	svc.streamAggr = aggregator.NewAggregator(cfg, telemetryRepo, aggRepo, cursorRepo, logger)
	svc.alertSub = subscriber.NewAlertSubscriber(alertRepo, cfg.RecentAlertsCapacity, logger)
	svc.queryAnalytics = analytics.NewAnalytics(telemetryRepo, aggRepo, logger)

	if cfg.Sensor.Enabled {
		svc.simulator = sensor.NewSimulator(cfg, svc.producer, logger)
	}

	// 可选的告警归档（PostgreSQL）
	if cfg.Archive.Enabled {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			rediscommon.Close(redisClient)
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		svc.db = db
		archiveRepo := repository.NewAlertArchiveRepository(db, logger)
		svc.alertArchiver = archiver.NewArchiver(cfg, alertRepo, archiveRepo, cursorRepo, logger)
	}

	// 只读查询 API
	handler := httpapi.NewHandler(svc.queryAnalytics, svc.alertSub, logger)
	svc.httpServer = NewServer(cfg.HTTP.Addr, handler.Routes(), logger)

	return svc, nil
}

// Producer 遥测事件生产者（供外部提交采样）
func (s *MonitorService) Producer() *producer.Producer {
	return s.producer
}

// Start 启动所有工作循环；循环随 ctx 取消而协作式停止
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting healthtrack service components")

	s.runLoop(ctx, "aggregator", s.streamAggr.Start)
	s.runLoop(ctx, "alert-subscriber", s.alertSub.Start)

	if s.simulator != nil {
		s.runLoop(ctx, "sensor-simulator", s.simulator.Start)
	}
	if s.alertArchiver != nil {
		s.runLoop(ctx, "alert-archiver", s.alertArchiver.Start)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server exited", zap.Error(err))
		}
	}()

	s.logger.Info("Healthtrack service started successfully")
	return nil
}

func (s *MonitorService) runLoop(ctx context.Context, name string, loop func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := loop(ctx); err != nil {
			s.logger.Error("Component loop exited with error",
				zap.String("component", name),
				zap.Error(err),
			)
		}
	}()
}

// Stop 优雅停止：关闭 HTTP 服务、等待循环退出、释放存储连接
func (s *MonitorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping healthtrack service")

	if err := s.httpServer.Stop(ctx); err != nil {
		s.logger.Error("Error stopping HTTP server", zap.Error(err))
	}

	s.wg.Wait()

	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("Healthtrack service stopped")
	return nil
}
