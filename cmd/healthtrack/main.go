package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/11346070/HealthTrack/internal/common/logger"
	"github.com/11346070/HealthTrack/internal/config"
	"github.com/11346070/HealthTrack/internal/service"
)

func main() {
	// 加载配置（不可恢复的配置错误在此快速失败）
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "healthtrack")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting healthtrack service",
		zap.String("version", "1.0.0"),
		zap.String("events_stream", cfg.Streams.Events),
		zap.String("alerts_stream", cfg.Streams.Alerts),
		zap.String("alert_channel", cfg.AlertChannel),
		zap.Bool("sensor_enabled", cfg.Sensor.Enabled),
		zap.Bool("archive_enabled", cfg.Archive.Enabled),
	)

	// 创建服务
	monitorService, err := service.NewMonitorService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create monitor service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := monitorService.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start monitor service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := monitorService.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
