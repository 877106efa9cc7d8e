package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/11346070/HealthTrack/internal/common/database"
	rediscommon "github.com/11346070/HealthTrack/internal/common/redis"
)

// Config 健康监测服务配置
type Config struct {
	Redis    rediscommon.Options
	Database database.Config

	// Redis 键空间配置
	Streams struct {
		Events string // 遥测事件流，如 "health:events"
		Alerts string // 告警审计流，如 "health:alerts"
	}
	AlertChannel string // Pub/Sub 实时告警频道

	// 模拟传感器配置
	Sensor struct {
		Enabled  bool
		Subjects int           // 模拟对象数量（subject1..N）
		Interval time.Duration // 采样间隔
	}

	// 告警阈值配置
	Thresholds struct {
		HeartRateHigh  float64 // 心率告警阈值（>=触发）
		BPSystolicHigh float64 // 收缩压告警阈值（>=触发）
	}

	// 聚合消费者配置
	Aggregator struct {
		ConsumerName   string
		BatchSize      int64
		BlockTimeout   time.Duration // XREAD 阻塞超时
		RetentionHours int           // 小时桶保留时长
		StartID        string        // 无持久化游标时的起始位置
	}

	// 最近告警环形缓冲容量
	RecentAlertsCapacity int

	// 告警归档服务配置（可选）
	Archive struct {
		Enabled      bool
		ConsumerName string
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置（带默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "healthtrack")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Streams.Events = getEnv("STREAM_EVENTS", "health:events")
	cfg.Streams.Alerts = getEnv("STREAM_ALERTS", "health:alerts")
	cfg.AlertChannel = getEnv("ALERT_CHANNEL", "alerts")

	cfg.Sensor.Enabled = getEnvBool("SENSOR_ENABLED", true)
	cfg.Sensor.Subjects = getEnvInt("SENSOR_SUBJECTS", 5)
	cfg.Sensor.Interval = time.Duration(getEnvInt("SENSOR_INTERVAL_MS", 500)) * time.Millisecond

	cfg.Thresholds.HeartRateHigh = getEnvFloat("ALERT_HR_THRESHOLD", 120)
	cfg.Thresholds.BPSystolicHigh = getEnvFloat("ALERT_BP_SYS_THRESHOLD", 160)

	cfg.Aggregator.ConsumerName = getEnv("AGG_CONSUMER_NAME", "aggregator-1")
	cfg.Aggregator.BatchSize = int64(getEnvInt("AGG_BATCH_SIZE", 50))
	cfg.Aggregator.BlockTimeout = time.Duration(getEnvInt("AGG_BLOCK_MS", 2000)) * time.Millisecond
	cfg.Aggregator.RetentionHours = getEnvInt("AGG_RETENTION_HOURS", 48)
	cfg.Aggregator.StartID = getEnv("AGG_START_ID", "$")

	cfg.RecentAlertsCapacity = getEnvInt("RECENT_ALERTS_CAPACITY", 200)

	cfg.Archive.Enabled = getEnvBool("ARCHIVE_ENABLED", false)
	cfg.Archive.ConsumerName = getEnv("ARCHIVE_CONSUMER_NAME", "archiver-1")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置；不可恢复的配置错误在任何循环启动前快速失败
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.Streams.Events == "" || c.Streams.Alerts == "" {
		return fmt.Errorf("stream keys must not be empty")
	}
	if c.AlertChannel == "" {
		return fmt.Errorf("ALERT_CHANNEL must not be empty")
	}
	if c.Thresholds.HeartRateHigh <= 0 || c.Thresholds.BPSystolicHigh <= 0 {
		return fmt.Errorf("alert thresholds must be positive")
	}
	if c.Aggregator.BatchSize <= 0 {
		return fmt.Errorf("AGG_BATCH_SIZE must be positive")
	}
	if c.Aggregator.BlockTimeout <= 0 {
		return fmt.Errorf("AGG_BLOCK_MS must be positive")
	}
	if c.Aggregator.RetentionHours <= 0 {
		return fmt.Errorf("AGG_RETENTION_HOURS must be positive")
	}
	if c.RecentAlertsCapacity <= 0 {
		return fmt.Errorf("RECENT_ALERTS_CAPACITY must be positive")
	}
	if c.Sensor.Enabled {
		if c.Sensor.Subjects <= 0 {
			return fmt.Errorf("SENSOR_SUBJECTS must be positive")
		}
		if c.Sensor.Interval <= 0 {
			return fmt.Errorf("SENSOR_INTERVAL_MS must be positive")
		}
	}
	if c.Archive.Enabled {
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Database == "" {
			return fmt.Errorf("archive enabled but database connection parameters are incomplete")
		}
	}
	return nil
}

// Retention 小时桶保留时长
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Aggregator.RetentionHours) * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
