package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "github.com/11346070/HealthTrack/internal/common/redis"
	"github.com/11346070/HealthTrack/internal/models"
)

// AlertRepository 告警仓库：持久化审计流 + 实时广播频道
// 两条投递路径相互独立，失败互不影响；审计流可靠，广播不持久化
type AlertRepository struct {
	redisClient *redis.Client
	alertStream string
	channel     string
	logger      *zap.Logger
}

// NewAlertRepository 创建告警仓库
func NewAlertRepository(redisClient *redis.Client, alertStream, channel string, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		redisClient: redisClient,
		alertStream: alertStream,
		channel:     channel,
		logger:      logger,
	}
}

// Append 追加告警到持久化审计流
func (r *AlertRepository) Append(ctx context.Context, alert *models.AlertEvent) (string, error) {
	info, err := json.Marshal(alert)
	if err != nil {
		return "", fmt.Errorf("failed to marshal alert: %w", err)
	}

	id, err := r.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: r.alertStream,
		Values: map[string]interface{}{
			"subject_id": alert.SubjectID,
			"info":       string(info),
		},
	}).Result()
	if err != nil {
		return "", storeErr("failed to append alert", err)
	}
	return id, nil
}

// Publish 发布告警到实时频道（即发即弃：无订阅者在线时该消息在此路径上永久丢失）
func (r *AlertRepository) Publish(ctx context.Context, alert *models.AlertEvent) error {
	msg, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := r.redisClient.Publish(ctx, r.channel, msg).Err(); err != nil {
		return storeErr("failed to publish alert", err)
	}
	return nil
}

// Subscribe 订阅实时告警频道
func (r *AlertRepository) Subscribe(ctx context.Context) *redis.PubSub {
	return r.redisClient.Subscribe(ctx, r.channel)
}

// ReadAlertsAfter 从游标之后读取一批审计流条目（供归档消费者使用）
func (r *AlertRepository) ReadAlertsAfter(ctx context.Context, cursor string, block time.Duration, count int64) ([]rediscommon.StreamMessage, error) {
	return rediscommon.ReadAfter(ctx, r.redisClient, r.alertStream, cursor, block, count)
}

// StreamName 审计流键名
func (r *AlertRepository) StreamName() string {
	return r.alertStream
}
