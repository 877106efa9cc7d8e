package subscriber

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/11346070/HealthTrack/internal/metrics"
	"github.com/11346070/HealthTrack/internal/models"
	"github.com/11346070/HealthTrack/internal/repository"
)

// AlertSubscriber 实时告警订阅者
// 监听广播频道并维护最近告警的环形缓冲。广播是即发即弃的：
// 订阅者离线期间发布的消息在此路径上永久丢失，持久化审计流
// 由生产者独立写入，是唯一可靠的记录。实时视图与审计记录的
// 这种差异是设计属性，不在此处弥合
type AlertSubscriber struct {
	alertRepo *repository.AlertRepository
	ring      *Ring
	logger    *zap.Logger
}

// NewAlertSubscriber 创建告警订阅者
func NewAlertSubscriber(alertRepo *repository.AlertRepository, capacity int, logger *zap.Logger) *AlertSubscriber {
	return &AlertSubscriber{
		alertRepo: alertRepo,
		ring:      NewRing(capacity),
		logger:    logger,
	}
}

// Start 启动订阅循环，随 ctx 取消而停止
func (s *AlertSubscriber) Start(ctx context.Context) error {
	pubsub := s.alertRepo.Subscribe(ctx)
	defer pubsub.Close()

	s.logger.Info("Alert subscriber started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Alert subscriber stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				s.logger.Info("Alert subscription channel closed")
				return nil
			}
			s.handleMessage(msg.Payload)
		}
	}
}

// handleMessage 处理单条广播消息
// 无法解析的载荷包裹为 {raw: ...} 原样入缓冲，绝不丢弃、绝不中断订阅
func (s *AlertSubscriber) handleMessage(payload string) {
	var alert models.AlertEvent
	if err := json.Unmarshal([]byte(payload), &alert); err != nil || alert.SubjectID == "" {
		s.logger.Warn("Received malformed alert broadcast, keeping raw payload",
			zap.Int("payload_size", len(payload)),
		)
		s.ring.Push(models.RecentAlert{Raw: payload})
	} else {
		s.ring.Push(models.RecentAlert{Alert: &alert})
		s.logger.Info("Alert received",
			zap.String("subject_id", alert.SubjectID),
			zap.Strings("rules", alert.TriggeredRules),
		)
	}
	metrics.SetRecentAlertsSize(s.ring.Len())
}

// Recent 返回最多 limit 条最近告警，最新在前
func (s *AlertSubscriber) Recent(limit int) []models.RecentAlert {
	return s.ring.Snapshot(limit)
}
