package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/11346070/HealthTrack/internal/config"
	"github.com/11346070/HealthTrack/internal/metrics"
	"github.com/11346070/HealthTrack/internal/models"
	"github.com/11346070/HealthTrack/internal/repository"
)

// Producer 遥测事件生产者
// 负责校验、原子提交（快照 + 事件流 + 历史索引）以及提交后的阈值告警
type Producer struct {
	config        *config.Config
	telemetryRepo *repository.TelemetryRepository
	alertRepo     *repository.AlertRepository
	logger        *zap.Logger
}

// CommitResult 一次采样提交的结果
type CommitResult struct {
	EntryID        string             // 事件流分配的条目 ID
	Alert          *models.AlertEvent // 触发的告警（无则为 nil）
	AlertAppended  bool               // 审计流写入是否成功
	AlertPublished bool               // 实时广播是否成功
}

// NewProducer 创建遥测事件生产者
func NewProducer(
	cfg *config.Config,
	telemetryRepo *repository.TelemetryRepository,
	alertRepo *repository.AlertRepository,
	logger *zap.Logger,
) *Producer {
	return &Producer{
		config:        cfg,
		telemetryRepo: telemetryRepo,
		alertRepo:     alertRepo,
		logger:        logger,
	}
}

// Ingest 提交一次采样并评估告警规则
// 校验失败返回 *models.ValidationError，不会触发任何存储操作；
// 存储故障返回包裹 models.ErrStoreUnavailable 的错误，此时事件状态未知，
// 重新提交可能产生重复的日志条目（接受的 at-least-once 语义）。
// 告警投递相对于已提交的遥测事务是尽力而为：任一投递失败只记录并
// 反映在结果中，不回滚事务
func (p *Producer) Ingest(ctx context.Context, ev *models.TelemetryEvent) (*CommitResult, error) {
	if err := ev.Validate(); err != nil {
		metrics.ObserveIngest(metrics.ResultError, 0)
		return nil, err
	}

	start := time.Now()
	entryID, err := p.telemetryRepo.CommitEvent(ctx, ev)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultError, time.Since(start))
		return nil, fmt.Errorf("failed to ingest event: %w", err)
	}
	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start))

	result := &CommitResult{EntryID: entryID}

	rules := p.EvaluateRules(ev)
	if len(rules) == 0 {
		return result, nil
	}

	alert := &models.AlertEvent{
		AlertID:        uuid.NewString(),
		SubjectID:      ev.SubjectID,
		Timestamp:      ev.Timestamp,
		TriggeredRules: rules,
		Source:         *ev,
	}
	result.Alert = alert

	// 两个独立目的地：各自失败互不影响，也不影响已提交的事件
	if _, err := p.alertRepo.Append(ctx, alert); err != nil {
		metrics.ObserveAlertSink(metrics.SinkDurable, metrics.ResultError)
		p.logger.Error("Failed to append alert to durable log",
			zap.String("subject_id", ev.SubjectID),
			zap.Error(err),
		)
	} else {
		metrics.ObserveAlertSink(metrics.SinkDurable, metrics.ResultSuccess)
		result.AlertAppended = true
	}

	if err := p.alertRepo.Publish(ctx, alert); err != nil {
		metrics.ObserveAlertSink(metrics.SinkBroadcast, metrics.ResultError)
		p.logger.Error("Failed to publish alert broadcast",
			zap.String("subject_id", ev.SubjectID),
			zap.Error(err),
		)
	} else {
		metrics.ObserveAlertSink(metrics.SinkBroadcast, metrics.ResultSuccess)
		result.AlertPublished = true
	}

	p.logger.Info("Alert triggered",
		zap.String("subject_id", ev.SubjectID),
		zap.Strings("rules", rules),
		zap.Bool("appended", result.AlertAppended),
		zap.Bool("published", result.AlertPublished),
	)

	return result, nil
}

// EvaluateRules 独立评估各告警规则，返回触发的规则描述
// 一次采样可能触发零条、一条或多条规则
func (p *Producer) EvaluateRules(ev *models.TelemetryEvent) []string {
	var rules []string
	if ev.HeartRate >= p.config.Thresholds.HeartRateHigh {
		rules = append(rules, fmt.Sprintf("High heart rate: %g", ev.HeartRate))
	}
	if ev.BPSystolic >= p.config.Thresholds.BPSystolicHigh {
		rules = append(rules, fmt.Sprintf("High systolic BP: %g", ev.BPSystolic))
	}
	return rules
}
