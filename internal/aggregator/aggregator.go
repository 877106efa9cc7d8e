package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	rediscommon "github.com/11346070/HealthTrack/internal/common/redis"
	"github.com/11346070/HealthTrack/internal/config"
	"github.com/11346070/HealthTrack/internal/metrics"
	"github.com/11346070/HealthTrack/internal/models"
	"github.com/11346070/HealthTrack/internal/repository"
)

// Aggregator 事件流聚合消费者
// 从事件流的游标之后分批读取条目，为每个对象维护小时级运行累加器，
// 写入读优化的小时摘要并推进游标。
//
// 投递语义为 at-least-once：崩溃发生在累加写入之后、游标推进之前时，
// 重启会重放该条目并重复计数。源格式没有可用的去重键，
// 因此不做去重，双算风险作为文档化属性保留。
// 设计假定每个事件流只运行一个聚合器实例（见 AggregateRepository）
type Aggregator struct {
	config        *config.Config
	telemetryRepo *repository.TelemetryRepository
	aggRepo       *repository.AggregateRepository
	cursorRepo    *repository.CursorRepository
	logger        *zap.Logger

	consumerName string
	cursor       string
}

// NewAggregator 创建聚合消费者
func NewAggregator(
	cfg *config.Config,
	telemetryRepo *repository.TelemetryRepository,
	aggRepo *repository.AggregateRepository,
	cursorRepo *repository.CursorRepository,
	logger *zap.Logger,
) *Aggregator {
	return &Aggregator{
		config:        cfg,
		telemetryRepo: telemetryRepo,
		aggRepo:       aggRepo,
		cursorRepo:    cursorRepo,
		logger:        logger,
		consumerName:  cfg.Aggregator.ConsumerName,
	}
}

// Start 启动消费循环，随 ctx 取消而停止（批次之间协作式检查）
func (a *Aggregator) Start(ctx context.Context) error {
	if err := a.loadCursor(ctx); err != nil {
		return err
	}

	a.logger.Info("Stream aggregator started",
		zap.String("consumer", a.consumerName),
		zap.String("cursor", a.cursor),
		zap.Int64("batch_size", a.config.Aggregator.BatchSize),
		zap.Duration("block_timeout", a.config.Aggregator.BlockTimeout),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Stream aggregator stopped", zap.String("cursor", a.cursor))
			return nil
		default:
		}

		_, err := a.consumeBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				a.logger.Info("Stream aggregator stopped", zap.String("cursor", a.cursor))
				return nil
			}
			a.logger.Error("Failed to consume event stream",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)
			// 指数退避后重试
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}

		backoffDuration = time.Second
	}
}

// consumeBatch 读取并处理一批条目，返回成功处理的条目数
// 存储故障会中断批次且不推进游标，下次从同一位置重读；
// 无法解析的条目记录后跳过并推进游标，避免毒丸阻塞消费
func (a *Aggregator) consumeBatch(ctx context.Context) (int, error) {
	messages, err := a.telemetryRepo.ReadEventsAfter(
		ctx,
		a.cursor,
		a.config.Aggregator.BlockTimeout,
		a.config.Aggregator.BatchSize,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to read event stream: %w", err)
	}

	processed := 0
	var lastEventTS int64
	for _, msg := range messages {
		ev, err := a.processEntry(ctx, &msg)
		if err != nil {
			if errors.Is(err, models.ErrStoreUnavailable) {
				// 游标未推进，该条目会被重读
				return processed, err
			}
			a.logger.Warn("Skipping malformed stream entry",
				zap.String("entry_id", msg.ID),
				zap.Error(err),
			)
		} else {
			processed++
			lastEventTS = ev.Timestamp
		}

		// 推进游标：聚合结果已持久化（或条目被判定为不可处理）
		if err := a.cursorRepo.Set(ctx, a.config.Streams.Events, a.consumerName, msg.ID); err != nil {
			return processed, err
		}
		a.cursor = msg.ID
	}

	if processed > 0 {
		metrics.ObserveAggregated(processed, lastEventTS)
	}
	return processed, nil
}

// processEntry 处理单条事件：
//  1. 按 UTC 日历小时推导分桶键
//  2. 累加小时桶 sum/count 并刷新保留期
//  3. 重算平均值并写入读优化摘要
//  4. 更新小时索引（幂等）
func (a *Aggregator) processEntry(ctx context.Context, msg *rediscommon.StreamMessage) (*models.TelemetryEvent, error) {
	ev, err := models.ParseEventFields(msg.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to parse event fields: %w", err)
	}

	hourKey, epochHour := models.HourKeyFromTimestamp(ev.Timestamp)
	retention := a.config.Retention()

	sum, count, err := a.aggRepo.IncrementHourBucket(ctx, ev.SubjectID, hourKey, ev.HeartRate, retention)
	if err != nil {
		return nil, err
	}

	avg := 0.0
	if count > 0 {
		avg = sum / float64(count)
	}

	summary := &models.HourSummary{
		Hour:          hourKey,
		AvgHeartRate:  avg,
		Sum:           sum,
		Count:         count,
		LastTimestamp: ev.Timestamp,
	}
	if err := a.aggRepo.SetHourSummary(ctx, ev.SubjectID, summary, retention); err != nil {
		return nil, err
	}

	if err := a.aggRepo.UpsertHourIndex(ctx, ev.SubjectID, hourKey, epochHour, a.config.Aggregator.RetentionHours); err != nil {
		return nil, err
	}

	a.logger.Debug("Aggregated telemetry entry",
		zap.String("entry_id", msg.ID),
		zap.String("subject_id", ev.SubjectID),
		zap.String("hour", hourKey),
		zap.Float64("avg_hr", avg),
		zap.Int64("count", count),
	)

	return ev, nil
}

// loadCursor 恢复持久化游标；没有时使用配置的起始位置
func (a *Aggregator) loadCursor(ctx context.Context) error {
	cursor, err := a.cursorRepo.Get(ctx, a.config.Streams.Events, a.consumerName)
	if err != nil {
		if errors.Is(err, repository.ErrMiss) {
			a.cursor = a.config.Aggregator.StartID
			return nil
		}
		return fmt.Errorf("failed to load cursor: %w", err)
	}
	a.cursor = cursor
	return nil
}
