package archiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	rediscommon "github.com/11346070/HealthTrack/internal/common/redis"
	"github.com/11346070/HealthTrack/internal/config"
	"github.com/11346070/HealthTrack/internal/models"
	"github.com/11346070/HealthTrack/internal/repository"
)

// Archiver 告警归档消费者
// 从持久化审计流读取告警并落库 PostgreSQL，维护独立游标。
// 与实时订阅者互不依赖：广播丢失的告警仍会经此路径归档
type Archiver struct {
	config      *config.Config
	alertRepo   *repository.AlertRepository
	archiveRepo *repository.AlertArchiveRepository
	cursorRepo  *repository.CursorRepository
	logger      *zap.Logger

	consumerName string
	cursor       string
}

// NewArchiver 创建告警归档消费者
func NewArchiver(
	cfg *config.Config,
	alertRepo *repository.AlertRepository,
	archiveRepo *repository.AlertArchiveRepository,
	cursorRepo *repository.CursorRepository,
	logger *zap.Logger,
) *Archiver {
	return &Archiver{
		config:       cfg,
		alertRepo:    alertRepo,
		archiveRepo:  archiveRepo,
		cursorRepo:   cursorRepo,
		logger:       logger,
		consumerName: cfg.Archive.ConsumerName,
	}
}

// Start 启动归档循环，随 ctx 取消而停止
func (a *Archiver) Start(ctx context.Context) error {
	if err := a.loadCursor(ctx); err != nil {
		return err
	}

	a.logger.Info("Alert archiver started",
		zap.String("consumer", a.consumerName),
		zap.String("cursor", a.cursor),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Alert archiver stopped", zap.String("cursor", a.cursor))
			return nil
		default:
		}

		if err := a.consumeBatch(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			a.logger.Error("Failed to archive alerts",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)
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

// consumeBatch 读取并归档一批审计流条目
// 落库失败不推进游标（重试）；无法解析的条目记录后跳过
func (a *Archiver) consumeBatch(ctx context.Context) error {
	messages, err := a.alertRepo.ReadAlertsAfter(
		ctx,
		a.cursor,
		a.config.Aggregator.BlockTimeout,
		a.config.Aggregator.BatchSize,
	)
	if err != nil {
		return fmt.Errorf("failed to read alert stream: %w", err)
	}

	for _, msg := range messages {
		if err := a.archiveEntry(&msg); err != nil {
			if errors.Is(err, errUnparseable) {
				a.logger.Warn("Skipping unparseable alert entry",
					zap.String("entry_id", msg.ID),
					zap.Error(err),
				)
			} else {
				// 数据库故障：游标不推进，下次重试同一条目
				return err
			}
		}

		if err := a.cursorRepo.Set(ctx, a.alertRepo.StreamName(), a.consumerName, msg.ID); err != nil {
			return err
		}
		a.cursor = msg.ID
	}

	return nil
}

var errUnparseable = errors.New("unparseable alert entry")

func (a *Archiver) archiveEntry(msg *rediscommon.StreamMessage) error {
	info, ok := msg.Values["info"].(string)
	if !ok || info == "" {
		return fmt.Errorf("%w: missing info field", errUnparseable)
	}

	var alert models.AlertEvent
	if err := json.Unmarshal([]byte(info), &alert); err != nil {
		return fmt.Errorf("%w: %s", errUnparseable, err.Error())
	}

	id, err := a.archiveRepo.Insert(msg.ID, &alert)
	if err != nil {
		return err
	}

	a.logger.Debug("Archived alert",
		zap.String("entry_id", msg.ID),
		zap.Int64("row_id", id),
		zap.String("subject_id", alert.SubjectID),
	)
	return nil
}

// loadCursor 恢复持久化游标；没有时从流起点开始（归档不能漏）
func (a *Archiver) loadCursor(ctx context.Context) error {
	cursor, err := a.cursorRepo.Get(ctx, a.alertRepo.StreamName(), a.consumerName)
	if err != nil {
		if errors.Is(err, repository.ErrMiss) {
			a.cursor = "0-0"
			return nil
		}
		return fmt.Errorf("failed to load cursor: %w", err)
	}
	a.cursor = cursor
	return nil
}
