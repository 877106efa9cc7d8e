package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "github.com/11346070/HealthTrack/internal/common/redis"
	"github.com/11346070/HealthTrack/internal/models"
)

// ErrMiss 键不存在
var ErrMiss = errors.New("cache miss")

// storeErr 标记底层存储故障；调用方可用 errors.Is(err, models.ErrStoreUnavailable) 判断
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}

// TelemetryRepository 遥测数据仓库：快照、事件流、心率历史索引
type TelemetryRepository struct {
	redisClient *redis.Client
	eventStream string
	logger      *zap.Logger
}

// NewTelemetryRepository 创建遥测数据仓库
func NewTelemetryRepository(redisClient *redis.Client, eventStream string, logger *zap.Logger) *TelemetryRepository {
	return &TelemetryRepository{
		redisClient: redisClient,
		eventStream: eventStream,
		logger:      logger,
	}
}

func snapshotKey(subjectID string) string {
	return fmt.Sprintf("subject:%s:latest", subjectID)
}

func historyKey(subjectID string) string {
	return fmt.Sprintf("subject:%s:hr:history", subjectID)
}

// CommitEvent 原子提交一次采样（MULTI/EXEC）：
//  1. SET 最新快照（整个事件 JSON）
//  2. XADD 追加到事件流（分配单调递增的条目 ID）
//  3. ZADD 写入心率历史索引（score 为时间戳）
//
// 三个副作用要么全部可见要么全不可见；返回新条目的 ID
func (r *TelemetryRepository) CommitEvent(ctx context.Context, ev *models.TelemetryEvent) (string, error) {
	snapshot, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	histMember, err := json.Marshal(map[string]interface{}{
		"ts": ev.Timestamp,
		"hr": ev.HeartRate,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal history member: %w", err)
	}

	var addCmd *redis.StringCmd
	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, snapshotKey(ev.SubjectID), snapshot, 0)
		addCmd = pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.eventStream,
			Values: ev.StreamFields(),
		})
		pipe.ZAdd(ctx, historyKey(ev.SubjectID), &redis.Z{
			Score:  float64(ev.Timestamp),
			Member: string(histMember),
		})
		return nil
	})
	if err != nil {
		return "", storeErr("failed to commit telemetry event", err)
	}

	return addCmd.Val(), nil
}

// GetSnapshot 读取对象的最新快照；不存在时返回 ErrMiss
func (r *TelemetryRepository) GetSnapshot(ctx context.Context, subjectID string) (*models.TelemetryEvent, error) {
	val, err := r.redisClient.Get(ctx, snapshotKey(subjectID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrMiss
		}
		return nil, storeErr("failed to get snapshot", err)
	}

	var ev models.TelemetryEvent
	if err := json.Unmarshal([]byte(val), &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &ev, nil
}

// AllSnapshots 扫描所有对象的最新快照
// 扫描成本与有快照的对象数线性相关，仅在对象基数较小时可接受
func (r *TelemetryRepository) AllSnapshots(ctx context.Context) ([]models.TelemetryEvent, error) {
	var snapshots []models.TelemetryEvent

	iter := r.redisClient.Scan(ctx, 0, "subject:*:latest", 200).Iterator()
	for iter.Next(ctx) {
		val, err := r.redisClient.Get(ctx, iter.Val()).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, storeErr("failed to get snapshot", err)
		}
		var ev models.TelemetryEvent
		if err := json.Unmarshal([]byte(val), &ev); err != nil {
			r.logger.Warn("Skipping unparseable snapshot",
				zap.String("key", iter.Val()),
				zap.Error(err),
			)
			continue
		}
		snapshots = append(snapshots, ev)
	}
	if err := iter.Err(); err != nil {
		return nil, storeErr("failed to scan snapshots", err)
	}

	return snapshots, nil
}

// ReadEventsAfter 从游标之后读取一批事件流条目，最多阻塞 block 时长
func (r *TelemetryRepository) ReadEventsAfter(ctx context.Context, cursor string, block time.Duration, count int64) ([]rediscommon.StreamMessage, error) {
	return rediscommon.ReadAfter(ctx, r.redisClient, r.eventStream, cursor, block, count)
}
