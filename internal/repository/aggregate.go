package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/11346070/HealthTrack/internal/models"
)

// AggregateRepository 小时聚合仓库：运行累加器、小时摘要、小时索引
type AggregateRepository struct {
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewAggregateRepository 创建小时聚合仓库
func NewAggregateRepository(redisClient *redis.Client, logger *zap.Logger) *AggregateRepository {
	return &AggregateRepository{
		redisClient: redisClient,
		logger:      logger,
	}
}

func bucketKey(subjectID, hourKey string) string {
	return fmt.Sprintf("agg:hr:%s:%s", subjectID, hourKey)
}

func summaryKey(subjectID, hourKey string) string {
	return fmt.Sprintf("analytics:hour:%s:%s", subjectID, hourKey)
}

func indexKey(subjectID string) string {
	return fmt.Sprintf("analytics:hourly:%s", subjectID)
}

// IncrementHourBucket 累加小时桶并刷新保留期（pipeline）：
//
//	HINCRBYFLOAT sum += heartRate / HINCRBY count += 1 / EXPIRE retention
//
// 返回累加后的 sum 与 count。整个序列不是事务：若同一对象小时
// 存在多个并发聚合器实例，返回值可能观察到交错的部分更新（读偏斜）。
// 设计假定每个事件流只运行一个聚合器实例
func (r *AggregateRepository) IncrementHourBucket(ctx context.Context, subjectID, hourKey string, heartRate float64, retention time.Duration) (float64, int64, error) {
	key := bucketKey(subjectID, hourKey)

	var sumCmd *redis.FloatCmd
	var countCmd *redis.IntCmd
	_, err := r.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		sumCmd = pipe.HIncrByFloat(ctx, key, "sum", heartRate)
		countCmd = pipe.HIncrBy(ctx, key, "count", 1)
		pipe.Expire(ctx, key, retention)
		return nil
	})
	if err != nil {
		return 0, 0, storeErr("failed to increment hour bucket", err)
	}

	return sumCmd.Val(), countCmd.Val(), nil
}

// SetHourSummary 写入读优化的小时摘要，保留期与小时桶一致
func (r *AggregateRepository) SetHourSummary(ctx context.Context, subjectID string, summary *models.HourSummary, retention time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal hour summary: %w", err)
	}
	if err := r.redisClient.Set(ctx, summaryKey(subjectID, summary.Hour), data, retention).Err(); err != nil {
		return storeErr("failed to set hour summary", err)
	}
	return nil
}

// GetHourSummary 读取小时摘要；过期或从未写入时返回 ErrMiss
func (r *AggregateRepository) GetHourSummary(ctx context.Context, subjectID, hourKey string) (*models.HourSummary, error) {
	val, err := r.redisClient.Get(ctx, summaryKey(subjectID, hourKey)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrMiss
		}
		return nil, storeErr("failed to get hour summary", err)
	}

	var summary models.HourSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal hour summary: %w", err)
	}
	return &summary, nil
}

// UpsertHourIndex 更新对象的小时索引（幂等：同一 hourKey 恒映射到同一 score）
// 同时裁剪保留窗口之外的索引成员，保持索引与小时桶一一对应
func (r *AggregateRepository) UpsertHourIndex(ctx context.Context, subjectID, hourKey string, epochHour int64, retentionHours int) error {
	key := indexKey(subjectID)

	_, err := r.redisClient.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, &redis.Z{
			Score:  float64(epochHour),
			Member: hourKey,
		})
		cutoff := epochHour - int64(retentionHours)
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		return nil
	})
	if err != nil {
		return storeErr("failed to upsert hour index", err)
	}
	return nil
}

// HourKeysInRange 按 epoch 小时区间查询对象的小时键，按小时升序返回
func (r *AggregateRepository) HourKeysInRange(ctx context.Context, subjectID string, minHour, maxHour int64) ([]string, error) {
	members, err := r.redisClient.ZRangeByScore(ctx, indexKey(subjectID), &redis.ZRangeBy{
		Min: strconv.FormatInt(minHour, 10),
		Max: strconv.FormatInt(maxHour, 10),
	}).Result()
	if err != nil {
		return nil, storeErr("failed to range hour index", err)
	}
	return members, nil
}
