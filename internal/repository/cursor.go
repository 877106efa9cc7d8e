package repository

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// CursorRepository 消费者游标仓库
// 游标记录某个消费者在某条流上最后成功处理的条目 ID，
// 只能在对应的处理结果持久化之后推进
type CursorRepository struct {
	redisClient *redis.Client
}

// NewCursorRepository 创建游标仓库
func NewCursorRepository(redisClient *redis.Client) *CursorRepository {
	return &CursorRepository{redisClient: redisClient}
}

func cursorKey(stream, consumer string) string {
	return fmt.Sprintf("%s:cursor:%s", stream, consumer)
}

// Get 读取持久化游标；从未写入时返回 ErrMiss
func (r *CursorRepository) Get(ctx context.Context, stream, consumer string) (string, error) {
	val, err := r.redisClient.Get(ctx, cursorKey(stream, consumer)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrMiss
		}
		return "", storeErr("failed to get cursor", err)
	}
	return val, nil
}

// Set 持久化游标
func (r *CursorRepository) Set(ctx context.Context, stream, consumer, entryID string) error {
	if err := r.redisClient.Set(ctx, cursorKey(stream, consumer), entryID, 0).Err(); err != nil {
		return storeErr("failed to set cursor", err)
	}
	return nil
}
