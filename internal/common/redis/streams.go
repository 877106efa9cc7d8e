package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamMessage Redis Streams 消息
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// ReadAfter 从指定游标之后读取 Stream 消息（XREAD）
// cursor 为上一条已处理消息的 ID；"$" 表示只读取之后到达的新消息
// block 为阻塞等待时间；没有新消息时返回空切片而不是错误
func ReadAfter(ctx context.Context, client *redis.Client, stream string, cursor string, block time.Duration, count int64) ([]StreamMessage, error) {
	streams, err := client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, cursor},
		Count:   count,
		Block:   block,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			// 阻塞超时，没有新消息
			return []StreamMessage{}, nil
		}
		return nil, err
	}

	var messages []StreamMessage
	for _, s := range streams {
		for _, msg := range s.Messages {
			messages = append(messages, StreamMessage{
				Stream: s.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}

	return messages, nil
}
