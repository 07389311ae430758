package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 通知的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	List     string
	MaxLen   int64
}

// RedisNotifier 将事件 LPUSH 到 Redis list，并按 MaxLen 截断。
type RedisNotifier struct {
	client redis.Cmdable
	closer func() error
	list   string
	maxLen int64
}

// NewRedisNotifier 连接 Redis 并返回通知器。
func NewRedisNotifier(ctx context.Context, cfg RedisConfig) (*RedisNotifier, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisNotifier(client, client.Close, cfg), nil
}

func newRedisNotifier(client redis.Cmdable, closer func() error, cfg RedisConfig) *RedisNotifier {
	list := cfg.List
	if list == "" {
		list = "gelato:tx-outcomes"
	}
	return &RedisNotifier{client: client, closer: closer, list: list, maxLen: cfg.MaxLen}
}

// Channel 返回 Redis 渠道。
func (n *RedisNotifier) Channel() Channel { return ChannelRedis }

// Notify 写入事件。
func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := event.encode()
	if err != nil {
		return err
	}
	pipe := n.client.TxPipeline()
	pipe.LPush(ctx, n.list, payload)
	if n.maxLen > 0 {
		pipe.LTrim(ctx, n.list, 0, n.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Redis 写入通知失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (n *RedisNotifier) Close() error {
	if n == nil || n.closer == nil {
		return nil
	}
	return n.closer()
}
