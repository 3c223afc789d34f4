package database

import (
	"context"
	"fmt"

	"lostfound/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient 创建一个新的Redis客户端，用于缓存公告查询结果
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       0,
	})

	// 验证连接
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
