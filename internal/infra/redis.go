package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisDialTimeout = 5 * time.Second
	redisIOTimeout   = 2 * time.Second
)

// NewRedisClient connects to the redis:// URL used for idempotency keys,
// rate limits and the payout sweep lock. Connections are tagged with
// clientName so they show up in CLIENT LIST.
func NewRedisClient(ctx context.Context, url, clientName string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.ClientName = clientName
	if opt.DialTimeout == 0 {
		opt.DialTimeout = redisDialTimeout
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = redisIOTimeout
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = redisIOTimeout
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opt.Addr, err)
	}
	return client, nil
}
