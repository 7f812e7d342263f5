// Package cache owns the Redis connection used for audit fan-out.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"proxy_manager/internal/config"
)

const pingTimeout = 5 * time.Second

// Open connects to Redis and verifies the connection. An empty address
// returns a nil client: audit records are then only stored, not published.
func Open(ctx context.Context, cfg config.RedisConfig, logger *logrus.Entry) (*redis.Client, error) {
	if cfg.Addr == "" {
		logger.Info("redis address not set, audit publishing disabled")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("addr", cfg.Addr).Info("redis connected")
	return client, nil
}
