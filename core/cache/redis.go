// Package cache connects the optional Redis instance used for webhook
// redelivery dedupe and per-user rate limiting.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/linephoto/core/config"
	"github.com/m3rciful/linephoto/core/logger"
)

// Connect opens a Redis client and verifies it with PING.
// An empty address disables Redis and returns a nil client without error.
func Connect(ctx context.Context, cfg coreconfig.RedisConfig) (*redis.Client, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		logger.L.Info("redis disabled",
			slog.String("component", "cache"),
			slog.String("event", "redis.connect"),
			slog.String("status", "skip"),
		)
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.L.Error("redis connect failed",
			slog.String("component", "cache"),
			slog.String("event", "redis.connect"),
			slog.String("host", addr),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.L.Info("redis connected",
		slog.String("component", "cache"),
		slog.String("event", "redis.connect"),
		slog.String("host", addr),
		slog.Int("db", cfg.DB),
		slog.Duration("duration", logger.Took(start)),
	)
	return client, nil
}
