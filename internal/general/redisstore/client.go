package redisstore

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"motoride/internal/general/config"
	"motoride/internal/general/logger"

	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis, verifies connectivity, and returns the client.
func NewClient(ctx context.Context, cfg *config.Config, log *logger.Logger) (*redis.Client, error) {
	addr := net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port))

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Info(ctx, "redis_connected", "Connected to Redis", map[string]any{
		"addr": addr,
		"db":   cfg.Redis.DB,
	})

	return client, nil
}
