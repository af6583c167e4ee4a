// file: db/redis.go

package db

import (
	"context"
	"fmt"

	"go-bank-gate/config"
	"go-bank-gate/logger"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis initializes the client for the shared coordination store and
// verifies it is reachable.
func ConnectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	redisAddr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.OpTimeout)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Log.WithError(err).Error("Failed to ping Redis")
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Log.WithField("address", redisAddr).Info("Redis connection established successfully")
	return rdb, nil
}
