// cmd/ratelimit-demo/main.go
//
// Runs a handful of checks against the configured Redis with both policies,
// logs every decision and resets the demo windows afterwards.
package main

import (
	"context"
	"os"

	"go-bank-gate/config"
	"go-bank-gate/db"
	"go-bank-gate/logger"
	"go-bank-gate/model"
	"go-bank-gate/service"
	"go-bank-gate/store"

	"github.com/sirupsen/logrus"
)

const (
	demoUser = "demo-user"
	demoIP   = "192.168.1.1"
)

func logDecision(policy string, n int, d model.RateLimitDecision) {
	fields := logrus.Fields{
		"policy":     policy,
		"request":    n,
		"allowed":    d.Allowed,
		"remaining":  d.Remaining,
		"reset_time": d.ResetTime.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"outcome":    d.Outcome.String(),
	}
	if d.RetryAfter > 0 {
		fields["retry_after"] = d.RetryAfter
	}
	logger.Log.WithFields(fields).Info("Rate limit decision")
}

func run(cfg *config.Config) error {
	rdb, err := db.ConnectRedis(cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	limiter := service.NewRateLimitService(store.NewRedisStore(rdb, cfg.Redis.OpTimeout),
		cfg.RateLimit.General.Policy("general"),
		cfg.RateLimit.Auth.Policy("auth"),
	)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := limiter.CheckGeneral(ctx, demoUser)
		if err != nil {
			return err
		}
		logDecision("general", i, d)
	}

	for i := 1; i <= cfg.RateLimit.Auth.MaxRequests+2; i++ {
		d, err := limiter.CheckAuth(ctx, demoIP)
		if err != nil {
			return err
		}
		logDecision("auth", i, d)
	}

	limiter.ResetLimit(ctx, demoUser, limiter.GeneralPolicy())
	limiter.ResetLimit(ctx, demoIP, limiter.AuthPolicy())
	return nil
}

func main() {
	logger.Init()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Error loading configuration: %v", err)
	}
	logger.SetLevel(cfg.Log.Level)

	if err := run(cfg); err != nil {
		logger.Log.WithError(err).Error("Demo failed")
		os.Exit(1)
	}
	logger.Log.Info("Demo complete")
}
