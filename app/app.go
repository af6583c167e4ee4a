// File: app/app.go
package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-bank-gate/config"
	"go-bank-gate/db"
	"go-bank-gate/handler"
	"go-bank-gate/logger"
	"go-bank-gate/repository"
	"go-bank-gate/router"
	"go-bank-gate/service"
	"go-bank-gate/store"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const shutdownTimeout = 5 * time.Second

// NewHandler wires repositories, services and handlers into the HTTP surface.
func NewHandler(cfg *config.Config, database *sql.DB, rdb redis.UniversalClient) http.Handler {
	st := store.NewRedisStore(rdb, cfg.Redis.OpTimeout)

	userRepo := repository.NewUserRepository(database)
	tokens := service.NewTokenManager(cfg.JWT)
	authService := service.NewAuthService(tokens, st, userRepo, service.NewBcryptHasher(bcrypt.DefaultCost))
	rateLimitService := service.NewRateLimitService(st,
		cfg.RateLimit.General.Policy("general"),
		cfg.RateLimit.Auth.Policy("auth"),
	)

	authHandler := handler.NewAuthHandler(authService, handler.CookieSettings{
		Name:   cfg.Cookie.Name,
		Path:   cfg.Cookie.Path,
		Secure: cfg.SecureCookies(),
		MaxAge: cfg.JWT.RefreshTTL,
	})
	rateLimitHandler := handler.NewRateLimitHandler(rateLimitService)

	return router.NewRouter(authHandler, rateLimitHandler, authService, rateLimitService, cfg.RateLimit.AuthPaths)
}

func Run() {
	logger.Init()
	logger.Log.Info("Logger initialized")

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Error loading configuration: %v", err)
	}
	logger.SetLevel(cfg.Log.Level)
	logger.Log.WithField("env", cfg.Server.Env).Info("Configuration loaded successfully")

	database, err := db.Connect(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Error connecting to the database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsPath, cfg.Database.DSN()); err != nil {
		logger.Log.Fatalf("Error running migrations: %v", err)
	}

	rdb, err := db.ConnectRedis(cfg.Redis)
	if err != nil {
		logger.Log.Fatalf("Error connecting to redis: %v", err)
	}
	defer rdb.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           NewHandler(cfg, database, rdb),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Infof("Server starting on port :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Warn("Shutdown signal received. Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Errorf("Server forced to shutdown: %v", err)
		return
	}

	logger.Log.Info("Server exited properly")
}
