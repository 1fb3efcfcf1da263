package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"medical-office-server/internal/config"
	"medical-office-server/internal/middleware"
	"medical-office-server/internal/ratelimit"
	"medical-office-server/internal/repository"
	"medical-office-server/internal/routes"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := repository.InitDB(cfg.Database)
	if err != nil {
		logger.Fatal("database init failed", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}

	limiters, closeLimiters := newLimiters(cfg, logger)
	defer closeLimiters()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, db, cfg, limiters, logger)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("starting HTTP server", zap.String("addr", addr), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped gracefully")
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// newLimiters uses Redis when REDIS_ADDR is set so that all instances share
// counters, and per-process ttlcache counters otherwise.
func newLimiters(cfg *config.Config, logger *zap.Logger) (routes.Limiters, func()) {
	var limiters routes.Limiters

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if cfg.RateLimit.LoginPerMinute > 0 {
			limiters.Login = ratelimit.NewRedisLimiter(client, "ratelimit:login:", cfg.RateLimit.LoginPerMinute, time.Minute)
		}
		if cfg.RateLimit.RefreshPerMinute > 0 {
			limiters.Refresh = ratelimit.NewRedisLimiter(client, "ratelimit:refresh:", cfg.RateLimit.RefreshPerMinute, time.Minute)
		}
		logger.Info("rate limiting backed by redis", zap.String("addr", cfg.Redis.Addr))
		return limiters, func() {
			if err := client.Close(); err != nil {
				logger.Warn("closing redis client failed", zap.Error(err))
			}
		}
	}

	var stops []func()
	if cfg.RateLimit.LoginPerMinute > 0 {
		l := ratelimit.NewMemoryLimiter(cfg.RateLimit.LoginPerMinute, time.Minute)
		limiters.Login = l
		stops = append(stops, l.Stop)
	}
	if cfg.RateLimit.RefreshPerMinute > 0 {
		l := ratelimit.NewMemoryLimiter(cfg.RateLimit.RefreshPerMinute, time.Minute)
		limiters.Refresh = l
		stops = append(stops, l.Stop)
	}
	logger.Info("rate limiting kept in process memory")
	return limiters, func() {
		for _, stop := range stops {
			stop()
		}
	}
}
