package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/hueshift/internal/api"
	"github.com/dunamismax/hueshift/internal/config"
	"github.com/dunamismax/hueshift/internal/pipeline"
	"github.com/dunamismax/hueshift/internal/ratelimit"
	"github.com/dunamismax/hueshift/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), cfg.Tracing, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}

	transcoder, err := pipeline.NewTranscoder(pipeline.Options{
		JPEGQuality: cfg.Transcode.JPEGQuality,
		MaxPixels:   cfg.Transcode.MaxPixels,
	})
	if err != nil {
		logger.Fatalf("transcoder setup failed: %v", err)
	}
	defer pipeline.Shutdown()

	opts := api.Options{
		MaxUploadBytes:         cfg.API.MaxUploadBytes,
		RateLimitSubjectHeader: cfg.RateLimit.SubjectHeader,
	}
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(cfg.RateLimit.RedisOptions())
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Printf("redis client close error: %v", err)
			}
		}()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, ratelimit.Config{
			Capacity: cfg.RateLimit.Capacity,
			Window:   cfg.RateLimit.Window,
		})
		if err != nil {
			logger.Fatalf("rate limiter setup failed: %v", err)
		}
		opts.RateLimiter = limiter
		logger.Printf("rate limiting enabled capacity=%d window=%s redis=%s", cfg.RateLimit.Capacity, cfg.RateLimit.Window, cfg.RateLimit.RedisAddr)
	}

	app := api.NewServer(logger, transcoder, opts)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	go func() {
		logger.Printf("listening on %s max_upload_bytes=%d jpeg_quality=%d max_pixels=%d", cfg.API.Addr, cfg.API.MaxUploadBytes, cfg.Transcode.JPEGQuality, cfg.Transcode.MaxPixels)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Printf("tracing shutdown failed: %v", err)
	}
}
