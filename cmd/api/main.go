package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bryanwahyu/docforensics/internal/application"
	"github.com/bryanwahyu/docforensics/internal/application/analysis"
	"github.com/bryanwahyu/docforensics/internal/config"
	"github.com/bryanwahyu/docforensics/internal/infra/analyzer"
	"github.com/bryanwahyu/docforensics/internal/infra/extractor"
	"github.com/bryanwahyu/docforensics/internal/infra/httpserver"
	"github.com/bryanwahyu/docforensics/internal/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "error", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := analysis.NewResultCache(cfg.Analysis.CacheSize)
	if err != nil {
		logger.Error("result cache init error", "error", err)
		os.Exit(1)
	}

	extractors := extractor.NewRegistry(logger)
	logger.Info("metadata extractors registered", "types", extractors.Types())

	metrics := middleware.NewMetrics()
	clock := application.SystemClock{}

	svc := &analysis.Service{
		Ingress: &analysis.Ingress{
			MaxBytes: cfg.Upload.MaxBytes,
			Dir:      cfg.Upload.TempDir,
			Clock:    clock,
			Logger:   logger,
		},
		Orchestrator: &analysis.Orchestrator{
			Extractors: extractors,
			Text:       analyzer.NewText(logger),
			Image:      analyzer.NewImage(logger),
			Signature:  analyzer.NewSignature(logger),
			Sequential: cfg.Analysis.Sequential,
			Clock:      clock,
			Logger:     logger,
		},
		Cache:      cache,
		Timeout:    cfg.Analysis.Timeout,
		Logger:     logger,
		OnCacheHit: metrics.CacheHit,
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Capacity > 0 {
		limiter = middleware.NewRateLimiter(ctx, cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSecond)
	}

	handler := httpserver.NewRouter(svc, httpserver.Options{
		MaxUploadBytes: cfg.Upload.MaxBytes,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		APIKeys:        cfg.Auth.APIKeys,
		RateLimiter:    limiter,
		Metrics:        metrics,
		HealthCheckers: map[string]middleware.HealthChecker{
			"tempdir": middleware.TempDirChecker{Dir: cfg.Upload.TempDir},
		},
		Logger: logger,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server listening",
			"addr", srv.Addr,
			"max_upload_bytes", cfg.Upload.MaxBytes,
			"sequential", cfg.Analysis.Sequential,
			"cache_size", cfg.Analysis.CacheSize,
			"auth", len(cfg.Auth.APIKeys) > 0,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
