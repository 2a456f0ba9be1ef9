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

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/karma-passport/internal/cache"
	"github.com/ZanzyTHEbar/karma-passport/internal/config"
	apperrors "github.com/ZanzyTHEbar/karma-passport/internal/errors"
	"github.com/ZanzyTHEbar/karma-passport/internal/middleware"
	"github.com/ZanzyTHEbar/karma-passport/internal/model"
	"github.com/ZanzyTHEbar/karma-passport/internal/monitoring"
	"github.com/ZanzyTHEbar/karma-passport/internal/ratelimit"
	"github.com/ZanzyTHEbar/karma-passport/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := monitoring.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger.Logger)
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server exited")
}

func run(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) error {
	var opts []model.Option
	if cfg.Model.CacheTTL > 0 {
		opts = append(opts, model.WithCache(cache.NewCache(cfg.Model.CacheTTL)))
	}

	predictor, err := model.Load(cfg.Model.Path, opts...)
	if err != nil {
		return apperrors.NewConfigurationError("failed to load model "+cfg.Model.Path, err)
	}
	defer predictor.Close()

	info := predictor.Info()
	logger.SystemLogger("model_loaded", cfg.Model.Path)
	slog.Info("Model ready",
		"path", cfg.Model.Path,
		"trees", info.Forest.Trees,
		"rows", info.Metadata.Rows,
		"trained_at", info.Metadata.TrainedAt,
	)

	metrics := monitoring.NewMetrics()

	redisClient, err := ratelimit.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		slog.Error("Redis unavailable, falling back to in-memory rate limiting", "error", err)
	}
	limiter := ratelimit.NewRateLimiter(redisClient, cfg.RateLimiter(), metrics)
	defer apperrors.SafeClose(limiter, "rate limiter")

	app := &application{
		cfg:       cfg,
		predictor: predictor,
		metrics:   metrics,
		logger:    logger,
		limiter:   limiter,
		security:  security.NewMiddleware(cfg.Security),
	}
	if cfg.Server.Compression {
		app.compression = middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())
	}

	router, err := newRouter(app)
	if err != nil {
		return apperrors.NewConfigurationError("invalid trusted proxies", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", cfg.Server.Port, "version", config.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
