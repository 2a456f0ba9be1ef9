package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/karma-passport/docs"
	"github.com/ZanzyTHEbar/karma-passport/internal/config"
	apperrors "github.com/ZanzyTHEbar/karma-passport/internal/errors"
	"github.com/ZanzyTHEbar/karma-passport/internal/features"
	"github.com/ZanzyTHEbar/karma-passport/internal/middleware"
	"github.com/ZanzyTHEbar/karma-passport/internal/model"
	"github.com/ZanzyTHEbar/karma-passport/internal/monitoring"
	"github.com/ZanzyTHEbar/karma-passport/internal/ratelimit"
	"github.com/ZanzyTHEbar/karma-passport/internal/security"
	"github.com/ZanzyTHEbar/karma-passport/internal/types"
)

const statusMessage = "Karma Passport AI backend running"

// application carries the process-lifetime dependencies shared by handlers
type application struct {
	cfg       *config.Config
	predictor *model.Predictor
	metrics   *monitoring.Metrics
	logger    *monitoring.Logger
	limiter   *ratelimit.RateLimiter
	security  *security.Middleware
	// compression is optional; nil serves bodies uncompressed
	compression *middleware.CompressionMiddleware
}

func newRouter(app *application) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(app.cfg.Server.TrustedProxies); err != nil {
		return nil, err
	}

	r.Use(apperrors.RecoveryHandler())
	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(app.metrics, app.logger))
	if app.compression != nil {
		r.Use(app.compression.Handler())
	}
	r.Use(apperrors.ErrorHandler())
	r.Use(app.security.CORS())
	r.Use(app.security.SecurityHeaders)

	r.GET("/", app.handleStatus)
	r.POST("/predict",
		app.limiter.IPRateLimitMiddleware(),
		app.security.RequestTimeout,
		app.security.ValidateContentType,
		app.security.LimitBody,
		app.handlePredict,
	)
	r.GET("/health", app.handleHealth)
	r.GET("/metrics", app.handleMetrics)
	r.GET("/model", app.handleModel)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r, nil
}

// handleStatus godoc
// @Summary Service status
// @Tags status
// @Produce json
// @Success 200 {object} types.StatusResponse
// @Router / [get]
func (app *application) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, types.StatusResponse{Status: "ok", Message: statusMessage})
}

// handlePredict godoc
// @Summary Score a worker profile
// @Tags scoring
// @Accept json
// @Produce json
// @Param request body types.PredictRequest true "Nine numeric karma features"
// @Success 200 {object} types.PredictResponse
// @Failure 400 {object} apperrors.ErrorResponse
// @Failure 429 {object} apperrors.ErrorResponse
// @Router /predict [post]
func (app *application) handlePredict(c *gin.Context) {
	start := time.Now()
	if app.predictor == nil {
		apperrors.Respond(c, apperrors.NewModelError("Model not loaded", nil))
		return
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		apperrors.Respond(c, apperrors.FromBindingError(err))
		return
	}

	if problems := features.Check(body); len(problems) > 0 {
		fields := make(map[string]string, len(problems))
		for field, err := range problems {
			fields[field] = err.Error()
		}
		apperrors.Respond(c, apperrors.NewValidationErrorWithMap(fields))
		return
	}

	record, err := features.FromMap(body)
	if err != nil {
		apperrors.Respond(c, apperrors.NewValidationError("Invalid request body", err.Error()))
		return
	}

	result, cached, err := app.predictor.Predict(c.Request.Context(), record)
	if err != nil {
		app.metrics.IncrementPredictionError()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			apperrors.Respond(c, apperrors.ToAppError(err))
			return
		}
		apperrors.Respond(c, apperrors.NewModelError("Prediction failed", err))
		return
	}

	app.metrics.RecordPrediction(string(result.RiskCategory), cached)
	app.logger.PredictionLogger(c.GetString(monitoring.RequestIDKey), result.KarmaScore, string(result.RiskCategory), result.LoanLimit, time.Since(start), cached)

	c.JSON(http.StatusOK, result)
}

// handleHealth godoc
// @Summary Health, model and metrics summary
// @Tags status
// @Produce json
// @Success 200 {object} types.HealthResponse
// @Router /health [get]
func (app *application) handleHealth(c *gin.Context) {
	resp := types.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   config.Version,
		Uptime:    monitoring.Uptime().Round(time.Second).String(),
		RateLimit: app.limiter.GetStats(),
		Metrics:   app.metrics.GetStats(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()
	resp.Redis = app.limiter.RedisStatus(ctx)
	if resp.Redis == "unavailable" {
		resp.Status = "degraded"
	}
	if app.predictor != nil {
		info := app.predictor.Info()
		resp.Model = &info
	} else {
		resp.Status = "degraded"
	}

	c.JSON(http.StatusOK, resp)
}

// handleMetrics godoc
// @Summary Request, prediction, cache and rate limit counters
// @Tags status
// @Produce json
// @Router /metrics [get]
func (app *application) handleMetrics(c *gin.Context) {
	stats := app.metrics.GetStats()
	if app.predictor != nil {
		stats["prediction_cache"] = app.predictor.CacheStats()
	}
	if app.compression != nil {
		stats["compression"] = app.compression.GetStats()
	}
	c.JSON(http.StatusOK, stats)
}

// handleModel godoc
// @Summary Loaded model metadata
// @Tags scoring
// @Produce json
// @Success 200 {object} model.Info
// @Router /model [get]
func (app *application) handleModel(c *gin.Context) {
	if app.predictor == nil {
		apperrors.Respond(c, apperrors.NewModelError("Model not loaded", nil))
		return
	}
	c.JSON(http.StatusOK, app.predictor.Info())
}
