package types

import (
	"time"

	"github.com/ZanzyTHEbar/karma-passport/internal/features"
	"github.com/ZanzyTHEbar/karma-passport/internal/model"
	"github.com/ZanzyTHEbar/karma-passport/internal/scoring"
)

// PredictRequest documents the body of POST /predict. Handlers decode into a
// map so numeric strings are accepted, then build a features.Record.
type PredictRequest = features.Record

// PredictResponse is the body returned by POST /predict
type PredictResponse = scoring.Result

// StatusResponse is the body of GET /
type StatusResponse struct {
	Status  string `json:"status" example:"ok"`
	Message string `json:"message" example:"Karma Passport AI backend running"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Model     *model.Info            `json:"model,omitempty"`
	Redis     string                 `json:"redis" example:"disabled"`
	RateLimit map[string]interface{} `json:"rate_limit,omitempty"`
	Metrics   map[string]interface{} `json:"metrics"`
}
