package main

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/karma-passport/internal/cache"
	"github.com/ZanzyTHEbar/karma-passport/internal/config"
	"github.com/ZanzyTHEbar/karma-passport/internal/features"
	"github.com/ZanzyTHEbar/karma-passport/internal/forest"
	"github.com/ZanzyTHEbar/karma-passport/internal/middleware"
	"github.com/ZanzyTHEbar/karma-passport/internal/model"
	"github.com/ZanzyTHEbar/karma-passport/internal/monitoring"
	"github.com/ZanzyTHEbar/karma-passport/internal/ratelimit"
	"github.com/ZanzyTHEbar/karma-passport/internal/scoring"
	"github.com/ZanzyTHEbar/karma-passport/internal/security"
)

const testScore = 82.347

func constantPredictor(t testing.TB, score float64, opts ...model.Option) *model.Predictor {
	t.Helper()
	f := &forest.Forest{
		Features: len(features.Columns),
		Trees: []forest.Tree{
			{Nodes: []forest.Node{{Feature: -1, Value: score}}},
			{Nodes: []forest.Node{{Feature: -1, Value: score}}},
		},
	}
	p, err := model.New(&model.Artifact{
		Metadata: model.Metadata{
			Version:        model.ArtifactVersion,
			FeatureColumns: features.Columns,
			Target:         "karma_score",
			TrainedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Rows:           42,
			Params:         forest.DefaultParams(),
		},
		Forest: f,
	}, opts...)
	require.NoError(t, err)
	return p
}

type testOptions struct {
	predictor *model.Predictor
	nilModel  bool
	perMinute int
	origins   []string
}

func setupRouter(t testing.TB, o testOptions) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.RateLimit.PerMinute = o.perMinute
	cfg.Security.AllowedOrigins = o.origins

	metrics := monitoring.NewMetrics()
	limiter := ratelimit.NewRateLimiter(nil, cfg.RateLimiter(), metrics)
	t.Cleanup(func() { _ = limiter.Close() })

	p := o.predictor
	if p == nil && !o.nilModel {
		p = constantPredictor(t, testScore)
	}

	app := &application{
		cfg:         cfg,
		predictor:   p,
		metrics:     metrics,
		logger:      monitoring.NewLoggerWithWriter(io.Discard, "error"),
		limiter:     limiter,
		security:    security.NewMiddleware(cfg.Security),
		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
	}

	r, err := newRouter(app)
	require.NoError(t, err)
	return r
}

func workedExample() map[string]any {
	return map[string]any{
		"work_frequency":          12,
		"task_success_rate":       0.92,
		"verified_hours_worked":   160,
		"profile_age":             14,
		"platform_activity_score": 45,
		"task_variety":            18,
		"repayment_history":       10,
		"default_history":         0,
		"company_rating":          4.8,
	}
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		raw, _ = json.Marshal(b)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		nilModel bool
	}{
		{name: "model loaded"},
		{name: "model missing", nilModel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(t, testOptions{nilModel: tt.nilModel})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"status":"ok","message":"Karma Passport AI backend running"}`, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(monitoring.RequestIDHeader))
		})
	}
}

func TestPredictWorkedExample(t *testing.T) {
	r := setupRouter(t, testOptions{})

	w := postJSON(r, "/predict", workedExample())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res scoring.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))

	assert.Equal(t, 82.35, res.KarmaScore)
	assert.Equal(t, scoring.RiskLow, res.RiskCategory)
	assert.Equal(t, 823, res.LoanLimit)

	assert.Equal(t, 60.0, res.AgentScores.WorkFrequencyAgent)
	assert.Equal(t, 92.0, res.AgentScores.TaskSuccessRateAgent)
	assert.Equal(t, 100.0, res.AgentScores.RepaymentHistoryAgent)
	assert.Equal(t, 45.0, res.AgentScores.ActivityAgent)

	assert.Equal(t, 36, res.Summary.TasksCompleted)
	assert.Equal(t, 2700.0, res.Summary.TotalEarnings)
	assert.Equal(t, 14, res.Summary.ActiveStreakDays)
	assert.Equal(t, 4.8, res.Summary.AverageRating)
}

func TestPredictRiskTiers(t *testing.T) {
	tests := []struct {
		score float64
		risk  scoring.Risk
		loan  int
	}{
		{score: 90, risk: scoring.RiskLow, loan: 900},
		{score: 60, risk: scoring.RiskMedium, loan: 600},
		{score: 20, risk: scoring.RiskHigh, loan: 200},
		{score: 130, risk: scoring.RiskLow, loan: 1000},
		{score: -5, risk: scoring.RiskHigh, loan: 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.risk), func(t *testing.T) {
			r := setupRouter(t, testOptions{predictor: constantPredictor(t, tt.score)})

			w := postJSON(r, "/predict", workedExample())
			require.Equal(t, http.StatusOK, w.Code)

			var res scoring.Result
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Equal(t, tt.risk, res.RiskCategory)
			assert.Equal(t, tt.loan, res.LoanLimit)
		})
	}
}

func TestPredictAcceptsNumericStrings(t *testing.T) {
	r := setupRouter(t, testOptions{})

	body := workedExample()
	body["work_frequency"] = "12"
	body["company_rating"] = "4.8"
	body["favourite_colour"] = "teal"

	w := postJSON(r, "/predict", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res scoring.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 60.0, res.AgentScores.WorkFrequencyAgent)
	assert.Equal(t, 4.8, res.Summary.AverageRating)
}

func TestPredictValidation(t *testing.T) {
	missingTwo := workedExample()
	delete(missingTwo, "profile_age")
	delete(missingTwo, "company_rating")

	badType := workedExample()
	badType["task_variety"] = "plenty"
	badType["default_history"] = nil

	nonFinite := workedExample()
	nonFinite["work_frequency"] = "NaN"
	nonFinite["profile_age"] = "Inf"
	nonFinite["company_rating"] = "-Infinity"

	tests := []struct {
		name   string
		body   any
		fields []string
	}{
		{name: "missing fields", body: missingTwo, fields: []string{"profile_age", "company_rating"}},
		{name: "non numeric and null", body: badType, fields: []string{"task_variety", "default_history"}},
		{name: "non finite strings", body: nonFinite, fields: []string{"work_frequency", "profile_age", "company_rating"}},
		{name: "empty object", body: `{}`, fields: features.Columns},
		{name: "malformed json", body: `{"work_frequency": 12,`},
		{name: "array body", body: `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(t, testOptions{})

			w := postJSON(r, "/predict", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "VALIDATION_ERROR", resp["error"])
			assert.Equal(t, "validation", resp["category"])

			if len(tt.fields) == 0 {
				return
			}
			fields, ok := resp["fields"].(map[string]any)
			require.True(t, ok, "expected a fields map in %s", w.Body.String())
			assert.Len(t, fields, len(tt.fields))
			for _, f := range tt.fields {
				assert.Contains(t, fields, f)
			}
		})
	}
}

func TestPredictHugeInputsSaturate(t *testing.T) {
	r := setupRouter(t, testOptions{})

	body := workedExample()
	body["work_frequency"] = 1e300
	body["profile_age"] = 1e300

	w := postJSON(r, "/predict", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res scoring.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, math.MaxInt, res.Summary.TasksCompleted)
	assert.Greater(t, res.Summary.TotalEarnings, 0.0)
	assert.Equal(t, math.MaxInt, res.Summary.ActiveStreakDays)
	assert.Equal(t, 100.0, res.AgentScores.WorkFrequencyAgent)
}

func TestPredictRejectsNonJSON(t *testing.T) {
	r := setupRouter(t, testOptions{})

	req := httptest.NewRequest(http.MethodPost, "/predict", bytes.NewBufferString("work_frequency=12"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestPredictWithoutModel(t *testing.T) {
	r := setupRouter(t, testOptions{nilModel: true})

	w := postJSON(r, "/predict", workedExample())
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "MODEL_ERROR")
}

func TestPredictRateLimit(t *testing.T) {
	r := setupRouter(t, testOptions{perMinute: 2})

	for i := 0; i < 2; i++ {
		w := postJSON(r, "/predict", workedExample())
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := postJSON(r, "/predict", workedExample())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")

	// status endpoint is not limited
	status := httptest.NewRecorder()
	r.ServeHTTP(status, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, status.Code)
}

func TestPredictUsesCache(t *testing.T) {
	c := cache.NewCache(time.Minute)
	t.Cleanup(c.Close)
	r := setupRouter(t, testOptions{predictor: constantPredictor(t, testScore, model.WithCache(c))})

	first := postJSON(r, "/predict", workedExample())
	second := postJSON(r, "/predict", workedExample())
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	cacheStats, ok := stats["prediction_cache"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1.0, cacheStats["hits"])
	assert.Equal(t, 1.0, cacheStats["active_items"])
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		allowed bool
	}{
		{name: "any origin echoed", origin: "http://localhost:5173", allowed: true},
		{name: "configured origin", origins: []string{"https://karma.example"}, origin: "https://karma.example", allowed: true},
		{name: "unlisted origin", origins: []string{"https://karma.example"}, origin: "https://evil.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(t, testOptions{origins: tt.origins})

			req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			req.Header.Set("Access-Control-Request-Headers", "Content-Type")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if !tt.allowed {
				assert.Equal(t, http.StatusForbidden, w.Code)
				return
			}
			assert.Contains(t, []int{http.StatusOK, http.StatusNoContent}, w.Code)
			assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		nilModel bool
		status   string
	}{
		{name: "healthy", status: "ok"},
		{name: "no model", nilModel: true, status: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(t, testOptions{nilModel: tt.nilModel})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, http.StatusOK, w.Code)

			var resp map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp["status"])
			assert.Equal(t, config.Version, resp["version"])
			assert.Contains(t, resp, "uptime")
			assert.Contains(t, resp, "metrics")
			assert.Equal(t, "disabled", resp["redis"])
			if tt.nilModel {
				assert.Nil(t, resp["model"])
			} else {
				assert.NotNil(t, resp["model"])
			}
		})
	}
}

func TestModelEndpoint(t *testing.T) {
	r := setupRouter(t, testOptions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/model", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var info model.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, 42, info.Metadata.Rows)
	assert.Equal(t, features.Columns, info.Metadata.FeatureColumns)
	assert.Equal(t, 2, info.Forest.Trees)

	missing := setupRouter(t, testOptions{nilModel: true})
	w = httptest.NewRecorder()
	missing.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/model", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetricsCountPredictions(t *testing.T) {
	r := setupRouter(t, testOptions{})

	postJSON(r, "/predict", workedExample())
	postJSON(r, "/predict", `{}`)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var stats map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1.0, stats["predictions"])
	assert.GreaterOrEqual(t, stats["total_requests"], 2.0)
}

func TestHealthCompressed(t *testing.T) {
	r := setupRouter(t, testOptions{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(zr).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp, "model")
	assert.Contains(t, resp, "rate_limit")
}

func TestRequestIDPropagation(t *testing.T) {
	r := setupRouter(t, testOptions{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(monitoring.RequestIDHeader, "trace-abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-abc-123", w.Header().Get(monitoring.RequestIDHeader))

	bad := postJSON(r, "/predict", `{}`)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(bad.Body.Bytes(), &resp))
	assert.Equal(t, bad.Header().Get(monitoring.RequestIDHeader), resp["request_id"])
}

func TestSwaggerDoc(t *testing.T) {
	r := setupRouter(t, testOptions{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/predict")
}

func TestUnknownRoute(t *testing.T) {
	r := setupRouter(t, testOptions{})

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, "/predict/extra", nil))
		assert.Equal(t, http.StatusNotFound, w.Code, method)
	}
}
