package main

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/karma-passport/internal/cache"
	"github.com/ZanzyTHEbar/karma-passport/internal/features"
	"github.com/ZanzyTHEbar/karma-passport/internal/forest"
	"github.com/ZanzyTHEbar/karma-passport/internal/model"
	"github.com/ZanzyTHEbar/karma-passport/internal/scoring"
)

// trainedPredictor fits a small forest on a synthetic linear target, writes
// it to disk and loads it back the way the server does at startup.
func trainedPredictor(t testing.TB, opts ...model.Option) *model.Predictor {
	t.Helper()

	rng := rand.New(rand.NewSource(7))
	X := make([][]float64, 300)
	y := make([]float64, len(X))
	for i := range X {
		r := randomRecord(rng)
		X[i] = r.Vector()
		y[i] = 2*r.WorkFrequency + 40*r.TaskSuccessRate + r.PlatformActivityScore/5 + 2*r.RepaymentHistory - 5*r.DefaultHistory
	}

	params := forest.DefaultParams()
	params.Estimators = 20
	params.MaxDepth = 8
	params.Seed = 11

	f, err := forest.Fit(context.Background(), X, y, params)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "karma_model.json")
	require.NoError(t, model.SaveArtifact(path, &model.Artifact{
		Metadata: model.Metadata{
			Version:        model.ArtifactVersion,
			FeatureColumns: features.Columns,
			Target:         "karma_score",
			TrainedAt:      time.Now().UTC(),
			Rows:           len(X),
			Params:         params,
		},
		Forest: f,
	}))

	p, err := model.Load(path, opts...)
	require.NoError(t, err)
	return p
}

func randomRecord(rng *rand.Rand) features.Record {
	return features.Record{
		WorkFrequency:         float64(rng.Intn(21)),
		TaskSuccessRate:       rng.Float64(),
		VerifiedHoursWorked:   float64(rng.Intn(200)),
		ProfileAge:            float64(rng.Intn(36)),
		PlatformActivityScore: float64(rng.Intn(101)),
		TaskVariety:           float64(rng.Intn(25)),
		RepaymentHistory:      float64(rng.Intn(11)),
		DefaultHistory:        float64(rng.Intn(4)),
		CompanyRating:         1 + 4*rng.Float64(),
	}
}

func TestPredictEndpoint_TrainedModel(t *testing.T) {
	p := trainedPredictor(t)
	r := setupRouter(t, testOptions{predictor: p})

	strong := features.Record{
		WorkFrequency: 20, TaskSuccessRate: 0.98, VerifiedHoursWorked: 180, ProfileAge: 30,
		PlatformActivityScore: 95, TaskVariety: 20, RepaymentHistory: 10, CompanyRating: 4.9,
	}
	weak := features.Record{
		WorkFrequency: 1, TaskSuccessRate: 0.1, VerifiedHoursWorked: 5, ProfileAge: 0,
		PlatformActivityScore: 5, TaskVariety: 1, DefaultHistory: 3, CompanyRating: 1.2,
	}

	var results []scoring.Result
	for _, rec := range []features.Record{strong, weak} {
		w := postJSON(r, "/predict", rec)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var res scoring.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.GreaterOrEqual(t, res.LoanLimit, 0)
		assert.LessOrEqual(t, res.LoanLimit, 1000)
		results = append(results, res)
	}

	assert.Greater(t, results[0].KarmaScore, results[1].KarmaScore)
	assert.Equal(t, 1, results[1].Summary.ActiveStreakDays)
}

func TestPredictEndpoint_LoadTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping load test in short mode")
	}

	c := cache.NewCache(time.Minute)
	t.Cleanup(c.Close)
	r := setupRouter(t, testOptions{predictor: trainedPredictor(t, model.WithCache(c))})

	const numConcurrent = 10
	const perWorker = 20

	type outcome struct {
		duration time.Duration
		status   int
	}
	results := make(chan outcome, numConcurrent*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < numConcurrent; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for j := 0; j < perWorker; j++ {
				start := time.Now()
				w := postJSON(r, "/predict", randomRecord(rng))
				results <- outcome{time.Since(start), w.Code}
			}
		}(int64(i % 3))
	}
	wg.Wait()
	close(results)

	var durations []time.Duration
	success := 0
	for res := range results {
		durations = append(durations, res.duration)
		if res.status == http.StatusOK {
			success++
		}
	}

	p := calculatePercentiles(durations, 50, 95, 99)
	t.Logf("Load test results:")
	t.Logf("  Total requests: %d", len(durations))
	t.Logf("  Successful responses: %d", success)
	t.Logf("  P50: %v  P95: %v  P99: %v", p[0], p[1], p[2])

	assert.Equal(t, numConcurrent*perWorker, success)
	assert.Less(t, p[1], 2*time.Second)

	// workers share seeds, so repeated vectors must have been served from the cache
	stats := c.Stats()
	assert.Greater(t, stats["hits"], int64(0))
}

func TestPredictEndpoint_ResponseTimeDistribution(t *testing.T) {
	r := setupRouter(t, testOptions{predictor: trainedPredictor(t)})
	rng := rand.New(rand.NewSource(3))

	durations := make([]time.Duration, 0, 100)
	for i := 0; i < 100; i++ {
		start := time.Now()
		w := postJSON(r, "/predict", randomRecord(rng))
		durations = append(durations, time.Since(start))
		require.Equal(t, http.StatusOK, w.Code)
	}

	p := calculatePercentiles(durations, 50, 95, 99)
	t.Logf("Response time distribution: P50 %v, P95 %v, P99 %v", p[0], p[1], p[2])

	assert.LessOrEqual(t, p[0], p[1])
	assert.LessOrEqual(t, p[1], p[2])
	assert.Less(t, p[2], time.Second)
}

func calculatePercentiles(durations []time.Duration, percentiles ...float64) []time.Duration {
	if len(durations) == 0 {
		return make([]time.Duration, len(percentiles))
	}

	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]time.Duration, len(percentiles))
	for i, p := range percentiles {
		idx := int(float64(len(sorted)-1) * p / 100)
		out[i] = sorted[idx]
	}
	return out
}

func BenchmarkPredictEndpoint(b *testing.B) {
	r := setupRouter(b, testOptions{predictor: trainedPredictor(b)})
	rec := randomRecord(rand.New(rand.NewSource(1)))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := postJSON(r, "/predict", rec)
		if w.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", w.Code)
		}
	}
}
