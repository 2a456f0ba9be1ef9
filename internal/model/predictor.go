package model

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/karma-passport/internal/cache"
	"github.com/ZanzyTHEbar/karma-passport/internal/features"
	"github.com/ZanzyTHEbar/karma-passport/internal/forest"
	"github.com/ZanzyTHEbar/karma-passport/internal/scoring"
)

// Predictor holds the loaded model for the lifetime of the server. It is
// built once at startup and is safe for concurrent use.
type Predictor struct {
	artifact *Artifact
	path     string
	loadedAt time.Time
	cache    *cache.Cache
}

// Option configures a Predictor
type Option func(*Predictor)

// WithCache memoises interpreted results per feature vector
func WithCache(c *cache.Cache) Option {
	return func(p *Predictor) {
		p.cache = c
	}
}

// Load reads the artifact at path and returns a ready predictor
func Load(path string, opts ...Option) (*Predictor, error) {
	a, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	p, err := New(a, opts...)
	if err != nil {
		return nil, err
	}
	p.path = path
	return p, nil
}

// New wraps an in-memory artifact
func New(a *Artifact, opts ...Option) (*Predictor, error) {
	if a == nil || a.Forest == nil {
		return nil, fmt.Errorf("artifact has no forest")
	}
	p := &Predictor{
		artifact: a,
		loadedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Score runs the regressor on one record
func (p *Predictor) Score(r features.Record) (float64, error) {
	return p.artifact.Forest.Predict(r.Vector())
}

// Predict scores the record and derives the dashboard fields. The second
// return value reports whether the result came from the cache.
func (p *Predictor) Predict(ctx context.Context, r features.Record) (scoring.Result, bool, error) {
	if err := ctx.Err(); err != nil {
		return scoring.Result{}, false, err
	}

	vector := r.Vector()
	var key string
	if p.cache != nil {
		key = cache.Key(vector)
		if res, ok := p.cache.Get(key); ok {
			return res, true, nil
		}
	}

	score, err := p.artifact.Forest.Predict(vector)
	if err != nil {
		return scoring.Result{}, false, fmt.Errorf("model prediction failed: %w", err)
	}
	res := scoring.Interpret(score, r)

	if p.cache != nil {
		p.cache.Set(key, res)
	}
	return res, false, nil
}

// Info describes the loaded model
type Info struct {
	Path     string       `json:"path,omitempty"`
	LoadedAt time.Time    `json:"loaded_at"`
	Metadata Metadata     `json:"metadata"`
	Forest   forest.Stats `json:"forest"`
}

func (p *Predictor) Info() Info {
	return Info{
		Path:     p.path,
		LoadedAt: p.loadedAt,
		Metadata: p.artifact.Metadata,
		Forest:   p.artifact.Forest.Stats(),
	}
}

// CacheStats reports prediction cache usage, or nil when caching is off
func (p *Predictor) CacheStats() map[string]interface{} {
	if p.cache == nil {
		return nil
	}
	return p.cache.Stats()
}

// Close releases the prediction cache
func (p *Predictor) Close() {
	if p.cache != nil {
		p.cache.Close()
	}
}
