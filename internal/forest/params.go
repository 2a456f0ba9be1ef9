package forest

import (
	"fmt"
	"runtime"
)

// Params controls how the forest is grown. The defaults mirror a plain
// random-forest regressor with 100 fully grown trees on bootstrap samples.
type Params struct {
	Estimators      int     `json:"estimators" yaml:"estimators"`
	MaxDepth        int     `json:"max_depth" yaml:"max_depth"` // 0 grows until leaves are pure
	MinSamplesSplit int     `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int     `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	MaxFeatures     float64 `json:"max_features" yaml:"max_features"` // fraction of features tried per split
	Bootstrap       bool    `json:"bootstrap" yaml:"bootstrap"`
	Seed            int64   `json:"seed" yaml:"seed"`
	Workers         int     `json:"-" yaml:"-"`
}

// DefaultParams returns the defaults used by the trainer
func DefaultParams() Params {
	return Params{
		Estimators:      100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     1.0,
		Bootstrap:       true,
		Seed:            0,
		Workers:         runtime.NumCPU(),
	}
}

func (p Params) validate() error {
	if p.Estimators <= 0 {
		return fmt.Errorf("estimators must be positive, got %d", p.Estimators)
	}
	if p.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative, got %d", p.MaxDepth)
	}
	if p.MinSamplesSplit < 2 {
		return fmt.Errorf("min samples to split must be at least 2, got %d", p.MinSamplesSplit)
	}
	if p.MinSamplesLeaf < 1 {
		return fmt.Errorf("min samples per leaf must be at least 1, got %d", p.MinSamplesLeaf)
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > 1 {
		return fmt.Errorf("max features must be in (0, 1], got %v", p.MaxFeatures)
	}
	return nil
}

func (p Params) workers() int {
	if p.Workers <= 0 {
		return 1
	}
	return p.Workers
}
