package forest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyDataset    = errors.New("dataset has no rows")
	ErrFeatureMismatch = errors.New("feature vector has the wrong width")
	ErrTargetMismatch  = errors.New("target length does not match row count")
	ErrUntrainedForest = errors.New("forest has no trees")
)

// Forest is an ensemble of regression trees whose prediction is the mean of
// its trees
type Forest struct {
	Features int    `json:"n_features"`
	Trees    []Tree `json:"trees"`
}

// Fit grows params.Estimators trees over X and y. Each tree draws from its own
// random source seeded from params.Seed, so the result does not depend on the
// number of workers.
func Fit(ctx context.Context, X [][]float64, y []float64, params Params) (*Forest, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return nil, ErrEmptyDataset
	}
	if len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrTargetMismatch, len(X), len(y))
	}
	width := len(X[0])
	if width == 0 {
		return nil, fmt.Errorf("%w: rows have no features", ErrFeatureMismatch)
	}
	for i, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d features, expected %d", ErrFeatureMismatch, i, len(row), width)
		}
	}

	trees := make([]Tree, params.Estimators)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(params.workers())
	for i := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(params.Seed + int64(i)))
			trees[i] = buildTree(X, y, sample(len(X), params.Bootstrap, rng), params, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fitting forest: %w", err)
	}

	return &Forest{Features: width, Trees: trees}, nil
}

func sample(n int, bootstrap bool, rng *rand.Rand) []int {
	out := make([]int, n)
	for i := range out {
		if bootstrap {
			out[i] = rng.Intn(n)
		} else {
			out[i] = i
		}
	}
	return out
}

// Predict returns the mean prediction of all trees for one feature vector
func (f *Forest) Predict(x []float64) (float64, error) {
	if f == nil || len(f.Trees) == 0 {
		return 0, ErrUntrainedForest
	}
	if len(x) != f.Features {
		return 0, fmt.Errorf("%w: got %d, expected %d", ErrFeatureMismatch, len(x), f.Features)
	}
	sum := 0.0
	for i := range f.Trees {
		sum += f.Trees[i].predict(x)
	}
	return sum / float64(len(f.Trees)), nil
}

// Validate checks that every node references existing children and features
func (f *Forest) Validate() error {
	if f == nil || len(f.Trees) == 0 {
		return ErrUntrainedForest
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, n := range t.Nodes {
			if n.Feature == leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= f.Features {
				return fmt.Errorf("tree %d node %d splits on unknown feature %d", ti, ni, n.Feature)
			}
			// children are always appended after their parent
			if n.Left <= ni || n.Left >= len(t.Nodes) || n.Right <= ni || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d has invalid children", ti, ni)
			}
		}
	}
	return nil
}

// Stats summarises the size of the forest
type Stats struct {
	Trees    int     `json:"trees" yaml:"trees"`
	Nodes    int     `json:"nodes" yaml:"nodes"`
	MaxDepth int     `json:"max_depth" yaml:"max_depth"`
	AvgDepth float64 `json:"avg_depth" yaml:"avg_depth"`
}

func (f *Forest) Stats() Stats {
	s := Stats{Trees: len(f.Trees)}
	total := 0
	for i := range f.Trees {
		s.Nodes += len(f.Trees[i].Nodes)
		d := f.Trees[i].depth()
		total += d
		if d > s.MaxDepth {
			s.MaxDepth = d
		}
	}
	if s.Trees > 0 {
		s.AvgDepth = float64(total) / float64(s.Trees)
	}
	return s
}
