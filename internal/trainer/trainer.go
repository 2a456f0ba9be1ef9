package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ZanzyTHEbar/karma-passport/internal/dataset"
	"github.com/ZanzyTHEbar/karma-passport/internal/features"
	"github.com/ZanzyTHEbar/karma-passport/internal/forest"
	"github.com/ZanzyTHEbar/karma-passport/internal/model"
)

// Options configures a training run
type Options struct {
	DataPath  string        `validate:"required"`
	ModelPath string        `validate:"required"`
	Holdout   float64       `validate:"gte=0,lt=1"`
	Params    forest.Params `validate:"-"`
}

// Report summarises a finished training run
type Report struct {
	ModelPath   string        `json:"model_path"`
	RowsRead    int           `json:"rows_read"`
	Duplicates  int           `json:"duplicates_dropped"`
	TrainRows   int           `json:"train_rows"`
	HoldoutRows int           `json:"holdout_rows,omitempty"`
	Metrics     *Metrics      `json:"holdout_metrics,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Metrics are regression scores on held-out rows
type Metrics struct {
	R2  float64 `json:"r2"`
	MAE float64 `json:"mae"`
}

var validate = validator.New()

// Validate checks the options before any file is touched
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid training options: %w", err)
	}
	return nil
}

// Run loads the dataset, fits the forest and writes the artifact
func Run(ctx context.Context, opts Options, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	frame, err := dataset.LoadCSV(opts.DataPath)
	if err != nil {
		return nil, fmt.Errorf("loading dataset: %w", err)
	}
	report := &Report{ModelPath: opts.ModelPath, RowsRead: len(frame.Rows)}

	deduped := frame.DropDuplicates()
	report.Duplicates = len(frame.Rows) - len(deduped.Rows)
	logger.Info("Dataset loaded", "path", opts.DataPath, "rows", report.RowsRead, "duplicates", report.Duplicates)

	data, err := deduped.FillNA(0).Dataset(features.Columns, dataset.TargetColumn)
	if err != nil {
		return nil, fmt.Errorf("selecting columns: %w", err)
	}

	train, holdout := data, (*dataset.Dataset)(nil)
	if opts.Holdout > 0 {
		train, holdout, err = data.Split(opts.Holdout, opts.Params.Seed)
		if err != nil {
			return nil, fmt.Errorf("splitting dataset: %w", err)
		}
		report.HoldoutRows = holdout.Len()
	}
	report.TrainRows = train.Len()

	logger.Info("Fitting forest",
		"rows", train.Len(),
		"estimators", opts.Params.Estimators,
		"max_depth", opts.Params.MaxDepth,
		"workers", opts.Params.Workers,
	)
	f, err := forest.Fit(ctx, train.X, train.Y, opts.Params)
	if err != nil {
		return nil, err
	}

	if holdout != nil {
		m, err := Evaluate(f, holdout)
		if err != nil {
			return nil, fmt.Errorf("evaluating holdout: %w", err)
		}
		report.Metrics = &m
		logger.Info("Holdout evaluation", "rows", holdout.Len(), "r2", m.R2, "mae", m.MAE)
	}

	artifact := &model.Artifact{
		Metadata: model.Metadata{
			Version:        model.ArtifactVersion,
			FeatureColumns: append([]string(nil), features.Columns...),
			Target:         dataset.TargetColumn,
			TrainedAt:      time.Now().UTC(),
			Rows:           train.Len(),
			Params:         opts.Params,
		},
		Forest: f,
	}
	if err := model.SaveArtifact(opts.ModelPath, artifact); err != nil {
		return nil, fmt.Errorf("saving model: %w", err)
	}

	report.Duration = time.Since(start)
	logger.Info("Model written", "path", opts.ModelPath, "duration", report.Duration.Round(time.Millisecond))
	return report, nil
}

// Evaluate scores the forest on a dataset
func Evaluate(f *forest.Forest, d *dataset.Dataset) (Metrics, error) {
	n := d.Len()
	if n == 0 {
		return Metrics{}, forest.ErrEmptyDataset
	}

	var mean float64
	for _, y := range d.Y {
		mean += y
	}
	mean /= float64(n)

	var ssRes, ssTot, absErr float64
	for i, x := range d.X {
		pred, err := f.Predict(x)
		if err != nil {
			return Metrics{}, err
		}
		diff := d.Y[i] - pred
		ssRes += diff * diff
		absErr += math.Abs(diff)
		dev := d.Y[i] - mean
		ssTot += dev * dev
	}

	m := Metrics{MAE: absErr / float64(n)}
	switch {
	case ssTot > 0:
		m.R2 = 1 - ssRes/ssTot
	case ssRes == 0:
		m.R2 = 1
	}
	return m, nil
}
