package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/karma-passport/internal/config"
	"github.com/ZanzyTHEbar/karma-passport/internal/forest"
	"github.com/ZanzyTHEbar/karma-passport/internal/model"
	"github.com/ZanzyTHEbar/karma-passport/internal/monitoring"
	"github.com/ZanzyTHEbar/karma-passport/internal/trainer"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"

	loggerKey = "logger"
)

var (
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs",
	}

	modelFlag = &cli.StringFlag{
		Name:    "model",
		Usage:   "Path of the model artifact",
		EnvVars: []string{"KARMA_MODEL_PATH", "MODEL_PATH"},
		Value:   "model/karma_model.json",
	}

	dataFlag = &cli.StringFlag{
		Name:    "data",
		Usage:   "Path of the training CSV",
		EnvVars: []string{"KARMA_DATASET_PATH"},
		Value:   "data/karma_dataset.csv",
	}

	estimatorsFlag = &cli.IntFlag{
		Name:  "estimators",
		Usage: "Number of trees in the forest",
		Value: forest.DefaultParams().Estimators,
	}

	maxDepthFlag = &cli.IntFlag{
		Name:  "max-depth",
		Usage: "Maximum tree depth, 0 grows until leaves are pure",
	}

	minLeafFlag = &cli.IntFlag{
		Name:  "min-samples-leaf",
		Usage: "Minimum rows per leaf",
		Value: forest.DefaultParams().MinSamplesLeaf,
	}

	maxFeaturesFlag = &cli.Float64Flag{
		Name:  "max-features",
		Usage: "Fraction of features tried per split, in (0, 1]",
		Value: forest.DefaultParams().MaxFeatures,
	}

	seedFlag = &cli.Int64Flag{
		Name:  "seed",
		Usage: "Random seed for bootstrap sampling",
	}

	holdoutFlag = &cli.Float64Flag{
		Name:  "holdout",
		Usage: "Fraction of rows held out for evaluation, 0 trains on everything",
	}

	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Trees fitted concurrently",
		Value: runtime.NumCPU(),
	}

	formatFlag = &cli.StringFlag{
		Name:  "format",
		Usage: "Output format [json, yaml]",
		Value: formatJSON,
	}

	trainCmd = &cli.Command{
		Name:      "train",
		Usage:     "Fit the karma regressor on a CSV dataset and write the model artifact",
		UsageText: "trainer train --data data/karma_dataset.csv --model model/karma_model.json",
		Action:    cmdTrain,
		Flags: []cli.Flag{
			dataFlag,
			modelFlag,
			estimatorsFlag,
			maxDepthFlag,
			minLeafFlag,
			maxFeaturesFlag,
			seedFlag,
			holdoutFlag,
			workersFlag,
		},
	}

	inspectCmd = &cli.Command{
		Name:   "inspect",
		Usage:  "Print the metadata of a model artifact",
		Action: cmdInspect,
		Flags: []cli.Flag{
			modelFlag,
			formatFlag,
		},
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:            "trainer",
		Version:         config.Version,
		Compiled:        time.Now(),
		Usage:           "Train and inspect Karma Passport scoring models",
		HideHelpCommand: true,
		Writer:          stdout,
		ErrWriter:       stderr,
		Flags:           []cli.Flag{debugFlag},
		Commands:        []*cli.Command{trainCmd, inspectCmd},
		Before: func(c *cli.Context) error {
			level := "info"
			if c.Bool(debugFlag.Name) {
				level = "debug"
			}
			logger := slog.New(monitoring.NewCLIHandler(stderr, monitoring.ParseLogLevel(level)))
			slog.SetDefault(logger)
			c.App.Metadata = map[string]interface{}{loggerKey: logger}
			return nil
		},
	}
}

func getLogger(c *cli.Context) *slog.Logger {
	if logger, ok := c.App.Metadata[loggerKey].(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func cmdTrain(c *cli.Context) error {
	params := forest.DefaultParams()
	params.Estimators = c.Int(estimatorsFlag.Name)
	params.MaxDepth = c.Int(maxDepthFlag.Name)
	params.MinSamplesLeaf = c.Int(minLeafFlag.Name)
	params.MaxFeatures = c.Float64(maxFeaturesFlag.Name)
	params.Seed = c.Int64(seedFlag.Name)
	params.Workers = c.Int(workersFlag.Name)

	opts := trainer.Options{
		DataPath:  c.String(dataFlag.Name),
		ModelPath: c.String(modelFlag.Name),
		Holdout:   c.Float64(holdoutFlag.Name),
		Params:    params,
	}

	if _, err := trainer.Run(c.Context, opts, getLogger(c)); err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, "Model saved successfully!")
	return nil
}

type inspectOutput struct {
	Path     string         `json:"path" yaml:"path"`
	Metadata model.Metadata `json:"metadata" yaml:"metadata"`
	Forest   forest.Stats   `json:"forest" yaml:"forest"`
}

func cmdInspect(c *cli.Context) error {
	path := c.String(modelFlag.Name)
	a, err := model.LoadArtifact(path)
	if err != nil {
		return err
	}

	out := inspectOutput{Path: path, Metadata: a.Metadata, Forest: a.Forest.Stats()}

	switch f := c.String(formatFlag.Name); f {
	case formatYAML, "yml":
		return yaml.NewEncoder(c.App.Writer).Encode(out)
	case formatJSON:
		e := json.NewEncoder(c.App.Writer)
		e.SetIndent("", "  ")
		return e.Encode(out)
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
}
