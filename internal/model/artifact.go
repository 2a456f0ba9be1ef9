package model

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/ZanzyTHEbar/karma-passport/internal/features"
	"github.com/ZanzyTHEbar/karma-passport/internal/forest"
)

// ArtifactVersion is bumped whenever the on-disk layout changes
const ArtifactVersion = 1

// Metadata describes how an artifact was produced
type Metadata struct {
	Version        int           `json:"version" yaml:"version"`
	FeatureColumns []string      `json:"feature_columns" yaml:"feature_columns"`
	Target         string        `json:"target" yaml:"target"`
	TrainedAt      time.Time     `json:"trained_at" yaml:"trained_at"`
	Rows           int           `json:"rows" yaml:"rows"`
	Params         forest.Params `json:"params" yaml:"params"`
}

// Artifact is the serialized model shared between trainer and server
type Artifact struct {
	Metadata
	Forest *forest.Forest `json:"forest"`
}

// SaveArtifact writes the artifact to path, replacing any existing file.
// The file is written next to the destination and renamed into place.
func SaveArtifact(path string, a *Artifact) error {
	if a == nil || a.Forest == nil {
		return fmt.Errorf("artifact has no forest")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(a); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move model into place: %w", err)
	}

	return nil
}

// LoadArtifact reads and validates an artifact. The recorded feature columns
// must match the columns the server builds vectors with.
func LoadArtifact(path string) (*Artifact, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	var a Artifact
	if err := json.NewDecoder(file).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode model file: %w", err)
	}

	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported model version %d (expected %d)", a.Version, ArtifactVersion)
	}
	if !slices.Equal(a.FeatureColumns, features.Columns) {
		return nil, fmt.Errorf("model was trained on columns %v, server uses %v", a.FeatureColumns, features.Columns)
	}
	if err := a.Forest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	if a.Forest.Features != len(features.Columns) {
		return nil, fmt.Errorf("model expects %d features, server provides %d", a.Forest.Features, len(features.Columns))
	}

	return &a, nil
}
