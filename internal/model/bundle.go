// Package model resolves the scoring bundle: the scorer, the scaler it was
// trained with and the feature column order, always as one versioned unit.
package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/battlelab/matchup/internal/features"
)

var (
	// ErrBundleMismatch means the scaler or scorer belongs to another version.
	ErrBundleMismatch = errors.New("model bundle version mismatch")
	// ErrSchemaMismatch means the bundle was trained on another feature schema.
	ErrSchemaMismatch = errors.New("feature schema mismatch")
	// ErrMalformedArtifact covers unreadable or structurally invalid artifacts.
	ErrMalformedArtifact = errors.New("malformed model artifact")
	// ErrNotFound means the source has no artifact for the name/stage.
	ErrNotFound = errors.New("model artifact not found")
	// ErrNoModel means no source produced a usable bundle.
	ErrNoModel = errors.New("no model bundle available")
)

// Source labels recorded on a resolved bundle.
const (
	SourceRegistry = "registry"
	SourceLocal    = "local"
)

// ScorerSpec is the serialized scorer.
type ScorerSpec struct {
	Kind    string    `json:"kind" yaml:"kind"`
	Version string    `json:"version" yaml:"version"`
	Weights []float64 `json:"weights" yaml:"weights"`
	Bias    float64   `json:"bias" yaml:"bias"`
}

// Manifest is the artifact format shared by the registry and local bundles.
type Manifest struct {
	Name          string          `json:"name" yaml:"name"`
	Version       string          `json:"version" yaml:"version"`
	Stage         string          `json:"stage,omitempty" yaml:"stage,omitempty"`
	SchemaVersion string          `json:"schema_version" yaml:"schema_version"`
	Columns       []string        `json:"columns" yaml:"columns"`
	Scaler        features.Scaler `json:"scaler" yaml:"scaler"`
	Scorer        ScorerSpec      `json:"scorer" yaml:"scorer"`
	TrainedAt     time.Time       `json:"trained_at,omitempty" yaml:"trained_at,omitempty"`
}

// Bundle is a resolved, read-only model.
type Bundle struct {
	Name          string
	Version       string
	Stage         string
	SchemaVersion string
	Source        string
	LoadedAt      time.Time

	Scorer  Scorer
	Encoder *features.Encoder
}

// Bundle validates the manifest and builds the runtime bundle. Version and
// schema disagreements are reported as ErrBundleMismatch / ErrSchemaMismatch;
// anything else structurally wrong is ErrMalformedArtifact.
func (m *Manifest) Bundle(chart features.Effectiveness) (*Bundle, error) {
	if m.Name == "" || m.Version == "" {
		return nil, fmt.Errorf("%w: name and version are required", ErrMalformedArtifact)
	}
	if m.SchemaVersion != features.SchemaVersion {
		return nil, fmt.Errorf("%w: bundle %s@%s uses %q, encoder is %q",
			ErrSchemaMismatch, m.Name, m.Version, m.SchemaVersion, features.SchemaVersion)
	}
	if m.Scaler.Version != m.Version {
		return nil, fmt.Errorf("%w: scaler %q paired with bundle %q", ErrBundleMismatch, m.Scaler.Version, m.Version)
	}
	if m.Scorer.Version != m.Version {
		return nil, fmt.Errorf("%w: scorer %q paired with bundle %q", ErrBundleMismatch, m.Scorer.Version, m.Version)
	}

	scaler := m.Scaler
	enc, err := features.NewEncoder(m.Columns, &scaler, chart)
	if err != nil {
		if errors.Is(err, features.ErrColumnMismatch) {
			return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedArtifact, err)
	}

	scorer, err := m.Scorer.build(enc.Width())
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Name:          m.Name,
		Version:       m.Version,
		Stage:         m.Stage,
		SchemaVersion: m.SchemaVersion,
		LoadedAt:      time.Now(),
		Scorer:        scorer,
		Encoder:       enc,
	}, nil
}

func (s ScorerSpec) build(width int) (Scorer, error) {
	switch s.Kind {
	case ScorerKindLogistic:
		if len(s.Weights) != width {
			return nil, fmt.Errorf("%w: %d weights for %d columns", ErrSchemaMismatch, len(s.Weights), width)
		}
		for i, w := range s.Weights {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return nil, fmt.Errorf("%w: weight %d is %v", ErrMalformedArtifact, i, w)
			}
		}
		return &Logistic{Weights: append([]float64(nil), s.Weights...), Bias: s.Bias}, nil
	default:
		return nil, fmt.Errorf("%w: unknown scorer kind %q", ErrMalformedArtifact, s.Kind)
	}
}

// Fatal reports whether err must stop resolution instead of falling back.
func Fatal(err error) bool {
	return errors.Is(err, ErrBundleMismatch) || errors.Is(err, ErrSchemaMismatch)
}
