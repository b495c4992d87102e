package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/battlelab/matchup/internal/features"
)

// BundleFile is the manifest file name inside an artifact directory.
const BundleFile = "bundle.yaml"

// LocalArtifacts reads bundles laid out as {dir}/{name}/{schema_version}/bundle.yaml,
// so only artifacts for the running feature schema are ever considered.
type LocalArtifacts struct {
	dir string
}

func NewLocalArtifacts(dir string) *LocalArtifacts {
	return &LocalArtifacts{dir: dir}
}

func (l *LocalArtifacts) path(name string) string {
	return filepath.Join(l.dir, name, features.SchemaVersion, BundleFile)
}

// Load reads the bundle for name.
func (l *LocalArtifacts) Load(name string) (*Manifest, error) {
	p := l.path(name)
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArtifact, p, err)
	}
	if m.Name != name {
		return nil, fmt.Errorf("%w: %s holds model %q", ErrMalformedArtifact, p, m.Name)
	}
	return &m, nil
}

// Save writes m where Load will find it.
func (l *LocalArtifacts) Save(m *Manifest) error {
	p := l.path(m.Name)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0644)
}

// ReadManifestFile decodes a manifest from an explicit path. JSON is valid
// YAML, so both formats are accepted.
func ReadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedArtifact, path, err)
	}
	return &m, nil
}
