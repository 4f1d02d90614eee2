package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"open-dio/models"
)

// JSONWriter publishes the multiplier artifact: a JSON object keyed by
// sector code. The file is replaced atomically so readers never see a
// partial artifact.
type JSONWriter struct {
	path string
}

// NewJSONWriter creates a writer for the artifact at path.
func NewJSONWriter(path string) *JSONWriter {
	return &JSONWriter{path: path}
}

func (j *JSONWriter) Write(_ context.Context, pub *Publication) error {
	return WriteArtifact(j.path, pub.Table.Artifact(pub.Categories))
}

func (j *JSONWriter) Close() error { return nil }

// WriteArtifact writes art to a temporary file next to path and renames it
// into place.
func WriteArtifact(path string, art models.Artifact) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("json: create output dir: %w", err)
	}

	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("json: encode artifact: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("json: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("json: write %q: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("json: close %q: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("json: publish %q: %w", path, err)
	}
	return nil
}

// ReadArtifact loads a published artifact.
func ReadArtifact(path string) (models.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("json: read artifact %q: %w", path, err)
	}
	var art models.Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("json: decode artifact %q: %w", path, err)
	}
	return art, nil
}
