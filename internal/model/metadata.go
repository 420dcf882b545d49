package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Brownie44l1/fire-detect/internal/preprocess"
)

// LoadMetadata reads the JSON sidecar that ships next to a model file.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata %s: %w", path, err)
	}
	return meta, nil
}

// Merge returns m with every unset field taken from fallback.
func (m Metadata) Merge(fallback Metadata) Metadata {
	if len(m.InputShape) == 0 {
		m.InputShape = fallback.InputShape
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = fallback.OutputShape
	}
	if len(m.Classes) == 0 {
		m.Classes = fallback.Classes
	}
	if m.ImageSize == 0 {
		m.ImageSize = fallback.ImageSize
	}
	if m.Layout == "" {
		m.Layout = fallback.Layout
	}
	if m.Interpolation == "" {
		m.Interpolation = fallback.Interpolation
	}
	if m.InputName == "" {
		m.InputName = fallback.InputName
	}
	if m.OutputName == "" {
		m.OutputName = fallback.OutputName
	}
	return m
}

// Validate reports configuration errors in m.
func (m Metadata) Validate() error {
	if len(m.Classes) == 0 {
		return fmt.Errorf("%w: no class labels configured", ErrInvalidMetadata)
	}
	seen := make(map[string]int, len(m.Classes))
	for i, c := range m.Classes {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: class label %d is blank", ErrInvalidMetadata, i)
		}
		if j, ok := seen[c]; ok {
			return fmt.Errorf("%w: class label %q appears at index %d and %d", ErrInvalidMetadata, c, j, i)
		}
		seen[c] = i
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("%w: image size must be positive, got %d", ErrInvalidMetadata, m.ImageSize)
	}
	if _, err := m.Options(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return nil
}

// Options converts m into preprocessing options.
func (m Metadata) Options() (preprocess.Options, error) {
	layout, err := preprocess.ParseLayout(m.Layout)
	if err != nil {
		return preprocess.Options{}, err
	}
	interp, err := preprocess.ParseInterpolation(m.Interpolation)
	if err != nil {
		return preprocess.Options{}, err
	}
	return preprocess.Options{
		Size:          m.ImageSize,
		Layout:        layout,
		Interpolation: interp,
	}, nil
}
