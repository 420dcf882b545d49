package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	raw := `{
		"input_shape": [1, 128, 128, 3],
		"output_shape": [1, 3],
		"classes": ["Smoke", "fire_images", "non_fire_images"],
		"image_size": 128,
		"layout": "nhwc"
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	meta, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 128, 128, 3}, meta.InputShape)
	assert.Equal(t, []int64{1, 3}, meta.OutputShape)
	assert.Equal(t, fireClasses, meta.Classes)
	assert.Equal(t, 128, meta.ImageSize)
	assert.Empty(t, meta.Interpolation)
}

func TestLoadMetadataErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadMetadata(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{classes"), 0o644))
	_, err = LoadMetadata(bad)
	assert.ErrorContains(t, err, "failed to parse metadata")
}

func TestMetadataMerge(t *testing.T) {
	sidecar := Metadata{Classes: []string{"a", "b"}, ImageSize: 64}
	fallback := fireMetadata()
	fallback.InputName = "input_1"

	got := sidecar.Merge(fallback)
	assert.Equal(t, []string{"a", "b"}, got.Classes)
	assert.Equal(t, 64, got.ImageSize)
	assert.Equal(t, "nhwc", got.Layout)
	assert.Equal(t, "nearest", got.Interpolation)
	assert.Equal(t, "input_1", got.InputName)
}

func TestMetadataValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Metadata)
		wantErr string
	}{
		{name: "valid", mutate: func(*Metadata) {}},
		{name: "no classes", mutate: func(m *Metadata) { m.Classes = nil }, wantErr: "no class labels"},
		{name: "blank class", mutate: func(m *Metadata) { m.Classes = []string{"Smoke", " "} }, wantErr: "blank"},
		{name: "duplicate class", mutate: func(m *Metadata) { m.Classes = []string{"Smoke", "Smoke"} }, wantErr: "appears at index 0 and 1"},
		{name: "zero size", mutate: func(m *Metadata) { m.ImageSize = 0 }, wantErr: "image size"},
		{name: "bad layout", mutate: func(m *Metadata) { m.Layout = "chw" }, wantErr: "layout"},
		{name: "bad interpolation", mutate: func(m *Metadata) { m.Interpolation = "cubic" }, wantErr: "interpolation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := fireMetadata()
			tt.mutate(&meta)

			err := meta.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidMetadata)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
