package model

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fireClasses = []string{"Smoke", "fire_images", "non_fire_images"}

type fakeSession struct {
	inputShape  []int64
	outputShape []int64
	output      []float32
	err         error

	lastInput []float32
	runs      int
	closed    bool
}

func (f *fakeSession) InputShape() []int64  { return f.inputShape }
func (f *fakeSession) OutputShape() []int64 { return f.outputShape }

func (f *fakeSession) Run(input []float32) ([]float32, error) {
	f.runs++
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.output...), nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func fireMetadata() Metadata {
	return Metadata{
		Classes:       fireClasses,
		ImageSize:     8,
		Layout:        "nhwc",
		Interpolation: "nearest",
	}
}

func newFake(output ...float32) *fakeSession {
	return &fakeSession{
		inputShape:  []int64{-1, 8, 8, 3},
		outputShape: []int64{-1, 3},
		output:      output,
	}
}

func writeImage(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 10, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "hd4.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestPredictImageFireExample(t *testing.T) {
	session := newFake(0.1, 0.7, 0.2)
	c, err := New(session, fireMetadata(), nil)
	require.NoError(t, err)

	result, img, err := c.PredictImage(writeImage(t))
	require.NoError(t, err)
	require.NotNil(t, img)

	assert.Equal(t, "fire_images", result.Class)
	assert.Equal(t, 1, result.Index)
	assert.Equal(t, float32(0.7), result.Confidence)
	assert.Equal(t, map[string]float32{
		"Smoke":           0.1,
		"fire_images":     0.7,
		"non_fire_images": 0.2,
	}, result.Predictions)
	assert.Equal(t, []Score{
		{Class: "Smoke", Score: 0.1},
		{Class: "fire_images", Score: 0.7},
		{Class: "non_fire_images", Score: 0.2},
	}, result.Scores)

	require.Len(t, session.lastInput, 8*8*3)
	for _, v := range session.lastInput {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
}

func TestPredictLabelSetMatchesClasses(t *testing.T) {
	c, err := New(newFake(0.3, 0.3, 0.4), fireMetadata(), nil)
	require.NoError(t, err)

	result, err := c.Predict(make([]float32, 8*8*3))
	require.NoError(t, err)

	labels := make([]string, 0, len(result.Predictions))
	for label := range result.Predictions {
		labels = append(labels, label)
	}
	assert.ElementsMatch(t, fireClasses, labels)
}

func TestPredictClassIsMaxScore(t *testing.T) {
	outputs := [][]float32{
		{0.9, 0.05, 0.05},
		{0.1, 0.2, 0.7},
		{-3, -1, -2},
		{0, 0, 1e-9},
	}

	for _, out := range outputs {
		c, err := New(newFake(out...), fireMetadata(), nil)
		require.NoError(t, err)

		result, err := c.Predict(make([]float32, 8*8*3))
		require.NoError(t, err)

		for label, score := range result.Predictions {
			assert.LessOrEqual(t, score, result.Predictions[result.Class], "label %s", label)
		}
		assert.Equal(t, result.Predictions[result.Class], result.Confidence)
	}
}

func TestArgmax(t *testing.T) {
	nan := float32(0)
	nan = nan / nan

	tests := []struct {
		name   string
		values []float32
		want   int
	}{
		{name: "single", values: []float32{0.5}, want: 0},
		{name: "last", values: []float32{0.1, 0.2, 0.3}, want: 2},
		{name: "tie picks lowest index", values: []float32{0.2, 0.4, 0.4}, want: 1},
		{name: "all equal", values: []float32{0.25, 0.25, 0.25, 0.25}, want: 0},
		{name: "leading nan", values: []float32{nan, 0.1, 0.3}, want: 2},
		{name: "nan in the middle", values: []float32{0.4, nan, 0.3}, want: 0},
		{name: "all nan", values: []float32{nan, nan}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, argmax(tt.values))
		})
	}
}

func TestPredictTieBreaksToLowestIndex(t *testing.T) {
	c, err := New(newFake(0.2, 0.4, 0.4), fireMetadata(), nil)
	require.NoError(t, err)

	result, err := c.Predict(make([]float32, 8*8*3))
	require.NoError(t, err)
	assert.Equal(t, "fire_images", result.Class)

	c, err = New(newFake(0.5, 0.5, 0.5), fireMetadata(), nil)
	require.NoError(t, err)

	result, err = c.Predict(make([]float32, 8*8*3))
	require.NoError(t, err)
	assert.Equal(t, "Smoke", result.Class)
}

func TestNewLabelCountMismatch(t *testing.T) {
	session := newFake(0.1, 0.2, 0.3, 0.4)
	session.outputShape = []int64{1, 4}

	_, err := New(session, fireMetadata(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLabelCountMismatch))
	assert.Contains(t, err.Error(), "4 scores")
}

func TestPredictLabelCountMismatchWithDynamicOutput(t *testing.T) {
	session := newFake(0.1, 0.9)
	session.outputShape = []int64{-1, -1}

	c, err := New(session, fireMetadata(), nil)
	require.NoError(t, err)

	result, err := c.Predict(make([]float32, 8*8*3))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrLabelCountMismatch)
}

func TestNewShapeMismatch(t *testing.T) {
	tests := []struct {
		name  string
		shape []int64
	}{
		{name: "wrong resolution", shape: []int64{1, 224, 224, 3}},
		{name: "channels first", shape: []int64{1, 3, 8, 8}},
		{name: "wrong rank", shape: []int64{1, 192}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newFake(0.1, 0.7, 0.2)
			session.inputShape = tt.shape

			_, err := New(session, fireMetadata(), nil)
			require.ErrorIs(t, err, ErrShapeMismatch)
			assert.Contains(t, err.Error(), "[1 8 8 3]")
		})
	}
}

func TestNewAcceptsChannelsFirst(t *testing.T) {
	session := newFake(0.1, 0.7, 0.2)
	session.inputShape = []int64{-1, 3, 8, 8}
	meta := fireMetadata()
	meta.Layout = "nchw"

	_, err := New(session, meta, nil)
	assert.NoError(t, err)
}

func TestPredictRejectsWrongInputLength(t *testing.T) {
	session := newFake(0.1, 0.7, 0.2)
	c, err := New(session, fireMetadata(), nil)
	require.NoError(t, err)

	_, err = c.Predict(make([]float32, 10))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Zero(t, session.runs)
}

func TestPredictImageMissingFile(t *testing.T) {
	session := newFake(0.1, 0.7, 0.2)
	c, err := New(session, fireMetadata(), nil)
	require.NoError(t, err)

	_, _, err = c.PredictImage(filepath.Join(t.TempDir(), "nope.jpg"))
	assert.ErrorIs(t, err, ErrImageDecode)
	assert.Zero(t, session.runs)
}

func TestPredictSessionError(t *testing.T) {
	session := newFake()
	session.err = errors.New("boom")
	c, err := New(session, fireMetadata(), nil)
	require.NoError(t, err)

	_, err = c.Predict(make([]float32, 8*8*3))
	assert.EqualError(t, err, "boom")
}

func TestPredictRepeatedly(t *testing.T) {
	session := newFake(0.6, 0.3, 0.1)
	c, err := New(session, fireMetadata(), nil)
	require.NoError(t, err)

	path := writeImage(t)
	for i := 0; i < 3; i++ {
		result, _, err := c.PredictImage(path)
		require.NoError(t, err)
		assert.Equal(t, "Smoke", result.Class)
	}
	assert.Equal(t, 3, session.runs)

	require.NoError(t, c.Close())
	assert.True(t, session.closed)
}

func TestNewRejectsInvalidMetadata(t *testing.T) {
	meta := fireMetadata()
	meta.Classes = nil

	_, err := New(newFake(), meta, nil)
	assert.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestLoadMissingModel(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "fire_cnn_model.onnx"), fireMetadata(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelLoad))
}

func TestPredictRejectsNonFiniteScores(t *testing.T) {
	zero := float32(0)
	nan := zero / zero
	inf := 1 / zero

	for _, out := range [][]float32{{nan, 0.7, 0.2}, {0.1, inf, 0.2}, {0.1, 0.7, -inf}} {
		c, err := New(newFake(out...), fireMetadata(), nil)
		require.NoError(t, err)

		result, err := c.Predict(make([]float32, 8*8*3))
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrNonFiniteScore)
	}
}
