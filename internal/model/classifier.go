package model

import (
	"fmt"
	"image"
	"math"

	"go.uber.org/zap"

	"github.com/Brownie44l1/fire-detect/internal/preprocess"
)

// Classifier maps images to class labels through a loaded model. It is not
// safe for concurrent use: the underlying session reuses its tensors.
type Classifier struct {
	session  Session
	Metadata Metadata
	opts     preprocess.Options
	logger   *zap.Logger
}

// Load opens the ONNX model at modelPath and wraps it in a Classifier.
func Load(modelPath string, meta Metadata, logger *zap.Logger) (*Classifier, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	session, err := OpenONNX(modelPath, meta)
	if err != nil {
		return nil, err
	}

	c, err := New(session, meta, logger)
	if err != nil {
		if closeErr := session.Close(); closeErr != nil && logger != nil {
			logger.Warn("failed to release model session", zap.String("path", modelPath), zap.Error(closeErr))
		}
		return nil, err
	}
	return c, nil
}

// New checks that session agrees with meta on the input shape and the number
// of classes, and returns a Classifier that owns session.
func New(session Session, meta Metadata, logger *zap.Logger) (*Classifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	opts, err := meta.Options()
	if err != nil {
		return nil, err
	}

	want := opts.Shape()
	if got := session.InputShape(); len(got) > 0 && !shapeMatches(got, want) {
		return nil, fmt.Errorf("%w: model expects %v, resize target %dx%d (%s) gives %v",
			ErrShapeMismatch, got, opts.Size, opts.Size, opts.Layout, want)
	}

	if n := classDim(session.OutputShape()); n > 0 && n != int64(len(meta.Classes)) {
		return nil, fmt.Errorf("%w: model outputs %d scores, %d labels configured %v",
			ErrLabelCountMismatch, n, len(meta.Classes), meta.Classes)
	}

	logger.Debug("classifier ready",
		zap.Int64s("input_shape", session.InputShape()),
		zap.Int64s("output_shape", session.OutputShape()),
		zap.Strings("classes", meta.Classes),
		zap.String("layout", string(opts.Layout)),
		zap.String("interpolation", string(opts.Interpolation)))

	return &Classifier{
		session:  session,
		Metadata: meta,
		opts:     opts,
		logger:   logger,
	}, nil
}

// PredictImage decodes the image at path, runs it through the model and
// returns the prediction along with the decoded image.
func (c *Classifier) PredictImage(path string) (*PredictionResponse, image.Image, error) {
	img, format, err := preprocess.Decode(path)
	if err != nil {
		return nil, nil, err
	}

	c.logger.Debug("image decoded",
		zap.String("path", path),
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	input := preprocess.Tensor(img, c.opts)

	result, err := c.Predict(input)
	if err != nil {
		return nil, nil, err
	}
	return result, img, nil
}

// Predict runs the forward pass on an already preprocessed input tensor.
func (c *Classifier) Predict(inputData []float32) (*PredictionResponse, error) {
	if want := volume(c.opts.Shape()); int64(len(inputData)) != want {
		return nil, fmt.Errorf("%w: expected %d values for %v, got %d",
			ErrShapeMismatch, want, c.opts.Shape(), len(inputData))
	}

	outputData, err := c.session.Run(inputData)
	if err != nil {
		return nil, err
	}

	classes := c.Metadata.Classes
	if len(outputData) != len(classes) {
		return nil, fmt.Errorf("%w: model returned %d scores, %d labels configured %v",
			ErrLabelCountMismatch, len(outputData), len(classes), classes)
	}

	for i, val := range outputData {
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil, fmt.Errorf("%w: score %d (%s) is %v", ErrNonFiniteScore, i, classes[i], val)
		}
	}

	maxIdx := argmax(outputData)
	predictions := make(map[string]float32, len(classes))
	scores := make([]Score, len(classes))
	for i, val := range outputData {
		predictions[classes[i]] = val
		scores[i] = Score{Class: classes[i], Score: val}
	}

	c.logger.Debug("prediction",
		zap.String("class", classes[maxIdx]),
		zap.Float32("confidence", outputData[maxIdx]),
		zap.Float32s("scores", outputData))

	return &PredictionResponse{
		Class:       classes[maxIdx],
		Index:       maxIdx,
		Confidence:  outputData[maxIdx],
		Predictions: predictions,
		Scores:      scores,
	}, nil
}

func (c *Classifier) Close() error {
	return c.session.Close()
}

// argmax returns the index of the largest value, the lowest such index on
// ties. NaN only wins when every value is NaN.
func argmax(values []float32) int {
	best := 0
	for i := 1; i < len(values); i++ {
		v, b := values[i], values[best]
		if v > b || (isNaN(b) && !isNaN(v)) {
			best = i
		}
	}
	return best
}

func isNaN(v float32) bool {
	return math.IsNaN(float64(v))
}

// shapeMatches treats non-positive model dimensions as dynamic.
func shapeMatches(model, want []int64) bool {
	if len(model) != len(want) {
		return false
	}
	for i := range model {
		if model[i] > 0 && model[i] != want[i] {
			return false
		}
	}
	return true
}

// classDim is the number of scores per batch item, or 0 when it is unknown.
func classDim(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	dims := shape
	if len(shape) > 1 {
		dims = shape[1:]
	}
	n := int64(1)
	for _, d := range dims {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}

func volume(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
