package model

type Metadata struct {
	InputShape    []int64  `json:"input_shape,omitempty"`
	OutputShape   []int64  `json:"output_shape,omitempty"`
	Classes       []string `json:"classes"`
	ImageSize     int      `json:"image_size"`
	Layout        string   `json:"layout,omitempty"`
	Interpolation string   `json:"interpolation,omitempty"`
	InputName     string   `json:"input_name,omitempty"`
	OutputName    string   `json:"output_name,omitempty"`
}

type Score struct {
	Class string  `json:"class" yaml:"class"`
	Score float32 `json:"score" yaml:"score"`
}

type PredictionResponse struct {
	Class       string             `json:"class" yaml:"class"`
	Index       int                `json:"index" yaml:"index"`
	Confidence  float32            `json:"confidence" yaml:"confidence"`
	Predictions map[string]float32 `json:"predictions" yaml:"predictions"`
	// Scores holds the same values as Predictions, in label order.
	Scores []Score `json:"scores" yaml:"scores"`
}
