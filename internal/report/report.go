package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/fire-detect/internal/model"
)

type Report struct {
	Image      string  `json:"image" yaml:"image"`
	Class      string  `json:"class" yaml:"class"`
	Index      int     `json:"index" yaml:"index"`
	Status     string  `json:"status" yaml:"status"`
	Advisory   string  `json:"advisory,omitempty" yaml:"advisory,omitempty"`
	Confidence float32 `json:"confidence" yaml:"confidence"`
	// ConfidencePercent is only set when Confidence lies in [0,1]; raw
	// logits have no meaningful percentage.
	ConfidencePercent *float64           `json:"confidence_percent,omitempty" yaml:"confidence_percent,omitempty"`
	Scores            []model.Score      `json:"scores" yaml:"scores"`
	Predictions       map[string]float32 `json:"predictions" yaml:"predictions"`
	AnalyzedAt        time.Time          `json:"analyzed_at" yaml:"analyzed_at"`
}

func New(imagePath string, res *model.PredictionResponse, analyzedAt time.Time, statuses Statuses) Report {
	status, advisory := statuses.Lookup(res.Class)

	r := Report{
		Image:       imagePath,
		Class:       res.Class,
		Index:       res.Index,
		Status:      status,
		Advisory:    advisory,
		Confidence:  res.Confidence,
		Scores:      res.Scores,
		Predictions: res.Predictions,
		AnalyzedAt:  analyzedAt.UTC(),
	}
	if res.Confidence >= 0 && res.Confidence <= 1 {
		pct := math.Round(float64(res.Confidence)*10000) / 100
		r.ConfidencePercent = &pct
	}
	return r
}

// Write renders r to w as text, json or yaml.
func Write(w io.Writer, format string, r Report) error {
	switch format {
	case "", "text":
		return writeText(w, r)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported report format %q", format)
}

func writeText(w io.Writer, r Report) error {
	pairs := make([]string, len(r.Scores))
	for i, s := range r.Scores {
		pairs[i] = fmt.Sprintf("%s: %v", s.Class, s.Score)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Image: %s\n", r.Image)
	fmt.Fprintf(&b, "Confidence Scores: {%s}\n", strings.Join(pairs, ", "))
	fmt.Fprintf(&b, "Predicted Class: %s\n", r.Class)
	fmt.Fprintf(&b, "Status: %s\n", r.Status)
	if r.Advisory != "" {
		fmt.Fprintf(&b, "Advisory: %s\n", r.Advisory)
	}
	if r.ConfidencePercent != nil {
		fmt.Fprintf(&b, "Confidence: %.2f%%\n", *r.ConfidencePercent)
	}
	fmt.Fprintf(&b, "Analyzed At: %s\n", r.AnalyzedAt.Format(time.RFC3339))

	_, err := io.WriteString(w, b.String())
	return err
}
