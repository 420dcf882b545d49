package report

import "fmt"

// StatusRule maps a predicted class to the status and advisory shown to
// whoever reads the report.
type StatusRule struct {
	Label    string `mapstructure:"label" json:"label" yaml:"label"`
	Status   string `mapstructure:"status" json:"status" yaml:"status"`
	Advisory string `mapstructure:"advisory" json:"advisory,omitempty" yaml:"advisory,omitempty"`
}

type Statuses []StatusRule

// DefaultStatuses covers the classes of the fire detection model.
func DefaultStatuses() Statuses {
	return Statuses{
		{Label: "fire_images", Status: "Fire", Advisory: "High risk detected! Immediate action recommended."},
		{Label: "Smoke", Status: "Smoke", Advisory: "Potential risk detected. Further investigation needed."},
		{Label: "non_fire_images", Status: "No Fire", Advisory: "No immediate risk detected."},
	}
}

// Lookup returns the status and advisory for class. A class without a rule
// is reported under its own name with no advisory.
func (s Statuses) Lookup(class string) (status, advisory string) {
	for _, r := range s {
		if r.Label == class {
			return r.Status, r.Advisory
		}
	}
	return class, ""
}

func (s Statuses) Validate() error {
	seen := make(map[string]bool, len(s))
	for i, r := range s {
		if r.Label == "" || r.Status == "" {
			return fmt.Errorf("status rule %d needs both label and status", i)
		}
		if seen[r.Label] {
			return fmt.Errorf("label %q has more than one status rule", r.Label)
		}
		seen[r.Label] = true
	}
	return nil
}
