package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights controls the composite relevance score. The four component
// weights should sum to roughly 1.0 so scores stay comparable across
// configurations, but nothing enforces it: they are tuning knobs.
type Weights struct {
	Similarity float64 `yaml:"similarity"`
	Importance float64 `yaml:"importance"`
	Recency    float64 `yaml:"recency"`
	TagOverlap float64 `yaml:"tag_overlap"`

	// HalfLifeDays is the recency decay half-life. A candidate this many
	// days old contributes half the recency weight.
	HalfLifeDays float64 `yaml:"half_life_days"`
}

// DefaultWeights returns the documented default configuration:
// similarity 0.40, importance 0.25, recency 0.20, tag overlap 0.15,
// with a 60-day recency half-life.
func DefaultWeights() Weights {
	return Weights{
		Similarity:   0.40,
		Importance:   0.25,
		Recency:      0.20,
		TagOverlap:   0.15,
		HalfLifeDays: 60.0,
	}
}

// LoadWeightsFile reads weights from a YAML file. Omitted fields fall
// back to the defaults, so a partial override file is fine.
func LoadWeightsFile(path string) (Weights, error) {
	weights := DefaultWeights()

	data, err := os.ReadFile(path)
	if err != nil {
		return weights, fmt.Errorf("failed to read weights file: %w", err)
	}
	if err := yaml.Unmarshal(data, &weights); err != nil {
		return weights, fmt.Errorf("failed to parse weights file: %w", err)
	}

	if weights.HalfLifeDays <= 0 {
		weights.HalfLifeDays = DefaultWeights().HalfLifeDays
	}
	return weights, nil
}
