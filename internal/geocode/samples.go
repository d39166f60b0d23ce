package geocode

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
)

//go:embed samples.yaml
var samplesYAML []byte

// Sample is a known location used on the index page and by the smoke test.
type Sample struct {
	Name string  `yaml:"name" json:"name"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lon  float64 `yaml:"lon" json:"lon"`
}

// Matches reports whether a Commons category title names this sample.
func (s Sample) Matches(title string) bool {
	return strings.HasPrefix(strings.ToLower(title), strings.ToLower(s.Name))
}

// LoadSamples parses the embedded sample list.
func LoadSamples() ([]Sample, error) {
	var samples []Sample
	if err := yaml.Unmarshal(samplesYAML, &samples); err != nil {
		return nil, fmt.Errorf("parse samples: %w", err)
	}
	return samples, nil
}
