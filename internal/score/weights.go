package score

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights combines the breakdown terms into the composite score. The exact
// combination is tunable configuration, not a contract; these defaults favor
// uptake evidence over overlay evidence and split same/next period 60/40.
type Weights struct {
	Uptake      float64 `yaml:"uptake"`
	ShortRelief float64 `yaml:"short_relief"`
	UHF         float64 `yaml:"uhf"`
	Options     float64 `yaml:"options"`
	SameShare   float64 `yaml:"same_share"` // same-period share of two-period terms
}

// DefaultWeights returns the documented default combination.
func DefaultWeights() Weights {
	return Weights{
		Uptake:      0.35,
		ShortRelief: 0.25,
		UHF:         0.20,
		Options:     0.20,
		SameShare:   0.60,
	}
}

// LoadWeights reads a YAML weights file, falling back to defaults for any
// field left at zero.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("read weights file: %w", err)
	}

	var loaded Weights
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return w, fmt.Errorf("parse weights file: %w", err)
	}

	if loaded.Uptake != 0 {
		w.Uptake = loaded.Uptake
	}
	if loaded.ShortRelief != 0 {
		w.ShortRelief = loaded.ShortRelief
	}
	if loaded.UHF != 0 {
		w.UHF = loaded.UHF
	}
	if loaded.Options != 0 {
		w.Options = loaded.Options
	}
	if loaded.SameShare != 0 {
		w.SameShare = loaded.SameShare
	}

	if err := w.validate(); err != nil {
		return DefaultWeights(), err
	}

	return w, nil
}

func (w Weights) validate() error {
	for name, v := range map[string]float64{
		"uptake":       w.Uptake,
		"short_relief": w.ShortRelief,
		"uhf":          w.UHF,
		"options":      w.Options,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must be non-negative, got %f", name, v)
		}
	}
	if w.SameShare < 0 || w.SameShare > 1 {
		return fmt.Errorf("same_share must be in [0,1], got %f", w.SameShare)
	}
	return nil
}
