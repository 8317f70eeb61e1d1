// FILE: export.go
// Package grid – Result Cube export.
//
// Rendering the Result Cube is out of scope here.
// Export writes the axis names/labels and the flattened per-metric
// values to YAML, which is the hand-off point a plotting tool would
// consume instead.
package grid

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Export is the serialisable form of a ResultCube: axis names/labels
// matching the iterator names exactly, plus one flattened
// array per target metric.
type Export struct {
	Axes    []Axis                 `yaml:"axes"`
	Shape   []int                  `yaml:"shape"`
	Metrics map[string][]float64   `yaml:"metrics"`
}

// ToExport materialises every target metric into the dense form.
func (rc *ResultCube) ToExport() (*Export, error) {
	exp := &Export{Axes: rc.axes, Shape: rc.Shape(), Metrics: map[string][]float64{}}
	for metric := range rc.cells {
		flat, err := rc.Flatten(metric)
		if err != nil {
			return nil, err
		}
		exp.Metrics[metric] = flat
	}
	return exp, nil
}

// Save writes the cube's export form to path as YAML.
func (rc *ResultCube) Save(path string) error {
	exp, err := rc.ToExport()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(exp)
	if err != nil {
		return fmt.Errorf("grid: marshal export: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
