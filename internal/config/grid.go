// FILE: grid.go
// Package config – grid-axis sweep file, loaded with gopkg.in/yaml.v3.
//
// A GridAxes document lists the per-axis values the Cartesian-product
// grid search (C4) sweeps over, as a single declarative file in place of
// hand-edited per-axis iterator lists.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GridAxes is the YAML shape of a grid-axis sweep file.
type GridAxes struct {
	LowCutoff            []float64 `yaml:"low_cutoff"`
	HighCutoff           []float64 `yaml:"high_cutoff"`
	CutoffMean           []float64 `yaml:"cutoff_mean"`
	CutoffDeviation      []float64 `yaml:"cutoff_deviation"`
	MaxCoinsToBuy        []int     `yaml:"max_coins_to_buy"`
	PercentageIncrease   []float64 `yaml:"percentage_increase"`
	PercentageReduction  []float64 `yaml:"percentage_reduction"`
	StopPriceSell        []float64 `yaml:"stop_price_sell"`
	LimitSellAdjustTrail []float64 `yaml:"limit_sell_adjust_trail"`
	DaysToRunHours       []int     `yaml:"days_to_run_hours"`
	StrategyKinds        []string  `yaml:"strategy_kinds"`
	TargetMetrics        []string  `yaml:"target_metrics"`
}

// LoadGridAxes reads a grid-axis sweep document from path.
func LoadGridAxes(path string) (*GridAxes, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grid axes %s: %w", path, err)
	}
	var axes GridAxes
	if err := yaml.Unmarshal(data, &axes); err != nil {
		return nil, fmt.Errorf("parse grid axes %s: %w", path, err)
	}
	return &axes, nil
}

// Save writes the grid-axis document back out, mainly used by tests and
// by operators capturing a sweep that was assembled programmatically.
func (g *GridAxes) Save(path string) error {
	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal grid axes: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
