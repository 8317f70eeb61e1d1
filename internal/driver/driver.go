// FILE: driver.go
// Package driver – Parallel Driver (C6): the worker-pool grid-search
// dispatcher.
//
// Fans a grid of coordinates out across a bounded worker pool and
// collects one Result Cube cell per (coordinate, target metric). The
// pool is golang.org/x/sync/errgroup with SetLimit(poolCount); writes
// into the ResultCube are serialised by a mutex, so workers never race
// on write-out.
package driver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chidi150c/backtestcrypto/internal/bterrors"
	"github.com/chidi150c/backtestcrypto/internal/config"
	"github.com/chidi150c/backtestcrypto/internal/grid"
	"github.com/chidi150c/backtestcrypto/internal/historystore"
	"github.com/chidi150c/backtestcrypto/internal/metrics"
	"github.com/chidi150c/backtestcrypto/internal/potential"
	"github.com/chidi150c/backtestcrypto/internal/simulate"
	"github.com/chidi150c/backtestcrypto/internal/timeinterval"
)

// Driver dispatches every coordinate of a grid search to the Simulator
// Core and writes its target metrics back into a Result Cube.
type Driver struct {
	sim           *simulate.Simulator
	cfg           config.Config
	targetMetrics []simulate.TargetMetric
}

// New builds a Driver over cube/resolver using cfg as the base parameter
// set that grid axes override, computing targetMetrics at every
// coordinate.
func New(cube *historystore.Cube, resolver *potential.Resolver, cfg config.Config, targetMetrics []string) *Driver {
	tm := make([]simulate.TargetMetric, len(targetMetrics))
	for i, m := range targetMetrics {
		tm[i] = simulate.TargetMetric(m)
	}
	return &Driver{sim: simulate.NewSimulator(cube, resolver), cfg: cfg, targetMetrics: tm}
}

// BuildAxes assembles the Result Cube's axis list from a grid-axis sweep
// document plus the materialised outer time-interval sequence, with
// time_intervals first (outermost) so Enumerate visits one time window
// at a time.
func BuildAxes(ga *config.GridAxes, intervals []timeinterval.Interval) []grid.Axis {
	var axes []grid.Axis
	labels := make([]string, len(intervals))
	for i, iv := range intervals {
		labels[i] = timeinterval.Encode(iv)
	}
	axes = append(axes, grid.Axis{Name: "time_intervals", Labels: labels})

	addFloats := func(name string, values []float64) {
		if len(values) == 0 {
			return
		}
		labels := make([]string, len(values))
		for i, v := range values {
			labels[i] = fmt.Sprintf("%g", v)
		}
		axes = append(axes, grid.Axis{Name: name, Labels: labels})
	}
	addInts := func(name string, values []int) {
		if len(values) == 0 {
			return
		}
		labels := make([]string, len(values))
		for i, v := range values {
			labels[i] = fmt.Sprintf("%d", v)
		}
		axes = append(axes, grid.Axis{Name: name, Labels: labels})
	}

	addFloats("low_cutoff", ga.LowCutoff)
	addFloats("high_cutoff", ga.HighCutoff)
	addFloats("percentage_increase", ga.PercentageIncrease)
	addFloats("percentage_reduction", ga.PercentageReduction)
	addFloats("stop_price_sell", ga.StopPriceSell)
	addFloats("limit_sell_adjust_trail", ga.LimitSellAdjustTrail)
	addInts("max_coins_to_buy", ga.MaxCoinsToBuy)
	if len(ga.DaysToRunHours) > 0 {
		labels := make([]string, len(ga.DaysToRunHours))
		for i, h := range ga.DaysToRunHours {
			labels[i] = grid.EncodeDuration(time.Duration(h) * time.Hour)
		}
		axes = append(axes, grid.Axis{Name: "days_to_run", Labels: labels})
	}
	if len(ga.StrategyKinds) > 0 {
		axes = append(axes, grid.Axis{Name: "strategy_kind", Labels: append([]string(nil), ga.StrategyKinds...)})
	}
	return axes
}

// RunGrid dispatches every coordinate of rc's axes across a pool of
// poolCount workers, writing every configured target metric back into
// rc. A recoverable per-task error leaves that coordinate's cells at NaN
// (logged via the recoverable-task metric) instead of aborting the run;
// any other error cancels the remaining tasks and is returned. All
// coordinates share one pool, so tasks of different time_intervals
// values may run at the same time, and each task's metrics are written
// as soon as it finishes (completion order, keyed by coordinate).
func (d *Driver) RunGrid(ctx context.Context, rc *grid.ResultCube, poolCount int) error {
	coords := grid.Enumerate(rc)
	metrics.TasksDispatched.Add(float64(len(coords)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolCount)
	var mu sync.Mutex

	for _, coord := range coords {
		coord := coord
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			metrics.ActiveWorkers.Inc()
			defer metrics.ActiveWorkers.Dec()

			start := time.Now()
			inputs, err := d.decode(coord)
			if err != nil {
				metrics.TasksFailed.Inc()
				return err
			}
			results, err := d.sim.Run(inputs, d.targetMetrics)
			metrics.TaskDuration.Observe(time.Since(start).Seconds())
			if err != nil {
				if bterrors.Recoverable(err) {
					metrics.TasksRecoverable.WithLabelValues(recoverableKind(err)).Inc()
					mu.Lock()
					for _, m := range d.targetMetrics {
						_ = rc.Write(string(m), coord, math.NaN())
					}
					mu.Unlock()
					return nil
				}
				metrics.TasksFailed.Inc()
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for metric, value := range results {
				if err := rc.Write(string(metric), coord, value); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// RunOne runs a single coordinate outside the pool and returns its raw
// metric values, for debugging one sweep point without a full grid run.
func (d *Driver) RunOne(coord grid.Coordinate) (map[simulate.TargetMetric]float64, error) {
	inputs, err := d.decode(coord)
	if err != nil {
		return nil, err
	}
	return d.sim.Run(inputs, d.targetMetrics)
}

func recoverableKind(err error) string {
	if errors.Is(err, bterrors.ErrInsufficientHistory) {
		return "insufficient_history"
	}
	return "missing_potential_coin_index"
}

// decode resolves one grid coordinate into a full SimulationInputs,
// overriding d.cfg's base values with any axis present in coord.
func (d *Driver) decode(coord grid.Coordinate) (simulate.SimulationInputs, error) {
	window, err := timeinterval.Decode(coord["time_intervals"])
	if err != nil {
		return simulate.SimulationInputs{}, fmt.Errorf("driver: %w", err)
	}

	var low, high float64
	_, hasLow := coord["low_cutoff"]
	_, hasHigh := coord["high_cutoff"]
	if !hasLow || !hasHigh {
		low, high, err = d.cfg.Cutoffs()
		if err != nil {
			return simulate.SimulationInputs{}, fmt.Errorf("driver: %w", err)
		}
	}
	if v, ok := coord["low_cutoff"]; ok {
		low, err = parseFloat(v)
		if err != nil {
			return simulate.SimulationInputs{}, err
		}
	}
	if v, ok := coord["high_cutoff"]; ok {
		high, err = parseFloat(v)
		if err != nil {
			return simulate.SimulationInputs{}, err
		}
	}

	maxCoins := d.cfg.MaxCoinsToBuy
	if v, ok := coord["max_coins_to_buy"]; ok {
		n, err := parseInt(v)
		if err != nil {
			return simulate.SimulationInputs{}, err
		}
		maxCoins = n
	}
	pctIncrease := d.cfg.PercentageIncrease
	if v, ok := coord["percentage_increase"]; ok {
		pctIncrease, err = parseFloat(v)
		if err != nil {
			return simulate.SimulationInputs{}, err
		}
	}
	pctReduction := d.cfg.PercentageReduction
	if v, ok := coord["percentage_reduction"]; ok {
		pctReduction, err = parseFloat(v)
		if err != nil {
			return simulate.SimulationInputs{}, err
		}
	}
	stopPrice := d.cfg.StopPriceSell
	if v, ok := coord["stop_price_sell"]; ok {
		stopPrice, err = parseFloat(v)
		if err != nil {
			return simulate.SimulationInputs{}, err
		}
	}
	trail := d.cfg.LimitSellAdjustTrail
	if v, ok := coord["limit_sell_adjust_trail"]; ok {
		trail, err = parseFloat(v)
		if err != nil {
			return simulate.SimulationInputs{}, err
		}
	}
	daysToRun := d.cfg.DaysToRun
	if v, ok := coord["days_to_run"]; ok {
		daysToRun, err = time.ParseDuration(v)
		if err != nil {
			return simulate.SimulationInputs{}, fmt.Errorf("driver: bad days_to_run %q: %w", v, err)
		}
	}
	kind := simulate.MarketBuyLimitSell
	if v, ok := coord["strategy_kind"]; ok {
		kind = simulate.StrategyKind(v)
	}

	return simulate.SimulationInputs{
		ReferenceCoin:        d.cfg.ReferenceCoin,
		OhlcvField:           historystore.OHLCVField(d.cfg.OhlcvField),
		Candle:               historystore.Granularity(d.cfg.Candle),
		Window:               window,
		DaysToRun:            daysToRun,
		MaxCoinsToBuy:        maxCoins,
		PercentageIncrease:   pctIncrease,
		PercentageReduction:  pctReduction,
		StopPriceSell:        stopPrice,
		LimitSellAdjustTrail: trail,
		Kind:                 kind,
		LowCutoff:            low,
		HighCutoff:           high,
	}, nil
}

func parseFloat(s string) (float64, error) {
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		return 0, fmt.Errorf("driver: bad float axis value %q: %w", s, err)
	}
	return v, nil
}

func parseInt(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, fmt.Errorf("driver: bad int axis value %q: %w", s, err)
	}
	return v, nil
}
