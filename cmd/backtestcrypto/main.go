// FILE: main.go
// Package main – Program entrypoint and HTTP/metrics server.
//
// Boot sequence:
//   1) config.Load()         – read .env (no shell exports required)
//   2) cfg := config.FromEnv() – build the runtime Config
//   3) wire a History Store loader (CSV or SQL) and build the Cube
//   4) wire the potential-coin Table/Resolver over the narrowed window
//   5) load the grid-axis sweep file and build the Result Cube
//   6) start the Prometheus /metrics server on the -port flag's port
//   7) run the grid (or a single debug coordinate) and export the result
//
// Flags:
//   -grid <file>     Grid-axis sweep YAML (default grid.yaml)
//   -out <file>      Result Cube export path (default result_cube.yaml)
//   -debug-coord     Run a single coordinate (first label of every axis) and print it, skipping the full grid
//   -port <n>        Metrics server port (default 9103)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chidi150c/backtestcrypto/internal/config"
	"github.com/chidi150c/backtestcrypto/internal/driver"
	"github.com/chidi150c/backtestcrypto/internal/grid"
	"github.com/chidi150c/backtestcrypto/internal/historystore"
	"github.com/chidi150c/backtestcrypto/internal/potential"
	"github.com/chidi150c/backtestcrypto/internal/timeinterval"
)

func main() {
	var gridPath, outPath, potentialCachePath string
	var port int
	var debugCoord bool
	flag.StringVar(&gridPath, "grid", "grid.yaml", "Grid-axis sweep document")
	flag.StringVar(&outPath, "out", "result_cube.yaml", "Result Cube export path")
	flag.StringVar(&potentialCachePath, "potential-cache", "", "Optional potential-coin cache YAML to preload/persist")
	flag.IntVar(&port, "port", 9103, "Metrics server port")
	flag.BoolVar(&debugCoord, "debug-coord", false, "Run a single coordinate instead of the full grid")
	flag.Parse()

	config.Load()
	cfg := config.FromEnv()

	cube, err := loadHistory(cfg)
	if err != nil {
		log.Fatalf("history store: %v", err)
	}

	iter := timeinterval.New(cfg.NarrowedStart, cfg.NarrowedEnd, cfg.Interval, cfg.ForwardInTime, iteratorMode(cfg))
	windows := iter.Intervals()
	if len(windows) == 0 {
		log.Fatalf("time interval iterator produced no windows for [%s,%s] step %s", cfg.NarrowedStart, cfg.NarrowedEnd, cfg.Interval)
	}

	table := potential.NewTable(windows)
	if potentialCachePath != "" {
		if err := table.Load(potentialCachePath); err != nil {
			log.Printf("potential cache %s: %v (starting cold)", potentialCachePath, err)
		}
	}
	resolver := potential.NewResolver(cube, potential.NewDefaultScorer(), table)

	ga, err := config.LoadGridAxes(gridPath)
	if err != nil {
		log.Printf("grid axes %s: %v (using single-point defaults from env)", gridPath, err)
		ga = defaultGridAxes(cfg)
	}

	targetMetrics := ga.TargetMetrics
	if len(targetMetrics) == 0 {
		targetMetrics = []string{"calculate_end_of_run_value"}
	}

	d := driver.New(cube, resolver, cfg, targetMetrics)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", port)
		log.Printf("serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server: %v", err)
		}
	}()

	spec := grid.Spec{
		Axes:          driver.BuildAxes(ga, windows),
		TargetMetrics: targetMetrics,
	}
	rc := grid.NewResultCube(spec)

	if debugCoord {
		coord := firstCoordinate(spec.Axes)
		out, err := d.RunOne(coord)
		if err != nil {
			log.Fatalf("debug coordinate: %v", err)
		}
		for metric, value := range out {
			fmt.Printf("%s = %g\n", metric, value)
		}
		return
	}

	ctx := context.Background()
	if err := d.RunGrid(ctx, rc, cfg.PoolCount); err != nil {
		log.Fatalf("grid run: %v", err)
	}

	if err := rc.Save(outPath); err != nil {
		log.Fatalf("export result cube: %v", err)
	}
	if potentialCachePath != "" {
		if err := table.Save(potentialCachePath); err != nil {
			log.Printf("persist potential cache: %v", err)
		}
	}
	log.Printf("result cube written to %s", outPath)
}

func iteratorMode(cfg config.Config) timeinterval.Mode {
	if cfg.IncreasingRange {
		return timeinterval.Shrinking
	}
	return timeinterval.Sliding
}

func loadHistory(cfg config.Config) (*historystore.Cube, error) {
	granularities := []historystore.Granularity{historystore.Granularity(cfg.Candle), "1d"}
	if dsn := os.Getenv("HISTORY_MYSQL_DSN"); dsn != "" {
		loader, err := historystore.NewSQLLoader(dsn)
		if err != nil {
			return nil, err
		}
		return loader.Load(cfg.ReferenceCoin, granularities)
	}

	csvDir := os.Getenv("HISTORY_CSV_DIR")
	if csvDir == "" {
		csvDir = "."
	}
	loader := historystore.CSVLoader{Files: map[historystore.Granularity]map[historystore.OHLCVField]string{
		historystore.Granularity(cfg.Candle): {
			historystore.FieldOpen:   filepath.Join(csvDir, fmt.Sprintf("open_%s.csv", cfg.Candle)),
			historystore.FieldHigh:   filepath.Join(csvDir, fmt.Sprintf("high_%s.csv", cfg.Candle)),
			historystore.FieldLow:    filepath.Join(csvDir, fmt.Sprintf("low_%s.csv", cfg.Candle)),
			historystore.FieldClose:  filepath.Join(csvDir, fmt.Sprintf("close_%s.csv", cfg.Candle)),
			historystore.FieldVolume: filepath.Join(csvDir, fmt.Sprintf("volume_%s.csv", cfg.Candle)),
		},
		"1d": {
			historystore.FieldOpen:   filepath.Join(csvDir, "open_1d.csv"),
			historystore.FieldHigh:   filepath.Join(csvDir, "high_1d.csv"),
			historystore.FieldLow:    filepath.Join(csvDir, "low_1d.csv"),
			historystore.FieldClose:  filepath.Join(csvDir, "close_1d.csv"),
			historystore.FieldVolume: filepath.Join(csvDir, "volume_1d.csv"),
		},
	}}
	return loader.Load(cfg.ReferenceCoin, granularities)
}

func defaultGridAxes(cfg config.Config) *config.GridAxes {
	low, high, err := cfg.Cutoffs()
	if err != nil {
		low, high = 0, 1
	}
	return &config.GridAxes{
		LowCutoff:            []float64{low},
		HighCutoff:           []float64{high},
		MaxCoinsToBuy:        []int{cfg.MaxCoinsToBuy},
		PercentageIncrease:   []float64{cfg.PercentageIncrease},
		PercentageReduction:  []float64{cfg.PercentageReduction},
		StopPriceSell:        []float64{cfg.StopPriceSell},
		LimitSellAdjustTrail: []float64{cfg.LimitSellAdjustTrail},
		DaysToRunHours:       []int{int(cfg.DaysToRun.Hours())},
		StrategyKinds:        []string{"market_buy_limit_sell"},
		TargetMetrics:        []string{"calculate_end_of_run_value"},
	}
}

func firstCoordinate(axes []grid.Axis) grid.Coordinate {
	coord := make(grid.Coordinate, len(axes))
	for _, a := range axes {
		if len(a.Labels) > 0 {
			coord[a.Name] = a.Labels[0]
		}
	}
	return coord
}
