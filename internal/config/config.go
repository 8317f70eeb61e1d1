// FILE: config.go
// Package config – Config struct and loader for the backtesting engine.
//
// Config holds every configurable knob: the history/store axis
// (reference_coin, ohlcv_field, candle), the master
// and narrowed windows, the time-iterator shape, the strategy and
// cutoff parameters, and the worker pool size. It is populated from the
// process environment (see env.go) after Load() has hydrated any local
// .env file. Grid-axis sweeps (the Cartesian product the driver
// enumerates) are a separate, optional YAML document — see grid.go.
package config

import (
	"fmt"
	"time"

	"github.com/chidi150c/backtestcrypto/internal/bterrors"
)

// Config holds all runtime knobs for a single backtest run.
type Config struct {
	// History axis
	ReferenceCoin string // denominator asset for all prices, e.g. "BTC"
	OhlcvField    string // which OHLCV field decisions are based on
	Candle        string // default simulator tick granularity, e.g. "1h"

	// Master / narrowed windows
	OverallStart  time.Time
	OverallEnd    time.Time
	NarrowedStart time.Time
	NarrowedEnd   time.Time

	// Time-interval iterator shape
	Interval        time.Duration
	ForwardInTime   bool
	IncreasingRange bool

	// Strategy / simulation parameters
	MaxCoinsToBuy        int
	PercentageIncrease   float64
	PercentageReduction  float64
	DaysToRun            time.Duration
	StopPriceSell        float64
	LimitSellAdjustTrail float64

	// Cutoff parameters (exactly one form must resolve; see Cutoffs())
	LowCutoff       *float64
	HighCutoff      *float64
	CutoffMean      *float64
	CutoffDeviation *float64

	// Ops
	PoolCount int
}

// FromEnv builds a Config from the process environment, applying the
// reasonable defaults for local development.
func FromEnv() Config {
	now := time.Now().UTC()
	cfg := Config{
		ReferenceCoin:        getEnv("REFERENCE_COIN", "BTC"),
		OhlcvField:           getEnv("OHLCV_FIELD", "close"),
		Candle:               getEnv("CANDLE", "1h"),
		OverallStart:         getEnvTime("OVERALL_START", now.AddDate(0, -1, 0)),
		OverallEnd:           getEnvTime("OVERALL_END", now),
		Interval:             getEnvDuration("INTERVAL", 24*time.Hour),
		ForwardInTime:        getEnvBool("FORWARD_IN_TIME", true),
		IncreasingRange:      getEnvBool("INCREASING_RANGE", false),
		MaxCoinsToBuy:        getEnvInt("MAX_COINS_TO_BUY", 4),
		PercentageIncrease:   getEnvFloat("PERCENTAGE_INCREASE", 0.05),
		PercentageReduction:  getEnvFloat("PERCENTAGE_REDUCTION", 0.0),
		DaysToRun:            getEnvDuration("DAYS_TO_RUN", 20*24*time.Hour),
		StopPriceSell:        getEnvFloat("STOP_PRICE_SELL", -1),
		LimitSellAdjustTrail: getEnvFloat("LIMIT_SELL_ADJUST_TRAIL", 0.02),
		PoolCount:            getEnvInt("POOL_COUNT", 8),
	}
	cfg.NarrowedStart = getEnvTime("NARROWED_START", cfg.OverallStart)
	cfg.NarrowedEnd = getEnvTime("NARROWED_END", cfg.OverallEnd)

	if v, ok := lookupFloat("LOW_CUTOFF"); ok {
		cfg.LowCutoff = &v
	}
	if v, ok := lookupFloat("HIGH_CUTOFF"); ok {
		cfg.HighCutoff = &v
	}
	if v, ok := lookupFloat("CUTOFF_MEAN"); ok {
		cfg.CutoffMean = &v
	}
	if v, ok := lookupFloat("CUTOFF_DEVIATION"); ok {
		cfg.CutoffDeviation = &v
	}
	return cfg
}

// Cutoffs resolves the direct or mean/deviation form into (low, high).
// Exactly one form must be present; otherwise ErrConfiguration is
// returned, matching the fatal configuration-error kind.
func (c Config) Cutoffs() (low, high float64, err error) {
	direct := c.LowCutoff != nil && c.HighCutoff != nil
	mean := c.CutoffMean != nil && c.CutoffDeviation != nil
	switch {
	case direct && !mean:
		return *c.LowCutoff, *c.HighCutoff, nil
	case mean && !direct:
		return *c.CutoffMean - *c.CutoffDeviation, *c.CutoffMean + *c.CutoffDeviation, nil
	default:
		return 0, 0, fmt.Errorf("cutoffs: exactly one of (low_cutoff,high_cutoff) or (cutoff_mean,cutoff_deviation) must be set: %w", bterrors.ErrConfiguration)
	}
}

func lookupFloat(key string) (float64, bool) {
	const unset = "\x00unset"
	s := getEnv(key, unset)
	if s == unset {
		return 0, false
	}
	return getEnvFloat(key, 0), true
}
