// FILE: resolver.go
// Package potential – memoised potential-coin resolver (C3).
//
// For a (window, strategy) pair, resolves the per-asset oversold score
// (cached under "all"), then filters it by the strategy's cutoff band
// into "potential". The shared cache is an explicit *Table owned by the
// driver and passed down to workers, rather than hidden global state.
package potential

import (
	"fmt"
	"sync"
	"time"

	"github.com/chidi150c/backtestcrypto/internal/bterrors"
	"github.com/chidi150c/backtestcrypto/internal/historystore"
	"github.com/chidi150c/backtestcrypto/internal/metrics"
	"github.com/chidi150c/backtestcrypto/internal/timeinterval"
)

// StrategyKey is the immutable, hashable cutoff-band key for one sweep coordinate.
type StrategyKey struct {
	LowCutoff     float64
	HighCutoff    float64
	ReferenceCoin string
	OhlcvField    historystore.OHLCVField
}

// WindowKey is the composite (start,end) key of the potential-coin table.
type WindowKey struct {
	StartMs int64
	EndMs   int64
}

func windowKey(start, end time.Time) WindowKey {
	return WindowKey{StartMs: start.UnixMilli(), EndMs: end.UnixMilli()}
}

// OversoldScorer computes the "all" column for one window: every base
// asset's oversold score, with no cutoff filtering applied. This is the
// external collaborator — candle-independence,
// weight-normalisation and peer-normalisation are only specified by I/O
// contract, so callers may substitute their own scorer; defaultScorer
// (score.go) ships a baseline implementation adequate to drive tests.
type OversoldScorer interface {
	Score(cube *historystore.Cube, referenceCoin string, field historystore.OHLCVField, windowStart, windowEnd time.Time) (map[string]float64, error)
}

// Table is the two-level cache: "all" (window -> asset -> score) and
// "potential" (window -> strategy -> asset -> score). It is
// pre-seeded with the windows it is allowed to answer for, so a request
// for a window outside that multi-index fails distinctly
// (ErrMissingPotentialCoinTimeIndex) from a window that is registered but
// not yet computed.
type Table struct {
	mu        sync.Mutex
	allIndex  map[WindowKey]bool // registered windows
	all       map[WindowKey]map[string]float64
	potential map[WindowKey]map[StrategyKey]map[string]float64
}

// NewTable registers the given windows as the resolver's valid
// multi-index, the full set of time-interval values a lookup may key
// on.
func NewTable(windows []timeinterval.Interval) *Table {
	t := &Table{
		allIndex:  make(map[WindowKey]bool, len(windows)),
		all:       make(map[WindowKey]map[string]float64),
		potential: make(map[WindowKey]map[StrategyKey]map[string]float64),
	}
	for _, w := range windows {
		t.allIndex[windowKey(w.Start, w.End)] = true
	}
	return t
}

// Resolver ties a Table to the Cube and scorer it reads from.
type Resolver struct {
	cube   *historystore.Cube
	scorer OversoldScorer
	table  *Table
}

// NewResolver builds a Resolver over cube using scorer, caching into table.
func NewResolver(cube *historystore.Cube, scorer OversoldScorer, table *Table) *Resolver {
	return &Resolver{cube: cube, scorer: scorer, table: table}
}

// Resolve returns the subset of base assets whose score falls strictly
// inside (key.LowCutoff, key.HighCutoff) for the given window, computing
// and caching the "all" column on first use.
func (r *Resolver) Resolve(window timeinterval.Interval, key StrategyKey) (map[string]float64, error) {
	wk := windowKey(window.Start, window.End)

	r.table.mu.Lock()
	if !r.table.allIndex[wk] {
		r.table.mu.Unlock()
		return nil, fmt.Errorf("potential: window %s not in multi-index: %w", timeinterval.Encode(window), bterrors.ErrMissingPotentialCoinTimeIndex)
	}
	if cached, ok := r.table.potential[wk][key]; ok {
		out := make(map[string]float64, len(cached))
		for k, v := range cached {
			out[k] = v
		}
		r.table.mu.Unlock()
		metrics.PotentialCache.WithLabelValues("hit").Inc()
		return out, nil
	}
	all, haveAll := r.table.all[wk]
	r.table.mu.Unlock()
	metrics.PotentialCache.WithLabelValues("miss").Inc()

	if !haveAll {
		scored, err := r.scorer.Score(r.cube, key.ReferenceCoin, key.OhlcvField, window.Start, window.End)
		if err != nil {
			if bterrors.Recoverable(err) {
				return nil, err
			}
			return nil, fmt.Errorf("potential: scoring %s: %w", timeinterval.Encode(window), err)
		}
		r.table.mu.Lock()
		if existing, ok := r.table.all[wk]; ok {
			all = existing
		} else {
			all = scored
			r.table.all[wk] = all
		}
		r.table.mu.Unlock()
	}

	filtered := make(map[string]float64)
	for asset, score := range all {
		if score > key.LowCutoff && score < key.HighCutoff {
			filtered[asset] = score
		}
	}

	r.table.mu.Lock()
	if r.table.potential[wk] == nil {
		r.table.potential[wk] = make(map[StrategyKey]map[string]float64)
	}
	if _, ok := r.table.potential[wk][key]; !ok {
		r.table.potential[wk][key] = filtered
	}
	out := make(map[string]float64, len(r.table.potential[wk][key]))
	for k, v := range r.table.potential[wk][key] {
		out[k] = v
	}
	r.table.mu.Unlock()

	return out, nil
}
