// FILE: historystore.go
// Package historystore – immutable multi-dimensional price cube (C1).
//
// A Cube maps a candle-granularity tag ("1h", "1d", ...) to a dense,
// per-granularity Frame indexed by (ohlcv-field, timestamp, base-asset).
// The reference asset is carried as metadata rather than as a real axis
// since every frame in a Cube shares one reference coin. Frames are
// built once by a Loader and never mutated afterward, so a *Cube is
// safe to share by reference, read-only, across worker goroutines.
package historystore

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/chidi150c/backtestcrypto/internal/bterrors"
	"github.com/chidi150c/backtestcrypto/internal/timeinterval"
)

// Granularity is a candle-width tag, e.g. "1h", "1d", "3d".
type Granularity string

// OHLCVField is one of the enumerated OHLCV planes, plus the synthetic
// weight plane populated at load time.
type OHLCVField string

const (
	FieldOpen   OHLCVField = "open"
	FieldHigh   OHLCVField = "high"
	FieldLow    OHLCVField = "low"
	FieldClose  OHLCVField = "close"
	FieldVolume OHLCVField = "volume"
	FieldWeight OHLCVField = "weight"
)

// Frame is one granularity's dense array: timestamps (strictly
// increasing, unique) x assets, for every OHLCV field plus weight.
type Frame struct {
	Granularity   Granularity
	ReferenceCoin string
	Timestamps    []int64 // ms since epoch, ascending, unique
	Assets        []string
	data          map[OHLCVField][][]float64 // [tsIdx][assetIdx]
	weightValue   float64                    // numeric candle width backing the weight plane
}

// Cube is the immutable, per-granularity collection of Frames.
type Cube struct {
	frames map[Granularity]*Frame
}

// NewCube assembles a Cube from already-built frames. Loaders call this;
// tests may call it directly with fixture frames.
func NewCube(frames map[Granularity]*Frame) *Cube {
	return &Cube{frames: frames}
}

// Frame returns the underlying frame for a granularity, or false if the
// cube was never loaded for it.
func (c *Cube) Frame(g Granularity) (*Frame, bool) {
	f, ok := c.frames[g]
	return f, ok
}

// NewFrame builds a Frame from parallel rows, deduplicating timestamps by
// keeping the first occurrence, sorting ascending, and
// synthesising the weight plane equal to the granularity's numeric width.
func NewFrame(granularity Granularity, referenceCoin string, assets []string, rows []Row) (*Frame, error) {
	dur, err := timeinterval.GranularityToDuration(string(granularity))
	if err != nil {
		return nil, fmt.Errorf("historystore: %w", err)
	}
	sorted := append([]Row(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimestampMs < sorted[j].TimestampMs })

	var timestamps []int64
	seen := make(map[int64]bool)
	dedup := make([]Row, 0, len(sorted))
	for _, r := range sorted {
		if seen[r.TimestampMs] {
			continue
		}
		seen[r.TimestampMs] = true
		timestamps = append(timestamps, r.TimestampMs)
		dedup = append(dedup, r)
	}

	fields := []OHLCVField{FieldOpen, FieldHigh, FieldLow, FieldClose, FieldVolume, FieldWeight}
	data := make(map[OHLCVField][][]float64, len(fields))
	for _, f := range fields {
		data[f] = make([][]float64, len(dedup))
	}
	weightValue := dur.Hours()
	for ti, row := range dedup {
		for _, f := range fields {
			col := make([]float64, len(assets))
			for ai := range assets {
				if f == FieldWeight {
					col[ai] = weightValue
					continue
				}
				v, ok := row.Values[f][assets[ai]]
				if !ok {
					col[ai] = math.NaN()
				} else {
					col[ai] = v
				}
			}
			data[f][ti] = col
		}
	}
	return &Frame{
		Granularity:   granularity,
		ReferenceCoin: referenceCoin,
		Timestamps:    timestamps,
		Assets:        append([]string(nil), assets...),
		data:          data,
		weightValue:   weightValue,
	}, nil
}

// Row is one raw (timestamp, field -> asset -> value) observation used to
// build a Frame; Loaders translate their source format into Rows.
type Row struct {
	TimestampMs int64
	Values      map[OHLCVField]map[string]float64
}

// View is a (possibly concatenated) slice of a Frame restricted to a
// single field, sorted ascending by timestamp.
type View struct {
	Field      OHLCVField
	Timestamps []int64
	Assets     []string
	Data       [][]float64 // [tsIdx][assetIdx]
}

// RangeSlice returns the rows of field whose timestamps satisfy
// start_ms < ts < end_ms (strict on both sides). If
// start is after end the arguments are swapped (the caller's mistake is
// tolerated, not fatal).
func (c *Cube) RangeSlice(granularity Granularity, field OHLCVField, start, end time.Time) (*View, error) {
	if start.After(end) {
		start, end = end, start
	}
	frame, ok := c.frames[granularity]
	if !ok {
		return nil, fmt.Errorf("historystore: no frame for granularity %s: %w", granularity, bterrors.ErrInsufficientHistory)
	}
	startMs, endMs := start.UnixMilli(), end.UnixMilli()
	view := &View{Field: field, Assets: frame.Assets}
	for i, ts := range frame.Timestamps {
		if ts > startMs && ts < endMs {
			view.Timestamps = append(view.Timestamps, ts)
			view.Data = append(view.Data, frame.data[field][i])
		}
	}
	if len(view.Timestamps) == 0 {
		return nil, fmt.Errorf("historystore: empty range [%s,%s] on %s: %w", start, end, granularity, bterrors.ErrInsufficientHistory)
	}
	return view, nil
}

// PointLookup returns {asset -> value} for field at the exact timestamp
// current_time, dropping NaN cells. Missing timestamps are
// InsufficientHistory.
func (c *Cube) PointLookup(granularity Granularity, field OHLCVField, currentTime time.Time) (map[string]float64, error) {
	frame, ok := c.frames[granularity]
	if !ok {
		return nil, fmt.Errorf("historystore: no frame for granularity %s: %w", granularity, bterrors.ErrInsufficientHistory)
	}
	targetMs := currentTime.UnixMilli()
	idx := sort.Search(len(frame.Timestamps), func(i int) bool { return frame.Timestamps[i] >= targetMs })
	if idx >= len(frame.Timestamps) || frame.Timestamps[idx] != targetMs {
		return nil, fmt.Errorf("historystore: point lookup miss at %s on %s: %w", currentTime, granularity, bterrors.ErrInsufficientHistory)
	}
	row := frame.data[field][idx]
	out := make(map[string]float64, len(frame.Assets))
	for i, asset := range frame.Assets {
		if !math.IsNaN(row[i]) {
			out[asset] = row[i]
		}
	}
	return out, nil
}

// GranularityPlanStep is one leg of a merged-slice plan: a
// (offsetStart,offsetEnd) window relative to endTime, drawn from
// granularity.
type GranularityPlanStep struct {
	OffsetStart time.Duration
	OffsetEnd   time.Duration
	Granularity Granularity
}

// MergedSlice concatenates several range slices drawn from possibly
// different granularities ending at endTime, plus a fallback granularity
// covering everything before the plan's earliest leg, then sorts by
// timestamp.
func (c *Cube) MergedSlice(field OHLCVField, plan []GranularityPlanStep, fallback Granularity, fallbackStart time.Time, endTime time.Time) (*View, error) {
	type rowRef struct {
		ts     int64
		assets []string
		vals   []float64
	}
	var rows []rowRef
	assetSet := map[string]bool{}

	addLeg := func(granularity Granularity, start, end time.Time) error {
		view, err := c.RangeSlice(granularity, field, start, end)
		if err != nil {
			if bterrors.Recoverable(err) {
				return nil
			}
			return err
		}
		for i, ts := range view.Timestamps {
			rows = append(rows, rowRef{ts: ts, assets: view.Assets, vals: view.Data[i]})
		}
		for _, a := range view.Assets {
			assetSet[a] = true
		}
		return nil
	}

	earliestStart := fallbackStart
	for _, step := range plan {
		start := endTime.Add(step.OffsetStart)
		end := endTime.Add(step.OffsetEnd)
		if err := addLeg(step.Granularity, start, end); err != nil {
			return nil, err
		}
		if start.Before(earliestStart) {
			earliestStart = start
		}
	}
	if err := addLeg(fallback, fallbackStart, earliestStart); err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("historystore: merged slice empty ending %s: %w", endTime, bterrors.ErrInsufficientHistory)
	}

	assets := make([]string, 0, len(assetSet))
	for a := range assetSet {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	sort.Slice(rows, func(i, j int) bool { return rows[i].ts < rows[j].ts })
	view := &View{Field: field, Assets: assets}
	for _, r := range rows {
		byAsset := make(map[string]float64, len(r.assets))
		for i, a := range r.assets {
			byAsset[a] = r.vals[i]
		}
		row := make([]float64, len(assets))
		for i, a := range assets {
			if v, ok := byAsset[a]; ok {
				row[i] = v
			} else {
				row[i] = math.NaN()
			}
		}
		view.Timestamps = append(view.Timestamps, r.ts)
		view.Data = append(view.Data, row)
	}
	return view, nil
}
