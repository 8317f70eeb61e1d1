// FILE: score.go
// Package potential – default OversoldScorer implementation.
//
// The real oversold pipeline (candle-independence, weight-normalisation,
// peer-normalisation) only has its input/output contract specified here,
// so callers may substitute their own scorer. defaultScorer
// implements that contract end to end so the resolver and driver can be
// exercised without an upstream math library: it fetches a merged slice
// (last two days hourly, remainder daily), cleans it, and
// reduces it to a per-asset z-score of the configured field — self- and
// peer-normalised the way a price-series z-score normalises
// series (ZScore), generalised from a single asset's time axis to many
// assets' cross-section at the final timestamp.
package potential

import (
	"fmt"
	"math"
	"time"

	"github.com/chidi150c/backtestcrypto/internal/bterrors"
	"github.com/chidi150c/backtestcrypto/internal/historystore"
)

// defaultScorer is the concrete, baseline OversoldScorer this package
// ships. It is intentionally simple: a real deployment is expected to
// swap in a binding to the upstream oversold-math library.
type defaultScorer struct {
	// TimestampDropFraction and CoinDropFraction are the cleaning
	// thresholds applied before scoring (fraction of NaN values that
	// drops a timestamp row or a coin column, respectively).
	TimestampDropFraction float64
	CoinDropFraction      float64
}

// NewDefaultScorer returns the package's built-in OversoldScorer with the
// reasonable default cleaning thresholds.
func NewDefaultScorer() OversoldScorer {
	return &defaultScorer{TimestampDropFraction: 0.5, CoinDropFraction: 0.975}
}

// mergedSlicePlan returns a two-tier granularity plan: the last two days
// at hourly granularity, the rest at daily.
func mergedSlicePlan() ([]historystore.GranularityPlanStep, historystore.Granularity) {
	return []historystore.GranularityPlanStep{
		{OffsetStart: -48 * time.Hour, OffsetEnd: 0, Granularity: "1h"},
	}, "1d"
}

func (s *defaultScorer) Score(cube *historystore.Cube, referenceCoin string, field historystore.OHLCVField, windowStart, windowEnd time.Time) (map[string]float64, error) {
	plan, fallback := mergedSlicePlan()
	view, err := cube.MergedSlice(field, plan, fallback, windowStart, windowEnd)
	if err != nil {
		if bterrors.Recoverable(err) {
			return nil, err
		}
		return nil, fmt.Errorf("potential: merged slice: %w", err)
	}

	cleaned := cleanView(view, s.TimestampDropFraction, s.CoinDropFraction)
	if len(cleaned.Timestamps) == 0 || len(cleaned.Assets) == 0 {
		// An empty post-cleaning array is a valid "no candidates"
		// outcome, not an error.
		return map[string]float64{}, nil
	}

	return candleIndependentScore(cleaned), nil
}

// cleanView applies the cleaning pipeline: drop
// all-NaN columns, drop coins with sparse history (more than
// coinDropFraction NaN), drop coins whose history ends in NaN (trailing
// gap), and drop rows that are mostly NaN.
func cleanView(view *historystore.View, timestampDropFraction, coinDropFraction float64) *historystore.View {
	nAssets := len(view.Assets)
	nTs := len(view.Timestamps)
	if nAssets == 0 || nTs == 0 {
		return view
	}

	keepAsset := make([]bool, nAssets)
	for ai := range view.Assets {
		nanCount := 0
		for ti := 0; ti < nTs; ti++ {
			if math.IsNaN(view.Data[ti][ai]) {
				nanCount++
			}
		}
		fracNaN := float64(nanCount) / float64(nTs)
		trailingNaN := math.IsNaN(view.Data[nTs-1][ai])
		keepAsset[ai] = nanCount < nTs && fracNaN < coinDropFraction && !trailingNaN
	}

	keptAssets := make([]string, 0, nAssets)
	assetIdx := make([]int, 0, nAssets)
	for ai, keep := range keepAsset {
		if keep {
			keptAssets = append(keptAssets, view.Assets[ai])
			assetIdx = append(assetIdx, ai)
		}
	}

	var keptTs []int64
	var keptRows [][]float64
	for ti := 0; ti < nTs; ti++ {
		nanCount := 0
		row := make([]float64, len(assetIdx))
		for j, ai := range assetIdx {
			row[j] = view.Data[ti][ai]
			if math.IsNaN(row[j]) {
				nanCount++
			}
		}
		if len(assetIdx) > 0 && float64(nanCount)/float64(len(assetIdx)) >= timestampDropFraction {
			continue
		}
		keptTs = append(keptTs, view.Timestamps[ti])
		keptRows = append(keptRows, row)
	}

	return &historystore.View{
		Field:      view.Field,
		Timestamps: keptTs,
		Assets:     keptAssets,
		Data:       keptRows,
	}
}

// candleIndependentScore collapses the cleaned view's last timestamp row
// into a dimensionless peer-normalised score: each asset's last value is
// expressed as a z-score against the cross-section of all kept assets at
// that instant, matching the "normalise per-timestamp across all assets"
// step of the scoring pipeline.
func candleIndependentScore(view *historystore.View) map[string]float64 {
	last := view.Data[len(view.Data)-1]
	var sum, sumSq float64
	n := 0
	for _, v := range last {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		sumSq += v * v
		n++
	}
	out := make(map[string]float64, len(view.Assets))
	if n == 0 {
		return out
	}
	mean := sum / float64(n)
	variance := math.Max(sumSq/float64(n)-mean*mean, 1e-12)
	std := math.Sqrt(variance)
	for i, asset := range view.Assets {
		v := last[i]
		if math.IsNaN(v) {
			continue
		}
		out[asset] = (v - mean) / std
	}
	return out
}
