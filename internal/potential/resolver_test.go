package potential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chidi150c/backtestcrypto/internal/bterrors"
	"github.com/chidi150c/backtestcrypto/internal/historystore"
	"github.com/chidi150c/backtestcrypto/internal/timeinterval"
)

type countingScorer struct {
	calls  int
	scores map[string]float64
}

func (c *countingScorer) Score(_ *historystore.Cube, _ string, _ historystore.OHLCVField, _, _ time.Time) (map[string]float64, error) {
	c.calls++
	out := make(map[string]float64, len(c.scores))
	for k, v := range c.scores {
		out[k] = v
	}
	return out, nil
}

func testWindow() timeinterval.Interval {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return timeinterval.Interval{Start: start, End: start.Add(24 * time.Hour)}
}

func TestResolve_FiltersByStrictCutoff(t *testing.T) {
	window := testWindow()
	table := NewTable([]timeinterval.Interval{window})
	scorer := &countingScorer{scores: map[string]float64{"AAA": 0.5, "BBB": 1.5, "CCC": 1.0}}
	resolver := NewResolver(nil, scorer, table)

	out, err := resolver.Resolve(window, StrategyKey{LowCutoff: 0.0, HighCutoff: 1.0})
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"AAA": 0.5}, out)
}

func TestResolve_CacheIdempotent(t *testing.T) {
	window := testWindow()
	table := NewTable([]timeinterval.Interval{window})
	scorer := &countingScorer{scores: map[string]float64{"AAA": 0.5}}
	resolver := NewResolver(nil, scorer, table)
	key := StrategyKey{LowCutoff: 0.0, HighCutoff: 1.0}

	first, err := resolver.Resolve(window, key)
	require.NoError(t, err)
	require.Equal(t, 1, scorer.calls)

	second, err := resolver.Resolve(window, key)
	require.NoError(t, err)
	require.Equal(t, 1, scorer.calls, "second resolve must not invoke the oversold pipeline again")
	require.Equal(t, first, second)
}

func TestResolve_PotentialIsSubsetOfAll(t *testing.T) {
	window := testWindow()
	table := NewTable([]timeinterval.Interval{window})
	scorer := &countingScorer{scores: map[string]float64{"AAA": 0.5, "BBB": 5.0}}
	resolver := NewResolver(nil, scorer, table)
	key := StrategyKey{LowCutoff: 0.0, HighCutoff: 1.0}

	_, err := resolver.Resolve(window, key)
	require.NoError(t, err)

	wk := windowKey(window.Start, window.End)
	table.mu.Lock()
	all := table.all[wk]
	potential := table.potential[wk][key]
	table.mu.Unlock()

	for asset, score := range potential {
		require.Greater(t, score, key.LowCutoff)
		require.Less(t, score, key.HighCutoff)
		allScore, ok := all[asset]
		require.True(t, ok)
		require.Equal(t, allScore, score)
	}
}

func TestResolve_UnregisteredWindowFails(t *testing.T) {
	window := testWindow()
	table := NewTable(nil) // nothing registered
	scorer := &countingScorer{scores: map[string]float64{}}
	resolver := NewResolver(nil, scorer, table)

	_, err := resolver.Resolve(window, StrategyKey{LowCutoff: 0, HighCutoff: 1})
	require.ErrorIs(t, err, bterrors.ErrMissingPotentialCoinTimeIndex)
}

func TestResolve_EmptyScoreIsNotAnError(t *testing.T) {
	window := testWindow()
	table := NewTable([]timeinterval.Interval{window})
	scorer := &countingScorer{scores: map[string]float64{}}
	resolver := NewResolver(nil, scorer, table)

	out, err := resolver.Resolve(window, StrategyKey{LowCutoff: 0, HighCutoff: 1})
	require.NoError(t, err)
	require.Empty(t, out)
}
