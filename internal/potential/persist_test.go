package potential

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chidi150c/backtestcrypto/internal/timeinterval"
)

func TestSaveLoad_RoundTripsAllColumn(t *testing.T) {
	window := testWindow()
	table := NewTable([]timeinterval.Interval{window})
	scorer := &countingScorer{scores: map[string]float64{"AAA": 0.5, "BBB": 1.5}}
	resolver := NewResolver(nil, scorer, table)
	_, err := resolver.Resolve(window, StrategyKey{LowCutoff: 0, HighCutoff: 2})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, table.Save(path))

	loaded := NewTable([]timeinterval.Interval{window})
	require.NoError(t, loaded.Load(path))

	wk := windowKey(window.Start, window.End)
	require.Equal(t, map[string]float64{"AAA": 0.5, "BBB": 1.5}, loaded.all[wk])
}

func TestLoad_AdditiveFillsOnlyMissingAssets(t *testing.T) {
	window := testWindow()
	table := NewTable([]timeinterval.Interval{window})
	wk := windowKey(window.Start, window.End)
	table.all[wk] = map[string]float64{"AAA": 9.9} // pre-existing value must not be overwritten

	path := filepath.Join(t.TempDir(), "cache.yaml")
	seed := NewTable([]timeinterval.Interval{window})
	seed.all[wk] = map[string]float64{"AAA": 0.1, "BBB": 0.2}
	require.NoError(t, seed.Save(path))

	require.NoError(t, table.Load(path))
	require.Equal(t, 9.9, table.all[wk]["AAA"])
	require.Equal(t, 0.2, table.all[wk]["BBB"])
}

func TestLoad_IgnoresUnregisteredWindows(t *testing.T) {
	window := testWindow()
	other := timeinterval.Interval{Start: window.Start.Add(48 * time.Hour), End: window.End.Add(48 * time.Hour)}

	seed := NewTable([]timeinterval.Interval{other})
	seed.all[windowKey(other.Start, other.End)] = map[string]float64{"AAA": 1.0}
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, seed.Save(path))

	table := NewTable([]timeinterval.Interval{window}) // does not register `other`
	require.NoError(t, table.Load(path))
	require.Empty(t, table.all)
}

func TestLoad_ThenResolveIsIdempotent(t *testing.T) {
	window := testWindow()
	path := filepath.Join(t.TempDir(), "cache.yaml")

	seed := NewTable([]timeinterval.Interval{window})
	seed.all[windowKey(window.Start, window.End)] = map[string]float64{"AAA": 0.5}
	require.NoError(t, seed.Save(path))

	table := NewTable([]timeinterval.Interval{window})
	require.NoError(t, table.Load(path))
	scorer := &countingScorer{scores: map[string]float64{"AAA": 99}} // must not be consulted: "all" already loaded
	resolver := NewResolver(nil, scorer, table)

	key := StrategyKey{LowCutoff: 0, HighCutoff: 1}
	out, err := resolver.Resolve(window, key)
	require.NoError(t, err)
	require.Equal(t, map[string]float64{"AAA": 0.5}, out)
	require.Equal(t, 0, scorer.calls)

	out2, err := resolver.Resolve(window, key)
	require.NoError(t, err)
	require.Equal(t, out, out2)
}
