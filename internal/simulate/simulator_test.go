package simulate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chidi150c/backtestcrypto/internal/historystore"
	"github.com/chidi150c/backtestcrypto/internal/potential"
	"github.com/chidi150c/backtestcrypto/internal/timeinterval"
)

const refCoin = "BTC"

type fixedScorer struct {
	scores map[string]float64
}

func (f fixedScorer) Score(_ *historystore.Cube, _ string, _ historystore.OHLCVField, _, _ time.Time) (map[string]float64, error) {
	out := make(map[string]float64, len(f.scores))
	for k, v := range f.scores {
		out[k] = v
	}
	return out, nil
}

// buildCube constructs an hourly close-price cube with one timestamp per
// value of the given per-asset price paths (n+1 values cover the ticks of
// an n-hour window).
func buildCube(t *testing.T, start time.Time, assets []string, paths map[string][]float64) *historystore.Cube {
	t.Helper()
	n := len(paths[assets[0]])
	rows := make([]historystore.Row, n)
	for i := 0; i < n; i++ {
		vals := map[string]float64{}
		for _, a := range assets {
			vals[a] = paths[a][i]
		}
		rows[i] = historystore.Row{
			TimestampMs: start.Add(time.Duration(i) * time.Hour).UnixMilli(),
			Values:      map[historystore.OHLCVField]map[string]float64{historystore.FieldClose: vals},
		}
	}
	frame, err := historystore.NewFrame("1h", refCoin, assets, rows)
	require.NoError(t, err)
	return historystore.NewCube(map[historystore.Granularity]*historystore.Frame{"1h": frame})
}

func baseInputs(window timeinterval.Interval) SimulationInputs {
	return SimulationInputs{
		ReferenceCoin:        refCoin,
		OhlcvField:           historystore.FieldClose,
		Candle:               "1h",
		Window:               window,
		DaysToRun:            5 * time.Hour,
		MaxCoinsToBuy:        1,
		PercentageIncrease:   0.10,
		StopPriceSell:        -1,
		LimitSellAdjustTrail: 0.02,
		Kind:                 MarketBuyLimitSell,
		LowCutoff:            0.0,
		HighCutoff:           1.0,
	}
}

func newResolver(cube *historystore.Cube, scores map[string]float64, window timeinterval.Interval) *potential.Resolver {
	table := potential.NewTable([]timeinterval.Interval{window})
	return potential.NewResolver(cube, fixedScorer{scores: scores}, table)
}

func TestRun_EmptyCandidateSet(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := timeinterval.Interval{Start: start, End: start.Add(4 * time.Hour)}
	cube := buildCube(t, start, []string{"AAA"}, map[string][]float64{"AAA": {1, 1, 1, 1, 1}})
	resolver := newResolver(cube, map[string]float64{}, window)

	sim := NewSimulator(cube, resolver)
	out, err := sim.Run(baseInputs(window), []TargetMetric{MetricEndRunValue, MetricPercentageHitTarget})
	require.NoError(t, err)
	require.Equal(t, 1.0, out[MetricEndRunValue]) // untouched reference-coin balance
	require.Equal(t, 0.0, out[MetricPercentageHitTarget])
}

func TestRun_StraightHit(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := timeinterval.Interval{Start: start, End: start.Add(5 * time.Hour)}
	// AAA rises 25% by tick 2, comfortably clearing the 10% limit-sell target.
	cube := buildCube(t, start, []string{"AAA"}, map[string][]float64{"AAA": {1.0, 1.0, 1.25, 1.25, 1.25, 1.25}})
	resolver := newResolver(cube, map[string]float64{"AAA": 0.5}, window)

	sim := NewSimulator(cube, resolver)
	out, err := sim.Run(baseInputs(window), []TargetMetric{MetricPercentageHitTarget, MetricEndRunValue})
	require.NoError(t, err)
	require.Equal(t, 1.0, out[MetricPercentageHitTarget])
	require.Greater(t, out[MetricEndRunValue], 1.0) // sold above cost basis
}

func TestRun_StraightMiss(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := timeinterval.Interval{Start: start, End: start.Add(5 * time.Hour)}
	// AAA never moves: the limit-sell target is never touched.
	cube := buildCube(t, start, []string{"AAA"}, map[string][]float64{"AAA": {1.0, 1.0, 1.0, 1.0, 1.0, 1.0}})
	resolver := newResolver(cube, map[string]float64{"AAA": 0.5}, window)

	in := baseInputs(window)
	in.DaysToRun = 2 * time.Hour // force a sell timeout before the window ends
	sim := NewSimulator(cube, resolver)
	out, err := sim.Run(in, []TargetMetric{MetricPercentageHitTarget, MetricEndValueIfNotSold})
	require.NoError(t, err)
	require.Equal(t, 0.0, out[MetricPercentageHitTarget])
	require.Greater(t, out[MetricEndValueIfNotSold], 0.0)
}

func TestRun_OrderTimeoutForcesBuyFill(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	window := timeinterval.Interval{Start: start, End: start.Add(5 * time.Hour)}
	// AAA holds flat at 2.0 through the buy timeout, then rises: if the
	// timeout never forced the buy fill, the reference-coin balance would
	// stay untouched and end-run value would be exactly 1.0 regardless of
	// this later rise.
	cube := buildCube(t, start, []string{"AAA"}, map[string][]float64{"AAA": {2.0, 2.0, 2.0, 2.0, 2.0, 2.2}})
	resolver := newResolver(cube, map[string]float64{"AAA": 0.5}, window)

	in := baseInputs(window)
	in.Kind = LimitBuyLimitSell
	in.PercentageReduction = 0.5 // limit well below the flat market price: never touched
	in.DaysToRun = 2 * time.Hour // forces a market fill at the timeout tick instead
	sim := NewSimulator(cube, resolver)
	out, err := sim.Run(in, []TargetMetric{MetricEndRunValue})
	require.NoError(t, err)
	require.Greater(t, out[MetricEndRunValue], 1.0) // the timeout forced a fill that later appreciated
}

func TestRun_DustSweepRemovesSubTolerance(t *testing.T) {
	p := NewPortfolio(refCoin)
	p.Holdings = append(p.Holdings, &HoldingCoin{CoinName: "DUST", Quantity: 1e-6})
	p.SweepDust(refCoin, map[string]float64{"DUST": 1.0})
	require.Equal(t, 0.0, p.FreeQuantity("DUST"))
}

func TestReserveInsufficientBalance(t *testing.T) {
	p := NewPortfolio(refCoin)
	order := &Order{ID: "x", Side: Buy, Kind: KindMarket, BaseAsset: "AAA", ReferenceCoin: refCoin, Quantity: 1}
	err := p.Reserve(refCoin, 2.0, order)
	require.Error(t, err)
}

func TestCancelReturnsHoldingUnlocked(t *testing.T) {
	p := NewPortfolio(refCoin)
	order := &Order{ID: "x", Side: Buy, Kind: KindMarket, BaseAsset: refCoin, Quantity: 0.4}
	require.NoError(t, p.Reserve(refCoin, 0.4, order))
	require.Equal(t, 0.6, p.FreeQuantity(refCoin))
	p.Cancel(order)
	require.Equal(t, 1.0, p.FreeQuantity(refCoin))
	require.Empty(t, p.Open)
}
