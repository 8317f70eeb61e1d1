// FILE: simulator.go
// Package simulate – Simulator Core (C5): the per-task tick-loop engine.
//
// A single goroutine runs one task's portfolio through a five-step tick
// body: observe prices, service open orders, top up the held-coin count
// from the candidate pool, place counter orders, sweep dust. Strategy
// selection is a closed StrategyKind enum dispatched by a plain
// function rather than a dynamically constructed strategy object, and
// metric selection is a closed TargetMetric enum dispatched by
// compute() rather than dynamic attribute lookup.
package simulate

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/chidi150c/backtestcrypto/internal/bterrors"
	"github.com/chidi150c/backtestcrypto/internal/historystore"
	"github.com/chidi150c/backtestcrypto/internal/potential"
	"github.com/chidi150c/backtestcrypto/internal/timeinterval"
)

// StrategyKind selects how a candidate coin is bought and how its
// counter (sell) order is managed, dispatched in placeBuy and
// placeCounterOrder below.
type StrategyKind string

const (
	// MarketBuyLimitSell buys at the current price and sells at a fixed
	// limit above the buy price.
	MarketBuyLimitSell StrategyKind = "market_buy_limit_sell"
	// LimitBuyLimitSell places a limit buy at current * (1 -
	// PercentageReduction) (filling once the market trades down to it, or
	// at market on timeout) and sells at a fixed limit above the buy price.
	LimitBuyLimitSell StrategyKind = "limit_buy_limit_sell"
	// MarketBuyTrailingSell buys at the current price and manages a
	// trailing stop that ratchets up with the market price.
	MarketBuyTrailingSell StrategyKind = "market_buy_trailing_sell"
)

// TargetMetric is one of the scalar outcomes a run can be asked to
// compute, dispatched through compute() below.
type TargetMetric string

const (
	MetricPercentageHitTarget    TargetMetric = "percentage_of_bought_coins_hit_target"
	MetricEndValueIfNotSold      TargetMetric = "end_of_run_value_of_bought_coins_if_not_sold"
	MetricEndValueIfSoldOnTarget TargetMetric = "end_of_run_value_of_bought_coins_if_sold_on_target"
	MetricEndRunValue            TargetMetric = "calculate_end_of_run_value"
)

// SimulationInputs is the full parameter record for one task.
type SimulationInputs struct {
	ReferenceCoin        string
	OhlcvField           historystore.OHLCVField
	Candle               historystore.Granularity
	Window               timeinterval.Interval // the outer time_intervals axis value this task simulates
	DaysToRun            time.Duration         // per-order timeout, after which a buy market-fills and a sell cancels
	MaxCoinsToBuy        int
	PercentageIncrease   float64
	PercentageReduction  float64 // LimitBuyLimitSell only: buy limit price is current * (1 - PercentageReduction)
	StopPriceSell        float64 // absolute stop-loss price; -1 disables it
	LimitSellAdjustTrail float64 // trailing-stop step, only meaningful for MarketBuyTrailingSell
	Kind                 StrategyKind
	LowCutoff            float64
	HighCutoff           float64
}

// Simulator runs one task's event loop against a shared, read-only Cube
// and a shared potential-coin Resolver.
type Simulator struct {
	cube     *historystore.Cube
	resolver *potential.Resolver
}

// NewSimulator builds a Simulator over cube, resolving candidates
// through resolver.
func NewSimulator(cube *historystore.Cube, resolver *potential.Resolver) *Simulator {
	return &Simulator{cube: cube, resolver: resolver}
}

type boughtRecord struct {
	Coin           string
	Quantity       float64
	BuyPrice       float64
	TargetPrice    float64
	LastKnownPrice float64
	Sold           bool
}

// candidateEval tracks one candidate coin's forward price path over the
// indicator evaluation window ([window start, window start + DaysToRun]),
// independent of whether the simulated portfolio ever actually bought it.
// EntryKnown is false when the coin has no observed price at the window's
// first tick, matching the candidate-pool indicator metrics' "zero entry"
// exclusion.
type candidateEval struct {
	EntryPrice float64
	EntryKnown bool
	MaxPrice   float64
	LastPrice  float64
}

// Run executes the tick loop for in and returns the requested metrics.
// If no tick in the window has an observable price, a recoverable
// history error is returned (the first tick's own error when it had one)
// so the driver can leave the Result Cube cell at NaN; otherwise a tick
// whose lookup fails recoverably is treated as "no observation this
// tick" and the loop continues.
func (s *Simulator) Run(in SimulationInputs, metrics []TargetMetric) (map[TargetMetric]float64, error) {
	candle, err := timeinterval.GranularityToDuration(string(in.Candle))
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	ticks := timeinterval.Ticks(in.Window.Start, in.Window.End, candle)
	if len(ticks) == 0 {
		return nil, fmt.Errorf("simulate: window %s produces no ticks at candle %s: %w", timeinterval.Encode(in.Window), in.Candle, bterrors.ErrInsufficientHistory)
	}

	candidates, err := s.resolver.Resolve(in.Window, potential.StrategyKey{
		LowCutoff:     in.LowCutoff,
		HighCutoff:    in.HighCutoff,
		ReferenceCoin: in.ReferenceCoin,
		OhlcvField:    in.OhlcvField,
	})
	if err != nil {
		return nil, err
	}

	pool := make([]string, 0, len(candidates))
	for coin := range candidates {
		pool = append(pool, coin)
	}
	sort.Strings(pool)
	rng := rand.New(rand.NewSource(seedFor(in)))

	portfolio := NewPortfolio(in.ReferenceCoin)
	bought := map[string]*boughtRecord{}
	timeouts := map[*Order]time.Time{}
	evals := make(map[string]*candidateEval, len(pool))
	evalDeadline := ticks[0].Add(in.DaysToRun)

	var firstTickErr error
	observedAny := false

	for tickIdx, now := range ticks {
		prices, err := s.cube.PointLookup(in.Candle, in.OhlcvField, now)
		if err != nil {
			if !bterrors.Recoverable(err) {
				return nil, err
			}
			if tickIdx == 0 {
				firstTickErr = err
			}
			continue
		}
		observedAny = true

		if !now.After(evalDeadline) {
			for _, coin := range pool {
				price, ok := prices[coin]
				if !ok {
					continue
				}
				ev, ok := evals[coin]
				if !ok {
					ev = &candidateEval{}
					evals[coin] = ev
				}
				if tickIdx == 0 {
					ev.EntryPrice = price
					ev.EntryKnown = true
				}
				if price > ev.MaxPrice {
					ev.MaxPrice = price
				}
				ev.LastPrice = price
			}
		}

		serviceOpenOrders(portfolio, bought, timeouts, prices, now, in)

		held := portfolio.HeldAltcoins(in.ReferenceCoin)
		slots := in.MaxCoinsToBuy - len(held)
		if slots > 0 {
			picks := pickCandidates(pool, held, bought, prices, rng, slots)
			for _, coin := range picks {
				price := prices[coin]
				if price <= 0 {
					continue
				}
				buyOrder, qty, err := placeBuy(portfolio, in, coin, price, now)
				if err != nil {
					continue // insufficient reference-coin balance: skip this tick's pick
				}
				timeouts[buyOrder] = now.Add(in.DaysToRun)
				rec := &boughtRecord{Coin: coin, Quantity: qty, BuyPrice: price, LastKnownPrice: price, TargetPrice: price * (1 + in.PercentageIncrease)}
				bought[coin] = rec
				if buyOrder.Kind == KindMarket {
					portfolio.Fill(buyOrder, coin, qty)
					counter := placeCounterOrder(portfolio, in, coin, qty, rec.TargetPrice, now)
					timeouts[counter] = now.Add(in.DaysToRun)
				}
			}
		}

		for coin, rec := range bought {
			if price, ok := prices[coin]; ok {
				rec.LastKnownPrice = price
			}
		}

		portfolio.SweepDust(in.ReferenceCoin, prices)
	}

	if !observedAny {
		if firstTickErr != nil {
			return nil, firstTickErr
		}
		return nil, fmt.Errorf("simulate: no observable ticks in window %s: %w", timeinterval.Encode(in.Window), bterrors.ErrInsufficientHistory)
	}

	finalPrices, err := lastObservedPrices(s.cube, in, ticks)
	if err != nil {
		finalPrices = map[string]float64{}
	}

	out := make(map[TargetMetric]float64, len(metrics))
	for _, m := range metrics {
		out[m] = compute(m, portfolio, evals, len(pool), in.PercentageIncrease, in.ReferenceCoin, finalPrices)
	}
	return out, nil
}

// seedFor derives a deterministic RNG seed from the task's window and
// strategy parameters, so repeated runs of the same grid coordinate pick
// the same candidates in the same order.
func seedFor(in SimulationInputs) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%.8f|%.8f|%s", timeinterval.Encode(in.Window), in.ReferenceCoin, in.LowCutoff, in.HighCutoff, in.Kind)
	return int64(h.Sum64())
}

// pickCandidates selects up to slots coins from pool that are neither
// currently held nor previously bought this run and have an observed
// price this tick, in a random order seeded by rng.
func pickCandidates(pool []string, held map[string]bool, bought map[string]*boughtRecord, prices map[string]float64, rng *rand.Rand, slots int) []string {
	eligible := make([]string, 0, len(pool))
	for _, coin := range pool {
		if held[coin] {
			continue
		}
		if _, already := bought[coin]; already {
			continue
		}
		if _, ok := prices[coin]; !ok {
			continue
		}
		eligible = append(eligible, coin)
	}
	rng.Shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	if slots < len(eligible) {
		eligible = eligible[:slots]
	}
	return eligible
}

// placeBuy reserves reference-coin balance and creates the buy order for
// the strategy kind in play: market orders fill in the same call site
// (by the caller, once reservation succeeds); limit orders wait for
// serviceOpenOrders to fill them.
func placeBuy(p *Portfolio, in SimulationInputs, coin string, price float64, now time.Time) (*Order, float64, error) {
	notional := p.FreeQuantity(in.ReferenceCoin) / float64(in.MaxCoinsToBuy)
	if notional <= 0 {
		return nil, 0, fmt.Errorf("simulate: no free %s balance", in.ReferenceCoin)
	}
	kind := KindMarket
	limitPrice := price
	if in.Kind == LimitBuyLimitSell {
		kind = KindLimit
		limitPrice = price * (1 - in.PercentageReduction)
	}
	qty := notional / limitPrice
	order := &Order{
		ID:            newOrderID(coin, now),
		Side:          Buy,
		Kind:          kind,
		BaseAsset:     coin,
		ReferenceCoin: in.ReferenceCoin,
		Quantity:      qty,
		LimitPrice:    limitPrice,
		StopPrice:     -1,
		Timeout:       now.Add(in.DaysToRun),
		Fill:          FillFresh,
	}
	if err := p.Reserve(in.ReferenceCoin, notional, order); err != nil {
		return nil, 0, err
	}
	return order, qty, nil
}

// placeCounterOrder reserves the newly-bought coin against a sell order
// at target (or, for MarketBuyTrailingSell, a stop-limit order whose stop
// stays unarmed until the price first rises above target), per the
// strategy kind.
func placeCounterOrder(p *Portfolio, in SimulationInputs, coin string, qty, target float64, now time.Time) *Order {
	kind := KindLimit
	stop := -1.0
	if in.Kind == MarketBuyTrailingSell {
		kind = KindStopLimit
	}
	order := &Order{
		ID:            newOrderID(coin+"-sell", now),
		Side:          Sell,
		Kind:          kind,
		BaseAsset:     coin,
		ReferenceCoin: in.ReferenceCoin,
		Quantity:      qty,
		LimitPrice:    target,
		StopPrice:     stop,
		Timeout:       now.Add(in.DaysToRun),
		Fill:          FillFresh,
	}
	_ = p.Reserve(coin, qty, order) // always succeeds: qty was just credited by the buy fill
	return order
}

func newOrderID(tag string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%s", tag, now.UnixMilli(), uuid.NewString())
}

// serviceOpenOrders fills or cancels every open order against the
// current tick's prices and timeout clock: a buy fills the moment its
// limit price is touched (or, for market orders, immediately) and
// force-fills at timeout; a sell fills once price reaches its limit (or
// trailing stop ratchets up and then triggers) and is cancelled, not
// force-sold, at timeout.
func serviceOpenOrders(p *Portfolio, bought map[string]*boughtRecord, timeouts map[*Order]time.Time, prices map[string]float64, now time.Time, in SimulationInputs) {
	for _, order := range append([]*Order(nil), p.Open...) {
		price, ok := prices[order.BaseAsset]
		if !ok {
			continue
		}
		deadline, hasDeadline := timeouts[order]

		switch order.Side {
		case Buy:
			fill := order.Kind == KindMarket || price <= order.LimitPrice
			qty := order.Quantity
			if !fill && hasDeadline && !now.Before(deadline) {
				fill = true // buy timeout forces a market fill
				qty = order.Quantity * order.LimitPrice / price
			}
			if fill {
				p.Fill(order, order.BaseAsset, qty)
				if rec, ok := bought[order.BaseAsset]; ok {
					rec.Quantity = qty
					rec.BuyPrice = price
					rec.TargetPrice = price * (1 + in.PercentageIncrease)
				}
				counter := placeCounterOrder(p, in, order.BaseAsset, qty, bought[order.BaseAsset].TargetPrice, now)
				timeouts[counter] = now.Add(in.DaysToRun)
			}
		case Sell:
			if order.Kind == KindStopLimit && price > order.LimitPrice {
				newStop := price * (1 - in.LimitSellAdjustTrail)
				if newStop > order.StopPrice {
					order.StopPrice = newStop
					order.LimitPrice = price
				}
			}
			stopTriggered := order.Kind == KindStopLimit && order.StopPrice >= 0 && price <= order.StopPrice
			limitTriggered := order.Kind == KindLimit && price >= order.LimitPrice
			stopLossTriggered := in.StopPriceSell >= 0 && price <= in.StopPriceSell
			if limitTriggered || stopTriggered || stopLossTriggered {
				p.Fill(order, in.ReferenceCoin, order.Quantity*price)
				if rec, ok := bought[order.BaseAsset]; ok {
					rec.Sold = true
					rec.LastKnownPrice = price
				}
				continue
			}
			if hasDeadline && !now.Before(deadline) {
				p.Cancel(order) // give up waiting for target; coin stays held, unsold
			}
		}
	}
}

func lastObservedPrices(cube *historystore.Cube, in SimulationInputs, ticks []time.Time) (map[string]float64, error) {
	for i := len(ticks) - 1; i >= 0; i-- {
		prices, err := cube.PointLookup(in.Candle, in.OhlcvField, ticks[i])
		if err == nil {
			return prices, nil
		}
		if !bterrors.Recoverable(err) {
			return nil, err
		}
	}
	return nil, bterrors.ErrInsufficientHistory
}

// compute dispatches on metric with a closed switch. The indicator metrics
// (MetricPercentageHitTarget, MetricEndValueIfNotSold,
// MetricEndValueIfSoldOnTarget) are evaluated over the full resolved
// candidate pool's forward price path, independent of which coins the
// simulated portfolio actually bought; only MetricEndRunValue reflects the
// portfolio's own purchase and sale decisions.
func compute(metric TargetMetric, p *Portfolio, evals map[string]*candidateEval, totalCandidates int, percentageIncrease float64, referenceCoin string, finalPrices map[string]float64) float64 {
	switch metric {
	case MetricPercentageHitTarget:
		if totalCandidates == 0 {
			return 0
		}
		hit := 0
		for _, ev := range evals {
			if !ev.EntryKnown {
				continue
			}
			if ev.EntryPrice*(1+percentageIncrease) < ev.MaxPrice {
				hit++
			}
		}
		return float64(hit) / float64(totalCandidates)

	case MetricEndValueIfNotSold:
		var sum float64
		n := 0
		for _, ev := range evals {
			if !ev.EntryKnown || ev.EntryPrice == 0 {
				continue
			}
			sum += ev.LastPrice / ev.EntryPrice
			n++
		}
		if n == 0 {
			return math.NaN()
		}
		return sum / float64(n)

	case MetricEndValueIfSoldOnTarget:
		if totalCandidates == 0 {
			return math.NaN()
		}
		var sum float64
		for _, ev := range evals {
			if !ev.EntryKnown || ev.EntryPrice == 0 {
				continue
			}
			if ev.EntryPrice*(1+percentageIncrease) < ev.MaxPrice {
				sum += 1 + percentageIncrease
			} else {
				sum += ev.LastPrice / ev.EntryPrice
			}
		}
		return sum / float64(totalCandidates)

	case MetricEndRunValue:
		return p.TotalValue(referenceCoin, finalPrices)

	default:
		return math.NaN()
	}
}
