// FILE: types.go
// Package simulate – order, holding, and portfolio value types (C5).
//
// Orders and holdings are plain value types. Fill moves an Order through
// the lifecycle defined below; the only other mutation is the trailing
// stop ratchet, which raises a stop-limit sell order's StopPrice and
// LimitPrice in place.
package simulate

import "time"

// Side is the side of a trade.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Kind is the order type. Only market and limit are produced by the
// market-buy/limit-sell and limit-buy/limit-sell strategy kinds;
// stop-limit is carried in the data model for the trailing-sell
// strategy's stop price.
type Kind string

const (
	KindMarket    Kind = "market"
	KindLimit     Kind = "limit"
	KindStopLimit Kind = "stop-limit"
)

// Fill is an order's lifecycle state: fresh -> filled,
// or fresh -> cancelled (modeled by removal from the open list, not a
// stored state — "no state field is persisted for cancelled").
type Fill string

const (
	FillFresh   Fill = "fresh"
	FillPartial Fill = "partial"
	FillFilled  Fill = "filled"
)

// Order is the value type traded by the simulator. Fill changes when the
// order fills; a stop-limit (trailing) sell also has StopPrice and
// LimitPrice raised in place as the price climbs.
type Order struct {
	ID            string
	Side          Side
	Kind          Kind
	BaseAsset     string
	ReferenceCoin string
	Quantity      float64 // base-asset units
	LimitPrice    float64 // meaningful only for limit kinds
	StopPrice     float64 // sentinel -1 if unused
	Timeout       time.Time
	Fill          Fill
}

// HoldingCoin is a single holding record. A holding with a non-nil
// Order is locked (it has reserved quantity against that open order) and
// must not be reused to satisfy another reservation; Order == nil means
// free.
type HoldingCoin struct {
	CoinName string
	Quantity float64
	Order    *Order
}

// Portfolio is the per-task, worker-local state: an ordered sequence of
// holdings plus the open order list.
type Portfolio struct {
	Holdings []*HoldingCoin
	Open     []*Order
}

// NewPortfolio starts a value-normalised portfolio: 1.0 unit of the
// reference asset, no open orders.
func NewPortfolio(referenceCoin string) *Portfolio {
	return &Portfolio{
		Holdings: []*HoldingCoin{{CoinName: referenceCoin, Quantity: 1.0}},
	}
}

// FreeQuantity returns the quantity of coin held in the single free
// (unlocked) holding for that coin, or 0 if none exists.
func (p *Portfolio) FreeQuantity(coin string) float64 {
	for _, h := range p.Holdings {
		if h.CoinName == coin && h.Order == nil {
			return h.Quantity
		}
	}
	return 0
}

// HeldAltcoins returns the distinct coin names (excluding referenceCoin)
// that have at least one holding, locked or free.
func (p *Portfolio) HeldAltcoins(referenceCoin string) map[string]bool {
	out := map[string]bool{}
	for _, h := range p.Holdings {
		if h.CoinName != referenceCoin {
			out[h.CoinName] = true
		}
	}
	return out
}

// TotalValue values every holding in referenceCoin terms using prices,
// a map of coin -> price in referenceCoin (with referenceCoin itself
// priced at 1). Missing prices are treated as 0, matching "cells hold
// the scalar metric value (may be absent = NaN)" applied defensively so
// one missing quote can't crash a whole run.
func (p *Portfolio) TotalValue(referenceCoin string, prices map[string]float64) float64 {
	var total float64
	for _, h := range p.Holdings {
		if h.CoinName == referenceCoin {
			total += h.Quantity
			continue
		}
		if price, ok := prices[h.CoinName]; ok {
			total += h.Quantity * price
		}
	}
	return total
}
