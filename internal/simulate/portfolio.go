// FILE: portfolio.go
// Package simulate – reservation discipline.
//
// Placing an order atomically subtracts its notional from a free holding
// and appends a new locked holding referencing that order. Filling
// removes the locked holding and credits the counter-asset as free.
// Cancelling merges the locked notional back into the free holding.
package simulate

import (
	"fmt"

	"github.com/chidi150c/backtestcrypto/internal/bterrors"
)

// DustTolerance is the quantity tolerance below which a holding is swept
//.
const DustTolerance = 1e-3

// freeHolding finds the single free holding for coin, if any.
func (p *Portfolio) freeHolding(coin string) *HoldingCoin {
	for _, h := range p.Holdings {
		if h.CoinName == coin && h.Order == nil {
			return h
		}
	}
	return nil
}

// Reserve locks quantity of coin against order: it subtracts quantity
// from the free holding (erroring with ErrInsufficientBalance if there
// isn't enough) and appends a new locked holding for order.
func (p *Portfolio) Reserve(coin string, quantity float64, order *Order) error {
	free := p.freeHolding(coin)
	if free == nil || free.Quantity < quantity-1e-12 {
		return fmt.Errorf("simulate: reserve %s %.8f: %w", coin, quantity, bterrors.ErrInsufficientBalance)
	}
	free.Quantity -= quantity
	p.Holdings = append(p.Holdings, &HoldingCoin{CoinName: coin, Quantity: quantity, Order: order})
	p.Open = append(p.Open, order)
	return nil
}

// Fill removes order's locked holding and credits counterAsset/counterQty
// as a free holding (creating one if none exists), then removes order
// from the open list.
func (p *Portfolio) Fill(order *Order, counterAsset string, counterQty float64) {
	p.removeLockedHolding(order)
	p.credit(counterAsset, counterQty)
	order.Fill = FillFilled
	p.removeOpen(order)
}

// Cancel reverses Reserve: it merges the locked holding's quantity back
// into coin's free holding (creating one if needed) and removes order
// from the open list. No Fill state is recorded.
func (p *Portfolio) Cancel(order *Order) {
	var lockedCoin string
	var lockedQty float64
	idx := -1
	for i, h := range p.Holdings {
		if h.Order == order {
			lockedCoin, lockedQty = h.CoinName, h.Quantity
			idx = i
			break
		}
	}
	if idx >= 0 {
		p.Holdings = append(p.Holdings[:idx], p.Holdings[idx+1:]...)
		p.credit(lockedCoin, lockedQty)
	}
	p.removeOpen(order)
}

func (p *Portfolio) removeLockedHolding(order *Order) {
	for i, h := range p.Holdings {
		if h.Order == order {
			p.Holdings = append(p.Holdings[:i], p.Holdings[i+1:]...)
			return
		}
	}
}

func (p *Portfolio) credit(coin string, qty float64) {
	if free := p.freeHolding(coin); free != nil {
		free.Quantity += qty
		return
	}
	p.Holdings = append(p.Holdings, &HoldingCoin{CoinName: coin, Quantity: qty})
}

func (p *Portfolio) removeOpen(order *Order) {
	for i, o := range p.Open {
		if o == order {
			p.Open = append(p.Open[:i], p.Open[i+1:]...)
			return
		}
	}
}

// SweepDust removes any free holding (other than referenceCoin) whose
// market-equivalent value is below DustTolerance.
func (p *Portfolio) SweepDust(referenceCoin string, prices map[string]float64) {
	kept := p.Holdings[:0]
	for _, h := range p.Holdings {
		if h.CoinName == referenceCoin || h.Order != nil {
			kept = append(kept, h)
			continue
		}
		price, ok := prices[h.CoinName]
		if !ok || h.Quantity*price >= DustTolerance {
			kept = append(kept, h)
		}
	}
	p.Holdings = kept
}

// LockedQuantity returns the sum of locked quantities for coin across all
// open orders, used by invariant checks in tests.
func (p *Portfolio) LockedQuantity(coin string) float64 {
	var total float64
	for _, h := range p.Holdings {
		if h.CoinName == coin && h.Order != nil {
			total += h.Quantity
		}
	}
	return total
}
