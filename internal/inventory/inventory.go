// Package inventory tracks token and USDC balances with allocation-aware
// tranche decomposition.
//
// Three balance layers are maintained per asset:
//
//   - allocated: operator-configured ceiling
//   - account:   exchange-reported balance
//   - effective: min(allocated, account) — the only value quoting consumes
//
// Effective balances are recomputed on every mutation so the invariant
// effective <= allocated && effective <= account always holds.
package inventory

import (
	"math"

	"github.com/AlliedToasters/pyperliquidity/internal/grid"
)

// TrancheDecomposition is a snapshot of how a balance splits into order
// tranches: nFull full-sized orders plus an optional partial remainder.
// Levels lists the grid indices consumed (descending for bids; empty for
// asks — ask level assignment is the quoting engine's responsibility).
type TrancheDecomposition struct {
	NFull     int
	PartialSz float64
	Levels    []int
}

// Inventory is the allocation-aware balance tracker for one spot market.
// Mutated only on the engine goroutine; see the engine package for the
// serialization discipline.
type Inventory struct {
	orderSz float64

	allocatedToken float64
	allocatedUSDC  float64
	accountToken   float64
	accountUSDC    float64

	effectiveToken float64
	effectiveUSDC  float64
}

// New creates an inventory seeded with exchange-reported account balances.
func New(orderSz, allocatedToken, allocatedUSDC, accountToken, accountUSDC float64) *Inventory {
	inv := &Inventory{
		orderSz:        orderSz,
		allocatedToken: allocatedToken,
		allocatedUSDC:  allocatedUSDC,
		accountToken:   accountToken,
		accountUSDC:    accountUSDC,
	}
	inv.recomputeEffective()
	return inv
}

func (inv *Inventory) recomputeEffective() {
	inv.effectiveToken = math.Min(inv.allocatedToken, inv.accountToken)
	inv.effectiveUSDC = math.Min(inv.allocatedUSDC, inv.accountUSDC)
}

// EffectiveToken returns min(allocated, account) for the traded token.
func (inv *Inventory) EffectiveToken() float64 { return inv.effectiveToken }

// EffectiveUSDC returns min(allocated, account) for the quote asset.
func (inv *Inventory) EffectiveUSDC() float64 { return inv.effectiveUSDC }

// AccountToken returns the exchange-reported token balance.
func (inv *Inventory) AccountToken() float64 { return inv.accountToken }

// AccountUSDC returns the exchange-reported USDC balance.
func (inv *Inventory) AccountUSDC() float64 { return inv.accountUSDC }

// UpdateAllocation replaces the operator ceilings and recomputes effective.
func (inv *Inventory) UpdateAllocation(token, usdc float64) {
	inv.allocatedToken = token
	inv.allocatedUSDC = usdc
	inv.recomputeEffective()
}

// ComputeAskTranches decomposes the effective token balance into ask-side
// tranches. Levels is left empty.
func (inv *Inventory) ComputeAskTranches() TrancheDecomposition {
	var nFull int
	if inv.orderSz > 0 {
		nFull = int(math.Floor(inv.effectiveToken / inv.orderSz))
	}
	partial := inv.effectiveToken - float64(nFull)*inv.orderSz
	if partial < 0 {
		// Float noise from the subtraction, not a real short balance.
		partial = 0
	}
	return TrancheDecomposition{NFull: nFull, PartialSz: partial}
}

// ComputeBidTranches decomposes the effective USDC balance into bid-side
// tranches, walking grid levels descending from boundaryLevel-1 (the boundary
// itself is the lowest ask). When the remaining USDC no longer covers a full
// tranche, one partial of size remaining/price is emitted at the next level
// and the walk stops.
func (inv *Inventory) ComputeBidTranches(g *grid.Grid, boundaryLevel int) TrancheDecomposition {
	available := inv.effectiveUSDC
	var d TrancheDecomposition

	for lvl := boundaryLevel - 1; lvl >= 0; lvl-- {
		px, err := g.PriceAtLevel(lvl)
		if err != nil {
			break
		}
		cost := px * inv.orderSz
		if available >= cost {
			d.NFull++
			available -= cost
			d.Levels = append(d.Levels, lvl)
			continue
		}
		if available > 0 && px > 0 {
			d.PartialSz = available / px
			d.Levels = append(d.Levels, lvl)
		}
		break
	}
	return d
}

// OnAskFill processes an ask-side fill: sold sz tokens at price px.
func (inv *Inventory) OnAskFill(px, sz float64) {
	inv.accountToken -= sz
	inv.accountUSDC += px * sz
	inv.recomputeEffective()
}

// OnBidFill processes a bid-side fill: bought sz tokens at price px.
func (inv *Inventory) OnBidFill(px, sz float64) {
	inv.accountToken += sz
	inv.accountUSDC -= px * sz
	inv.recomputeEffective()
}

// OnBalanceUpdate authoritatively resets account balances from the exchange.
func (inv *Inventory) OnBalanceUpdate(token, usdc float64) {
	inv.accountToken = token
	inv.accountUSDC = usdc
	inv.recomputeEffective()
}
