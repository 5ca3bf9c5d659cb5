// Package quoting maps inventory onto the grid as a desired order set.
//
// ComputeDesiredOrders is a pure function: the same inputs always produce the
// same ordered output (asks ascending from the boundary, then bids descending
// below it). All exchange awareness — what is already resting, what can be
// afforded in rate-limit terms — lives elsewhere; this package only answers
// "what should the book look like".
package quoting

import (
	"math"

	"github.com/AlliedToasters/pyperliquidity/internal/grid"
	"github.com/AlliedToasters/pyperliquidity/pkg/types"
)

// ComputeDesiredOrders produces the desired order set for one tick.
//
// Asks: floor(effectiveToken/orderSz) full tranches at boundaryLevel and up,
// clipped at the top of the grid, plus one partial for any remainder if a
// level is left for it. Bids: walk down from boundaryLevel-1 consuming
// price*orderSz of USDC per level; when the remainder no longer covers a full
// tranche, one partial of size remaining/price is emitted and the walk stops.
// Orders below minNotional (when positive) are dropped.
func ComputeDesiredOrders(
	g *grid.Grid,
	boundaryLevel int,
	effectiveToken float64,
	effectiveUSDC float64,
	orderSz float64,
	minNotional float64,
) []types.DesiredOrder {
	var out []types.DesiredOrder
	maxLevel := g.MaxLevel()

	// Asks ascend from the boundary.
	var nFull int
	if orderSz > 0 {
		nFull = int(math.Floor(effectiveToken / orderSz))
	}
	remainder := effectiveToken - float64(nFull)*orderSz
	if remainder < 0 {
		remainder = 0
	}

	lvl := boundaryLevel
	for i := 0; i < nFull && lvl <= maxLevel; i++ {
		px, err := g.PriceAtLevel(lvl)
		if err != nil {
			break
		}
		out = append(out, types.DesiredOrder{Side: types.Sell, LevelIndex: lvl, Price: px, Size: orderSz})
		lvl++
	}
	if remainder > 0 && lvl <= maxLevel {
		if px, err := g.PriceAtLevel(lvl); err == nil {
			out = append(out, types.DesiredOrder{Side: types.Sell, LevelIndex: lvl, Price: px, Size: remainder})
		}
	}

	// Bids descend from just below the boundary.
	available := effectiveUSDC
	for lvl := boundaryLevel - 1; lvl >= 0; lvl-- {
		px, err := g.PriceAtLevel(lvl)
		if err != nil {
			break
		}
		cost := px * orderSz
		if available >= cost {
			out = append(out, types.DesiredOrder{Side: types.Buy, LevelIndex: lvl, Price: px, Size: orderSz})
			available -= cost
			continue
		}
		if available > 0 && px > 0 {
			out = append(out, types.DesiredOrder{Side: types.Buy, LevelIndex: lvl, Price: px, Size: available / px})
		}
		break
	}

	if minNotional > 0 {
		filtered := out[:0]
		for _, o := range out {
			if o.Price*o.Size >= minNotional {
				filtered = append(filtered, o)
			}
		}
		out = filtered
	}
	return out
}
