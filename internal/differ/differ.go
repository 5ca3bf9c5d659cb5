// Package differ computes the minimum mutation set that converges the resting
// order set to the desired one.
//
// Pure function, no I/O. Two suppression layers sit in front of the matcher: a
// global dead zone on the size-weighted mid (skip the whole tick when drift is
// negligible) and per-order price/size tolerances (keep an order that is close
// enough). A level occupied by the opposite side is never modified across the
// side boundary — it is cancelled and re-placed.
package differ

import (
	"math"

	"github.com/AlliedToasters/pyperliquidity/pkg/types"
)

type levelKey struct {
	side  types.Side
	level int
}

// weightedMid returns the size-weighted average price, or 0 when total size
// is zero.
func weightedMid(prices, sizes []float64) float64 {
	var weighted, total float64
	for i := range prices {
		weighted += prices[i] * sizes[i]
		total += sizes[i]
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// Compute returns the mutations converging current → desired.
//
// Empty-list cases bypass the dead zone: both empty is an empty diff, empty
// current places everything, empty desired cancels everything.
func Compute(
	desired []types.DesiredOrder,
	current []types.TrackedOrder,
	deadZoneBps float64,
	priceToleranceBps float64,
	sizeTolerancePct float64,
) types.OrderDiff {
	if len(desired) == 0 && len(current) == 0 {
		return types.OrderDiff{}
	}
	if len(current) == 0 {
		return types.OrderDiff{Places: append([]types.DesiredOrder(nil), desired...)}
	}
	if len(desired) == 0 {
		cancels := make([]int64, len(current))
		for i, c := range current {
			cancels[i] = c.OID
		}
		return types.OrderDiff{Cancels: cancels}
	}

	// Dead zone: suppress the whole diff when the size-weighted mid barely
	// moved.
	desiredPx := make([]float64, len(desired))
	desiredSz := make([]float64, len(desired))
	for i, d := range desired {
		desiredPx[i], desiredSz[i] = d.Price, d.Size
	}
	currentPx := make([]float64, len(current))
	currentSz := make([]float64, len(current))
	for i, c := range current {
		currentPx[i], currentSz[i] = c.Price, c.Size
	}
	desiredMid := weightedMid(desiredPx, desiredSz)
	currentMid := weightedMid(currentPx, currentSz)
	if currentMid > 0 {
		driftBps := math.Abs(desiredMid-currentMid) / currentMid * 10_000
		if driftBps < deadZoneBps {
			return types.OrderDiff{}
		}
	}

	currentByKey := make(map[levelKey]types.TrackedOrder, len(current))
	for _, c := range current {
		currentByKey[levelKey{side: c.Side, level: c.LevelIndex}] = c
	}

	var diff types.OrderDiff
	matched := make(map[levelKey]bool, len(current))

	for _, d := range desired {
		key := levelKey{side: d.Side, level: d.LevelIndex}
		if c, ok := currentByKey[key]; ok {
			matched[key] = true

			pxDiffBps := math.Inf(1)
			if c.Price > 0 {
				pxDiffBps = math.Abs(d.Price-c.Price) / c.Price * 10_000
			}
			szDiffPct := math.Inf(1)
			if c.Size > 0 {
				szDiffPct = math.Abs(d.Size-c.Size) / c.Size * 100
			}
			if pxDiffBps <= priceToleranceBps && szDiffPct <= sizeTolerancePct {
				continue
			}
			diff.Modifies = append(diff.Modifies, types.Modify{OID: c.OID, Desired: d})
			continue
		}

		// The opposite side may hold this level; never modify across the
		// side boundary — cancel and re-place.
		oppKey := levelKey{side: d.Side.Opposite(), level: d.LevelIndex}
		if c, ok := currentByKey[oppKey]; ok && !matched[oppKey] {
			matched[oppKey] = true
			diff.Cancels = append(diff.Cancels, c.OID)
			diff.Places = append(diff.Places, d)
			continue
		}

		diff.Places = append(diff.Places, d)
	}

	// Anything left on the book that nothing desired claims is cancelled.
	for _, c := range current {
		if !matched[levelKey{side: c.Side, level: c.LevelIndex}] {
			diff.Cancels = append(diff.Cancels, c.OID)
		}
	}

	return diff
}
