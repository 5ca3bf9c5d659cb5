// Package grid implements the geometric price ladder for HIP-2 style quoting.
//
// A Grid is immutable after construction. Levels follow the recurrence
// p_{i+1} = round(p_i * (1 + tickSize)) and are strictly increasing; a
// construction where rounding collapses two adjacent levels fails up front so
// the operator can raise precision or tick size instead of quoting a broken
// ladder.
package grid

import (
	"fmt"
	"math"
	"sort"
)

// DefaultTickSize is the multiplicative spacing between levels (0.3% per HIP-2).
const DefaultTickSize = 0.003

// RoundFn rounds a candidate level price to the exchange's displayable precision.
type RoundFn func(px float64) float64

// DefaultRound rounds to 8 significant figures.
func DefaultRound(px float64) float64 {
	if px == 0 {
		return 0
	}
	magnitude := int(math.Floor(math.Log10(math.Abs(px)))) + 1
	factor := math.Pow(10, float64(8-magnitude))
	return math.Round(px*factor) / factor
}

// DegenerateGridError reports a construction where rounding collapsed two
// adjacent levels to the same price.
type DegenerateGridError struct {
	Level int
	Price float64
}

func (e *DegenerateGridError) Error() string {
	return fmt.Sprintf(
		"degenerate grid: rounding collapsed level %d to same price as level %d (%v); increase rounding precision or tick size",
		e.Level, e.Level-1, e.Price,
	)
}

// Grid is an immutable geometric price ladder.
type Grid struct {
	startPx  float64
	tickSize float64
	levels   []float64
}

// New builds a grid of nOrders levels starting at startPx with the default
// tick size and rounding.
func New(startPx float64, nOrders int) (*Grid, error) {
	return NewWith(startPx, nOrders, DefaultTickSize, DefaultRound)
}

// NewWith builds a grid with explicit tick size and rounding function.
func NewWith(startPx float64, nOrders int, tickSize float64, round RoundFn) (*Grid, error) {
	if round == nil {
		round = DefaultRound
	}
	levels := make([]float64, 0, nOrders)
	levels = append(levels, round(startPx))
	for i := 1; i < nOrders; i++ {
		next := round(levels[i-1] * (1 + tickSize))
		if next == levels[i-1] {
			return nil, &DegenerateGridError{Level: i, Price: next}
		}
		levels = append(levels, next)
	}
	return &Grid{startPx: startPx, tickSize: tickSize, levels: levels}, nil
}

// Len returns the number of levels.
func (g *Grid) Len() int { return len(g.levels) }

// MaxLevel returns the highest valid level index.
func (g *Grid) MaxLevel() int { return len(g.levels) - 1 }

// Levels returns a copy of the complete ordered price ladder, ascending.
func (g *Grid) Levels() []float64 {
	out := make([]float64, len(g.levels))
	copy(out, g.levels)
	return out
}

// PriceAtLevel returns the price at grid index i.
func (g *Grid) PriceAtLevel(i int) (float64, error) {
	if i < 0 || i >= len(g.levels) {
		return 0, fmt.Errorf("level index %d out of range [0, %d]", i, len(g.levels)-1)
	}
	return g.levels[i], nil
}

// LevelForPrice returns the nearest grid level index for px, or ok=false when
// px lies outside the grid by more than half a tick spacing on either end.
// Lookup is O(log n). When px falls exactly between two levels, the lower
// index wins.
func (g *Grid) LevelForPrice(px float64) (int, bool) {
	if len(g.levels) == 0 {
		return 0, false
	}

	halfTickLow := g.levels[0] * g.tickSize / 2
	halfTickHigh := g.levels[len(g.levels)-1] * g.tickSize / 2
	if px < g.levels[0]-halfTickLow {
		return 0, false
	}
	if px > g.levels[len(g.levels)-1]+halfTickHigh {
		return 0, false
	}

	idx := sort.SearchFloat64s(g.levels, px)
	if idx == 0 {
		return 0, true
	}
	if idx == len(g.levels) {
		return len(g.levels) - 1, true
	}

	left := g.levels[idx-1]
	right := g.levels[idx]
	if px-left <= right-px {
		return idx - 1, true
	}
	return idx, true
}
