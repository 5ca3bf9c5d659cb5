package grid

import (
	"errors"
	"math"
	"testing"
)

func mustGrid(t *testing.T, startPx float64, nOrders int) *Grid {
	t.Helper()
	g, err := New(startPx, nOrders)
	if err != nil {
		t.Fatalf("New(%v, %d): %v", startPx, nOrders, err)
	}
	return g
}

func TestLevelsStrictlyIncreasing(t *testing.T) {
	t.Parallel()
	g := mustGrid(t, 1.0, 50)

	levels := g.Levels()
	for i := 1; i < len(levels); i++ {
		if levels[i] <= levels[i-1] {
			t.Fatalf("levels[%d]=%v <= levels[%d]=%v", i, levels[i], i-1, levels[i-1])
		}
	}
}

func TestGeometricRecurrence(t *testing.T) {
	t.Parallel()
	g := mustGrid(t, 1.0, 10)

	levels := g.Levels()
	for i := 1; i < len(levels); i++ {
		want := DefaultRound(levels[i-1] * (1 + DefaultTickSize))
		if levels[i] != want {
			t.Errorf("levels[%d] = %v, want %v", i, levels[i], want)
		}
	}
}

func TestPriceAtLevelBounds(t *testing.T) {
	t.Parallel()
	g := mustGrid(t, 1.0, 20)

	if _, err := g.PriceAtLevel(-1); err == nil {
		t.Error("PriceAtLevel(-1) should fail")
	}
	if _, err := g.PriceAtLevel(20); err == nil {
		t.Error("PriceAtLevel(n) should fail")
	}
	px, err := g.PriceAtLevel(0)
	if err != nil {
		t.Fatalf("PriceAtLevel(0): %v", err)
	}
	if px != 1.0 {
		t.Errorf("PriceAtLevel(0) = %v, want 1.0", px)
	}
}

func TestLevelForPriceRoundTrip(t *testing.T) {
	t.Parallel()
	g := mustGrid(t, 1.0, 40)

	for i := 0; i < g.Len(); i++ {
		px, err := g.PriceAtLevel(i)
		if err != nil {
			t.Fatalf("PriceAtLevel(%d): %v", i, err)
		}
		idx, ok := g.LevelForPrice(px)
		if !ok {
			t.Fatalf("LevelForPrice(%v) not found for level %d", px, i)
		}
		if idx != i {
			t.Errorf("LevelForPrice(PriceAtLevel(%d)) = %d", i, idx)
		}
	}
}

func TestLevelForPriceOutsideGrid(t *testing.T) {
	t.Parallel()
	g := mustGrid(t, 1.0, 10)

	levels := g.Levels()
	below := levels[0] - levels[0]*DefaultTickSize // a full tick below the bottom
	if _, ok := g.LevelForPrice(below); ok {
		t.Errorf("price %v below grid should not resolve", below)
	}

	top := levels[len(levels)-1]
	above := top + top*DefaultTickSize
	if _, ok := g.LevelForPrice(above); ok {
		t.Errorf("price %v above grid should not resolve", above)
	}

	// Within half a tick of the edges still resolves.
	if idx, ok := g.LevelForPrice(levels[0] - levels[0]*DefaultTickSize/4); !ok || idx != 0 {
		t.Errorf("just below bottom: got (%d, %v), want (0, true)", idx, ok)
	}
	if idx, ok := g.LevelForPrice(top + top*DefaultTickSize/4); !ok || idx != len(levels)-1 {
		t.Errorf("just above top: got (%d, %v), want (%d, true)", idx, ok, len(levels)-1)
	}
}

func TestLevelForPriceTieBreaksLow(t *testing.T) {
	t.Parallel()

	// A 25% spacing with identity rounding keeps every level and midpoint
	// exactly representable, so the tie is a true tie.
	identity := func(px float64) float64 { return px }
	g, err := NewWith(1.0, 4, 0.25, identity)
	if err != nil {
		t.Fatalf("NewWith: %v", err)
	}

	levels := g.Levels() // 1.0, 1.25, 1.5625, 1.953125
	mid := (levels[1] + levels[2]) / 2
	idx, ok := g.LevelForPrice(mid)
	if !ok {
		t.Fatalf("LevelForPrice(%v) not found", mid)
	}
	if idx != 1 {
		t.Errorf("equidistant price resolved to %d, want lower index 1", idx)
	}
}

func TestLevelForPriceNearest(t *testing.T) {
	t.Parallel()
	g := mustGrid(t, 1.0, 5)

	levels := g.Levels()
	// Slightly above level 1 should still be level 1.
	idx, ok := g.LevelForPrice(levels[1] + (levels[2]-levels[1])/4)
	if !ok || idx != 1 {
		t.Errorf("got (%d, %v), want (1, true)", idx, ok)
	}
	// Slightly below level 2 should be level 2.
	idx, ok = g.LevelForPrice(levels[2] - (levels[2]-levels[1])/4)
	if !ok || idx != 2 {
		t.Errorf("got (%d, %v), want (2, true)", idx, ok)
	}
}

func TestDegenerateGridFails(t *testing.T) {
	t.Parallel()

	// Rounding to 0 decimal places collapses a 0.3% step at px=1.
	coarse := func(px float64) float64 { return math.Round(px) }
	_, err := NewWith(1.0, 5, DefaultTickSize, coarse)
	if err == nil {
		t.Fatal("expected degenerate grid error")
	}
	var degen *DegenerateGridError
	if !errors.As(err, &degen) {
		t.Fatalf("error %T is not DegenerateGridError", err)
	}
	if degen.Level != 1 {
		t.Errorf("collapsing level = %d, want 1", degen.Level)
	}
}

func TestDefaultRoundSignificantFigures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{1.234567891, 1.2345679},
		{123456789.1, 123456790},
		{0.0012345678912, 0.0012345679},
	}
	for _, tc := range cases {
		if got := DefaultRound(tc.in); math.Abs(got-tc.want) > math.Abs(tc.want)*1e-12 {
			t.Errorf("DefaultRound(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
