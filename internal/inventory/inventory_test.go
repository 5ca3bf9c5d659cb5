package inventory

import (
	"math"
	"testing"

	"github.com/AlliedToasters/pyperliquidity/internal/grid"
)

func testGrid(t *testing.T) *grid.Grid {
	t.Helper()
	g, err := grid.New(1.0, 20)
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	return g
}

func TestEffectiveIsMinOfAllocatedAndAccount(t *testing.T) {
	t.Parallel()

	inv := New(1.0, 5.0, 100.0, 10.0, 50.0)
	if inv.EffectiveToken() != 5.0 {
		t.Errorf("effective token = %v, want allocated ceiling 5.0", inv.EffectiveToken())
	}
	if inv.EffectiveUSDC() != 50.0 {
		t.Errorf("effective usdc = %v, want account 50.0", inv.EffectiveUSDC())
	}
}

func TestEffectiveRecomputedOnEveryMutation(t *testing.T) {
	t.Parallel()

	inv := New(1.0, math.Inf(1), math.Inf(1), 10.0, 100.0)

	inv.OnAskFill(2.0, 3.0) // sold 3 tokens at 2.0
	if inv.AccountToken() != 7.0 || inv.AccountUSDC() != 106.0 {
		t.Fatalf("after ask fill: token=%v usdc=%v", inv.AccountToken(), inv.AccountUSDC())
	}
	if inv.EffectiveToken() != 7.0 || inv.EffectiveUSDC() != 106.0 {
		t.Error("effective not recomputed after ask fill")
	}

	inv.OnBidFill(1.5, 2.0) // bought 2 tokens at 1.5
	if inv.AccountToken() != 9.0 || inv.AccountUSDC() != 103.0 {
		t.Fatalf("after bid fill: token=%v usdc=%v", inv.AccountToken(), inv.AccountUSDC())
	}

	inv.OnBalanceUpdate(4.0, 40.0)
	if inv.EffectiveToken() != 4.0 || inv.EffectiveUSDC() != 40.0 {
		t.Error("effective not reset by balance update")
	}

	inv.UpdateAllocation(2.0, 10.0)
	if inv.EffectiveToken() != 2.0 || inv.EffectiveUSDC() != 10.0 {
		t.Error("effective not clamped by new allocation")
	}
}

func TestComputeAskTranches(t *testing.T) {
	t.Parallel()

	inv := New(1.0, math.Inf(1), math.Inf(1), 3.5, 0)
	d := inv.ComputeAskTranches()
	if d.NFull != 3 {
		t.Errorf("NFull = %d, want 3", d.NFull)
	}
	if math.Abs(d.PartialSz-0.5) > 1e-10 {
		t.Errorf("PartialSz = %v, want 0.5", d.PartialSz)
	}
	if len(d.Levels) != 0 {
		t.Errorf("ask decomposition levels should be empty, got %v", d.Levels)
	}
}

func TestComputeAskTranchesDecompositionInvariant(t *testing.T) {
	t.Parallel()

	for _, token := range []float64{0, 0.3, 1, 2.7, 10.0001} {
		inv := New(1.0, math.Inf(1), math.Inf(1), token, 0)
		d := inv.ComputeAskTranches()
		total := float64(d.NFull)*1.0 + d.PartialSz
		if math.Abs(total-token) > 1e-9 {
			t.Errorf("token=%v: nFull*sz + partial = %v", token, total)
		}
		if d.PartialSz < 0 {
			t.Errorf("token=%v: negative partial %v", token, d.PartialSz)
		}
	}
}

func TestComputeBidTranchesWalk(t *testing.T) {
	t.Parallel()
	g := testGrid(t)

	// Exactly two full tranches at levels 4 and 3 plus half a tranche at 2.
	px4, _ := g.PriceAtLevel(4)
	px3, _ := g.PriceAtLevel(3)
	px2, _ := g.PriceAtLevel(2)
	usdc := px4 + px3 + px2*0.5

	inv := New(1.0, math.Inf(1), math.Inf(1), 0, usdc)
	d := inv.ComputeBidTranches(g, 5)

	if d.NFull != 2 {
		t.Fatalf("NFull = %d, want 2", d.NFull)
	}
	if math.Abs(d.PartialSz-0.5) > 1e-6 {
		t.Errorf("PartialSz = %v, want 0.5", d.PartialSz)
	}
	want := []int{4, 3, 2}
	if len(d.Levels) != len(want) {
		t.Fatalf("levels = %v, want %v", d.Levels, want)
	}
	for i, lvl := range want {
		if d.Levels[i] != lvl {
			t.Errorf("levels[%d] = %d, want %d", i, d.Levels[i], lvl)
		}
	}
}

func TestComputeBidTranchesExhaustsAtBottom(t *testing.T) {
	t.Parallel()
	g := testGrid(t)

	// Plenty of USDC but only two levels below the boundary.
	inv := New(1.0, math.Inf(1), math.Inf(1), 0, 1e6)
	d := inv.ComputeBidTranches(g, 2)
	if d.NFull != 2 {
		t.Errorf("NFull = %d, want 2 (levels 1 and 0)", d.NFull)
	}
	if d.PartialSz != 0 {
		t.Errorf("PartialSz = %v, want 0", d.PartialSz)
	}
}

func TestComputeBidTranchesZeroBoundary(t *testing.T) {
	t.Parallel()
	g := testGrid(t)

	inv := New(1.0, math.Inf(1), math.Inf(1), 0, 100)
	d := inv.ComputeBidTranches(g, 0)
	if d.NFull != 0 || d.PartialSz != 0 || len(d.Levels) != 0 {
		t.Errorf("boundary 0 should produce no bids, got %+v", d)
	}
}
