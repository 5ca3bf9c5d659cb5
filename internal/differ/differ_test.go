package differ

import (
	"reflect"
	"testing"

	"github.com/AlliedToasters/pyperliquidity/pkg/types"
)

func desired(side types.Side, level int, px, sz float64) types.DesiredOrder {
	return types.DesiredOrder{Side: side, LevelIndex: level, Price: px, Size: sz}
}

func tracked(oid int64, side types.Side, level int, px, sz float64) types.TrackedOrder {
	return types.TrackedOrder{OID: oid, Side: side, LevelIndex: level, Price: px, Size: sz, Status: types.StatusResting}
}

// The default tuning values: 5 bps dead zone, 1 bps price and 1% size
// tolerance.
const (
	deadZone = 5.0
	pxTol    = 1.0
	szTol    = 1.0
)

func TestBothEmpty(t *testing.T) {
	t.Parallel()

	diff := Compute(nil, nil, deadZone, pxTol, szTol)
	if !diff.Empty() {
		t.Errorf("diff = %+v, want empty", diff)
	}
}

func TestEmptyCurrentPlacesAllWithoutDeadZone(t *testing.T) {
	t.Parallel()

	// A huge dead zone must not suppress initial placement.
	d := []types.DesiredOrder{
		desired(types.Sell, 5, 1.0, 1),
		desired(types.Buy, 4, 0.99, 1),
	}
	diff := Compute(d, nil, 1e9, pxTol, szTol)
	if len(diff.Places) != 2 || len(diff.Cancels) != 0 || len(diff.Modifies) != 0 {
		t.Errorf("diff = %+v, want 2 places", diff)
	}
}

func TestEmptyDesiredCancelsAllWithoutDeadZone(t *testing.T) {
	t.Parallel()

	c := []types.TrackedOrder{
		tracked(1, types.Sell, 5, 1.0, 1),
		tracked(2, types.Buy, 4, 0.99, 1),
	}
	diff := Compute(nil, c, 1e9, pxTol, szTol)
	if len(diff.Cancels) != 2 || len(diff.Places) != 0 || len(diff.Modifies) != 0 {
		t.Errorf("diff = %+v, want 2 cancels", diff)
	}
	if diff.Cancels[0] != 1 || diff.Cancels[1] != 2 {
		t.Errorf("cancels = %v, want current order preserved", diff.Cancels)
	}
}

func TestDeadZoneSuppressesSmallDrift(t *testing.T) {
	t.Parallel()

	c := []types.TrackedOrder{tracked(1, types.Sell, 5, 1.000, 1)}
	d := []types.DesiredOrder{desired(types.Sell, 5, 1.0001, 1)} // 1 bps drift

	diff := Compute(d, c, 5.0, 0.0, 0.0)
	if !diff.Empty() {
		t.Errorf("1 bps drift under a 5 bps dead zone should suppress, got %+v", diff)
	}
}

func TestDeadZonePassesLargeDrift(t *testing.T) {
	t.Parallel()

	c := []types.TrackedOrder{tracked(1, types.Sell, 5, 1.000, 1)}
	d := []types.DesiredOrder{desired(types.Sell, 5, 1.01, 1)} // 100 bps drift

	diff := Compute(d, c, 5.0, pxTol, szTol)
	if len(diff.Modifies) != 1 {
		t.Fatalf("diff = %+v, want 1 modify", diff)
	}
	if diff.Modifies[0].OID != 1 {
		t.Errorf("modify oid = %d, want 1", diff.Modifies[0].OID)
	}
}

func TestWithinToleranceSkips(t *testing.T) {
	t.Parallel()

	c := []types.TrackedOrder{
		tracked(1, types.Sell, 5, 1.00, 10),
		tracked(2, types.Sell, 6, 2.00, 10),
	}
	d := []types.DesiredOrder{
		desired(types.Sell, 5, 1.00005, 10.0005), // 0.5 bps, 0.005%: within
		desired(types.Sell, 6, 2.10, 10),         // 500 bps: modify
	}

	diff := Compute(d, c, 0.0, 1.0, 1.0)
	if len(diff.Modifies) != 1 || diff.Modifies[0].OID != 2 {
		t.Errorf("diff = %+v, want only oid 2 modified", diff)
	}
	if len(diff.Places) != 0 || len(diff.Cancels) != 0 {
		t.Errorf("unexpected places/cancels: %+v", diff)
	}
}

func TestZeroDenominatorsForceModify(t *testing.T) {
	t.Parallel()

	c := []types.TrackedOrder{tracked(1, types.Sell, 5, 0, 0)}
	d := []types.DesiredOrder{desired(types.Sell, 5, 1.0, 1)}

	// current mid is 0 → dead zone cannot fire; zero price/size → ∞ diff.
	diff := Compute(d, c, deadZone, 1e9, 1e9)
	if len(diff.Modifies) != 1 {
		t.Errorf("diff = %+v, want forced modify", diff)
	}
}

func TestCrossSideEmitsCancelPlaceNeverModify(t *testing.T) {
	t.Parallel()

	// Level 5 currently holds a sell; the new boundary wants a buy there.
	c := []types.TrackedOrder{tracked(1, types.Sell, 5, 1.0, 1)}
	d := []types.DesiredOrder{desired(types.Buy, 5, 0.95, 1)}

	diff := Compute(d, c, 0.0, pxTol, szTol)
	if len(diff.Modifies) != 0 {
		t.Fatalf("cross-side produced a modify: %+v", diff)
	}
	if len(diff.Cancels) != 1 || diff.Cancels[0] != 1 {
		t.Errorf("cancels = %v, want [1]", diff.Cancels)
	}
	if len(diff.Places) != 1 || diff.Places[0].Side != types.Buy {
		t.Errorf("places = %v, want the buy", diff.Places)
	}
}

func TestCrossSideDoesNotDoubleCancel(t *testing.T) {
	t.Parallel()

	// The sell at level 5 is claimed by the cross-side buy; it must not
	// also appear in residual cancels.
	c := []types.TrackedOrder{tracked(1, types.Sell, 5, 1.0, 1)}
	d := []types.DesiredOrder{desired(types.Buy, 5, 0.95, 1)}

	diff := Compute(d, c, 0.0, pxTol, szTol)
	if len(diff.Cancels) != 1 {
		t.Errorf("cancels = %v, want exactly one", diff.Cancels)
	}
}

func TestResidualCurrentsCancelled(t *testing.T) {
	t.Parallel()

	c := []types.TrackedOrder{
		tracked(1, types.Sell, 5, 1.0, 1),
		tracked(2, types.Sell, 9, 1.2, 1), // nothing desired here
	}
	d := []types.DesiredOrder{desired(types.Sell, 5, 1.1, 1)}

	diff := Compute(d, c, 0.0, pxTol, szTol)
	if len(diff.Cancels) != 1 || diff.Cancels[0] != 2 {
		t.Errorf("cancels = %v, want [2]", diff.Cancels)
	}
}

func TestNewLevelPlaced(t *testing.T) {
	t.Parallel()

	c := []types.TrackedOrder{tracked(1, types.Sell, 5, 1.0, 1)}
	d := []types.DesiredOrder{
		desired(types.Sell, 5, 1.0, 1),
		desired(types.Sell, 6, 1.003, 1),
	}

	diff := Compute(d, c, 0.0, pxTol, szTol)
	if len(diff.Places) != 1 || diff.Places[0].LevelIndex != 6 {
		t.Errorf("places = %v, want the level-6 ask", diff.Places)
	}
}

func TestDeterminism(t *testing.T) {
	t.Parallel()

	c := []types.TrackedOrder{
		tracked(1, types.Sell, 5, 1.0, 1),
		tracked(2, types.Sell, 6, 1.003, 1),
		tracked(3, types.Buy, 3, 0.99, 1),
	}
	d := []types.DesiredOrder{
		desired(types.Sell, 5, 1.05, 1),
		desired(types.Buy, 4, 0.995, 1),
		desired(types.Buy, 3, 0.99, 2),
	}

	a := Compute(d, c, 1.0, pxTol, szTol)
	b := Compute(d, c, 1.0, pxTol, szTol)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs produced different diffs")
	}
}

func TestWeightedMidZeroSizes(t *testing.T) {
	t.Parallel()

	if got := weightedMid([]float64{1, 2}, []float64{0, 0}); got != 0 {
		t.Errorf("weightedMid with zero sizes = %v, want 0", got)
	}
	if got := weightedMid([]float64{1, 3}, []float64{1, 1}); got != 2 {
		t.Errorf("weightedMid = %v, want 2", got)
	}
}
