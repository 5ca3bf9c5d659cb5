// Package orderstate is the single source of truth for resting orders.
//
// Orders are dual-indexed: an owning map keyed by exchange order id (oid) and
// a secondary map keyed by (side, level index) that holds the oid, not the
// record. Helpers keep both in sync so that every record is reachable through
// both keys and at most one record exists per (side, level) slot.
//
// All methods are synchronous and must be called from a single owner — the
// engine goroutine serializes every mutation (see the engine package).
package orderstate

import (
	"sort"
	"strings"

	"github.com/AlliedToasters/pyperliquidity/pkg/types"
)

const (
	// defaultSeenTIDCap bounds the fill-dedup set. When exceeded, the
	// larger half by value is retained. This leans on trade ids being
	// monotonically increasing; the exchange has never been observed to
	// reuse or reorder tids, but that property is assumed, not enforced.
	defaultSeenTIDCap = 5000

	// fullFillEpsilon treats a remaining size at or below this as zero.
	fullFillEpsilon = 1e-12
)

type levelKey struct {
	side  types.Side
	level int
}

// FillResult describes the tracked-order consequences of one ingested fill.
type FillResult struct {
	Side        types.Side
	Price       float64
	Size        float64 // the filled size, not the remaining size
	FullyFilled bool
}

// ReconcileResult reports the mismatches between local and exchange state.
type ReconcileResult struct {
	Orphaned []int64 // on the exchange, unknown locally
	Ghosts   []int64 // tracked locally, absent on the exchange
}

// State tracks all resting orders for one market.
type State struct {
	byOID   map[int64]*types.TrackedOrder
	byLevel map[levelKey]int64

	seenTIDs   map[int64]struct{}
	seenTIDCap int
}

// New creates an empty order state tracker.
func New() *State {
	return &State{
		byOID:      make(map[int64]*types.TrackedOrder),
		byLevel:    make(map[levelKey]int64),
		seenTIDs:   make(map[int64]struct{}),
		seenTIDCap: defaultSeenTIDCap,
	}
}

// Len returns the number of tracked orders.
func (s *State) Len() int { return len(s.byOID) }

// Get returns a copy of the tracked order for oid.
func (s *State) Get(oid int64) (types.TrackedOrder, bool) {
	o, ok := s.byOID[oid]
	if !ok {
		return types.TrackedOrder{}, false
	}
	return *o, true
}

// CurrentOrders returns a snapshot of all tracked orders, sorted by oid so
// repeated calls on the same state are identical.
func (s *State) CurrentOrders() []types.TrackedOrder {
	out := make([]types.TrackedOrder, 0, len(s.byOID))
	for _, o := range s.byOID {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OID < out[j].OID })
	return out
}

// OnPlaceConfirmed records a confirmed placement. Any existing record at the
// same (side, level) slot is evicted — the exchange replaced it.
func (s *State) OnPlaceConfirmed(oid int64, side types.Side, levelIndex int, price, size float64) {
	key := levelKey{side: side, level: levelIndex}
	if oldOID, ok := s.byLevel[key]; ok {
		delete(s.byOID, oldOID)
	}
	o := &types.TrackedOrder{
		OID:        oid,
		Side:       side,
		LevelIndex: levelIndex,
		Price:      price,
		Size:       size,
		Status:     types.StatusResting,
	}
	s.byOID[oid] = o
	s.byLevel[key] = oid
}

// OnModifyResponse applies the outcome of a modify request.
//
// A status containing "Cannot modify" means the order terminated on the
// exchange before the modify landed: the record is removed. A successful
// modify may carry a new oid; the record is then re-keyed in the owning map
// (insert under the new key before deleting the old so it is always reachable)
// and its (side, level) slot is repointed at the new oid, so the slot keeps
// resolving to the same record. hasNewOID=false signals the exchange returned
// no replacement oid.
func (s *State) OnModifyResponse(originalOID int64, newOID int64, hasNewOID bool, status string) {
	if strings.Contains(status, "Cannot modify") {
		if o, ok := s.byOID[originalOID]; ok {
			s.removeRecord(o)
		}
		return
	}

	o, ok := s.byOID[originalOID]
	if !ok {
		return
	}
	o.Status = types.StatusResting

	if hasNewOID && newOID != originalOID {
		s.byOID[newOID] = o
		delete(s.byOID, originalOID)
		o.OID = newOID
		s.byLevel[levelKey{side: o.Side, level: o.LevelIndex}] = newOID
	}
}

// UpdatePriceSize sets the stored price and size for oid, if tracked.
// Called by the emitter after a resting modify response.
func (s *State) UpdatePriceSize(oid int64, price, size float64) {
	if o, ok := s.byOID[oid]; ok {
		o.Price = price
		o.Size = size
	}
}

// OnFill ingests a fill idempotently by trade id. Returns ok=false for
// duplicate tids and unknown oids. A remaining size within epsilon of zero
// fully fills the order and removes it from both indices.
func (s *State) OnFill(tid, oid int64, fillSz float64) (FillResult, bool) {
	if _, dup := s.seenTIDs[tid]; dup {
		return FillResult{}, false
	}
	s.seenTIDs[tid] = struct{}{}
	if len(s.seenTIDs) > s.seenTIDCap {
		s.pruneSeenTIDs()
	}

	o, ok := s.byOID[oid]
	if !ok {
		return FillResult{}, false
	}

	remaining := o.Size - fillSz
	res := FillResult{Side: o.Side, Price: o.Price, Size: fillSz}
	if remaining <= fullFillEpsilon {
		res.FullyFilled = true
		s.removeRecord(o)
	} else {
		o.Size = remaining
	}
	return res, true
}

// pruneSeenTIDs keeps the newest half of the dedup set by numeric value.
func (s *State) pruneSeenTIDs() {
	tids := make([]int64, 0, len(s.seenTIDs))
	for tid := range s.seenTIDs {
		tids = append(tids, tid)
	}
	sort.Slice(tids, func(i, j int) bool { return tids[i] < tids[j] })

	keepFrom := len(tids) / 2
	pruned := make(map[int64]struct{}, len(tids)-keepFrom)
	for _, tid := range tids[keepFrom:] {
		pruned[tid] = struct{}{}
	}
	s.seenTIDs = pruned
}

// Reconcile compares tracked orders against the set of oids the exchange
// reports open. Orders in a pending modify or cancel state are exempt from
// ghost detection — their oid may legitimately be mid-swap.
func (s *State) Reconcile(exchangeOIDs map[int64]struct{}) ReconcileResult {
	var res ReconcileResult

	for oid := range exchangeOIDs {
		if _, ok := s.byOID[oid]; !ok {
			res.Orphaned = append(res.Orphaned, oid)
		}
	}
	for oid, o := range s.byOID {
		if o.Status == types.StatusPendingModify || o.Status == types.StatusPendingCancel {
			continue
		}
		if _, ok := exchangeOIDs[oid]; !ok {
			res.Ghosts = append(res.Ghosts, oid)
		}
	}

	sort.Slice(res.Orphaned, func(i, j int) bool { return res.Orphaned[i] < res.Orphaned[j] })
	sort.Slice(res.Ghosts, func(i, j int) bool { return res.Ghosts[i] < res.Ghosts[j] })
	return res
}

// RemoveGhost removes oid from both indices. Idempotent.
func (s *State) RemoveGhost(oid int64) {
	if o, ok := s.byOID[oid]; ok {
		s.removeRecord(o)
	}
}

// removeRecord deletes o from both indices. The secondary entry is only
// removed when it still points at this record's oid.
func (s *State) removeRecord(o *types.TrackedOrder) {
	key := levelKey{side: o.Side, level: o.LevelIndex}
	if cur, ok := s.byLevel[key]; ok && cur == o.OID {
		delete(s.byLevel, key)
	}
	delete(s.byOID, o.OID)
}
