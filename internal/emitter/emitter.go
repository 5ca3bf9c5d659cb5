// Package emitter executes order diffs against the exchange.
//
// This is the only component that performs mutating exchange I/O. Each emit
// runs the diff through four gates before dispatch:
//
//  1. Budget gating: without headroom over the safety margin, only cancels
//     run (cancel-only mode).
//  2. Priority trimming: above MaxMutationsPerTick mutations, modifies and
//     places are trimmed to the room the cancels leave; cancels are never
//     trimmed (and may alone exceed the cap), places are dropped before
//     modifies.
//  3. Cooldown filter: places on a cooled-down side are withheld.
//  4. Execution order: cancels → modifies → places, one batch request each.
//
// The rate-limit budget is debited exactly once per issued batch, in a defer,
// so a transport failure still costs a request.
package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AlliedToasters/pyperliquidity/internal/hyperliquid"
	"github.com/AlliedToasters/pyperliquidity/internal/orderstate"
	"github.com/AlliedToasters/pyperliquidity/internal/ratelimit"
	"github.com/AlliedToasters/pyperliquidity/pkg/types"
)

const (
	// SafetyMargin is the budget headroom required to dispatch anything
	// beyond cancels.
	SafetyMargin = 100

	// MaxMutationsPerTick caps the mutations dispatched per emit call;
	// cancels are exempt from trimming and can push the count past it.
	MaxMutationsPerTick = 20

	// BalanceCooldown withholds a side after an insufficient-balance
	// rejection; balances move slowly, so the cooldown is long.
	BalanceCooldown = 60 * time.Second

	// RejectCooldown withholds a side after repeated generic rejections.
	RejectCooldown = 10 * time.Second

	// ConsecutiveRejectThreshold is the generic-rejection count that
	// triggers RejectCooldown.
	ConsecutiveRejectThreshold = 3
)

// ExchangeClient is the mutating API surface the emitter consumes.
type ExchangeClient interface {
	BulkOrders(ctx context.Context, orders []hyperliquid.OrderWire) (*hyperliquid.ExchangeResponse, error)
	BulkModifyOrders(ctx context.Context, modifies []hyperliquid.ModifyWire) (*hyperliquid.ExchangeResponse, error)
	BulkCancel(ctx context.Context, cancels []hyperliquid.CancelWire) (*hyperliquid.ExchangeResponse, error)
}

// Result summarizes a single Emit call.
type Result struct {
	Cancelled      int
	Modified       int
	Placed         int
	Errors         int
	CancelOnlyMode bool
}

type cooldownKey struct {
	coin string
	side types.Side
}

// Emitter dispatches order diffs as signed batch requests.
type Emitter struct {
	coin    string
	assetID int

	client ExchangeClient
	state  *orderstate.State
	clock  func() time.Time
	logger *slog.Logger

	cooldowns          map[cooldownKey]time.Time
	consecutiveRejects map[types.Side]int
}

// New creates an emitter for one market.
func New(coin string, assetID int, client ExchangeClient, state *orderstate.State, logger *slog.Logger) *Emitter {
	return &Emitter{
		coin:               coin,
		assetID:            assetID,
		client:             client,
		state:              state,
		clock:              time.Now,
		logger:             logger.With("component", "emitter", "coin", coin),
		cooldowns:          make(map[cooldownKey]time.Time),
		consecutiveRejects: make(map[types.Side]int),
	}
}

// SetClock replaces the monotonic clock (tests).
func (e *Emitter) SetClock(clock func() time.Time) { e.clock = clock }

// -- Cooldown management ----------------------------------------------------

func (e *Emitter) isCooledDown(side types.Side, now time.Time) bool {
	key := cooldownKey{coin: e.coin, side: side}
	expiry, ok := e.cooldowns[key]
	if !ok {
		return false
	}
	if !now.Before(expiry) {
		delete(e.cooldowns, key)
		return false
	}
	return true
}

func (e *Emitter) setCooldown(side types.Side, d time.Duration) {
	e.cooldowns[cooldownKey{coin: e.coin, side: side}] = e.clock().Add(d)
}

func (e *Emitter) clearCooldown(side types.Side) {
	delete(e.cooldowns, cooldownKey{coin: e.coin, side: side})
}

// -- Main entry point -------------------------------------------------------

// Emit executes a diff: budget gating → priority trimming → cooldown filter →
// cancels → modifies → places. A transport error aborts the remaining batches
// and propagates; counts accumulated so far are returned alongside it.
func (e *Emitter) Emit(ctx context.Context, diff types.OrderDiff, budget *ratelimit.Budget) (Result, error) {
	total := diff.Total()
	if total == 0 {
		return Result{}, nil
	}

	cancelOnly := budget.Remaining() < int64(total)+SafetyMargin

	cancels := diff.Cancels
	var modifies []types.Modify
	var places []types.DesiredOrder
	if !cancelOnly {
		modifies = diff.Modifies
		places = diff.Places
	}

	// Priority trimming: cancels are never trimmed; places are dropped
	// before modifies.
	if !cancelOnly {
		mutTotal := len(cancels) + len(modifies) + len(places)
		if mutTotal > MaxMutationsPerTick {
			room := MaxMutationsPerTick - len(cancels)
			switch {
			case room <= 0:
				modifies = nil
				places = nil
			case len(modifies) <= room:
				places = places[:min(len(places), room-len(modifies))]
			default:
				modifies = modifies[:room]
				places = nil
			}
		}
	}

	if len(places) > 0 {
		now := e.clock()
		kept := make([]types.DesiredOrder, 0, len(places))
		for _, p := range places {
			if !e.isCooledDown(p.Side, now) {
				kept = append(kept, p)
			}
		}
		places = kept
	}

	res := Result{CancelOnlyMode: cancelOnly}

	if len(cancels) > 0 {
		ok, errs, err := e.executeCancels(ctx, cancels, budget)
		res.Cancelled += ok
		res.Errors += errs
		if err != nil {
			return res, err
		}
	}
	if len(modifies) > 0 {
		ok, errs, err := e.executeModifies(ctx, modifies, budget)
		res.Modified += ok
		res.Errors += errs
		if err != nil {
			return res, err
		}
	}
	if len(places) > 0 {
		ok, errs, err := e.executePlaces(ctx, places, budget)
		res.Placed += ok
		res.Errors += errs
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

// -- Batch executors --------------------------------------------------------

func (e *Emitter) executeCancels(ctx context.Context, cancelOIDs []int64, budget *ratelimit.Budget) (nOK, nErr int, err error) {
	reqs := make([]hyperliquid.CancelWire, len(cancelOIDs))
	for i, oid := range cancelOIDs {
		reqs[i] = hyperliquid.CancelWire{Asset: e.assetID, OID: oid}
	}

	var resp *hyperliquid.ExchangeResponse
	func() {
		defer budget.OnRequest()
		resp, err = e.client.BulkCancel(ctx, reqs)
	}()
	if err != nil {
		return 0, 0, fmt.Errorf("bulk cancel: %w", err)
	}

	statuses := resp.Statuses()
	for i, oid := range cancelOIDs {
		var status hyperliquid.OrderStatusResult
		if i < len(statuses) {
			status = statuses[i]
		}
		if status.IsError() {
			nErr++
			e.logger.Debug("cancel error", "oid", oid, "error", status.Error)
		} else {
			nOK++
		}
		// Always remove — a cancel error means the order already
		// terminated on the exchange.
		e.state.RemoveGhost(oid)
	}
	return nOK, nErr, nil
}

func (e *Emitter) executeModifies(ctx context.Context, modifies []types.Modify, budget *ratelimit.Budget) (nOK, nErr int, err error) {
	// A modify must never move an order across the side boundary; the
	// differ guarantees this, so a violation is a programming bug that must
	// not reach the exchange.
	for _, m := range modifies {
		if tracked, ok := e.state.Get(m.OID); ok && tracked.Side != m.Desired.Side {
			return 0, 0, fmt.Errorf(
				"cross-side modify: oid=%d tracked=%s desired=%s",
				m.OID, tracked.Side, m.Desired.Side,
			)
		}
	}

	reqs := make([]hyperliquid.ModifyWire, len(modifies))
	for i, m := range modifies {
		reqs[i] = hyperliquid.ModifyWire{
			OID:   m.OID,
			Order: hyperliquid.NewOrderWire(e.assetID, m.Desired.Side, m.Desired.Price, m.Desired.Size),
		}
	}

	var resp *hyperliquid.ExchangeResponse
	func() {
		defer budget.OnRequest()
		resp, err = e.client.BulkModifyOrders(ctx, reqs)
	}()
	if err != nil {
		return 0, 0, fmt.Errorf("bulk modify: %w", err)
	}

	statuses := resp.Statuses()
	for i, m := range modifies {
		var status hyperliquid.OrderStatusResult
		if i < len(statuses) {
			status = statuses[i]
		}
		switch {
		case status.Resting != nil:
			newOID := status.Resting.OID
			e.state.OnModifyResponse(m.OID, newOID, true, "resting")
			e.state.UpdatePriceSize(newOID, m.Desired.Price, m.Desired.Size)
			nOK++
		case status.IsError():
			if strings.Contains(status.Error, "Cannot modify") {
				e.state.OnModifyResponse(m.OID, 0, false, "error: "+status.Error)
			} else {
				// Any other modify error leaves the order's exchange state
				// unknown: drop it, as for a truncated response.
				e.state.RemoveGhost(m.OID)
			}
			nErr++
		default:
			// Truncated or unrecognized response: drop the tracked
			// order rather than quote against unknown state.
			e.logger.Warn("unhandled modify status", "oid", m.OID)
			e.state.RemoveGhost(m.OID)
			nErr++
		}
	}
	return nOK, nErr, nil
}

func (e *Emitter) executePlaces(ctx context.Context, places []types.DesiredOrder, budget *ratelimit.Budget) (nOK, nErr int, err error) {
	reqs := make([]hyperliquid.OrderWire, len(places))
	for i, p := range places {
		reqs[i] = hyperliquid.NewOrderWire(e.assetID, p.Side, p.Price, p.Size)
	}

	var resp *hyperliquid.ExchangeResponse
	func() {
		defer budget.OnRequest()
		resp, err = e.client.BulkOrders(ctx, reqs)
	}()
	if err != nil {
		return 0, 0, fmt.Errorf("bulk orders: %w", err)
	}

	statuses := resp.Statuses()
	for i, p := range places {
		var status hyperliquid.OrderStatusResult
		if i < len(statuses) {
			status = statuses[i]
		}
		switch {
		case status.Resting != nil:
			e.state.OnPlaceConfirmed(status.Resting.OID, p.Side, p.LevelIndex, p.Price, p.Size)
			e.clearCooldown(p.Side)
			e.consecutiveRejects[p.Side] = 0
			nOK++
		case status.IsError():
			e.classifyRejection(p.Side, status.Error)
			nErr++
		default:
			e.logger.Warn("unhandled place status", "side", p.Side, "level", p.LevelIndex)
			nErr++
		}
	}
	return nOK, nErr, nil
}

// classifyRejection applies the per-error cooldown policy: balance errors set
// a long cooldown, ALO crossings are expected and free, anything else counts
// toward the consecutive-reject threshold.
func (e *Emitter) classifyRejection(side types.Side, errMsg string) {
	switch {
	case strings.Contains(errMsg, "Insufficient spot balance"):
		e.setCooldown(side, BalanceCooldown)
	case isALORejection(errMsg):
		// Expected — the quote would have crossed. No cooldown, no
		// counter increment.
	default:
		e.consecutiveRejects[side]++
		if e.consecutiveRejects[side] >= ConsecutiveRejectThreshold {
			e.setCooldown(side, RejectCooldown)
			e.consecutiveRejects[side] = 0
		}
	}
}

// isALORejection reports whether the error indicates a post-only order would
// have crossed the spread.
func isALORejection(errMsg string) bool {
	return strings.Contains(errMsg, "Post-only would take")
}
