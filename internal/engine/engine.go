// Package engine is the central orchestrator of the market maker.
//
// It wires together all subsystems:
//
//  1. Startup seeds every module from REST data: spot metadata resolves the
//     coin to an asset id and base-token name, open orders seed the order
//     state, spot balances seed the inventory, and the address rate-limit
//     state seeds the budget.
//  2. A single goroutine runs the event loop: tick timer, order updates,
//     fills, and balance updates all arrive on channels and are applied in
//     arrival order. OrderState, Inventory, and the budget are therefore
//     mutated lock-free — nothing else touches them.
//  3. Each tick recomputes the boundary, asks the quoting engine for the
//     desired book, diffs it against tracked orders, and hands the diff to
//     the emitter. Tick failures are logged and the loop continues.
//  4. Every reconcileEvery ticks (and after a WS reconnect) local state is
//     reconciled against the exchange: orphans cancelled, ghosts removed,
//     balances reset.
//
// Lifecycle: New() → Run(ctx) → [runs until ctx is cancelled]
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/AlliedToasters/pyperliquidity/internal/differ"
	"github.com/AlliedToasters/pyperliquidity/internal/emitter"
	"github.com/AlliedToasters/pyperliquidity/internal/grid"
	"github.com/AlliedToasters/pyperliquidity/internal/hyperliquid"
	"github.com/AlliedToasters/pyperliquidity/internal/inventory"
	"github.com/AlliedToasters/pyperliquidity/internal/orderstate"
	"github.com/AlliedToasters/pyperliquidity/internal/quoting"
	"github.com/AlliedToasters/pyperliquidity/internal/ratelimit"
	"github.com/AlliedToasters/pyperliquidity/pkg/types"
)

// quoteAsset is the quote leg of every supported spot market.
const quoteAsset = "USDC"

// InfoClient is the read-only REST surface the engine consumes.
type InfoClient interface {
	SpotMeta(ctx context.Context) (*hyperliquid.SpotMeta, error)
	OpenOrders(ctx context.Context, address string) ([]hyperliquid.OpenOrder, error)
	SpotUserState(ctx context.Context, address string) (*hyperliquid.SpotUserState, error)
	UserRateLimit(ctx context.Context, address string) (*hyperliquid.UserRateLimit, error)
}

// EventFeed delivers the three subscribed event streams.
type EventFeed interface {
	Subscribe(sub hyperliquid.Subscription) error
	OrderUpdates() <-chan hyperliquid.WSOrderUpdate
	Fills() <-chan hyperliquid.WSFill
	BalanceUpdates() <-chan hyperliquid.WSBalanceUpdate
}

// healthProber is the optional transport health probe. A feed that does not
// implement it is simply never health-checked.
type healthProber interface {
	IsAlive() bool
}

// Journal is the optional write-only trading history sink.
type Journal interface {
	RecordFill(tid, oid int64, side string, price, size float64, fullyFilled bool)
	RecordEmit(tick int64, cancelled, modified, placed, errors int, cancelOnly bool)
}

// Params carries everything needed to construct an Engine.
type Params struct {
	Coin          string
	StartPx       float64
	NOrders       int
	OrderSz       float64
	NSeededLevels int
	Address       string

	Interval          time.Duration
	DeadZoneBps       float64
	PriceToleranceBps float64
	SizeTolerancePct  float64
	ReconcileEvery    int64
	MinNotional       float64

	AllocatedToken float64
	AllocatedUSDC  float64

	Info     InfoClient
	Exchange emitter.ExchangeClient
	Feed     EventFeed
	Journal  Journal // may be nil
	Logger   *slog.Logger
}

// Engine drives the market-making control loop for one spot market.
type Engine struct {
	p      Params
	logger *slog.Logger

	grid       *grid.Grid
	orderState *orderstate.State
	inv        *inventory.Inventory
	budget     *ratelimit.Budget
	emitter    *emitter.Emitter

	assetID       int
	balanceCoin   string // base token name resolved from spot meta
	boundaryLevel int
	tickCount     int64
	wsAlive       bool
}

// New creates an engine. Startup (REST seeding) happens inside Run.
func New(p Params) *Engine {
	return &Engine{
		p:          p,
		logger:     p.Logger.With("component", "engine", "coin", p.Coin),
		orderState: orderstate.New(),
		budget:     ratelimit.New(),
		wsAlive:    true,
	}
}

// Run seeds all modules, subscribes the event streams, and drives the event
// loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.startup(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	if err := e.subscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ticker := time.NewTicker(e.p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			e.tickCount++
			e.checkWSHealth(ctx)
			if err := e.tick(ctx); err != nil {
				e.logger.Error("tick failed", "tick", e.tickCount, "error", err)
			}
			if e.p.ReconcileEvery > 0 && e.tickCount%e.p.ReconcileEvery == 0 {
				if err := e.reconcile(ctx); err != nil {
					e.logger.Error("reconciliation failed", "tick", e.tickCount, "error", err)
				}
			}

		case update := <-e.p.Feed.OrderUpdates():
			e.handleOrderUpdate(update)

		case fill := <-e.p.Feed.Fills():
			e.handleFill(fill)

		case balance := <-e.p.Feed.BalanceUpdates():
			e.handleBalanceUpdate(balance)
		}
	}
}

// -- Startup ----------------------------------------------------------------

// startup seeds all modules from REST data.
func (e *Engine) startup(ctx context.Context) error {
	// 1. Resolve coin → asset id and base-token name for balance lookups.
	meta, err := e.p.Info.SpotMeta(ctx)
	if err != nil {
		return err
	}
	var pair *hyperliquid.SpotPair
	for i := range meta.Universe {
		if meta.Universe[i].Name == e.p.Coin {
			pair = &meta.Universe[i]
			break
		}
	}
	if pair == nil {
		return fmt.Errorf("coin %q not found in spot meta universe", e.p.Coin)
	}
	e.assetID = pair.Index + hyperliquid.SpotAssetOffset

	if len(pair.Tokens) == 0 {
		return fmt.Errorf("coin %q has no token legs in spot meta", e.p.Coin)
	}
	baseIdx := pair.Tokens[0]
	for _, tok := range meta.Tokens {
		if tok.Index == baseIdx {
			e.balanceCoin = tok.Name
			break
		}
	}
	if e.balanceCoin == "" {
		return fmt.Errorf("base token index %d for coin %q not found in token table", baseIdx, e.p.Coin)
	}

	// 2. Construct the pricing grid.
	g, err := grid.New(e.p.StartPx, e.p.NOrders)
	if err != nil {
		return err
	}
	e.grid = g

	// 3. Seed order state from open orders. Orders for other coins and
	// orders resting outside the grid are ignored.
	openOrders, err := e.p.Info.OpenOrders(ctx, e.p.Address)
	if err != nil {
		return err
	}
	for _, o := range openOrders {
		if o.Coin != e.p.Coin {
			continue
		}
		px := parseFloat(o.LimitPx)
		sz := parseFloat(o.Sz)
		level, ok := e.grid.LevelForPrice(px)
		if !ok {
			e.logger.Warn("open order outside grid, not tracking", "oid", o.OID, "px", px)
			continue
		}
		e.orderState.OnPlaceConfirmed(o.OID, types.SideFromExchange(o.Side), level, px, sz)
	}

	// 4. Seed inventory from spot balances.
	tokenBal, usdcBal, err := e.fetchBalances(ctx)
	if err != nil {
		return err
	}
	e.inv = inventory.New(e.p.OrderSz, e.p.AllocatedToken, e.p.AllocatedUSDC, tokenBal, usdcBal)

	// 5. Seed the rate-limit budget.
	rl, err := e.p.Info.UserRateLimit(ctx, e.p.Address)
	if err != nil {
		return err
	}
	e.budget.SyncFromExchange(parseFloat(rl.CumVlm), rl.NRequestsUsed)

	// 6. Construct the emitter.
	e.emitter = emitter.New(e.p.Coin, e.assetID, e.p.Exchange, e.orderState, e.logger)

	// 7. Initial boundary from the seeded orders.
	e.boundaryLevel = e.computeBoundaryLevel()

	e.logger.Info("startup complete",
		"asset_id", e.assetID,
		"base_token", e.balanceCoin,
		"boundary", e.boundaryLevel,
		"orders", e.orderState.Len(),
		"budget", e.budget.LogStatus(),
	)
	return nil
}

// subscribe registers the three user event streams.
func (e *Engine) subscribe() error {
	for _, subType := range []string{"orderUpdates", "userFills", "webData2"} {
		sub := hyperliquid.Subscription{Type: subType, User: e.p.Address}
		if err := e.p.Feed.Subscribe(sub); err != nil {
			return fmt.Errorf("subscribe %s: %w", subType, err)
		}
	}
	return nil
}

// computeBoundaryLevel derives the bid/ask boundary from tracked orders: the
// lowest ask level, or the seeded default when no asks exist.
func (e *Engine) computeBoundaryLevel() int {
	boundary := -1
	for _, o := range e.orderState.CurrentOrders() {
		if o.Side != types.Sell {
			continue
		}
		if boundary < 0 || o.LevelIndex < boundary {
			boundary = o.LevelIndex
		}
	}
	if boundary < 0 {
		return e.p.NSeededLevels
	}
	return boundary
}

// -- Tick -------------------------------------------------------------------

// tick runs one iteration of the quoting pipeline.
func (e *Engine) tick(ctx context.Context) error {
	e.boundaryLevel = e.computeBoundaryLevel()

	desired := quoting.ComputeDesiredOrders(
		e.grid,
		e.boundaryLevel,
		e.inv.EffectiveToken(),
		e.inv.EffectiveUSDC(),
		e.p.OrderSz,
		e.p.MinNotional,
	)

	current := e.orderState.CurrentOrders()

	diff := differ.Compute(
		desired,
		current,
		e.p.DeadZoneBps,
		e.p.PriceToleranceBps,
		e.p.SizeTolerancePct,
	)

	res, err := e.emitter.Emit(ctx, diff, e.budget)
	if err != nil {
		return err
	}

	if e.p.Journal != nil && !diff.Empty() {
		e.p.Journal.RecordEmit(e.tickCount, res.Cancelled, res.Modified, res.Placed, res.Errors, res.CancelOnlyMode)
	}

	e.logger.Debug("tick",
		"tick", e.tickCount,
		"boundary", e.boundaryLevel,
		"desired", len(desired),
		"current", len(current),
		"placed", res.Placed,
		"modified", res.Modified,
		"cancelled", res.Cancelled,
		"errors", res.Errors,
		"cancel_only", res.CancelOnlyMode,
		"budget", e.budget.LogStatus(),
	)
	return nil
}

// -- Event handlers ---------------------------------------------------------

// handleOrderUpdate routes orderUpdates into the order state.
func (e *Engine) handleOrderUpdate(update hyperliquid.WSOrderUpdate) {
	order := update.Order
	if order.Coin != e.p.Coin {
		return
	}

	switch {
	case update.Status == "resting":
		px := parseFloat(order.LimitPx)
		sz := parseFloat(order.Sz)
		level, ok := e.grid.LevelForPrice(px)
		if !ok {
			return
		}
		e.orderState.OnPlaceConfirmed(order.OID, types.SideFromExchange(order.Side), level, px, sz)

	case strings.Contains(update.Status, "Cannot modify"):
		e.orderState.OnModifyResponse(order.OID, 0, false, update.Status)

	case update.Status == "canceled":
		e.orderState.RemoveGhost(order.OID)
	}
}

// handleFill routes userFills through the order state into inventory and the
// rate-limit budget. Duplicate tids and unknown oids are dropped by the order
// state and have no effect here.
func (e *Engine) handleFill(fill hyperliquid.WSFill) {
	if fill.Coin != e.p.Coin {
		return
	}
	px := parseFloat(fill.Px)
	sz := parseFloat(fill.Sz)

	res, ok := e.orderState.OnFill(fill.TID, fill.OID, sz)
	if !ok {
		return
	}

	e.budget.OnFill(px * sz)
	if res.Side == types.Sell {
		e.inv.OnAskFill(px, sz)
	} else {
		e.inv.OnBidFill(px, sz)
	}

	if e.p.Journal != nil {
		e.p.Journal.RecordFill(fill.TID, fill.OID, string(res.Side), px, sz, res.FullyFilled)
	}

	e.logger.Info("fill",
		"tid", fill.TID,
		"oid", fill.OID,
		"side", res.Side,
		"px", px,
		"sz", sz,
		"fully_filled", res.FullyFilled,
	)
}

// handleBalanceUpdate applies a webData2 balance snapshot when both legs
// resolve. The feed reports the spot-market symbol for the token leg.
func (e *Engine) handleBalanceUpdate(update hyperliquid.WSBalanceUpdate) {
	var tokenBal, usdcBal *float64
	for _, bal := range update.Balances {
		switch bal.Coin {
		case e.p.Coin:
			v := parseFloat(bal.Total)
			tokenBal = &v
		case quoteAsset:
			v := parseFloat(bal.Total)
			usdcBal = &v
		}
	}
	if tokenBal == nil || usdcBal == nil {
		return
	}
	e.inv.OnBalanceUpdate(*tokenBal, *usdcBal)
}

// -- Reconciliation ---------------------------------------------------------

// reconcile re-syncs local state against the exchange: orphans are cancelled,
// ghosts removed, balances authoritatively reset.
func (e *Engine) reconcile(ctx context.Context) error {
	openOrders, err := e.p.Info.OpenOrders(ctx, e.p.Address)
	if err != nil {
		return err
	}
	exchangeOIDs := make(map[int64]struct{})
	for _, o := range openOrders {
		if o.Coin == e.p.Coin {
			exchangeOIDs[o.OID] = struct{}{}
		}
	}

	res := e.orderState.Reconcile(exchangeOIDs)

	if len(res.Orphaned) > 0 {
		orphanDiff := types.OrderDiff{Cancels: res.Orphaned}
		if _, err := e.emitter.Emit(ctx, orphanDiff, e.budget); err != nil {
			return err
		}
		e.logger.Info("reconciliation cancelled orphans", "count", len(res.Orphaned))
	}

	for _, oid := range res.Ghosts {
		e.orderState.RemoveGhost(oid)
	}
	if len(res.Ghosts) > 0 {
		e.logger.Info("reconciliation removed ghosts", "count", len(res.Ghosts))
	}

	tokenBal, usdcBal, err := e.fetchBalances(ctx)
	if err != nil {
		return err
	}
	e.inv.OnBalanceUpdate(tokenBal, usdcBal)
	return nil
}

// fetchBalances reads the spot balances for the base token and USDC.
func (e *Engine) fetchBalances(ctx context.Context) (token, usdc float64, err error) {
	state, err := e.p.Info.SpotUserState(ctx, e.p.Address)
	if err != nil {
		return 0, 0, err
	}
	for _, bal := range state.Balances {
		switch bal.Coin {
		case e.balanceCoin:
			token = parseFloat(bal.Total)
		case quoteAsset:
			usdc = parseFloat(bal.Total)
		}
	}
	return token, usdc, nil
}

// -- WS health --------------------------------------------------------------

// checkWSHealth polls the transport health probe each tick. The dead→alive
// transition resubscribes and runs a full reconciliation; feeds without a
// probe are never health-checked.
func (e *Engine) checkWSHealth(ctx context.Context) {
	prober, ok := e.p.Feed.(healthProber)
	if !ok {
		return
	}
	alive := prober.IsAlive()

	switch {
	case alive && !e.wsAlive:
		e.wsAlive = true
		e.logger.Info("websocket reconnected, resubscribing and reconciling")
		if err := e.subscribe(); err != nil {
			e.logger.Error("resubscribe failed", "error", err)
		}
		if err := e.reconcile(ctx); err != nil {
			e.logger.Error("post-reconnect reconciliation failed", "error", err)
		}
	case !alive && e.wsAlive:
		e.wsAlive = false
		e.logger.Warn("websocket disconnected")
	}
}

// parseFloat reads an exchange-formatted decimal string, treating malformed
// input as zero the way the rest of the wire layer does.
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
