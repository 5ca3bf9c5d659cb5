// Package ratelimit mirrors the exchange's address-based rate-limit budget.
//
// Hyperliquid prices API usage against maker volume:
//
//	budget = 10000 + cumulative_maker_volume_usd - cumulative_requests
//
// The Budget tracks that model locally so the batch emitter can throttle
// proactively instead of discovering exhaustion through rejected requests.
// Pure state — no I/O. Mutation via OnRequest / OnFill / SyncFromExchange;
// queries via Remaining / Ratio / IsHealthy / IsEmergency.
package ratelimit

import "fmt"

const (
	initialBudget = 10_000

	// SafetyMargin is the Remaining() floor below which the budget is in
	// emergency and only volume-earning activity should continue.
	SafetyMargin = 500
)

// Budget tracks the exchange rate-limit budget model for one address.
type Budget struct {
	cumVlm    float64 // cumulative maker volume in USD
	nRequests int64   // cumulative request count
}

// New returns an empty budget (fresh address, no synced state yet).
func New() *Budget { return &Budget{} }

// Budget returns the raw budget value. May be negative.
func (b *Budget) Budget() float64 {
	return float64(initialBudget) + b.cumVlm - float64(b.nRequests)
}

// Remaining returns the usable budget, clamped to >= 0.
func (b *Budget) Remaining() int64 {
	raw := int64(b.Budget())
	if raw < 0 {
		return 0
	}
	return raw
}

// Ratio returns the long-term utilization ratio (volume / requests).
func (b *Budget) Ratio() float64 {
	n := b.nRequests
	if n < 1 {
		n = 1
	}
	return b.cumVlm / float64(n)
}

// IsHealthy reports whether volume is being earned at least as fast as
// requests are spent.
func (b *Budget) IsHealthy() bool { return b.Ratio() >= 1.0 }

// IsEmergency reports whether the remaining budget is below the safety margin.
func (b *Budget) IsEmergency() bool { return b.Remaining() < SafetyMargin }

// OnRequest records one API request. Batch operations count as one.
func (b *Budget) OnRequest() { b.nRequests++ }

// OnFill records maker fill volume in USD.
func (b *Budget) OnFill(volumeUSD float64) { b.cumVlm += volumeUSD }

// SyncFromExchange overwrites local state with exchange-reported values.
func (b *Budget) SyncFromExchange(cumVlm float64, nRequests int64) {
	b.cumVlm = cumVlm
	b.nRequests = nRequests
}

// LogStatus returns a formatted utilization summary for periodic logging.
func (b *Budget) LogStatus() string {
	return fmt.Sprintf("ratio=%.2f budget=%d vol=$%.0f reqs=%d",
		b.Ratio(), b.Remaining(), b.cumVlm, b.nRequests)
}
