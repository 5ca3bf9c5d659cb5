// Package hyperliquid implements the Hyperliquid REST and WebSocket clients
// the control loop consumes.
//
// Three surfaces:
//
//   - Info:     read-only REST queries (spot metadata, open orders, spot
//     balances, rate-limit state) via POST /info.
//   - Exchange: mutating batch operations (place / modify / cancel) via
//     POST /exchange, each signed with the wallet key.
//   - WS:       subscriptions (orderUpdates, userFills, webData2) with
//     auto-reconnect and an IsAlive health probe.
//
// Prices and sizes are formatted as trailing-zero-trimmed decimal strings at
// this boundary; everything above it works in float64.
package hyperliquid

import "encoding/json"

// API endpoints.
const (
	MainnetAPIURL = "https://api.hyperliquid.xyz"
	TestnetAPIURL = "https://api.hyperliquid-testnet.xyz"

	MainnetWSURL = "wss://api.hyperliquid.xyz/ws"
	TestnetWSURL = "wss://api.hyperliquid-testnet.xyz/ws"
)

// SpotAssetOffset converts a spot universe index into the asset id used by
// order actions: asset_id = spot_index + 10000.
const SpotAssetOffset = 10_000

// ————————————————————————————————————————————————————————————————————————
// Info responses
// ————————————————————————————————————————————————————————————————————————

// SpotMeta describes the spot universe: tradeable pairs and their tokens.
type SpotMeta struct {
	Universe []SpotPair  `json:"universe"`
	Tokens   []SpotToken `json:"tokens"`
}

// SpotPair is one entry of the spot universe.
type SpotPair struct {
	Name   string `json:"name"`   // market symbol, e.g. "@1434" or "PURR/USDC"
	Index  int    `json:"index"`  // universe index; asset id = index + 10000
	Tokens []int  `json:"tokens"` // [base token index, quote token index]
}

// SpotToken is one entry of the token table.
type SpotToken struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// OpenOrder is one resting order as reported by the openOrders query.
type OpenOrder struct {
	Coin      string `json:"coin"`
	Side      string `json:"side"` // "B" or "A"
	LimitPx   string `json:"limitPx"`
	Sz        string `json:"sz"`
	OID       int64  `json:"oid"`
	Timestamp int64  `json:"timestamp"`
}

// SpotBalance is one asset balance from the spot clearinghouse state.
type SpotBalance struct {
	Coin  string `json:"coin"`
	Total string `json:"total"`
	Hold  string `json:"hold"`
}

// SpotUserState is the spot clearinghouse snapshot for one address.
type SpotUserState struct {
	Balances []SpotBalance `json:"balances"`
}

// UserRateLimit is the address rate-limit state.
type UserRateLimit struct {
	CumVlm        string `json:"cumVlm"`
	NRequestsUsed int64  `json:"nRequestsUsed"`
	NRequestsCap  int64  `json:"nRequestsCap"`
}

// ————————————————————————————————————————————————————————————————————————
// Exchange actions
// ————————————————————————————————————————————————————————————————————————

// OrderType is the order behavior selector. Only resting limit orders are
// used here: post-only (ALO) so a quote can never take liquidity.
type OrderType struct {
	Limit *LimitOrderType `json:"limit,omitempty" msgpack:"limit,omitempty"`
}

// LimitOrderType carries the time-in-force.
type LimitOrderType struct {
	TIF string `json:"tif" msgpack:"tif"`
}

// ALO returns the add-liquidity-only order type.
func ALO() OrderType {
	return OrderType{Limit: &LimitOrderType{TIF: "Alo"}}
}

// OrderWire is the wire form of one order inside an order or modify action.
type OrderWire struct {
	Asset      int       `json:"a" msgpack:"a"`
	IsBuy      bool      `json:"b" msgpack:"b"`
	Price      string    `json:"p" msgpack:"p"`
	Size       string    `json:"s" msgpack:"s"`
	ReduceOnly bool      `json:"r" msgpack:"r"`
	Type       OrderType `json:"t" msgpack:"t"`
}

// CancelWire identifies one order inside a cancel action.
type CancelWire struct {
	Asset int   `json:"a" msgpack:"a"`
	OID   int64 `json:"o" msgpack:"o"`
}

// ModifyWire pairs an existing oid with its replacement order.
type ModifyWire struct {
	OID   int64     `json:"oid" msgpack:"oid"`
	Order OrderWire `json:"order" msgpack:"order"`
}

// orderAction is the bulk place action payload.
type orderAction struct {
	Type     string      `json:"type" msgpack:"type"`
	Orders   []OrderWire `json:"orders" msgpack:"orders"`
	Grouping string      `json:"grouping" msgpack:"grouping"`
}

// cancelAction is the bulk cancel action payload.
type cancelAction struct {
	Type    string       `json:"type" msgpack:"type"`
	Cancels []CancelWire `json:"cancels" msgpack:"cancels"`
}

// batchModifyAction is the bulk modify action payload.
type batchModifyAction struct {
	Type     string       `json:"type" msgpack:"type"`
	Modifies []ModifyWire `json:"modifies" msgpack:"modifies"`
}

// ————————————————————————————————————————————————————————————————————————
// Exchange responses
// ————————————————————————————————————————————————————————————————————————

// ExchangeResponse is the envelope every batch action returns.
type ExchangeResponse struct {
	Status   string `json:"status"` // "ok" or "err"
	Response struct {
		Type string `json:"type"`
		Data struct {
			Statuses []OrderStatusResult `json:"statuses"`
		} `json:"data"`
	} `json:"response"`
}

// Statuses extracts the per-request status array. A non-ok envelope yields
// nil, which callers must treat as a truncated response.
func (r *ExchangeResponse) Statuses() []OrderStatusResult {
	if r == nil || r.Status != "ok" {
		return nil
	}
	return r.Response.Data.Statuses
}

// RestingStatus carries the (possibly new) oid of a resting order.
type RestingStatus struct {
	OID int64 `json:"oid"`
}

// FilledStatus reports an immediate fill. Post-only orders never produce it,
// but the decoder keeps the field so an unexpected status is visible.
type FilledStatus struct {
	OID     int64  `json:"oid"`
	TotalSz string `json:"totalSz"`
	AvgPx   string `json:"avgPx"`
}

// OrderStatusResult is one per-request outcome inside a batch response:
// exactly one of the fields is populated, or none for an unrecognized status.
type OrderStatusResult struct {
	Resting *RestingStatus
	Filled  *FilledStatus
	Error   string
	Success bool // bare "success" string (cancel acknowledgements)
}

// UnmarshalJSON accepts both the object statuses ({"resting": ...},
// {"error": ...}) and the bare "success" string the cancel endpoint returns.
func (s *OrderStatusResult) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.Success = str == "success"
		return nil
	}
	var obj struct {
		Resting *RestingStatus `json:"resting"`
		Filled  *FilledStatus  `json:"filled"`
		Error   string         `json:"error"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	s.Resting = obj.Resting
	s.Filled = obj.Filled
	s.Error = obj.Error
	return nil
}

// IsError reports whether this status carries an error message.
func (s OrderStatusResult) IsError() bool { return s.Error != "" }

// ————————————————————————————————————————————————————————————————————————
// WebSocket events
// ————————————————————————————————————————————————————————————————————————

// WSOrderUpdate is one entry of an orderUpdates message.
type WSOrderUpdate struct {
	Order  WSBasicOrder `json:"order"`
	Status string       `json:"status"` // "resting", "canceled", errors, ...
}

// WSBasicOrder is the order payload inside an order update.
type WSBasicOrder struct {
	Coin    string `json:"coin"`
	Side    string `json:"side"` // "B" or "A"
	LimitPx string `json:"limitPx"`
	Sz      string `json:"sz"`
	OID     int64  `json:"oid"`
}

// WSFill is one entry of a userFills message.
type WSFill struct {
	Coin string `json:"coin"`
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Side string `json:"side"`
	OID  int64  `json:"oid"`
	TID  int64  `json:"tid"`
}

// wsUserFills is the userFills channel payload.
type wsUserFills struct {
	IsSnapshot bool     `json:"isSnapshot"`
	Fills      []WSFill `json:"fills"`
}

// WSBalanceUpdate carries the spot balances from a webData2 message. The
// feed's shape varies: balances arrive under "spotBalances", "balances" or
// "spotState.balances"; all three are accepted (do not narrow without
// confirmation).
type WSBalanceUpdate struct {
	Balances []SpotBalance
}

// wsWebData2 decodes the three observed webData2 balance layouts.
type wsWebData2 struct {
	SpotBalances []SpotBalance `json:"spotBalances"`
	Balances     []SpotBalance `json:"balances"`
	SpotState    *struct {
		Balances []SpotBalance `json:"balances"`
	} `json:"spotState"`
}
