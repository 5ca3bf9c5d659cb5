// exchange.go implements the mutating REST surface: signed batch actions
// against POST /exchange. Each call is one request regardless of how many
// orders it carries — the rate-limit budget is debited per batch, not per
// order (see the emitter package).
package hyperliquid

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/AlliedToasters/pyperliquidity/pkg/types"
)

// Exchange is the mutating Hyperliquid REST client.
type Exchange struct {
	http      *resty.Client
	signer    *Signer
	lastNonce atomic.Uint64
	logger    *slog.Logger
}

// NewExchange creates a signing exchange client against the given base URL.
func NewExchange(baseURL string, signer *Signer, logger *slog.Logger) *Exchange {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Exchange{
		http:   httpClient,
		signer: signer,
		logger: logger.With("component", "exchange"),
	}
}

// FormatPx renders a price as the trailing-zero-trimmed decimal string the
// wire format requires.
func FormatPx(px float64) string {
	return decimal.NewFromFloat(px).String()
}

// FormatSz renders a size the same way.
func FormatSz(sz float64) string {
	return decimal.NewFromFloat(sz).String()
}

// NewOrderWire builds the wire form of one post-only order.
func NewOrderWire(assetID int, side types.Side, px, sz float64) OrderWire {
	return OrderWire{
		Asset:      assetID,
		IsBuy:      side.IsBuy(),
		Price:      FormatPx(px),
		Size:       FormatSz(sz),
		ReduceOnly: false,
		Type:       ALO(),
	}
}

// nonce returns a strictly increasing millisecond timestamp.
func (c *Exchange) nonce() uint64 {
	now := uint64(time.Now().UnixMilli())
	for {
		last := c.lastNonce.Load()
		if now <= last {
			now = last + 1
		}
		if c.lastNonce.CompareAndSwap(last, now) {
			return now
		}
	}
}

// postAction signs and posts one action, returning the decoded envelope.
func (c *Exchange) postAction(ctx context.Context, action any) (*ExchangeResponse, error) {
	nonce := c.nonce()
	sig, err := c.signer.SignAction(action, nonce)
	if err != nil {
		return nil, fmt.Errorf("sign action: %w", err)
	}

	payload := map[string]any{
		"action":       action,
		"nonce":        nonce,
		"signature":    sig,
		"vaultAddress": nil,
	}

	var result ExchangeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&result).
		Post("/exchange")
	if err != nil {
		return nil, fmt.Errorf("post action: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("post action: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// BulkOrders places a batch of orders in one request.
func (c *Exchange) BulkOrders(ctx context.Context, orders []OrderWire) (*ExchangeResponse, error) {
	action := orderAction{Type: "order", Orders: orders, Grouping: "na"}
	return c.postAction(ctx, action)
}

// BulkModifyOrders replaces a batch of resting orders in one request.
func (c *Exchange) BulkModifyOrders(ctx context.Context, modifies []ModifyWire) (*ExchangeResponse, error) {
	action := batchModifyAction{Type: "batchModify", Modifies: modifies}
	return c.postAction(ctx, action)
}

// BulkCancel cancels a batch of orders in one request.
func (c *Exchange) BulkCancel(ctx context.Context, cancels []CancelWire) (*ExchangeResponse, error) {
	action := cancelAction{Type: "cancel", Cancels: cancels}
	return c.postAction(ctx, action)
}
