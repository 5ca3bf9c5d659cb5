// info.go implements the read-only REST surface: every query is a POST /info
// with a typed request body.
package hyperliquid

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Info is the read-only Hyperliquid REST client.
type Info struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewInfo creates an info client against the given base URL with retry on
// transient server errors.
func NewInfo(baseURL string, logger *slog.Logger) *Info {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Info{
		http:   httpClient,
		logger: logger.With("component", "info"),
	}
}

// post runs one info query, decoding the response into result.
func (c *Info) post(ctx context.Context, body any, result any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		Post("/info")
	if err != nil {
		return fmt.Errorf("info query: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("info query: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// SpotMeta fetches the spot universe and token table.
func (c *Info) SpotMeta(ctx context.Context) (*SpotMeta, error) {
	var result SpotMeta
	req := map[string]any{"type": "spotMeta"}
	if err := c.post(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// OpenOrders fetches all resting orders for an address.
func (c *Info) OpenOrders(ctx context.Context, address string) ([]OpenOrder, error) {
	var result []OpenOrder
	req := map[string]any{"type": "openOrders", "user": address}
	if err := c.post(ctx, req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SpotUserState fetches the spot balances for an address.
func (c *Info) SpotUserState(ctx context.Context, address string) (*SpotUserState, error) {
	var result SpotUserState
	req := map[string]any{"type": "spotClearinghouseState", "user": address}
	if err := c.post(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UserRateLimit fetches the address rate-limit state.
func (c *Info) UserRateLimit(ctx context.Context, address string) (*UserRateLimit, error) {
	var result UserRateLimit
	req := map[string]any{"type": "userRateLimit", "user": address}
	if err := c.post(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
