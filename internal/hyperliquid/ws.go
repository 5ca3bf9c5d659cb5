// ws.go implements the WebSocket feed for user-scoped event streams.
//
// One connection carries all three subscriptions (orderUpdates, userFills,
// webData2). The feed auto-reconnects with exponential backoff (1s → 30s max)
// and re-subscribes on reconnection. A read deadline detects silent server
// failures within ~2 missed pings. Consumers read typed events from channels
// and poll IsAlive for connection health.
package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	eventBufferSize  = 256
)

// Subscription identifies one WS stream.
type Subscription struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// wsRequest is the frame for subscribe/ping methods.
type wsRequest struct {
	Method       string        `json:"method"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// wsEnvelope is the inbound frame: channel name plus raw payload.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// WSFeed manages the WebSocket connection and event routing.
type WSFeed struct {
	url    string
	logger *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	// Track subscriptions for automatic re-subscribe on reconnect.
	subscribedMu sync.Mutex
	subscribed   []Subscription

	// alive flips false on disconnect and back on reconnect; read deadline
	// failures count as disconnects.
	aliveMu sync.Mutex
	alive   bool

	orderUpdateCh chan WSOrderUpdate
	fillCh        chan WSFill
	balanceCh     chan WSBalanceUpdate
}

// NewWSFeed creates a feed for the given WS endpoint.
func NewWSFeed(wsURL string, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:           wsURL,
		logger:        logger.With("component", "ws"),
		orderUpdateCh: make(chan WSOrderUpdate, eventBufferSize),
		fillCh:        make(chan WSFill, eventBufferSize),
		balanceCh:     make(chan WSBalanceUpdate, eventBufferSize),
	}
}

// OrderUpdates returns the order lifecycle event channel.
func (f *WSFeed) OrderUpdates() <-chan WSOrderUpdate { return f.orderUpdateCh }

// Fills returns the fill event channel.
func (f *WSFeed) Fills() <-chan WSFill { return f.fillCh }

// BalanceUpdates returns the webData2 balance event channel.
func (f *WSFeed) BalanceUpdates() <-chan WSBalanceUpdate { return f.balanceCh }

// IsAlive reports whether the connection is currently up.
func (f *WSFeed) IsAlive() bool {
	f.aliveMu.Lock()
	defer f.aliveMu.Unlock()
	return f.alive
}

func (f *WSFeed) setAlive(alive bool) {
	f.aliveMu.Lock()
	f.alive = alive
	f.aliveMu.Unlock()
}

// Subscribe registers a subscription and sends it if connected. Registered
// subscriptions are replayed automatically after every (re)connect, so
// subscribing before Run has established the connection is fine.
func (f *WSFeed) Subscribe(sub Subscription) error {
	f.subscribedMu.Lock()
	known := false
	for _, s := range f.subscribed {
		if s == sub {
			known = true
			break
		}
	}
	if !known {
		f.subscribed = append(f.subscribed, sub)
	}
	f.subscribedMu.Unlock()

	f.connMu.Lock()
	connected := f.conn != nil
	f.connMu.Unlock()
	if !connected {
		return nil
	}
	return f.writeJSON(wsRequest{Method: "subscribe", Subscription: &sub})
}

// Run connects and maintains the connection with auto-reconnect. Blocks until
// ctx is cancelled.
func (f *WSFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		f.setAlive(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close gracefully closes the connection.
func (f *WSFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *WSFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.resubscribe(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.setAlive(true)
	f.logger.Info("websocket connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

func (f *WSFeed) resubscribe() error {
	f.subscribedMu.Lock()
	subs := make([]Subscription, len(f.subscribed))
	copy(subs, f.subscribed)
	f.subscribedMu.Unlock()

	for _, sub := range subs {
		s := sub
		if err := f.writeJSON(wsRequest{Method: "subscribe", Subscription: &s}); err != nil {
			return err
		}
	}
	return nil
}

func (f *WSFeed) dispatchMessage(data []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	switch env.Channel {
	case "orderUpdates":
		var updates []WSOrderUpdate
		if err := json.Unmarshal(env.Data, &updates); err != nil {
			f.logger.Error("unmarshal order updates", "error", err)
			return
		}
		for _, u := range updates {
			select {
			case f.orderUpdateCh <- u:
			default:
				f.logger.Warn("order update channel full, dropping event", "oid", u.Order.OID)
			}
		}

	case "userFills":
		var payload wsUserFills
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			f.logger.Error("unmarshal user fills", "error", err)
			return
		}
		// Snapshot replays historical fills; tid dedup upstream makes
		// delivering them harmless, and a fresh process needs none.
		if payload.IsSnapshot {
			return
		}
		for _, fill := range payload.Fills {
			select {
			case f.fillCh <- fill:
			default:
				f.logger.Warn("fill channel full, dropping event", "tid", fill.TID)
			}
		}

	case "webData2":
		var payload wsWebData2
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			f.logger.Error("unmarshal webData2", "error", err)
			return
		}
		update := WSBalanceUpdate{Balances: payload.SpotBalances}
		if len(update.Balances) == 0 {
			update.Balances = payload.Balances
		}
		if len(update.Balances) == 0 && payload.SpotState != nil {
			update.Balances = payload.SpotState.Balances
		}
		if len(update.Balances) == 0 {
			return
		}
		select {
		case f.balanceCh <- update:
		default:
			f.logger.Warn("balance channel full, dropping event")
		}

	case "subscriptionResponse", "pong":
		// Acknowledgements we don't need to process.

	default:
		f.logger.Debug("unknown ws channel", "channel", env.Channel)
	}
}

func (f *WSFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeJSON(wsRequest{Method: "ping"}); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *WSFeed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}
