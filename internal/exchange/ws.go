// ws.go implements the two WebSocket feeds the agent consumes.
//
// The venue feed (authenticated) carries user_data, market_data, and update
// topics: balances, orders, positions, execution band, auction sequencing,
// and order/trade lifecycle events. Every message arrives as a
// types.Envelope{topic, event, payload} and is forwarded unparsed — the
// engine owns event-specific decoding.
//
// The reference feed (public, venue-independent) carries a spot/index price
// stream used to drive the fair-price model. Its wire shape is not
// standardized, so ticks are extracted permissively: {"p":...},
// {"data":{"p":...}}, or {"data":[...,price]} all resolve to a single
// types.ReferenceTick.
//
// Both feeds auto-reconnect with exponential backoff and re-authenticate
// (venue feed) on reconnection. A read deadline ensures silent server
// failures are detected within a couple of missed pings.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	envelopeBuffer   = 256
	tickBuffer       = 64
)

// VenueFeed manages the authenticated venue WebSocket connection.
type VenueFeed struct {
	url    string
	auth   *Auth
	conn   *websocket.Conn
	connMu sync.Mutex

	envelopeCh chan types.Envelope
	logger     *slog.Logger
}

// NewVenueFeed creates a venue WebSocket feed.
func NewVenueFeed(wsURL string, auth *Auth, logger *slog.Logger) *VenueFeed {
	return &VenueFeed{
		url:        wsURL,
		auth:       auth,
		envelopeCh: make(chan types.Envelope, envelopeBuffer),
		logger:     logger.With("component", "ws_venue"),
	}
}

// Envelopes returns a read-only channel of every decoded message.
func (f *VenueFeed) Envelopes() <-chan types.Envelope { return f.envelopeCh }

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *VenueFeed) Run(ctx context.Context) error {
	return runWithReconnect(ctx, f.logger, f.connectAndRead)
}

// Close gracefully closes the connection.
func (f *VenueFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *VenueFeed) connectAndRead(ctx context.Context) error {
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

	authMsg := struct {
		Op   string       `json:"op"`
		Auth *types.WSAuth `json:"auth"`
	}{Op: "authenticate", Auth: f.auth.WSAuthPayload()}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(authMsg); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	f.logger.Info("venue feed connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go pingLoop(pingCtx, &f.connMu, conn, f.logger)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var env types.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			f.logger.Debug("ignoring non-envelope message", "data", string(msg))
			continue
		}
		select {
		case f.envelopeCh <- env:
		default:
			f.logger.Warn("envelope channel full, dropping message", "topic", env.Topic, "event", env.Event)
		}
	}
}

// ReferenceFeed manages the public reference-price WebSocket connection.
type ReferenceFeed struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex

	tickCh chan types.ReferenceTick
	logger *slog.Logger
}

// NewReferenceFeed creates a reference-price WebSocket feed.
func NewReferenceFeed(wsURL string, logger *slog.Logger) *ReferenceFeed {
	return &ReferenceFeed{
		url:    wsURL,
		tickCh: make(chan types.ReferenceTick, tickBuffer),
		logger: logger.With("component", "ws_reference"),
	}
}

// Ticks returns a read-only channel of decoded reference price samples.
func (f *ReferenceFeed) Ticks() <-chan types.ReferenceTick { return f.tickCh }

// Run connects and maintains the WebSocket connection with auto-reconnect.
func (f *ReferenceFeed) Run(ctx context.Context) error {
	return runWithReconnect(ctx, f.logger, f.connectAndRead)
}

// Close gracefully closes the connection.
func (f *ReferenceFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *ReferenceFeed) connectAndRead(ctx context.Context) error {
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

	f.logger.Info("reference feed connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go pingLoop(pingCtx, &f.connMu, conn, f.logger)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		tick, ok := extractReferenceTick(msg)
		if !ok {
			f.logger.Debug("ignoring unparseable reference message", "data", string(msg))
			continue
		}
		select {
		case f.tickCh <- tick:
		default:
			f.logger.Warn("tick channel full, dropping sample")
		}
	}
}

// extractReferenceTick permissively parses a price out of one of three
// shapes: {"p": ...}, {"data": {"p": ...}}, or {"data": [{"price": ...},
// ...]} — taking the last element. "p"/"price" may be either a JSON number
// or a quoted numeric string.
func extractReferenceTick(msg []byte) (types.ReferenceTick, bool) {
	var envelope struct {
		P    json.RawMessage `json:"p"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return types.ReferenceTick{}, false
	}

	if amt, ok := parseScalarAmount(envelope.P); ok {
		return types.ReferenceTick{Price: amt}, true
	}

	if len(envelope.Data) > 0 {
		var nested struct {
			P json.RawMessage `json:"p"`
		}
		if err := json.Unmarshal(envelope.Data, &nested); err == nil {
			if amt, ok := parseScalarAmount(nested.P); ok {
				return types.ReferenceTick{Price: amt}, true
			}
		}

		var array []struct {
			Price json.RawMessage `json:"price"`
		}
		if err := json.Unmarshal(envelope.Data, &array); err == nil && len(array) > 0 {
			if amt, ok := parseScalarAmount(array[len(array)-1].Price); ok {
				return types.ReferenceTick{Price: amt}, true
			}
		}
	}

	return types.ReferenceTick{}, false
}

// parseScalarAmount decodes a raw JSON scalar (number or quoted string) into
// an Amount, tolerating either representation.
func parseScalarAmount(raw json.RawMessage) (money.Amount, bool) {
	if len(raw) == 0 {
		return money.Amount{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if amt, err := money.ParseAmount(s); err == nil {
			return amt, true
		}
		return money.Amount{}, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return money.FromFloat(f), true
	}
	return money.Amount{}, false
}

// runWithReconnect retries connectAndRead with exponential backoff (1s to
// 30s) until ctx is cancelled.
func runWithReconnect(ctx context.Context, logger *slog.Logger, connectAndRead func(context.Context) error) error {
	backoff := time.Second
	for {
		err := connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("websocket disconnected, reconnecting", "error", err, "backoff", backoff)

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

func pingLoop(ctx context.Context, mu *sync.Mutex, conn *websocket.Conn, logger *slog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			mu.Unlock()
			if err != nil {
				logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

