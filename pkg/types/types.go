// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the agent — sides, order
// lifecycle states, and the venue/reference-feed wire event shapes. It has
// no dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"encoding/json"

	"perpquoter/pkg/money"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents which side of the ladder an order belongs to.
type Side string

const (
	BID Side = "BID"
	ASK Side = "ASK"
)

// Opposite returns the other side; used when a fill on one side frees
// available_limit on the other.
func (s Side) Opposite() Side {
	if s == BID {
		return ASK
	}
	return BID
}

// Direction returns -1 for BID (prices descend from top) and +1 for ASK
// (prices ascend from top), matching the sign convention in §4.B's
// "price = top_price + i·direction·tick_jump".
func (s Side) Direction() int64 {
	if s == BID {
		return -1
	}
	return 1
}

// OrderState is the order-lifecycle FSM state (§4.A).
type OrderState int

const (
	StateEmpty OrderState = iota
	StatePending
	StateAcked
	StateMaker
	StateActive
)

func (s OrderState) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StatePending:
		return "PENDING"
	case StateAcked:
		return "ACKED"
	case StateMaker:
		return "MAKER"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// CancelState tracks whether a cancel request is outstanding for an order.
type CancelState int

const (
	CancelNormal CancelState = iota
	CancelPending
)

func (c CancelState) String() string {
	if c == CancelPending {
		return "PENDING"
	}
	return "NORMAL"
}

// SignatureType identifies the signing scheme used for venue order/auth
// signatures. 0 is a plain externally-owned account; the others exist for
// proxy/multisig wallets some venues support.
type SignatureType int

const (
	SigEOA        SignatureType = 0
	SigProxy      SignatureType = 1
	SigGnosisSafe SignatureType = 2
)

// ————————————————————————————————————————————————————————————————————————
// Market structure
// ————————————————————————————————————————————————————————————————————————

// ExecutionBand is the venue-imposed price corridor; orders outside it are
// rejected at match time.
type ExecutionBand struct {
	Low  money.Amount
	High money.Amount
}

// Balance is one asset line from a user_data partial.
type Balance struct {
	Asset     string
	Available money.Amount
	Frozen    money.Amount
}

// OpenOrderSnapshot is one pre-existing order returned in a user_data
// partial — always cancelled on receipt, never adopted (§3).
type OpenOrderSnapshot struct {
	ClientOrderID int64
	Market        string
	Side          Side
	Price         money.Amount
	Amount        money.Amount
}

// PositionSnapshot is one position line from a user_data partial.
type PositionSnapshot struct {
	Market           string
	Amount           money.Amount // signed
	EntryPrice       money.Amount
	LiquidationPrice money.Amount
	TotalMargin      money.Amount
	Funding          money.Amount
}

// ————————————————————————————————————————————————————————————————————————
// Venue wire envelope
// ————————————————————————————————————————————————————————————————————————

// Envelope is the inbound shape of every venue stream message:
// {topic, event, payload}. The venue feed forwards it unparsed; the engine
// decodes it once into a VenueEvent on receipt (engine.DecodeVenueEvent).
type Envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// UserDataPartialPayload is user_data.partial.payload.
type UserDataPartialPayload struct {
	Balance   []BalanceWire   `json:"balance"`
	Orders    []OrderWire     `json:"orders"`
	Positions []PositionWire  `json:"positions"`
}

type BalanceWire struct {
	Asset     string `json:"asset"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
}

type OrderWire struct {
	ClientOrderID int64  `json:"client_order_id"`
	Amount        string `json:"amount"`
	Price         string `json:"price"`
	Side          string `json:"side"` // "bid" | "ask"
	Market        string `json:"market"`
}

type PositionWire struct {
	Market           string `json:"market"`
	Amount           string `json:"amount"`
	Funding          string `json:"funding"`
	EntryPrice       string `json:"entry_price"`
	LiquidationPrice string `json:"liquidation_price"`
	TotalMargin      string `json:"total_margin"`
}

// MarketDataPartialPayload is market_data.partial.payload.
type MarketDataPartialPayload struct {
	ExecutionBand *ExecutionBandWire `json:"execution_band"`
}

type ExecutionBandWire struct {
	Low  string `json:"low"`
	High string `json:"high"`
}

// UpdatePayload is update.payload: the venue's auction sequencing heartbeat,
// which may also carry a refreshed execution band.
type UpdatePayload struct {
	AuctionID     int64              `json:"auction_id"`
	ExecutionBand *ExecutionBandWire `json:"execution_band,omitempty"`
}

// OrderEventPayload covers acknowledge_order / maker_order / active_order /
// delete_order / abort_create / reject_order / reject_cancel.
type OrderEventPayload struct {
	ClientOrderID int64 `json:"client_order_id"`
}

// TradeEventPayload covers taker_trade / maker_trade / liquidation /
// auto_deleverage.
type TradeEventPayload struct {
	ClientOrderID    int64  `json:"client_order_id"`
	ExecutionAmount  string `json:"execution_amount"`
	Side             string `json:"side"` // "bid" | "ask"
}

// ReferenceTick is a single sample from an external reference-price feed,
// after the adapter's permissive {"p":..}/{"data":{"p":..}}/{"data":[...]}
// extraction (§6) has reduced it to a single scalar.
type ReferenceTick struct {
	Price money.Amount
}

// WSAuth carries the derived L2 session credential used to authenticate the
// user WebSocket channel.
type WSAuth struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// ————————————————————————————————————————————————————————————————————————
// REST request/response shapes
// ————————————————————————————————————————————————————————————————————————

// OrderRequest is a single signed order as placed over the REST batch-place
// endpoint.
type OrderRequest struct {
	ClientOrderID int64  `json:"client_order_id"`
	Market        string `json:"market"`
	Side          Side   `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	Leverage      int    `json:"leverage"`
	Salt          string `json:"salt"`
	Expiration    string `json:"expiration"`
	Signature     string `json:"signature"`
}

// PlaceResult is one entry of the batch-place response.
type PlaceResult struct {
	ClientOrderID int64  `json:"client_order_id"`
	Accepted      bool   `json:"accepted"`
	Reason        string `json:"reason,omitempty"`
}

// CancelResult is the response to a batch-cancel request.
type CancelResult struct {
	Cancelled []int64 `json:"cancelled"`
}

// LoginResponse is the response to the L1-authenticated session-derivation
// call, carrying the L2 credential triplet used for all subsequent trading
// requests.
type LoginResponse struct {
	ApiKey     string `json:"api_key"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}
