package engine

import (
	"encoding/json"
	"fmt"

	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

// VenueEvent is the closed sum type every decoded venue message reduces to.
// Decoding an types.Envelope into a VenueEvent is the engine's one parsing
// step; everything downstream switches on the concrete type instead of
// re-inspecting topic/event strings (§9's tagged-variant design note).
type VenueEvent interface {
	isVenueEvent()
}

// UserDataPartialEvent is user_data.partial: balances, open orders (always
// cancelled, never adopted), and positions.
type UserDataPartialEvent struct {
	Payload types.UserDataPartialPayload
}

// MarketDataPartialEvent is market_data.partial: the execution band.
type MarketDataPartialEvent struct {
	Payload types.MarketDataPartialPayload
}

// UpdateEvent is the auction-sequencing heartbeat, optionally refreshing the
// execution band.
type UpdateEvent struct {
	AuctionID     int64
	ExecutionBand *types.ExecutionBand
}

// OrderLifecycleKind enumerates the FSM transitions an order event drives.
type OrderLifecycleKind string

const (
	LifecycleAck          OrderLifecycleKind = "ack"
	LifecycleMaker        OrderLifecycleKind = "maker"
	LifecycleActive       OrderLifecycleKind = "active"
	LifecycleRemove       OrderLifecycleKind = "remove"
	LifecycleReject       OrderLifecycleKind = "reject"
	LifecycleRejectCancel OrderLifecycleKind = "reject_cancel"
)

// OrderLifecycleEvent covers acknowledge_order / maker_order / active_order /
// delete_order / abort_create / reject_order / reject_cancel.
type OrderLifecycleEvent struct {
	Kind          OrderLifecycleKind
	ClientOrderID int64
}

// TradeEvent covers taker_trade / maker_trade / liquidation /
// auto_deleverage — all drive the same partial/full fill transition.
type TradeEvent struct {
	ClientOrderID   int64
	ExecutionAmount money.Amount
	Side            types.Side
}

// IgnoredEvent is any message accepted but requiring no core action
// (trade, balance, phx_reply, update_position, and unrecognized events).
type IgnoredEvent struct {
	Topic string
	Event string
}

func (UserDataPartialEvent) isVenueEvent()   {}
func (MarketDataPartialEvent) isVenueEvent() {}
func (UpdateEvent) isVenueEvent()            {}
func (OrderLifecycleEvent) isVenueEvent()    {}
func (TradeEvent) isVenueEvent()             {}
func (IgnoredEvent) isVenueEvent()           {}

// DecodeVenueEvent parses an envelope's payload into its VenueEvent variant
// based on topic/event. Unknown combinations decode to IgnoredEvent rather
// than erroring — §7's venue-protocol error policy is "log warning, skip
// message," not "reject the connection."
func DecodeVenueEvent(env types.Envelope) (VenueEvent, error) {
	switch {
	case env.Topic == "user_data" && env.Event == "partial":
		var payload types.UserDataPartialPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode user_data.partial: %w", err)
		}
		return UserDataPartialEvent{Payload: payload}, nil

	case env.Topic == "market_data" && env.Event == "partial":
		var payload types.MarketDataPartialPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode market_data.partial: %w", err)
		}
		return MarketDataPartialEvent{Payload: payload}, nil

	case env.Event == "update":
		var payload types.UpdatePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode update: %w", err)
		}
		evt := UpdateEvent{AuctionID: payload.AuctionID}
		if payload.ExecutionBand != nil {
			band, err := decodeBand(*payload.ExecutionBand)
			if err != nil {
				return nil, err
			}
			evt.ExecutionBand = &band
		}
		return evt, nil

	case env.Event == "acknowledge_order":
		return decodeOrderLifecycle(env, LifecycleAck)
	case env.Event == "maker_order":
		return decodeOrderLifecycle(env, LifecycleMaker)
	case env.Event == "active_order":
		return decodeOrderLifecycle(env, LifecycleActive)
	case env.Event == "delete_order", env.Event == "abort_create":
		return decodeOrderLifecycle(env, LifecycleRemove)
	case env.Event == "reject_order":
		return decodeOrderLifecycle(env, LifecycleReject)
	case env.Event == "reject_cancel":
		return decodeOrderLifecycle(env, LifecycleRejectCancel)

	case env.Event == "taker_trade", env.Event == "maker_trade",
		env.Event == "liquidation", env.Event == "auto_deleverage":
		var payload types.TradeEventPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		amt, err := money.ParseAmount(payload.ExecutionAmount)
		if err != nil {
			return nil, fmt.Errorf("decode %s execution_amount: %w", env.Event, err)
		}
		side, err := decodeSide(payload.Side)
		if err != nil {
			return nil, fmt.Errorf("decode %s side: %w", env.Event, err)
		}
		return TradeEvent{ClientOrderID: payload.ClientOrderID, ExecutionAmount: amt, Side: side}, nil

	default:
		return IgnoredEvent{Topic: env.Topic, Event: env.Event}, nil
	}
}

func decodeOrderLifecycle(env types.Envelope, kind OrderLifecycleKind) (VenueEvent, error) {
	var payload types.OrderEventPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Event, err)
	}
	return OrderLifecycleEvent{Kind: kind, ClientOrderID: payload.ClientOrderID}, nil
}

func decodeBand(wire types.ExecutionBandWire) (types.ExecutionBand, error) {
	low, err := money.ParseAmount(wire.Low)
	if err != nil {
		return types.ExecutionBand{}, fmt.Errorf("decode execution_band.low: %w", err)
	}
	high, err := money.ParseAmount(wire.High)
	if err != nil {
		return types.ExecutionBand{}, fmt.Errorf("decode execution_band.high: %w", err)
	}
	return types.ExecutionBand{Low: low, High: high}, nil
}

func decodeSide(wire string) (types.Side, error) {
	switch wire {
	case "bid":
		return types.BID, nil
	case "ask":
		return types.ASK, nil
	default:
		return "", fmt.Errorf("unknown side %q", wire)
	}
}
