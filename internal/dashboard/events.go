package dashboard

import (
	"time"

	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

// Event wraps every message pushed to dashboard clients.
type Event struct {
	Type      string      `json:"type"` // "snapshot", "fill", "order", "kill"
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// FillEvent notifies a trade fill.
type FillEvent struct {
	ClientOrderID int64        `json:"client_order_id"`
	Side          types.Side   `json:"side"`
	ExecutedSize  money.Amount `json:"executed_size"`
	Position      money.Amount `json:"position"`
}

// OrderEvent notifies a resting-order state transition.
type OrderEvent struct {
	ClientOrderID int64  `json:"client_order_id"`
	Status        string `json:"status"` // "placed", "acked", "maker", "active", "removed", "rejected"
}

// KillEvent notifies a kill-switch activation.
type KillEvent struct {
	Reason string    `json:"reason"`
	Until  time.Time `json:"until"`
}

func NewFillEvent(clientOrderID int64, side types.Side, executedSize, position money.Amount) FillEvent {
	return FillEvent{ClientOrderID: clientOrderID, Side: side, ExecutedSize: executedSize, Position: position}
}

func NewOrderEvent(clientOrderID int64, status string) OrderEvent {
	return OrderEvent{ClientOrderID: clientOrderID, Status: status}
}

func NewKillEvent(reason string, until time.Time) KillEvent {
	return KillEvent{Reason: reason, Until: until}
}
