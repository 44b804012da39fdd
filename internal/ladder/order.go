// Package ladder implements the per-side ring buffer of orders, the
// order-lifecycle state machine that drives it, and the reconciliation
// engine that decides which rungs to cancel or place on each price move.
package ladder

import (
	"time"

	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

// MaxCancelRetries bounds how many reject_cancel events a single cancel
// attempt tolerates before the order is treated as lost (§4.A).
const MaxCancelRetries = 50

// Order is one ring-buffer slot. A slot cycles between EMPTY and the
// active states as orders are placed, filled, and cancelled; it is never
// reallocated, only reset.
type Order struct {
	ClientID int64
	Side     types.Side

	Price       money.Amount
	TotalAmount money.Amount
	AmountLeft  money.Amount

	State  types.OrderState
	Cancel types.CancelState

	CancelRetries int

	AuctionIDSend   int64
	AuctionIDCancel int64

	LastSendTime time.Time
}

// IsEmpty reports whether the slot holds no order.
func (o *Order) IsEmpty() bool { return o.State == types.StateEmpty }

// reset returns the slot to EMPTY, clearing every field the invariant in
// §3 ties to the EMPTY state (client_id, price, total_amount).
func (o *Order) reset() {
	*o = Order{Side: o.Side}
}

// place fills an EMPTY slot with a new order about to be sent, moving it
// to PENDING. Callers (the reconciliation pass) are responsible for having
// already checked the slot was empty.
func (o *Order) place(clientID int64, price, amount money.Amount, auctionID int64, now time.Time) {
	o.ClientID = clientID
	o.Price = price
	o.TotalAmount = amount
	o.AmountLeft = amount
	o.State = types.StatePending
	o.Cancel = types.CancelNormal
	o.CancelRetries = 0
	o.AuctionIDSend = auctionID
	o.LastSendTime = now
}

// Active reports whether the slot counts toward the rung budget — i.e. it
// is non-EMPTY and has no cancel outstanding. Matches §8 invariant 2's
// "non-EMPTY orders with cancel = NORMAL".
func (o *Order) Active() bool {
	return !o.IsEmpty() && o.Cancel == types.CancelNormal
}
