package ladder

import (
	"log/slog"

	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

// Ladder owns both sides of the ring buffer and is the unit the event
// demultiplexer (internal/engine) drives. Order events and trades arrive
// tagged only by client_id; Ladder locates which side owns the slot so
// callers never need to guess.
type Ladder struct {
	Bid *Side
	Ask *Side
	log *slog.Logger
}

func NewLadder(bid, ask *Side, log *slog.Logger) *Ladder {
	return &Ladder{Bid: bid, Ask: ask, log: log.With("component", "ladder")}
}

func (l *Ladder) find(clientID int64) (*Side, *Order, bool) {
	if o, ok := l.Bid.FindByClientID(clientID); ok {
		return l.Bid, o, true
	}
	if o, ok := l.Ask.FindByClientID(clientID); ok {
		return l.Ask, o, true
	}
	return nil, nil, false
}

// Ack applies PENDING --ack--> ACKED.
func (l *Ladder) Ack(clientID int64) {
	_, o, ok := l.find(clientID)
	if !ok {
		l.log.Warn("ack for unknown order", "client_id", clientID)
		return
	}
	if o.State != types.StatePending {
		l.log.Warn("ack in unexpected state", "client_id", clientID, "state", o.State.String())
		return
	}
	o.State = types.StateAcked
}

// Maker applies {ACKED,ACTIVE} --maker--> MAKER (also tolerates a maker
// event arriving before the ack, advancing PENDING straight to MAKER).
func (l *Ladder) Maker(clientID int64) {
	_, o, ok := l.find(clientID)
	if !ok {
		l.log.Warn("maker event for unknown order", "client_id", clientID)
		return
	}
	if o.State == types.StateEmpty {
		l.log.Warn("maker event for empty slot", "client_id", clientID)
		return
	}
	if o.State == types.StatePending {
		l.log.Warn("maker event before ack", "client_id", clientID)
	}
	o.State = types.StateMaker
}

// MarkActive applies {ACKED,MAKER} --active--> ACTIVE.
func (l *Ladder) MarkActive(clientID int64) {
	_, o, ok := l.find(clientID)
	if !ok {
		l.log.Warn("active event for unknown order", "client_id", clientID)
		return
	}
	if o.State == types.StateEmpty {
		l.log.Warn("active event for empty slot", "client_id", clientID)
		return
	}
	if o.State == types.StatePending {
		l.log.Warn("active event before ack", "client_id", clientID)
	}
	o.State = types.StateActive
}

// Reject applies PENDING --reject--> EMPTY. Under the debit-at-fill model
// this spec resolves Open Question 2 with, nothing was debited at send
// time, so nothing is restored here — see DESIGN.md.
func (l *Ladder) Reject(clientID int64) {
	_, o, ok := l.find(clientID)
	if !ok {
		l.log.Warn("reject for unknown order", "client_id", clientID)
		return
	}
	if o.State != types.StatePending {
		l.log.Warn("reject in unexpected state", "client_id", clientID, "state", o.State.String())
	}
	o.reset()
}

// Remove applies {PENDING,ACKED,MAKER,ACTIVE} --delete/abort_create--> EMPTY.
func (l *Ladder) Remove(clientID int64) {
	_, o, ok := l.find(clientID)
	if !ok {
		l.log.Warn("remove for unknown order", "client_id", clientID)
		return
	}
	o.reset()
}

// CancelReject applies cancel=PENDING --reject_cancel--> cancel=NORMAL,
// cancel_retries++. Exhausting MaxCancelRetries while the order is still
// PENDING means the original send is assumed lost, so the slot resets to
// EMPTY as if never sent; exhausting it in any other state is the fatal
// inconsistency §4.A and §7 both call out.
func (l *Ladder) CancelReject(clientID int64) error {
	_, o, ok := l.find(clientID)
	if !ok {
		l.log.Warn("cancel-reject for unknown order", "client_id", clientID)
		return nil
	}
	if o.Cancel != types.CancelPending {
		l.log.Warn("cancel-reject with no cancel outstanding", "client_id", clientID, "state", o.State.String())
	}

	o.Cancel = types.CancelNormal
	o.CancelRetries++

	if o.CancelRetries >= MaxCancelRetries {
		if o.State == types.StatePending {
			l.log.Warn("cancel retries exhausted on a never-sent order, resetting", "client_id", clientID)
			o.reset()
			return nil
		}
		l.log.Error("cancel retries exhausted in non-pending state", "client_id", clientID, "state", o.State.String())
		return newFatal(clientID, "cancel_retries exhausted in state %s", o.State.String())
	}

	return nil
}

// Trade applies a fill (partial or full) to the order, then moves the
// filled amount between the two sides' available_limit budgets: the side
// that filled debits its own headroom by the fill amount (debited at fill,
// not at send — Open Question 2), and the opposite side credits the same
// amount, since the position move frees room to unwind it from the other
// direction. Returns the signed position delta (positive for a BID fill,
// negative for an ASK fill) for the caller to apply to its own inventory
// tracking.
func (l *Ladder) Trade(clientID int64, executionAmount money.Amount) (money.Amount, error) {
	side, o, ok := l.find(clientID)
	if !ok {
		l.log.Warn("trade for unknown order", "client_id", clientID)
		return money.Zero, nil
	}

	if executionAmount.GreaterThan(o.AmountLeft) {
		l.log.Error("execution amount exceeds amount left", "client_id", clientID,
			"execution_amount", executionAmount.String(), "amount_left", o.AmountLeft.String())
		return money.Zero, newFatal(clientID, "execution_amount %s exceeds amount_left %s", executionAmount, o.AmountLeft)
	}

	o.AmountLeft = o.AmountLeft.Sub(executionAmount)
	if o.AmountLeft.IsZero() {
		o.reset()
	}

	side.AddAvailableLimit(executionAmount.Neg())
	other := l.Ask
	if side == l.Ask {
		other = l.Bid
	}
	other.AddAvailableLimit(executionAmount)

	delta := executionAmount
	if side == l.Ask {
		delta = executionAmount.Neg()
	}
	return delta, nil
}
