package ladder

import (
	"time"

	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

// Curve is the subset of the inventory/skew model (§4.C) the reconciliation
// pass needs. Kept as plain values rather than importing internal/quote,
// so internal/ladder has no dependency on the package that computes them —
// the caller (internal/engine) wires the two together.
type Curve struct {
	AvgTickLiquidity money.Amount
	MaxLiquidity     money.Amount
}

// Reconcile is the central algorithm (§4.B): it sweeps every rung from
// top_order outward, cancelling orders that no longer fit the target
// liquidity curve and placing new ones where a rung is empty and still
// needed. allocID mints a client_id for each new placement; it is supplied
// by the caller rather than owned here, since next_client_id is process-
// wide (§6's venue adapter contract), not per-side.
func (s *Side) Reconcile(curve Curve, auctionID int64, now time.Time, allocID func() int64) []Action {
	var actions []Action

	g := s.grid()
	sg := s.sizeGrid()
	direction := s.side.Direction()

	var activeOrderCount int
	var totalLiquidity money.Amount
	var pendingCancelLiquidity money.Amount

	n := len(s.slots)
	for i := 0; i < n; i++ {
		idx := s.physical(s.topOrder + int64(i))
		slot := &s.slots[idx]

		idealPrice := s.topPrice.Add(g.At(direction * int64(i)))

		expected := money.Min(curve.AvgTickLiquidity.MulInt(int64(i)), curve.MaxLiquidity)

		excess := expected.Sub(totalLiquidity.Sub(pendingCancelLiquidity))
		needed := expected.Mul(s.cfg.HysteresisLow).Sub(totalLiquidity)
		minThreshold := expected.Mul(s.cfg.HysteresisMin).Sub(totalLiquidity).Sub(curve.AvgTickLiquidity)

		cancelled := false

		if !slot.IsEmpty() && slot.Cancel == types.CancelNormal {
			priceMismatch := !slot.Price.Equal(idealPrice)
			tooMuchLiquidity := slot.AmountLeft.GreaterThan(excess)
			tooManyActive := activeOrderCount >= s.cfg.TargetNumOrders

			if priceMismatch || tooMuchLiquidity || tooManyActive {
				s.issueCancel(slot, auctionID)
				actions = append(actions, Action{Kind: ActionCancel, ClientID: slot.ClientID, Side: s.side, Price: slot.Price, Size: slot.AmountLeft})
				cancelled = true
			} else if minThreshold.GreaterThan(slot.AmountLeft) && slot.AmountLeft.LessThan(s.cfg.MaxOrderSize) {
				s.issueCancel(slot, auctionID)
				actions = append(actions, Action{Kind: ActionCancel, ClientID: slot.ClientID, Side: s.side, Price: slot.Price, Size: slot.AmountLeft})
				cancelled = true
			}
		}

		if cancelled {
			pendingCancelLiquidity = pendingCancelLiquidity.Add(slot.AmountLeft)
			totalLiquidity = totalLiquidity.Add(slot.AmountLeft)
		} else if !slot.IsEmpty() && slot.Cancel == types.CancelNormal {
			activeOrderCount++
			totalLiquidity = totalLiquidity.Add(slot.AmountLeft)
		} else if slot.IsEmpty() && activeOrderCount < s.cfg.TargetNumOrders && needed.GreaterThan(s.cfg.MinOrderSize) {
			size := money.Min(money.Min(needed, s.availableLimit), s.cfg.MaxOrderSize)
			size = sg.FloorTo(size)
			if size.GreaterThanOrEqual(s.cfg.MinOrderSize) {
				clientID := allocID()
				slot.place(clientID, idealPrice, size, auctionID, now)
				actions = append(actions, Action{Kind: ActionPlace, ClientID: clientID, Side: s.side, Price: idealPrice, Size: size})
				activeOrderCount++
				totalLiquidity = totalLiquidity.Add(size)
			}
		} else if !slot.IsEmpty() && slot.Cancel == types.CancelPending {
			// Cancel already outstanding from a prior pass: still
			// resting until confirmed, so it still occupies liquidity.
			pendingCancelLiquidity = pendingCancelLiquidity.Add(slot.AmountLeft)
			totalLiquidity = totalLiquidity.Add(slot.AmountLeft)
		}

		if totalLiquidity.Add(s.cfg.MinOrderSize).GreaterThanOrEqual(curve.MaxLiquidity) {
			break
		}
	}

	return actions
}

func (s *Side) issueCancel(o *Order, auctionID int64) {
	o.Cancel = types.CancelPending
	o.AuctionIDCancel = auctionID
}
