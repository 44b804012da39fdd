package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"perpquoter/internal/config"
	"perpquoter/internal/ladder"
	"perpquoter/pkg/types"
)

// Adapter implements the place/cancel/nextClientId part of §4.E's contract
// (subscription is handled by VenueFeed): the single seam between internal/ladder's Action values and the venue's
// wire protocol. It owns batching (accumulate during a reconciliation
// pass, flush once at the pass's natural exit point) and async dispatch
// (the send path never blocks the caller).
type Adapter struct {
	client     *Client
	dispatcher *Dispatcher
	market     string
	leverage   int
	nextID     int64

	batch []ladder.Action
	log   *slog.Logger
}

// NewAdapter builds an Adapter. seedClientID is the next_client_id value
// recovered from the store snapshot (0 on a cold start); the first id
// handed out is seedClientID+1.
func NewAdapter(client *Client, dispatcher *Dispatcher, cfg config.Config, seedClientID int64, log *slog.Logger) *Adapter {
	return &Adapter{
		client:     client,
		dispatcher: dispatcher,
		market:     cfg.Market.Symbol,
		leverage:   int(cfg.Market.OrderLeverage),
		nextID:     seedClientID,
		log:        log.With("component", "adapter"),
	}
}

// NextClientID returns a fresh, monotonically increasing client order id.
func (a *Adapter) NextClientID() int64 {
	return atomic.AddInt64(&a.nextID, 1)
}

// PeekNextClientID reads the current counter without advancing it, for
// periodic persistence to the snapshot store.
func (a *Adapter) PeekNextClientID() int64 {
	return atomic.LoadInt64(&a.nextID)
}

// Enqueue appends a reconciliation action to the pending batch. It does not
// touch the network — call FlushBatch once the reconciliation pass
// completes.
func (a *Adapter) Enqueue(action ladder.Action) {
	a.batch = append(a.batch, action)
}

// FlushBatch dispatches every queued action asynchronously and clears the
// batch. Results arrive later on the dispatcher's Results channel, tagged
// with a correlation id; the caller (cmd/quoter's run loop) feeds them into
// Agent.HandleDispatchResult, which re-enters synchronously rejected
// placements into the FSM the same way a pushed reject_order would.
func (a *Adapter) FlushBatch(ctx context.Context) {
	if len(a.batch) == 0 {
		return
	}

	var toPlace []ladder.Action
	var toCancel []ladder.Action
	for _, act := range a.batch {
		switch act.Kind {
		case ladder.ActionPlace:
			toPlace = append(toPlace, act)
		case ladder.ActionCancel:
			toCancel = append(toCancel, act)
		}
	}
	a.batch = a.batch[:0]

	if len(toPlace) > 0 {
		a.dispatcher.Submit(ctx, "place", a.placeFunc(toPlace))
	}
	if len(toCancel) > 0 {
		a.dispatcher.Submit(ctx, "cancel", a.cancelFunc(toCancel))
	}
}

func (a *Adapter) placeFunc(actions []ladder.Action) func(context.Context) ([]int64, []int64, error) {
	orders := make([]PendingOrder, len(actions))
	for i, act := range actions {
		orders[i] = PendingOrder{
			ClientOrderID: act.ClientID,
			Market:        a.market,
			Side:          act.Side,
			Price:         act.Price.String(),
			Size:          act.Size.String(),
			Leverage:      a.leverage,
			Salt:          fmt.Sprintf("%d", act.ClientID),
			Expiration:    "0",
		}
	}

	return func(ctx context.Context) ([]int64, []int64, error) {
		results, err := a.client.PlaceOrders(ctx, orders)
		if err != nil {
			return nil, nil, err
		}
		var accepted, rejected []int64
		for _, r := range results {
			if r.Accepted {
				accepted = append(accepted, r.ClientOrderID)
			} else {
				a.log.Warn("order rejected", "client_id", r.ClientOrderID, "reason", r.Reason)
				rejected = append(rejected, r.ClientOrderID)
			}
		}
		return accepted, rejected, nil
	}
}

func (a *Adapter) cancelFunc(actions []ladder.Action) func(context.Context) ([]int64, []int64, error) {
	ids := make([]int64, len(actions))
	for i, act := range actions {
		ids[i] = act.ClientID
	}

	return func(ctx context.Context) ([]int64, []int64, error) {
		result, err := a.client.CancelOrders(ctx, ids)
		if err != nil {
			return ids, nil, err
		}
		return result.Cancelled, nil, nil
	}
}

// Login derives L2 session credentials, required before any place/cancel
// call can succeed.
func (a *Adapter) Login(ctx context.Context) error {
	_, err := a.client.Login(ctx)
	return err
}

// CancelOldOrders clears any orders a prior process left resting on the
// venue, per §3's "never adopt pre-existing orders" rule.
func (a *Adapter) CancelOldOrders(ctx context.Context, snapshot []types.OpenOrderSnapshot) error {
	if len(snapshot) == 0 {
		return nil
	}
	ids := make([]int64, len(snapshot))
	for i, o := range snapshot {
		ids[i] = o.ClientOrderID
	}
	_, err := a.client.CancelOrders(ctx, ids)
	return err
}
