// Package engine is the event demultiplexer (§4.D): the single consumer of
// venue and reference-feed messages, and the single place core state
// (ladders, fair price, position, readiness flags) is mutated. It runs one
// callback at a time — the "single-threaded cooperative" scheduling model
// §5 requires so no lock is needed around ladder/quote state.
package engine

import (
	"context"
	"log/slog"
	"time"

	"perpquoter/internal/exchange"
	"perpquoter/internal/ladder"
	"perpquoter/internal/quote"
	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

// Agent owns the ladder, the fair-price model, and the readiness state
// machine for one symbol. It is constructed once in cmd/quoter and driven
// by HandleEnvelope/HandleReferenceTick from the WS read loops.
type Agent struct {
	market string
	spread money.Amount

	ladder  *ladder.Ladder
	quote   *quote.Model
	adapter *exchange.Adapter
	log     *slog.Logger

	executionBand    types.ExecutionBand
	hasExecutionBand bool

	hasUserBalance bool
	hasOldOrders   bool
	hasUserPos     bool
	active         bool

	lastAuctionID int64
	hasAuctionID  bool

	lastFair    quote.Fair
	hasLastFair bool

	balances map[string]types.Balance
}

// Config is the subset of per-market parameters the agent needs directly
// (the rest is threaded through the ladder/quote configs at construction).
type Config struct {
	Market string
	Spread money.Amount
}

// NewAgent wires a ladder, quote model, and venue adapter into one agent.
func NewAgent(cfg Config, l *ladder.Ladder, q *quote.Model, adapter *exchange.Adapter, log *slog.Logger) *Agent {
	return &Agent{
		market:   cfg.Market,
		spread:   cfg.Spread,
		ladder:   l,
		quote:    q,
		adapter:  adapter,
		log:      log.With("component", "engine", "market", cfg.Market),
		balances: make(map[string]types.Balance),
	}
}

// Active reports whether the agent has observed all four readiness signals
// and begun quoting.
func (a *Agent) Active() bool { return a.active }

// Balance returns the last known available/frozen amounts for one asset
// line from the most recent user_data partial, if any.
func (a *Agent) Balance(asset string) (types.Balance, bool) {
	b, ok := a.balances[asset]
	return b, ok
}

// HandleEnvelope decodes and dispatches one venue message (§4.D's dispatch
// table). A non-nil error is always a *ladder.FatalError the caller should
// treat as unrecoverable; ordinary protocol issues are logged and absorbed
// here, never returned.
func (a *Agent) HandleEnvelope(ctx context.Context, env types.Envelope) error {
	evt, err := DecodeVenueEvent(env)
	if err != nil {
		a.log.Warn("discarding unparseable venue message", "topic", env.Topic, "event", env.Event, "error", err)
		return nil
	}

	switch e := evt.(type) {
	case UserDataPartialEvent:
		return a.handleUserDataPartial(ctx, e.Payload)
	case MarketDataPartialEvent:
		a.handleMarketDataPartial(e.Payload)
	case UpdateEvent:
		a.handleUpdate(e)
	case OrderLifecycleEvent:
		return a.handleOrderLifecycle(e)
	case TradeEvent:
		return a.handleTrade(e)
	case IgnoredEvent:
		a.log.Debug("ignoring event", "topic", e.Topic, "event", e.Event)
	}
	return nil
}

func (a *Agent) handleUserDataPartial(ctx context.Context, payload types.UserDataPartialPayload) error {
	for _, b := range payload.Balance {
		available, errA := money.ParseAmount(b.Available)
		frozen, errF := money.ParseAmount(b.Frozen)
		if errA != nil || errF != nil {
			a.log.Warn("skipping balance line with unparseable amount", "asset", b.Asset)
			continue
		}
		a.balances[b.Asset] = types.Balance{Asset: b.Asset, Available: available, Frozen: frozen}
	}
	a.hasUserBalance = true // set once this snapshot is read, even if empty (§3)

	var orphans []types.OpenOrderSnapshot
	for _, o := range payload.Orders {
		price, err := money.ParseAmount(o.Price)
		if err != nil {
			a.log.Warn("orphan order has unparseable price, cancelling anyway", "client_order_id", o.ClientOrderID, "error", err)
		}
		amount, err := money.ParseAmount(o.Amount)
		if err != nil {
			a.log.Warn("orphan order has unparseable amount, cancelling anyway", "client_order_id", o.ClientOrderID, "error", err)
		}
		side := types.BID
		if o.Side == "ask" {
			side = types.ASK
		}
		orphans = append(orphans, types.OpenOrderSnapshot{
			ClientOrderID: o.ClientOrderID,
			Market:        o.Market,
			Side:          side,
			Price:         price,
			Amount:        amount,
		})
	}
	if err := a.adapter.CancelOldOrders(ctx, orphans); err != nil {
		a.log.Warn("failed to cancel orphan orders", "error", err)
	}
	a.hasOldOrders = true

	for _, p := range payload.Positions {
		if p.Market != a.market {
			continue
		}
		amount, err := money.ParseAmount(p.Amount)
		if err != nil {
			a.log.Warn("skipping position with unparseable amount", "error", err)
			continue
		}
		entry, _ := money.ParseAmount(p.EntryPrice)
		liq, _ := money.ParseAmount(p.LiquidationPrice)
		margin, _ := money.ParseAmount(p.TotalMargin)
		funding, _ := money.ParseAmount(p.Funding)
		a.quote.SetPosition(amount, entry, liq, margin, funding)

		maxPos := a.quote.MaxPosition()
		a.ladder.Bid.SetAvailableLimit(maxPos.Sub(amount))
		a.ladder.Ask.SetAvailableLimit(maxPos.Add(amount))
	}
	a.hasUserPos = true

	a.checkReadiness()
	return nil
}

func (a *Agent) handleMarketDataPartial(payload types.MarketDataPartialPayload) {
	if payload.ExecutionBand == nil {
		return
	}
	band, err := decodeBand(*payload.ExecutionBand)
	if err != nil {
		a.log.Warn("discarding unparseable execution_band", "error", err)
		return
	}
	a.executionBand = band
	a.hasExecutionBand = true
	a.checkReadiness()
}

func (a *Agent) handleUpdate(e UpdateEvent) {
	if a.hasAuctionID && e.AuctionID <= a.lastAuctionID {
		a.log.Warn("non-monotonic auction_id, ignoring", "got", e.AuctionID, "last", a.lastAuctionID)
		return
	}
	a.lastAuctionID = e.AuctionID
	a.hasAuctionID = true
	if e.ExecutionBand != nil {
		a.executionBand = *e.ExecutionBand
		a.hasExecutionBand = true
		a.checkReadiness()
	}
}

func (a *Agent) handleOrderLifecycle(e OrderLifecycleEvent) error {
	switch e.Kind {
	case LifecycleAck:
		a.ladder.Ack(e.ClientOrderID)
	case LifecycleMaker:
		a.ladder.Maker(e.ClientOrderID)
	case LifecycleActive:
		a.ladder.MarkActive(e.ClientOrderID)
	case LifecycleRemove:
		a.ladder.Remove(e.ClientOrderID)
	case LifecycleReject:
		a.ladder.Reject(e.ClientOrderID)
	case LifecycleRejectCancel:
		return a.ladder.CancelReject(e.ClientOrderID)
	}
	return nil
}

func (a *Agent) handleTrade(e TradeEvent) error {
	delta, err := a.ladder.Trade(e.ClientOrderID, e.ExecutionAmount)
	if err != nil {
		return err
	}
	a.quote.ApplyFill(delta)
	return nil
}

// HandleDispatchResult reacts to a completed async place/cancel round. A
// placement the venue synchronously rejected never reaches PENDING's normal
// --reject--> exit (no reject_order event is pushed for it), so this drives
// the same ladder.Reject transition directly; cancel results need no
// action here since a successful cancel is confirmed by a pushed remove
// event and a failed one by reject_cancel.
func (a *Agent) HandleDispatchResult(result exchange.DispatchResult) {
	if result.Kind != "place" {
		return
	}
	for _, clientID := range result.Rejected {
		a.ladder.Reject(clientID)
	}
}

// checkReadiness flips active exactly once, the first time all four
// readiness flags are simultaneously true (§3). It is never cleared
// afterward.
func (a *Agent) checkReadiness() {
	if a.active {
		return
	}
	if a.hasUserBalance && a.hasOldOrders && a.hasUserPos && a.hasExecutionBand {
		a.active = true
		a.log.Info("agent active, beginning quote loop")
	}
}

// HandleReferenceTick recomputes the fair price and, once active, runs one
// full reconciliation pass: recenter both ladders on the new fair price,
// sweep each side's rungs, and flush the resulting place/cancel batch.
func (a *Agent) HandleReferenceTick(ctx context.Context, tick types.ReferenceTick) error {
	fair := a.quote.Recompute(tick.Price)
	a.lastFair = fair
	a.hasLastFair = true

	if !a.active {
		return nil
	}
	if !a.hasExecutionBand {
		return nil
	}

	bidTop, askTop := quote.Anchors(fair, a.spread, a.executionBand)

	a.ladder.Bid.SetNewPrice(bidTop)
	a.ladder.Ask.SetNewPrice(askTop)

	curve := a.quote.Curve(fair)
	now := time.Now()

	for _, act := range a.ladder.Bid.Reconcile(curve, a.lastAuctionID, now, a.adapter.NextClientID) {
		a.adapter.Enqueue(act)
	}
	for _, act := range a.ladder.Ask.Reconcile(curve, a.lastAuctionID, now, a.adapter.NextClientID) {
		a.adapter.Enqueue(act)
	}

	a.adapter.FlushBatch(ctx)
	return nil
}

// AgentSnapshot is the read-only view the dashboard renders. It is a plain
// value, decoupled from Agent's internals so internal/dashboard never
// reaches into ladder/quote state directly.
type AgentSnapshot struct {
	Market string
	Active bool

	Position         money.Amount
	FairPrice        money.Amount
	SkewFactor       money.Amount
	AvgTickLiquidity money.Amount
	HasFairPrice     bool

	BidTopPrice    money.Amount
	HasBidTopPrice bool
	BidAvailable   money.Amount
	AskTopPrice    money.Amount
	HasAskTopPrice bool
	AskAvailable   money.Amount

	ExecutionBand    types.ExecutionBand
	HasExecutionBand bool

	LastAuctionID int64
}

// Snapshot builds a read-only view of current agent state for the dashboard.
func (a *Agent) Snapshot() AgentSnapshot {
	bidTop, hasBidTop := a.ladder.Bid.TopPrice()
	askTop, hasAskTop := a.ladder.Ask.TopPrice()

	snap := AgentSnapshot{
		Market:           a.market,
		Active:           a.active,
		Position:         a.quote.Position(),
		BidTopPrice:      bidTop,
		HasBidTopPrice:   hasBidTop,
		BidAvailable:     a.ladder.Bid.AvailableLimit(),
		AskTopPrice:      askTop,
		HasAskTopPrice:   hasAskTop,
		AskAvailable:     a.ladder.Ask.AvailableLimit(),
		ExecutionBand:    a.executionBand,
		HasExecutionBand: a.hasExecutionBand,
		LastAuctionID:    a.lastAuctionID,
	}
	if a.hasLastFair {
		snap.HasFairPrice = true
		snap.FairPrice = a.lastFair.Price
		snap.SkewFactor = a.lastFair.SkewFactor
		snap.AvgTickLiquidity = a.lastFair.AvgTickLiquidity
	}
	return snap
}

// CancelEverything cancels every resting order on both sides — used by the
// risk monitor's kill switch and on graceful shutdown.
func (a *Agent) CancelEverything(ctx context.Context) {
	now := time.Now()
	for _, act := range a.ladder.Bid.CancelAll(a.lastAuctionID, now) {
		a.adapter.Enqueue(act)
	}
	for _, act := range a.ladder.Ask.CancelAll(a.lastAuctionID, now) {
		a.adapter.Enqueue(act)
	}
	a.adapter.FlushBatch(ctx)
}
