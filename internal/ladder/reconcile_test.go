package ladder

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

func testConfig() Config {
	return Config{
		TargetNumOrders: 3,
		TickJump:        money.FromFloat(0.5),
		MinOrderSize:    money.FromFloat(0.5),
		MaxOrderSize:    money.FromFloat(10),
		HysteresisLow:   money.FromFloat(0.9),
		HysteresisMin:   money.FromFloat(0.8),
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// S1 — cold start and quote.
func TestReconcileColdStart(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bid := NewSide(cfg, types.BID, money.FromFloat(100), testLogger())
	ask := NewSide(cfg, types.ASK, money.FromFloat(100), testLogger())

	bid.SetNewPrice(money.FromFloat(2000))
	ask.SetNewPrice(money.FromFloat(2000))

	curve := Curve{AvgTickLiquidity: money.FromFloat(6.25), MaxLiquidity: money.FromFloat(100)}
	nextID := int64(0)
	alloc := func() int64 { nextID++; return nextID }

	bidActions := bid.Reconcile(curve, 1, time.Now(), alloc)
	askActions := ask.Reconcile(curve, 1, time.Now(), alloc)

	if len(bidActions) != 3 {
		t.Fatalf("expected 3 bid placements, got %d: %+v", len(bidActions), bidActions)
	}
	wantBidPrices := []float64{1999.5, 1999.0, 1998.5}
	for i, a := range bidActions {
		if a.Kind != ActionPlace {
			t.Errorf("bid action %d: expected place, got %v", i, a.Kind)
		}
		if !a.Price.Equal(money.FromFloat(wantBidPrices[i])) {
			t.Errorf("bid action %d: price = %s, want %v", i, a.Price, wantBidPrices[i])
		}
	}

	if len(askActions) != 3 {
		t.Fatalf("expected 3 ask placements, got %d: %+v", len(askActions), askActions)
	}
	wantAskPrices := []float64{2000.5, 2001.0, 2001.5}
	for i, a := range askActions {
		if !a.Price.Equal(money.FromFloat(wantAskPrices[i])) {
			t.Errorf("ask action %d: price = %s, want %v", i, a.Price, wantAskPrices[i])
		}
	}
}

// S2 — upward shift by one tick: BID top moves from 2000.0 to 2000.5
// (2000.5 already lies on the 0.5 grid, so the BID floor leaves it
// unchanged). We drive this from the cold-start state and assert the
// rung-count and grid-alignment invariants continue to hold after a shift.
func TestReconcileShiftPreservesInvariants(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bid := NewSide(cfg, types.BID, money.FromFloat(100), testLogger())

	bid.SetNewPrice(money.FromFloat(2000))
	curve := Curve{AvgTickLiquidity: money.FromFloat(6.25), MaxLiquidity: money.FromFloat(100)}
	nextID := int64(0)
	alloc := func() int64 { nextID++; return nextID }
	bid.Reconcile(curve, 1, time.Now(), alloc)

	// Ack everything so the orders are live and subject to cancellation.
	for i := range bid.slots {
		if !bid.slots[i].IsEmpty() {
			bid.slots[i].State = types.StateAcked
		}
	}

	bid.SetNewPrice(money.FromFloat(2000.5))
	actions := bid.Reconcile(curve, 2, time.Now(), alloc)

	active := 0
	for i := range bid.slots {
		o := &bid.slots[i]
		if o.Active() {
			active++
			g := money.NewGrid(cfg.TickJump)
			if !g.FloorTo(o.Price).Equal(o.Price) {
				t.Errorf("order price %s not grid-aligned", o.Price)
			}
		}
	}
	if active > cfg.TargetNumOrders {
		t.Errorf("active order count %d exceeds target %d", active, cfg.TargetNumOrders)
	}
	if len(actions) == 0 {
		t.Error("expected at least one action after a price shift")
	}
}

// S3 — partial fill on BID updates position bookkeeping via Ladder.Trade.
func TestTradePartialFill(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bid := NewSide(cfg, types.BID, money.FromFloat(100), testLogger())
	ask := NewSide(cfg, types.ASK, money.FromFloat(100), testLogger())
	l := NewLadder(bid, ask, testLogger())

	bid.slots[0] = Order{Side: types.BID, ClientID: 42, Price: money.FromFloat(1999.5),
		TotalAmount: money.FromFloat(5), AmountLeft: money.FromFloat(5), State: types.StateMaker}

	delta, err := l.Trade(42, money.FromFloat(2))
	if err != nil {
		t.Fatalf("Trade: %v", err)
	}
	if !delta.Equal(money.FromFloat(2)) {
		t.Errorf("delta = %s, want 2", delta)
	}
	if !bid.slots[0].AmountLeft.Equal(money.FromFloat(3)) {
		t.Errorf("amount_left = %s, want 3", bid.slots[0].AmountLeft)
	}
	if bid.slots[0].State != types.StateMaker {
		t.Errorf("state = %s, want MAKER (partial fill keeps state)", bid.slots[0].State)
	}
	if !ask.AvailableLimit().Equal(money.FromFloat(102)) {
		t.Errorf("ask available_limit = %s, want 102", ask.AvailableLimit())
	}
	if !bid.AvailableLimit().Equal(money.FromFloat(98)) {
		t.Errorf("bid available_limit = %s, want 98", bid.AvailableLimit())
	}
}

// S4 — reject_cancel loop exhausts retries in a non-PENDING state -> fatal.
func TestCancelRejectExhaustionIsFatalWhenAcked(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bid := NewSide(cfg, types.BID, money.FromFloat(100), testLogger())
	ask := NewSide(cfg, types.ASK, money.FromFloat(100), testLogger())
	l := NewLadder(bid, ask, testLogger())

	bid.slots[0] = Order{Side: types.BID, ClientID: 7, Price: money.FromFloat(1999.5),
		TotalAmount: money.FromFloat(5), AmountLeft: money.FromFloat(5),
		State: types.StateAcked, Cancel: types.CancelPending}

	var err error
	for i := 0; i < MaxCancelRetries; i++ {
		bid.slots[0].Cancel = types.CancelPending
		err = l.CancelReject(7)
	}
	if err == nil {
		t.Fatal("expected fatal error after exhausting cancel retries in ACKED state")
	}
	if _, ok := err.(*FatalError); !ok {
		t.Errorf("expected *FatalError, got %T", err)
	}
}

// S4 variant — exhaustion while still PENDING resets to EMPTY rather than
// erroring (treated as never sent).
func TestCancelRejectExhaustionWhilePendingResets(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bid := NewSide(cfg, types.BID, money.FromFloat(100), testLogger())
	ask := NewSide(cfg, types.ASK, money.FromFloat(100), testLogger())
	l := NewLadder(bid, ask, testLogger())

	bid.slots[0] = Order{Side: types.BID, ClientID: 7, Price: money.FromFloat(1999.5),
		TotalAmount: money.FromFloat(5), AmountLeft: money.FromFloat(5),
		State: types.StatePending, Cancel: types.CancelPending}

	var err error
	for i := 0; i < MaxCancelRetries; i++ {
		bid.slots[0].Cancel = types.CancelPending
		err = l.CancelReject(7)
	}
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !bid.slots[0].IsEmpty() {
		t.Errorf("expected slot reset to EMPTY, state = %s", bid.slots[0].State)
	}
}

// S5 — out-of-order trade before ack: the FSM tolerates it.
func TestTradeBeforeAck(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bid := NewSide(cfg, types.BID, money.FromFloat(100), testLogger())
	ask := NewSide(cfg, types.ASK, money.FromFloat(100), testLogger())
	l := NewLadder(bid, ask, testLogger())

	bid.slots[0] = Order{Side: types.BID, ClientID: 9, Price: money.FromFloat(1999.5),
		TotalAmount: money.FromFloat(5), AmountLeft: money.FromFloat(5), State: types.StatePending}

	delta, err := l.Trade(9, money.FromFloat(1))
	if err != nil {
		t.Fatalf("Trade: %v", err)
	}
	if !delta.Equal(money.FromFloat(1)) {
		t.Errorf("delta = %s, want 1", delta)
	}
	if !bid.slots[0].AmountLeft.Equal(money.FromFloat(4)) {
		t.Errorf("amount_left = %s, want 4", bid.slots[0].AmountLeft)
	}
	if bid.slots[0].State != types.StatePending {
		t.Errorf("state changed unexpectedly to %s", bid.slots[0].State)
	}
}

func TestTradeExceedingAmountLeftIsFatal(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bid := NewSide(cfg, types.BID, money.FromFloat(100), testLogger())
	ask := NewSide(cfg, types.ASK, money.FromFloat(100), testLogger())
	l := NewLadder(bid, ask, testLogger())

	bid.slots[0] = Order{Side: types.BID, ClientID: 1, Price: money.FromFloat(1999.5),
		TotalAmount: money.FromFloat(5), AmountLeft: money.FromFloat(5), State: types.StateMaker}

	_, err := l.Trade(1, money.FromFloat(6))
	if err == nil {
		t.Fatal("expected fatal error for over-fill")
	}
}

func TestAckTogglesState(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bid := NewSide(cfg, types.BID, money.FromFloat(100), testLogger())
	ask := NewSide(cfg, types.ASK, money.FromFloat(100), testLogger())
	l := NewLadder(bid, ask, testLogger())

	bid.slots[0] = Order{Side: types.BID, ClientID: 3, State: types.StatePending}
	l.Ack(3)
	if bid.slots[0].State != types.StateAcked {
		t.Errorf("state = %s, want ACKED", bid.slots[0].State)
	}

	// duplicate ack is idempotent (already progressed past PENDING).
	l.Ack(3)
	if bid.slots[0].State != types.StateAcked {
		t.Errorf("duplicate ack changed state to %s", bid.slots[0].State)
	}
}

func TestFullFillResetsSlotToEmpty(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	bid := NewSide(cfg, types.BID, money.FromFloat(100), testLogger())
	ask := NewSide(cfg, types.ASK, money.FromFloat(100), testLogger())
	l := NewLadder(bid, ask, testLogger())

	bid.slots[0] = Order{Side: types.BID, ClientID: 5, Price: money.FromFloat(1999.5),
		TotalAmount: money.FromFloat(5), AmountLeft: money.FromFloat(5), State: types.StateActive}

	_, err := l.Trade(5, money.FromFloat(5))
	if err != nil {
		t.Fatalf("Trade: %v", err)
	}
	if !bid.slots[0].IsEmpty() {
		t.Errorf("expected slot to reset to EMPTY on full fill, state = %s", bid.slots[0].State)
	}
}
