package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"perpquoter/internal/config"
	"perpquoter/internal/exchange"
	"perpquoter/internal/ladder"
	"perpquoter/internal/quote"
	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAgent(t *testing.T) (*Agent, *exchange.Dispatcher, context.Context) {
	t.Helper()
	log := testLogger()

	ladderCfg := ladder.Config{
		TargetNumOrders: 3,
		TickJump:        money.FromFloat(0.5),
		MinOrderSize:    money.FromFloat(0.5),
		MaxOrderSize:    money.FromFloat(10),
		HysteresisLow:   money.FromFloat(0.9),
		HysteresisMin:   money.FromFloat(0.8),
	}
	bid := ladder.NewSide(ladderCfg, types.BID, money.Zero, log)
	ask := ladder.NewSide(ladderCfg, types.ASK, money.Zero, log)
	l := ladder.NewLadder(bid, ask, log)

	q := quote.NewModel(quote.Config{
		TickJump:     money.FromFloat(0.5),
		MaxDiff:      money.FromFloat(0.004),
		MaxPosition:  money.FromFloat(100),
		MaxLiquidity: money.FromFloat(100),
		Spread:       money.Zero,
	})

	cfg := config.Config{
		Market: config.MarketConfig{Symbol: "ETH-PERP", OrderLeverage: 10},
		DryRun: true,
	}
	client := exchange.NewClient(cfg, &exchange.Auth{}, log)

	d := exchange.NewDispatcher(2, log)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})

	adapter := exchange.NewAdapter(client, d, cfg, 0, log)
	agent := NewAgent(Config{Market: "ETH-PERP", Spread: money.Zero}, l, q, adapter, log)
	return agent, d, ctx
}

func TestAgentColdStartAndQuote(t *testing.T) {
	t.Parallel()
	agent, d, ctx := testAgent(t)

	userData := types.Envelope{Topic: "user_data", Event: "partial", Payload: mustJSON(t, types.UserDataPartialPayload{
		Balance:   []types.BalanceWire{{Asset: "USD", Available: "1000", Frozen: "0"}},
		Orders:    nil,
		Positions: []types.PositionWire{{Market: "ETH-PERP", Amount: "0", Funding: "0", EntryPrice: "2000", LiquidationPrice: "0", TotalMargin: "0"}},
	})}
	if err := agent.HandleEnvelope(ctx, userData); err != nil {
		t.Fatalf("user_data.partial: %v", err)
	}

	if b, ok := agent.Balance("USD"); !ok || !b.Available.Equal(money.FromFloat(1000)) {
		t.Errorf("Balance(USD) = %+v, ok=%v, want available=1000", b, ok)
	}

	marketData := types.Envelope{Topic: "market_data", Event: "partial", Payload: mustJSON(t, types.MarketDataPartialPayload{
		ExecutionBand: &types.ExecutionBandWire{Low: "1980", High: "2020"},
	})}
	if err := agent.HandleEnvelope(ctx, marketData); err != nil {
		t.Fatalf("market_data.partial: %v", err)
	}

	if !agent.Active() {
		t.Fatal("expected agent to be active after all readiness flags set")
	}

	if err := agent.HandleReferenceTick(ctx, types.ReferenceTick{Price: money.FromFloat(2000)}); err != nil {
		t.Fatalf("HandleReferenceTick: %v", err)
	}

	var placeCount, cancelCount int
	deadline := time.After(2 * time.Second)
	for placeCount < 6 {
		select {
		case res := <-d.Results():
			if res.Err != nil {
				t.Fatalf("dispatch error: %v", res.Err)
			}
			switch res.Kind {
			case "place":
				placeCount += len(res.ClientOrderIDs)
			case "cancel":
				cancelCount++
			}
		case <-deadline:
			t.Fatalf("timed out waiting for dispatch results, placeCount=%d", placeCount)
		}
	}
	_ = cancelCount
}

func TestAgentOrderLifecycleDispatch(t *testing.T) {
	t.Parallel()
	agent, _, ctx := testAgent(t)

	agent.ladder.Bid.SetNewPrice(money.FromFloat(2000))
	curve := ladder.Curve{AvgTickLiquidity: money.FromFloat(6.25), MaxLiquidity: money.FromFloat(100)}
	agent.ladder.Bid.SetAvailableLimit(money.FromFloat(100))
	actions := agent.ladder.Bid.Reconcile(curve, 1, time.Now(), func() int64 { return 42 })
	if len(actions) == 0 {
		t.Fatal("expected at least one place action to seed a test order")
	}
	clientID := actions[0].ClientID

	ackEnv := types.Envelope{Topic: "user_data", Event: "acknowledge_order", Payload: mustJSON(t, types.OrderEventPayload{ClientOrderID: clientID})}
	if err := agent.HandleEnvelope(ctx, ackEnv); err != nil {
		t.Fatalf("acknowledge_order: %v", err)
	}

	o, ok := agent.ladder.Bid.FindByClientID(clientID)
	if !ok {
		t.Fatal("expected order to be found after ack")
	}
	if o.State != types.StateAcked {
		t.Errorf("state = %s, want ACKED", o.State)
	}
}

func TestAgentHandleDispatchResultRejectsPendingOrder(t *testing.T) {
	t.Parallel()
	agent, _, _ := testAgent(t)

	agent.ladder.Bid.SetNewPrice(money.FromFloat(2000))
	curve := ladder.Curve{AvgTickLiquidity: money.FromFloat(6.25), MaxLiquidity: money.FromFloat(100)}
	agent.ladder.Bid.SetAvailableLimit(money.FromFloat(100))
	nextID := int64(98)
	actions := agent.ladder.Bid.Reconcile(curve, 1, time.Now(), func() int64 { nextID++; return nextID })
	if len(actions) == 0 {
		t.Fatal("expected at least one place action to seed a test order")
	}
	clientID := actions[0].ClientID

	agent.HandleDispatchResult(exchange.DispatchResult{Kind: "place", Rejected: []int64{clientID}})

	if o, ok := agent.ladder.Bid.FindByClientID(clientID); ok {
		t.Errorf("expected rejected order to be reset to EMPTY, found state %s", o.State)
	}
}

func TestAgentTradeAppliesFillAndPosition(t *testing.T) {
	t.Parallel()
	agent, _, ctx := testAgent(t)

	agent.ladder.Bid.SetNewPrice(money.FromFloat(2000))
	curve := ladder.Curve{AvgTickLiquidity: money.FromFloat(6.25), MaxLiquidity: money.FromFloat(100)}
	agent.ladder.Bid.SetAvailableLimit(money.FromFloat(100))
	actions := agent.ladder.Bid.Reconcile(curve, 1, time.Now(), func() int64 { return 77 })
	if len(actions) == 0 {
		t.Fatal("expected a place action")
	}
	clientID := actions[0].ClientID
	size := actions[0].Size

	tradeEnv := types.Envelope{Topic: "user_data", Event: "taker_trade", Payload: mustJSON(t, types.TradeEventPayload{
		ClientOrderID:   clientID,
		ExecutionAmount: size.String(),
		Side:            "bid",
	})}
	if err := agent.HandleEnvelope(ctx, tradeEnv); err != nil {
		t.Fatalf("taker_trade: %v", err)
	}

	if !agent.quote.Position().Equal(size) {
		t.Errorf("position = %s, want %s", agent.quote.Position(), size)
	}
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
