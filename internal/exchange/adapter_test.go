package exchange

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"perpquoter/internal/config"
	"perpquoter/internal/ladder"
	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

func testAdapter(t *testing.T) (*Adapter, *Dispatcher, context.Context) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	client := newDryRunClient()
	d := NewDispatcher(2, logger)
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	t.Cleanup(func() {
		cancel()
		d.Stop()
	})

	cfg := config.Config{Market: config.MarketConfig{Symbol: "ETH-PERP", OrderLeverage: 10}}
	a := NewAdapter(client, d, cfg, 100, logger)
	return a, d, ctx
}

func TestNextClientIDIncrements(t *testing.T) {
	t.Parallel()
	a, _, _ := testAdapter(t)

	first := a.NextClientID()
	second := a.NextClientID()
	if second != first+1 {
		t.Errorf("second = %d, want %d", second, first+1)
	}
}

func TestFlushBatchDispatchesPlaceAndCancel(t *testing.T) {
	t.Parallel()
	a, d, ctx := testAdapter(t)

	a.Enqueue(ladder.Action{Kind: ladder.ActionPlace, ClientID: 1, Side: types.BID, Price: money.FromFloat(1999.5), Size: money.FromFloat(5.5)})
	a.Enqueue(ladder.Action{Kind: ladder.ActionCancel, ClientID: 2, Side: types.ASK, Price: money.FromFloat(2001), Size: money.FromFloat(5.5)})

	a.FlushBatch(ctx)

	seenPlace, seenCancel := false, false
	for i := 0; i < 2; i++ {
		select {
		case res := <-d.Results():
			if res.Err != nil {
				t.Errorf("unexpected error: %v", res.Err)
			}
			switch res.Kind {
			case "place":
				seenPlace = true
			case "cancel":
				seenCancel = true
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for dispatch result")
		}
	}
	if !seenPlace || !seenCancel {
		t.Errorf("seenPlace=%v seenCancel=%v, want both true", seenPlace, seenCancel)
	}
}

func TestFlushBatchNoopWhenEmpty(t *testing.T) {
	t.Parallel()
	a, d, ctx := testAdapter(t)

	a.FlushBatch(ctx)

	select {
	case res := <-d.Results():
		t.Fatalf("unexpected result: %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
}
