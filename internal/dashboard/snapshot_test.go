package dashboard

import (
	"testing"
	"time"

	"perpquoter/internal/config"
	"perpquoter/internal/engine"
	"perpquoter/internal/risk"
	"perpquoter/pkg/money"
)

func TestBuildSnapshot(t *testing.T) {
	t.Parallel()

	agentSnap := engine.AgentSnapshot{
		Market:         "ETH-PERP",
		Active:         true,
		Position:       money.FromFloat(2.5),
		FairPrice:      money.FromFloat(2001.3),
		HasFairPrice:   true,
		BidTopPrice:    money.FromFloat(2000),
		HasBidTopPrice: true,
		AskTopPrice:    money.FromFloat(2002),
		HasAskTopPrice: true,
		LastAuctionID:  7,
	}
	riskSnap := risk.Snapshot{
		RealizedPnL:      money.FromFloat(10),
		KillSwitchActive: false,
	}
	cfg := config.Config{Market: config.MarketConfig{Symbol: "ETH-PERP", MaxPosition: 100}}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := BuildSnapshot(agentSnap, riskSnap, cfg, now)

	if snap.Market != "ETH-PERP" {
		t.Errorf("Market = %q, want ETH-PERP", snap.Market)
	}
	if !snap.Active {
		t.Error("expected Active = true")
	}
	if !snap.Bid.TopPrice.Equal(money.FromFloat(2000)) {
		t.Errorf("Bid.TopPrice = %s, want 2000", snap.Bid.TopPrice)
	}
	if snap.Config.MaxPosition != 100 {
		t.Errorf("Config.MaxPosition = %v, want 100", snap.Config.MaxPosition)
	}
}
