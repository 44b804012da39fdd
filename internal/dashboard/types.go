// Package dashboard is a read-only operator status server: a small HTTP/WS
// surface that serves the current ladder/quote/risk state as JSON and
// pushes live updates over a websocket hub, adapted from the teacher's
// multi-market dashboard down to a single symbol.
package dashboard

import (
	"time"

	"perpquoter/internal/config"
	"perpquoter/internal/engine"
	"perpquoter/internal/risk"
	"perpquoter/pkg/money"
)

// Snapshot is the complete dashboard state for one symbol's agent.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Market string `json:"market"`
	Active bool   `json:"active"`

	FairPrice        money.Amount `json:"fair_price"`
	SkewFactor       money.Amount `json:"skew_factor"`
	AvgTickLiquidity money.Amount `json:"avg_tick_liquidity"`

	Bid LadderSideStatus `json:"bid"`
	Ask LadderSideStatus `json:"ask"`

	ExecutionBandLow  money.Amount `json:"execution_band_low"`
	ExecutionBandHigh money.Amount `json:"execution_band_high"`
	HasExecutionBand  bool         `json:"has_execution_band"`

	Position money.Amount `json:"position"`

	Risk RiskStatus `json:"risk"`

	Config ConfigSummary `json:"config"`

	LastAuctionID int64 `json:"last_auction_id"`
}

// LadderSideStatus is one side's resting state.
type LadderSideStatus struct {
	TopPrice       money.Amount `json:"top_price"`
	HasTopPrice    bool         `json:"has_top_price"`
	AvailableLimit money.Amount `json:"available_limit"`
}

// RiskStatus mirrors risk.Snapshot in dashboard-stable field names.
type RiskStatus struct {
	UnrealizedPnL    money.Amount `json:"unrealized_pnl"`
	RealizedPnL      money.Amount `json:"realized_pnl"`
	MaxDailyLoss     float64      `json:"max_daily_loss"`
	KillSwitchActive bool         `json:"kill_switch_active"`
	KillSwitchUntil  time.Time    `json:"kill_switch_until,omitempty"`
}

// ConfigSummary exposes the tunable parameters an operator cares about,
// without leaking wallet/credential fields.
type ConfigSummary struct {
	Symbol          string  `json:"symbol"`
	TickJump        float64 `json:"tick_jump"`
	OrdersPerSide   int     `json:"orders_per_side"`
	MaxPosition     float64 `json:"max_position"`
	MaxLiquidity    float64 `json:"max_liquidity"`
	MaxDiff         float64 `json:"max_diff"`
	DryRun          bool    `json:"dry_run"`
}

func newConfigSummary(cfg config.Config) ConfigSummary {
	return ConfigSummary{
		Symbol:        cfg.Market.Symbol,
		TickJump:      cfg.Market.TickJump,
		OrdersPerSide: cfg.Market.OrdersPerSide,
		MaxPosition:   cfg.Market.MaxPosition,
		MaxLiquidity:  cfg.Market.MaxLiquidity,
		MaxDiff:       cfg.Market.MaxDiff,
		DryRun:        cfg.DryRun,
	}
}

func newRiskStatus(snap risk.Snapshot) RiskStatus {
	return RiskStatus{
		UnrealizedPnL:    snap.UnrealizedPnL,
		RealizedPnL:      snap.RealizedPnL,
		MaxDailyLoss:     snap.MaxDailyLoss,
		KillSwitchActive: snap.KillSwitchActive,
		KillSwitchUntil:  snap.KillSwitchUntil,
	}
}

// BuildSnapshot assembles one Snapshot from the agent and risk monitor's
// current state, plus a static config summary.
func BuildSnapshot(agentSnap engine.AgentSnapshot, riskSnap risk.Snapshot, cfg config.Config, now time.Time) Snapshot {
	return Snapshot{
		Timestamp:        now,
		Market:           agentSnap.Market,
		Active:           agentSnap.Active,
		FairPrice:        agentSnap.FairPrice,
		SkewFactor:       agentSnap.SkewFactor,
		AvgTickLiquidity: agentSnap.AvgTickLiquidity,
		Bid: LadderSideStatus{
			TopPrice:       agentSnap.BidTopPrice,
			HasTopPrice:    agentSnap.HasBidTopPrice,
			AvailableLimit: agentSnap.BidAvailable,
		},
		Ask: LadderSideStatus{
			TopPrice:       agentSnap.AskTopPrice,
			HasTopPrice:    agentSnap.HasAskTopPrice,
			AvailableLimit: agentSnap.AskAvailable,
		},
		ExecutionBandLow:  agentSnap.ExecutionBand.Low,
		ExecutionBandHigh: agentSnap.ExecutionBand.High,
		HasExecutionBand:  agentSnap.HasExecutionBand,
		Position:          agentSnap.Position,
		Risk:              newRiskStatus(riskSnap),
		Config:            newConfigSummary(cfg),
		LastAuctionID:     agentSnap.LastAuctionID,
	}
}
