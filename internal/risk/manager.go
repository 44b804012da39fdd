// Package risk runs an independent kill switch beside the core engine.
//
// The monitor tracks realized and unrealized PnL for one symbol plus a
// rolling reference-price-shock window. When daily loss or the shock
// threshold is breached, it emits a KillSignal; the caller is expected to
// force-cancel the whole ladder and pause new placements for
// CooldownAfterKill. The monitor never touches ladder or FSM state
// directly — it only ever drives the adapter's existing cancel path.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"perpquoter/internal/config"
	"perpquoter/pkg/money"
)

// PnLReport is submitted by cmd/quoter's run loop on every reference tick.
type PnLReport struct {
	Position      money.Amount
	ReferencePrice money.Amount
	UnrealizedPnL money.Amount
	RealizedPnL   money.Amount
	Timestamp     time.Time
}

// KillSignal tells the caller to cancel everything and pause quoting.
type KillSignal struct {
	Reason string
}

type priceAnchor struct {
	price     money.Amount
	timestamp time.Time
}

// Manager watches PnL and reference-price movement for one symbol.
type Manager struct {
	cfg    config.RiskConfig
	logger *slog.Logger

	mu               sync.RWMutex
	last             PnLReport
	hasReport        bool
	killSwitchActive bool
	killSwitchUntil  time.Time
	anchor           priceAnchor
	hasAnchor        bool

	reportCh chan PnLReport
	killCh   chan KillSignal
}

func NewManager(cfg config.RiskConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger.With("component", "risk"),
		reportCh: make(chan PnLReport, 100),
		killCh:   make(chan KillSignal, 10),
	}
}

// Run drives the monitoring loop. A periodic tick clears an expired
// cooldown even when no new report has arrived.
func (rm *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case report := <-rm.reportCh:
			rm.processReport(report)
		case <-ticker.C:
			rm.clearExpiredKillSwitch()
		}
	}
}

// Report submits a PnL snapshot, non-blocking.
func (rm *Manager) Report(report PnLReport) {
	select {
	case rm.reportCh <- report:
	default:
		rm.logger.Warn("risk report channel full, dropping report")
	}
}

// KillCh returns the channel the engine reads kill signals from.
func (rm *Manager) KillCh() <-chan KillSignal { return rm.killCh }

// IsKillSwitchActive reports whether quoting should stay paused.
func (rm *Manager) IsKillSwitchActive() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if !rm.killSwitchActive {
		return false
	}
	if time.Now().After(rm.killSwitchUntil) {
		rm.killSwitchActive = false
		rm.logger.Info("kill switch cooldown expired")
		return false
	}
	return true
}

// Snapshot exposes current risk state for the dashboard.
type Snapshot struct {
	Position         money.Amount
	UnrealizedPnL    money.Amount
	RealizedPnL      money.Amount
	MaxDailyLoss     float64
	KillSwitchActive bool
	KillSwitchUntil  time.Time
}

func (rm *Manager) Snapshot() Snapshot {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	return Snapshot{
		Position:         rm.last.Position,
		UnrealizedPnL:    rm.last.UnrealizedPnL,
		RealizedPnL:      rm.last.RealizedPnL,
		MaxDailyLoss:     rm.cfg.MaxDailyLoss,
		KillSwitchActive: rm.killSwitchActive,
		KillSwitchUntil:  rm.killSwitchUntil,
	}
}

func (rm *Manager) processReport(report PnLReport) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.last = report
	rm.hasReport = true

	totalPnL := report.RealizedPnL.Add(report.UnrealizedPnL).Float64()
	if totalPnL < -rm.cfg.MaxDailyLoss {
		rm.emitKill("max daily loss breached")
	}

	rm.checkPriceMovement(report)
}

// checkPriceMovement compares the reference price to an anchor set at the
// start of the rolling window, resetting the anchor once it expires.
func (rm *Manager) checkPriceMovement(report PnLReport) {
	window := time.Duration(rm.cfg.KillSwitchWindowSec) * time.Second

	if !rm.hasAnchor || report.Timestamp.Sub(rm.anchor.timestamp) > window {
		rm.anchor = priceAnchor{price: report.ReferencePrice, timestamp: report.Timestamp}
		rm.hasAnchor = true
		return
	}

	anchorPrice := rm.anchor.price.Float64()
	if anchorPrice == 0 {
		return
	}
	currentPrice := report.ReferencePrice.Float64()

	pctChange := (currentPrice - anchorPrice) / anchorPrice
	if pctChange < 0 {
		pctChange = -pctChange
	}

	if pctChange > rm.cfg.KillSwitchDropPct {
		rm.emitKill(fmt.Sprintf("rapid price movement: %.1f%% in %ds", pctChange*100, rm.cfg.KillSwitchWindowSec))
	}
}

func (rm *Manager) clearExpiredKillSwitch() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.killSwitchActive && time.Now().After(rm.killSwitchUntil) {
		rm.killSwitchActive = false
		rm.logger.Info("kill switch cooldown expired")
	}
}

// emitKill activates the kill switch and pushes a signal, draining a stale
// one first if the channel is full so the latest reason always gets through.
func (rm *Manager) emitKill(reason string) {
	rm.killSwitchActive = true
	rm.killSwitchUntil = time.Now().Add(rm.cfg.CooldownAfterKill)

	rm.logger.Error("kill switch triggered", "reason", reason, "cooldown_until", rm.killSwitchUntil)

	sig := KillSignal{Reason: reason}
	select {
	case rm.killCh <- sig:
	default:
		select {
		case <-rm.killCh:
		default:
		}
		rm.killCh <- sig
	}
}
