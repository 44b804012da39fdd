// Package quote implements the inventory-skewed fair-price and
// liquidity-curve model (§4.C): on every reference-price update it
// recomputes the fair price and the per-tick liquidity target the
// reconciliation engine sweeps against.
package quote

import (
	"perpquoter/internal/ladder"
	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

// Config is the subset of per-market parameters the skew model needs.
type Config struct {
	TickJump     money.Amount
	MaxDiff      money.Amount // fractional skew at full position
	MaxPosition  money.Amount
	MaxLiquidity money.Amount // per-side resting size cap
	Spread       money.Amount // usually zero
}

// Model tracks position and, on each reference tick, derives the fair
// price and liquidity curve the ladders reconcile against.
type Model struct {
	cfg Config

	position money.Amount

	entryPrice       money.Amount
	liquidationPrice money.Amount
	totalMargin      money.Amount
	funding          money.Amount
}

func NewModel(cfg Config) *Model {
	return &Model{cfg: cfg}
}

func (m *Model) Position() money.Amount { return m.position }

// MaxPosition exposes the configured position cap, used to seed each side's
// available_limit as max_position ∓ position when a user_data partial
// arrives (§3).
func (m *Model) MaxPosition() money.Amount { return m.cfg.MaxPosition }

// SetPosition seeds position state from a user_data partial (§3).
func (m *Model) SetPosition(amount, entryPrice, liquidationPrice, totalMargin, funding money.Amount) {
	m.position = amount
	m.entryPrice = entryPrice
	m.liquidationPrice = liquidationPrice
	m.totalMargin = totalMargin
	m.funding = funding
}

// ApplyFill adjusts position after a trade; delta is signed (positive for
// a BID fill, negative for an ASK fill, per ladder.Ladder.Trade).
func (m *Model) ApplyFill(delta money.Amount) {
	m.position = m.position.Add(delta)
}

// UnrealizedPnL values the current position against a reference price
// using the entry price seeded from the last user_data partial.
func (m *Model) UnrealizedPnL(referencePrice money.Amount) money.Amount {
	return m.position.Mul(referencePrice.Sub(m.entryPrice))
}

// Fair is the result of one reference-price recomputation (§4.C).
type Fair struct {
	Price            money.Amount
	SkewFactor       money.Amount
	KyleImpact       money.Amount
	AvgTickLiquidity money.Amount
}

// Recompute applies the exact formula sequence from §4.C:
//
//	skew_factor        = 1 − max_diff · position / max_position
//	fair_price          = reference_price · skew_factor
//	kyle_impact         = reference_price · max_diff / max_position
//	avg_tick_liquidity  = tick_jump / kyle_impact
func (m *Model) Recompute(referencePrice money.Amount) Fair {
	one := money.FromFloat(1)

	skewFactor := one.Sub(m.cfg.MaxDiff.Mul(m.position).Div(m.cfg.MaxPosition))
	fairPrice := referencePrice.Mul(skewFactor)
	kyleImpact := referencePrice.Mul(m.cfg.MaxDiff).Div(m.cfg.MaxPosition)
	avgTickLiquidity := m.cfg.TickJump.Div(kyleImpact)

	return Fair{
		Price:            fairPrice,
		SkewFactor:       skewFactor,
		KyleImpact:       kyleImpact,
		AvgTickLiquidity: avgTickLiquidity,
	}
}

// Curve exposes the values internal/ladder.Reconcile needs, decoupling the
// two packages per §9's no-back-reference design note.
func (m *Model) Curve(f Fair) ladder.Curve {
	return ladder.Curve{AvgTickLiquidity: f.AvgTickLiquidity, MaxLiquidity: m.cfg.MaxLiquidity}
}

// Anchors computes the BID/ASK top-of-ladder prices, clamped to the
// venue's execution band (§4.C, S6).
func Anchors(fair Fair, spread money.Amount, band types.ExecutionBand) (bidTop, askTop money.Amount) {
	bidTop = money.Min(fair.Price.Sub(spread), band.High)
	askTop = money.Max(fair.Price.Add(spread), band.Low)
	return bidTop, askTop
}
