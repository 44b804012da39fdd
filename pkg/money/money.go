// Package money provides the single fixed-point decimal type used for all
// price and size arithmetic in the agent. Venue event amounts are parsed
// straight from their decimal strings. Config values, and reference-feed
// prices sent as JSON numbers, arrive as float64 and are converted with
// FromFloat; the risk monitor compares PnL and price moves as float64.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a decimal value with no grid attached — used for every price
// and size (rung prices, order sizes, position, balances, PnL); Grid does
// the quantizing.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{d: decimal.Zero}

// NewAmount wraps a decimal.Decimal.
func NewAmount(d decimal.Decimal) Amount { return Amount{d: d} }

// ParseAmount parses a decimal string (as found in venue JSON payloads).
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// FromFloat builds an Amount from a float64 (reference-feed prices, which
// the venue itself only ever expresses as JSON numbers).
func FromFloat(f float64) Amount { return Amount{d: decimal.NewFromFloat(f)} }

func (a Amount) Decimal() decimal.Decimal { return a.d }
func (a Amount) Float64() float64         { f, _ := a.d.Float64(); return f }
func (a Amount) String() string           { return a.d.String() }

func (a Amount) Add(b Amount) Amount      { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount      { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Mul(b Amount) Amount      { return Amount{d: a.d.Mul(b.d)} }
func (a Amount) Neg() Amount              { return Amount{d: a.d.Neg()} }
func (a Amount) Abs() Amount              { return Amount{d: a.d.Abs()} }
func (a Amount) IsZero() bool             { return a.d.IsZero() }
func (a Amount) IsNegative() bool         { return a.d.IsNegative() }
func (a Amount) GreaterThan(b Amount) bool      { return a.d.GreaterThan(b.d) }
func (a Amount) GreaterThanOrEqual(b Amount) bool { return a.d.GreaterThanOrEqual(b.d) }
func (a Amount) LessThan(b Amount) bool         { return a.d.LessThan(b.d) }
func (a Amount) LessThanOrEqual(b Amount) bool  { return a.d.LessThanOrEqual(b.d) }
func (a Amount) Equal(b Amount) bool            { return a.d.Equal(b.d) }

// Div divides by another Amount; callers are responsible for avoiding
// division by zero (the agent divides by max_position, which the loader
// validates as > 0, and by kyle_impact, which is zero only when the
// reference price is zero).
func (a Amount) Div(b Amount) Amount { return Amount{d: a.d.Div(b.d)} }

// MulInt multiplies by a plain integer, e.g. scaling a per-tick liquidity
// constant out to rung i.
func (a Amount) MulInt(n int64) Amount { return Amount{d: a.d.Mul(decimal.NewFromInt(n))} }

func Min(a, b Amount) Amount {
	if a.d.LessThan(b.d) {
		return a
	}
	return b
}

func Max(a, b Amount) Amount {
	if a.d.GreaterThan(b.d) {
		return a
	}
	return b
}

func (a Amount) MarshalJSON() ([]byte, error) { return json.Marshal(a.d.String()) }

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("unmarshal amount %q: %w", s, err)
		}
		a.d = d
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("unmarshal amount: %w", err)
	}
	a.d = decimal.NewFromFloat(f)
	return nil
}

// Grid quantizes values onto a price or size ladder defined by a tick
// quantum. BID prices floor to the grid, ASK prices ceil to it; sizes
// always floor (never place more than intended).
type Grid struct {
	quantum decimal.Decimal
}

// NewGrid builds a grid from a tick_jump or min_order_size style quantum.
func NewGrid(quantum Amount) Grid { return Grid{quantum: quantum.d} }

func (g Grid) Quantum() Amount { return Amount{d: g.quantum} }

// FloorTo rounds v down to the nearest multiple of the grid quantum.
func (g Grid) FloorTo(v Amount) Amount {
	if g.quantum.IsZero() {
		return v
	}
	steps := v.d.Div(g.quantum).Floor()
	return Amount{d: steps.Mul(g.quantum)}
}

// CeilTo rounds v up to the nearest multiple of the grid quantum.
func (g Grid) CeilTo(v Amount) Amount {
	if g.quantum.IsZero() {
		return v
	}
	steps := v.d.Div(g.quantum).Ceil()
	return Amount{d: steps.Mul(g.quantum)}
}

// StepsBetween returns (b-a)/quantum as an integer number of grid steps.
// Used by Side.SetNewPrice to compute how far top_order must rotate.
func (g Grid) StepsBetween(a, b Amount) int64 {
	if g.quantum.IsZero() {
		return 0
	}
	return b.d.Sub(a.d).Div(g.quantum).IntPart()
}

// At returns quantum * n, i.e. the price/size reached after n grid steps
// from zero. Combined with an anchor this gives rung i's price or a
// quantity's size.
func (g Grid) At(n int64) Amount {
	return Amount{d: g.quantum.Mul(decimal.NewFromInt(n))}
}
