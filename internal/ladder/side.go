package ladder

import (
	"log/slog"
	"time"

	"perpquoter/pkg/money"
	"perpquoter/pkg/types"
)

// Config holds the per-side, per-market ladder parameters (§6's
// per-market config keys, split by side since BID and ASK carry
// independent available_limit budgets).
type Config struct {
	TargetNumOrders int // N
	TickJump        money.Amount
	MinOrderSize    money.Amount
	MaxOrderSize    money.Amount
	HysteresisLow   money.Amount // H_low, default 0.9
	HysteresisMin   money.Amount // H_min, default 0.8
}

// MaxOrders is the ring buffer's slot count, 2N (§3).
func (c Config) MaxOrders() int { return c.TargetNumOrders * 2 }

// ActionKind distinguishes the two intents a reconciliation pass emits.
type ActionKind int

const (
	ActionPlace ActionKind = iota
	ActionCancel
)

// Action is an intended venue call — place or cancel — produced by
// Reconcile. The caller (internal/engine) is responsible for dispatching
// it through the venue adapter; Side never calls the adapter itself
// (§9's "no parent back-pointer" design note).
type Action struct {
	Kind     ActionKind
	ClientID int64
	Side     types.Side
	Price    money.Amount
	Size     money.Amount
}

// Side is one side's ring buffer of order slots plus the top-of-book
// anchor that rotates over it.
type Side struct {
	cfg  Config
	side types.Side
	log  *slog.Logger

	slots []Order

	topOrder int64 // logical index; physical slot = topOrder mod len(slots)
	topPrice money.Amount
	hasPrice bool

	availableLimit money.Amount
}

// NewSide builds an empty ladder of cfg.MaxOrders() slots.
func NewSide(cfg Config, side types.Side, availableLimit money.Amount, log *slog.Logger) *Side {
	slots := make([]Order, cfg.MaxOrders())
	for i := range slots {
		slots[i].Side = side
	}
	return &Side{
		cfg:            cfg,
		side:           side,
		log:            log.With("side", string(side)),
		slots:          slots,
		availableLimit: availableLimit,
	}
}

func (s *Side) AvailableLimit() money.Amount { return s.availableLimit }

// SetAvailableLimit overwrites the side's headroom outright. Used once, when
// a user_data partial arrives and seeds available_limit as
// max_position ∓ position (§3) — ordinary fills use AddAvailableLimit.
func (s *Side) SetAvailableLimit(v money.Amount) { s.availableLimit = v }

// AddAvailableLimit adjusts the side's headroom; the FSM trade handler
// calls it on both sides of a fill, debiting the side that filled and
// crediting the opposite side (§4.C, §8 invariant 4).
func (s *Side) AddAvailableLimit(delta money.Amount) {
	s.availableLimit = s.availableLimit.Add(delta)
}

func (s *Side) TopPrice() (money.Amount, bool) { return s.topPrice, s.hasPrice }

// physical maps a logical rung index to its backing slot.
func (s *Side) physical(logical int64) int {
	n := int64(len(s.slots))
	p := logical % n
	if p < 0 {
		p += n
	}
	return int(p)
}

// grid is the price grid this side quantizes to.
func (s *Side) grid() money.Grid { return money.NewGrid(s.cfg.TickJump) }

// sizeGrid is the size grid orders are quantized to.
func (s *Side) sizeGrid() money.Grid { return money.NewGrid(s.cfg.MinOrderSize) }

// SetNewPrice quantizes newPrice to this side's grid (floor for BID, ceil
// for ASK, per §4.B) and rotates top_order by the resulting step count.
// Slot contents are untouched — prices are re-evaluated by the next
// Reconcile call, not here.
func (s *Side) SetNewPrice(newPrice money.Amount) {
	g := s.grid()

	var quantized money.Amount
	if s.side == types.BID {
		quantized = g.FloorTo(newPrice)
	} else {
		quantized = g.CeilTo(newPrice)
	}

	if !s.hasPrice {
		s.topPrice = quantized
		s.hasPrice = true
		return
	}

	steps := g.StepsBetween(s.topPrice, quantized)
	if s.side == types.BID {
		steps = -steps
	}
	s.topOrder += steps
	s.topPrice = quantized
}

// FindByClientID locates the slot holding clientID, if any. Used by the
// FSM to route venue order events back to their slot.
func (s *Side) FindByClientID(clientID int64) (*Order, bool) {
	for i := range s.slots {
		if !s.slots[i].IsEmpty() && s.slots[i].ClientID == clientID {
			return &s.slots[i], true
		}
	}
	return nil, false
}

// CancelAll issues a cancel for every resting, not-already-cancelling
// order. Used by engine.Agent.CancelEverything, on the risk monitor's kill
// switch and on shutdown.
func (s *Side) CancelAll(auctionID int64, now time.Time) []Action {
	var actions []Action
	for i := range s.slots {
		o := &s.slots[i]
		if o.IsEmpty() || o.Cancel == types.CancelPending {
			continue
		}
		o.Cancel = types.CancelPending
		o.AuctionIDCancel = auctionID
		actions = append(actions, Action{Kind: ActionCancel, ClientID: o.ClientID, Side: s.side, Price: o.Price, Size: o.AmountLeft})
	}
	return actions
}
