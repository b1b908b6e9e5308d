// Package model defines the core domain types shared across the market engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome identifies one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Valid reports whether o is one of the two defined outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Opposite returns the other side of the market.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// MarketState is the lifecycle state of a market. Transitions are
// Active → Resolved or Active → Cancelled; both are terminal.
type MarketState string

const (
	StateActive    MarketState = "active"
	StateResolved  MarketState = "resolved"
	StateCancelled MarketState = "cancelled"
)

// ErrTerminalState is returned when resolving or cancelling a market
// that has already left the active state.
var ErrTerminalState = errors.New("model: market is in a terminal state")

// Market mirrors the authoritative pool state of one binary market.
// YesReserve and NoReserve are the two sides of the constant-product pool;
// prices are always derived from reserves and never stored.
type Market struct {
	ID       string      `json:"id" db:"id"`
	Question string      `json:"question" db:"question"`
	Category string      `json:"category" db:"category"`
	State    MarketState `json:"state" db:"state"`
	// Outcome is meaningful only when State == StateResolved.
	Outcome      Outcome         `json:"outcome,omitempty" db:"outcome"`
	YesReserve   decimal.Decimal `json:"yes_reserve" db:"yes_reserve"`
	NoReserve    decimal.Decimal `json:"no_reserve" db:"no_reserve"`
	PoolSeed     decimal.Decimal `json:"pool_seed" db:"pool_seed"`
	PoolUsage    decimal.Decimal `json:"pool_usage" db:"pool_usage"` // fraction of seed consumed, [0,1]
	Participants int64           `json:"participants" db:"participants"`
	Volume    decimal.Decimal `json:"volume" db:"volume"`
	EndTime      time.Time       `json:"end_time" db:"end_time"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// YesPrice returns the spot price of the YES side: noReserve / (yes + no).
func (m *Market) YesPrice() decimal.Decimal {
	total := m.YesReserve.Add(m.NoReserve)
	if total.IsZero() {
		return decimal.NewFromFloat(0.5)
	}
	return m.NoReserve.Div(total)
}

// NoPrice returns the spot price of the NO side: yesReserve / (yes + no).
// YesPrice + NoPrice = 1 by construction.
func (m *Market) NoPrice() decimal.Decimal {
	total := m.YesReserve.Add(m.NoReserve)
	if total.IsZero() {
		return decimal.NewFromFloat(0.5)
	}
	return m.YesReserve.Div(total)
}

// Price returns the spot price of the requested side.
func (m *Market) Price(o Outcome) decimal.Decimal {
	if o == OutcomeYes {
		return m.YesPrice()
	}
	return m.NoPrice()
}

// Reserves returns the (same, opposite) reserve pair for the given outcome:
// "same" is the reserve of the traded side, "opposite" the other.
func (m *Market) Reserves(o Outcome) (same, opposite decimal.Decimal) {
	if o == OutcomeYes {
		return m.YesReserve, m.NoReserve
	}
	return m.NoReserve, m.YesReserve
}

// SetReserves writes back a (same, opposite) pair for the given outcome.
func (m *Market) SetReserves(o Outcome, same, opposite decimal.Decimal) {
	if o == OutcomeYes {
		m.YesReserve, m.NoReserve = same, opposite
		return
	}
	m.NoReserve, m.YesReserve = same, opposite
}

// CanTrade reports whether buy/sell requests are permitted.
func (m *Market) CanTrade() bool {
	return m.State == StateActive
}

// Resolve moves the market to the resolved terminal state with the given
// winning outcome. Trading is disabled; the winning side redeems at 1.
func (m *Market) Resolve(winner Outcome) error {
	if m.State != StateActive {
		return ErrTerminalState
	}
	m.State = StateResolved
	m.Outcome = winner
	return nil
}

// Cancel moves the market to the cancelled terminal state. All positions
// become refundable at cost.
func (m *Market) Cancel() error {
	if m.State != StateActive {
		return ErrTerminalState
	}
	m.State = StateCancelled
	return nil
}

// Lot is one tranche of shares acquired by a single buy. Immutable except
// for proportional size reduction on partial close.
type Lot struct {
	ID       string          `json:"id" db:"id"`
	UserID   string          `json:"user_id" db:"user_id"`
	MarketID string          `json:"market_id" db:"market_id"`
	Outcome  Outcome         `json:"outcome" db:"outcome"`
	Shares   decimal.Decimal `json:"shares" db:"shares"`
	// GrossPaid is the currency paid by the user, fee included.
	GrossPaid decimal.Decimal `json:"gross_paid" db:"gross_paid"`
	// NetInvested is GrossPaid minus fee: the amount that entered the swap.
	NetInvested decimal.Decimal `json:"net_invested" db:"net_invested"`
	// AvgCost is GrossPaid / Shares at creation (cost basis per share).
	AvgCost   decimal.Decimal `json:"avg_cost" db:"avg_cost"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`

	// Partial-fill metadata, set when this lot is the instant portion of
	// an oversized order.
	PartialFill    bool            `json:"partial_fill,omitempty" db:"partial_fill"`
	RequestedGross decimal.Decimal `json:"requested_gross,omitempty" db:"requested_gross"`
	FilledGross    decimal.Decimal `json:"filled_gross,omitempty" db:"filled_gross"`
	FillRatio      decimal.Decimal `json:"fill_ratio,omitempty" db:"fill_ratio"`
}

// DeferredOrderStatus is the lifecycle of a deferred (limit) order.
// There is no automatic transition to a filled state: no matching loop
// runs against future liquidity. Orders are inert until cancelled.
type DeferredOrderStatus string

const (
	DeferredPending   DeferredOrderStatus = "pending"
	DeferredCancelled DeferredOrderStatus = "cancelled"
)

// DeferredOrder records the unfilled remainder of an oversized buy.
type DeferredOrder struct {
	ID       string  `json:"id" db:"id"`
	UserID   string  `json:"user_id" db:"user_id"`
	MarketID string  `json:"market_id" db:"market_id"`
	Outcome  Outcome `json:"outcome" db:"outcome"`
	// Amount is the gross currency still to be deposited (fee re-added).
	Amount      decimal.Decimal     `json:"amount" db:"amount"`
	TargetPrice decimal.Decimal     `json:"target_price" db:"target_price"`
	Status      DeferredOrderStatus `json:"status" db:"status"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
}

// TradeEventType distinguishes ledger activity entries.
type TradeEventType string

const (
	EventBuy  TradeEventType = "BUY"
	EventSell TradeEventType = "SELL"
)

// TradeEvent is an immutable activity record appended on every executed
// buy or sell. Once created, these are never modified or deleted.
type TradeEvent struct {
	ID        string          `json:"id" db:"id"`
	Type      TradeEventType  `json:"type" db:"type"`
	UserID    string          `json:"user_id" db:"user_id"`
	MarketID  string          `json:"market_id" db:"market_id"`
	Outcome   Outcome         `json:"outcome" db:"outcome"`
	Shares    decimal.Decimal `json:"shares" db:"shares"`
	Price     decimal.Decimal `json:"price" db:"price"` // average fill price
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Fee       decimal.Decimal `json:"fee" db:"fee"`
	PnL       decimal.Decimal `json:"pnl,omitempty" db:"pnl"` // realized, sells only
	YesPrice  decimal.Decimal `json:"yes_price" db:"yes_price"` // post-trade YES spot
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// PricePoint is one sample in a market's price history, derived from its
// trade events.
type PricePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	YesPrice  decimal.Decimal `json:"yes_price"`
	NoPrice   decimal.Decimal `json:"no_price"`
}

// PositionAggregate is the per-(market, outcome) projection over open lots.
type PositionAggregate struct {
	MarketID       string          `json:"market_id"`
	Question       string          `json:"question"`
	Outcome        Outcome         `json:"outcome"`
	TotalShares    decimal.Decimal `json:"total_shares"`
	TotalGrossPaid decimal.Decimal `json:"total_gross_paid"`
	AvgCost        decimal.Decimal `json:"avg_cost"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	UnrealizedPnL  decimal.Decimal `json:"unrealized_pnl"`
	Lots           int             `json:"lots"`
}

// PortfolioSnapshot aggregates all positions for a user with P&L totals.
type PortfolioSnapshot struct {
	UserID         string              `json:"user_id"`
	Aggregates     []PositionAggregate `json:"aggregates"`
	PortfolioValue decimal.Decimal     `json:"portfolio_value"`
	RealizedPnL    decimal.Decimal     `json:"realized_pnl"`
	UnrealizedPnL  decimal.Decimal     `json:"unrealized_pnl"`
	TotalPnL       decimal.Decimal     `json:"total_pnl"`
}
