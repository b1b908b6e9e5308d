// Package guard wraps the pricing engine with fee deduction and liquidity
// protection. It decides whether an order is fully fillable, partially
// fillable (instant portion plus deferred remainder), or rejected.
//
// Two independent layers protect the pool:
//  1. A per-trade reserve cap: no single trade may consume more than
//     CapFraction of the reserve it deposits into.
//  2. A pool-usage ceiling: the cumulative fraction of seed liquidity
//     consumed by net deposits may never pass UsageCeiling. This is a
//     coarser capital-protection backstop independent of the AMM math.
package guard

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Ashurkovd/outcomebazaar/internal/model"
)

var (
	// ErrInvalidAmount is returned for a non-positive gross amount,
	// before any reserve is read.
	ErrInvalidAmount = errors.New("guard: amount must be positive")

	// ErrMarketNotActive is returned for any trade against a resolved or
	// cancelled market.
	ErrMarketNotActive = errors.New("guard: market is not open for trading")

	// ErrInsufficientLiquidity is returned when the net amount exceeds
	// instant-fill capacity and no split confirmation was given, or when
	// capacity is zero.
	ErrInsufficientLiquidity = errors.New("guard: insufficient instant-fill liquidity")

	// ErrPoolUsageExceeded is returned when a trade would push cumulative
	// pool usage above the hard ceiling.
	ErrPoolUsageExceeded = errors.New("guard: pool usage ceiling exceeded")
)

// Guard holds the fee and liquidity parameters. It is stateless: market
// reserves and usage are passed in, not stored.
type Guard struct {
	// FeeRate is the fraction of gross taken as fee, e.g. 0.015.
	FeeRate decimal.Decimal

	// CapFraction bounds a single trade relative to the relevant reserve,
	// e.g. 0.95 — never fully drain a reserve.
	CapFraction decimal.Decimal

	// UsageCeiling is the hard stop on cumulative pool usage, e.g. 0.95.
	UsageCeiling decimal.Decimal

	// DrawFraction converts a net deposit into pool capital consumed when
	// tracking usage. Matches the settlement contract's 0.4 factor.
	DrawFraction decimal.Decimal
}

// New creates a guard with the given parameters.
func New(feeRate, capFraction, usageCeiling, drawFraction decimal.Decimal) *Guard {
	return &Guard{
		FeeRate:      feeRate,
		CapFraction:  capFraction,
		UsageCeiling: usageCeiling,
		DrawFraction: drawFraction,
	}
}

// Fee splits a gross amount into (fee, net).
func (g *Guard) Fee(gross decimal.Decimal) (fee, net decimal.Decimal) {
	fee = gross.Mul(g.FeeRate)
	return fee, gross.Sub(fee)
}

// GrossFromNet reconstructs the gross amount whose fee deduction yields the
// given net: gross = net / (1 - feeRate). Used when a deferred remainder is
// converted back to a user-facing order size.
func (g *Guard) GrossFromNet(net decimal.Decimal) decimal.Decimal {
	return net.Div(decimal.NewFromInt(1).Sub(g.FeeRate))
}

// BuyDecision is the guard's verdict on a buy order.
type BuyDecision struct {
	Fee decimal.Decimal
	Net decimal.Decimal

	// Partial is set when the order was split into an instant fill plus a
	// deferred remainder.
	Partial     bool
	InstantNet  decimal.Decimal
	DeferredNet decimal.Decimal

	// FillRatio is InstantNet / Net (1 for full fills).
	FillRatio decimal.Decimal

	// NewUsage is the pool-usage ratio after the instant portion executes.
	NewUsage decimal.Decimal
	// PoolDraw is the seed capital consumed by the instant portion.
	PoolDraw decimal.Decimal
}

// CheckBuy validates a buy of outcome o for gross currency against the
// market's reserves and usage. confirmSplit signals that the caller has
// already accepted a partial fill; without it an oversized order is
// rejected rather than split.
func (g *Guard) CheckBuy(m *model.Market, o model.Outcome, gross decimal.Decimal, confirmSplit bool) (BuyDecision, error) {
	var dec BuyDecision

	if gross.LessThanOrEqual(decimal.Zero) {
		return dec, ErrInvalidAmount
	}
	if !m.CanTrade() {
		return dec, ErrMarketNotActive
	}

	dec.Fee, dec.Net = g.Fee(gross)

	// For a buy the deposit enters the opposite reserve; that reserve
	// bounds the trade's size.
	_, opposite := m.Reserves(o)
	maxInstant := opposite.Mul(g.CapFraction)

	switch {
	case maxInstant.LessThanOrEqual(decimal.Zero):
		return dec, ErrInsufficientLiquidity
	case dec.Net.LessThanOrEqual(maxInstant):
		dec.InstantNet = dec.Net
		dec.FillRatio = decimal.NewFromInt(1)
	case confirmSplit:
		dec.Partial = true
		dec.InstantNet = maxInstant
		dec.DeferredNet = dec.Net.Sub(maxInstant)
		dec.FillRatio = dec.InstantNet.Div(dec.Net)
	default:
		return dec, ErrInsufficientLiquidity
	}

	// Usage backstop, layered on top of the per-trade cap.
	if m.PoolSeed.IsPositive() {
		dec.PoolDraw = dec.InstantNet.Mul(g.DrawFraction)
		dec.NewUsage = m.PoolUsage.Add(dec.PoolDraw.Div(m.PoolSeed))
	} else {
		dec.NewUsage = m.PoolUsage
	}
	if m.PoolUsage.GreaterThanOrEqual(g.UsageCeiling) || dec.NewUsage.GreaterThan(g.UsageCeiling) {
		return dec, ErrPoolUsageExceeded
	}

	return dec, nil
}

// CheckSell validates a close of sharesToClose against the market. Sells
// deposit shares back into the sold side's own reserve, so that reserve
// bounds the trade. Oversized sells are rejected outright: the close path
// has no deferred remainder.
func (g *Guard) CheckSell(m *model.Market, o model.Outcome, sharesToClose decimal.Decimal) error {
	if sharesToClose.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if !m.CanTrade() {
		return ErrMarketNotActive
	}

	same, _ := m.Reserves(o)
	maxInstant := same.Mul(g.CapFraction)
	if maxInstant.LessThanOrEqual(decimal.Zero) || sharesToClose.GreaterThan(maxInstant) {
		return ErrInsufficientLiquidity
	}
	return nil
}
