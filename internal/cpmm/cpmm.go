// Package cpmm implements the constant-product market maker (CPMM) used to
// price binary outcome markets.
//
// The pool holds two currency-denominated reserves, one per outcome. The
// product k = reserveSame * reserveOpposite is held constant across a
// fee-free swap, which gives:
//   - Spot prices that always sum to 1 across the two sides
//   - Convex slippage: large trades pay progressively worse average prices
//   - An exact inverse, so buy and sell use one consistent formula
//
// All monetary values use shopspring/decimal — never float64 for money.
// Reserves are kept at full division precision internally; callers round
// at the presentation boundary.
package cpmm

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned when the trade amount is zero or negative.
	ErrInvalidAmount = errors.New("cpmm: amount must be positive")

	// ErrEmptyPool is returned when either reserve is not strictly positive.
	ErrEmptyPool = errors.New("cpmm: both reserves must be positive")
)

// PriceScale is the number of decimal places for price rounding.
var PriceScale int32 = 8

// SpotPrice returns the instantaneous price of the outcome whose reserve is
// reserveSame:
//
//	price = reserveOpposite / (reserveSame + reserveOpposite)
//
// Both reserves positive by invariant, so the result lies in (0, 1) and the
// two sides' prices sum to 1. Unrounded; round with PriceScale at the
// presentation boundary.
func SpotPrice(reserveSame, reserveOpposite decimal.Decimal) decimal.Decimal {
	return reserveOpposite.Div(reserveSame.Add(reserveOpposite))
}

// QuoteBuy converts a net currency deposit into outcome shares.
//
// The deposit enters the opposite reserve; the purchased side's reserve
// shrinks so that k is preserved:
//
//	newOpposite = reserveOpposite + netAmount
//	newSame     = k / newOpposite
//	sharesOut   = reserveSame - newSame
//
// sharesOut is always in (0, reserveSame): a buy can never drain the
// purchased reserve entirely, so post-trade prices still sum to 1.
func QuoteBuy(reserveSame, reserveOpposite, netAmount decimal.Decimal) (sharesOut, newSame, newOpposite decimal.Decimal, err error) {
	if netAmount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	if reserveSame.LessThanOrEqual(decimal.Zero) || reserveOpposite.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, decimal.Zero, ErrEmptyPool
	}

	k := reserveSame.Mul(reserveOpposite)
	newOpposite = reserveOpposite.Add(netAmount)
	newSame = k.Div(newOpposite)
	sharesOut = reserveSame.Sub(newSame)
	return sharesOut, newSame, newOpposite, nil
}

// QuoteSell is the exact inverse of QuoteBuy, applied to the outcome being
// sold. Shares return to their own reserve; the opposite reserve releases
// currency so that k is preserved:
//
//	newSame     = reserveSame + sharesIn
//	newOpposite = k / newSame
//	proceeds    = reserveOpposite - newOpposite
//
// Using the same invariant for both directions means a buy-then-sell cycle
// can never create value.
func QuoteSell(reserveSame, reserveOpposite, sharesIn decimal.Decimal) (proceeds, newSame, newOpposite decimal.Decimal, err error) {
	if sharesIn.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, decimal.Zero, ErrInvalidAmount
	}
	if reserveSame.LessThanOrEqual(decimal.Zero) || reserveOpposite.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, decimal.Zero, decimal.Zero, ErrEmptyPool
	}

	k := reserveSame.Mul(reserveOpposite)
	newSame = reserveSame.Add(sharesIn)
	newOpposite = k.Div(newSame)
	proceeds = reserveOpposite.Sub(newOpposite)
	return proceeds, newSame, newOpposite, nil
}

// AvgPrice returns the average execution price per share for a trade:
// currency in (or out) divided by shares out (or in).
func AvgPrice(amount, shares decimal.Decimal) decimal.Decimal {
	if shares.IsZero() {
		return decimal.Zero
	}
	return amount.Div(shares).Round(PriceScale)
}

// Slippage returns the percentage difference between the average execution
// price and the pre-trade spot price. Positive slippage means the trade
// moved the price against the trader. Returns zero when spot is zero.
func Slippage(avgPrice, spotPrice decimal.Decimal) decimal.Decimal {
	if spotPrice.IsZero() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	return avgPrice.Sub(spotPrice).Div(spotPrice).Mul(hundred).Round(4)
}
