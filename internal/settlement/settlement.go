// Package settlement defines the interface to the authoritative settlement
// backend. The engine's market state is an optimistic local mirror of what
// this collaborator reports; every trade must be confirmed here before it
// is considered final, and the mirror is periodically reconciled against
// MarketState.
package settlement

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Ashurkovd/outcomebazaar/internal/model"
)

var (
	// ErrRejected is returned when the backend refuses a submitted trade.
	ErrRejected = errors.New("settlement: trade rejected by backend")

	// ErrUnknownMarket is returned when the backend has no state for the
	// requested market.
	ErrUnknownMarket = errors.New("settlement: unknown market")
)

// Trade is a submission to the settlement backend.
type Trade struct {
	UserID   string
	MarketID string
	Outcome  model.Outcome
	Side     model.TradeEventType
	// Gross is the currency in (buys) or shares in (sells).
	Gross decimal.Decimal
}

// Confirmation is the backend's response to a submitted trade.
type Confirmation struct {
	TxID        string
	FilledGross decimal.Decimal
}

// Backend is the authoritative settlement collaborator.
//
// Submit is long-latency: it blocks until the trade is confirmed, the
// context is cancelled, or the backend rejects it. Callers bound it with a
// deadline and treat expiry as a settlement timeout.
type Backend interface {
	// Submit sends a trade for confirmation.
	Submit(ctx context.Context, trade Trade) (*Confirmation, error)

	// MarketState returns the authoritative pool state for reconciliation.
	MarketState(ctx context.Context, marketID string) (*model.Market, error)

	// Balance returns the user's settlement-currency balance.
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}
