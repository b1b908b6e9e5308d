// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-session use).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Ashurkovd/outcomebazaar/internal/model"
)

var (
	// ErrMarketNotFound is returned when a market ID does not exist.
	ErrMarketNotFound = errors.New("store: market not found")

	// ErrLotNotFound is returned when a lot ID does not exist.
	ErrLotNotFound = errors.New("store: lot not found")

	// ErrOrderNotFound is returned when a deferred order ID does not exist.
	ErrOrderNotFound = errors.New("store: deferred order not found")
)

// Store is the persistence interface. The engine holds a per-market write
// lock around read-modify-write sequences, so implementations only need
// individual operations to be atomic.
type Store interface {
	// --- Market operations ---

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by its ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns all markets.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// UpdateMarket writes back reserves, usage, lifecycle state, and
	// volume counters after a trade or lifecycle transition.
	UpdateMarket(ctx context.Context, market *model.Market) error

	// --- Lots ---

	// InsertLot appends a new lot to the ledger.
	InsertLot(ctx context.Context, lot *model.Lot) error

	// GetLot retrieves a lot by ID.
	GetLot(ctx context.Context, id string) (*model.Lot, error)

	// UpdateLot writes back a proportionally reduced lot.
	UpdateLot(ctx context.Context, lot *model.Lot) error

	// DeleteLot removes a fully closed lot.
	DeleteLot(ctx context.Context, id string) error

	// ListLotsByUser returns all open lots for a user, oldest first.
	ListLotsByUser(ctx context.Context, userID string) ([]model.Lot, error)

	// ListLots returns a user's open lots for one market and outcome,
	// oldest first (FIFO consumption order).
	ListLots(ctx context.Context, userID, marketID string, outcome model.Outcome) ([]model.Lot, error)

	// --- Deferred orders ---

	// InsertDeferredOrder records the unfilled remainder of a split buy.
	InsertDeferredOrder(ctx context.Context, order *model.DeferredOrder) error

	// GetDeferredOrder retrieves a deferred order by ID.
	GetDeferredOrder(ctx context.Context, id string) (*model.DeferredOrder, error)

	// UpdateDeferredOrderStatus transitions a deferred order's status.
	UpdateDeferredOrderStatus(ctx context.Context, id string, status model.DeferredOrderStatus) error

	// ListDeferredOrdersByUser returns all deferred orders for a user.
	ListDeferredOrdersByUser(ctx context.Context, userID string) ([]model.DeferredOrder, error)

	// --- Immutable activity ledger ---

	// InsertTradeEvent appends an immutable trade record.
	InsertTradeEvent(ctx context.Context, event *model.TradeEvent) error

	// ListTradeEventsByMarket returns all trades for a market.
	ListTradeEventsByMarket(ctx context.Context, marketID string) ([]model.TradeEvent, error)

	// ListTradeEventsByUser returns all trades for a user.
	ListTradeEventsByUser(ctx context.Context, userID string) ([]model.TradeEvent, error)

	// --- Realized P&L accumulator ---

	// AddRealizedPnL adds the realized gain or loss of a close to the
	// user's running total.
	AddRealizedPnL(ctx context.Context, userID string, delta decimal.Decimal) error

	// RealizedPnL returns the user's running realized P&L total.
	RealizedPnL(ctx context.Context, userID string) (decimal.Decimal, error)
}
