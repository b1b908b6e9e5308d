// Package ledger maintains the append-only store of per-trade lots and the
// realized P&L accumulator. A lot is created by every successful buy and is
// only ever mutated by proportional reduction on close; once its remaining
// shares fall below a negligible epsilon it is removed entirely.
//
// The ledger does not price anything. Close operations receive the net
// proceeds already computed by the pricing engine and apply the cost-basis
// arithmetic: realized P&L = netProceeds − closedProportion × grossPaid.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Ashurkovd/outcomebazaar/internal/model"
	"github.com/Ashurkovd/outcomebazaar/internal/store"
)

var (
	// ErrInvalidCloseAmount is returned when the close size is outside
	// (0, lot.Shares].
	ErrInvalidCloseAmount = errors.New("ledger: close amount outside open position")

	// ErrNoOpenLots is returned when an aggregate close finds no lots for
	// the requested market and outcome.
	ErrNoOpenLots = errors.New("ledger: no open lots for market and outcome")
)

// Epsilon is the share quantity below which a lot is treated as fully
// closed and removed.
var Epsilon = decimal.New(1, -9) // 1e-9

// Ledger owns lot mutation and the realized P&L accumulator.
type Ledger struct {
	store store.Store
}

// New creates a ledger over the given store.
func New(st store.Store) *Ledger {
	return &Ledger{store: st}
}

// Open appends a new lot. AvgCost is derived here so every lot carries a
// consistent cost basis per share.
func (l *Ledger) Open(ctx context.Context, lot *model.Lot) error {
	if lot.Shares.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("open lot: %w", ErrInvalidCloseAmount)
	}
	lot.AvgCost = lot.GrossPaid.Div(lot.Shares)
	return l.store.InsertLot(ctx, lot)
}

// CloseResult reports the effect of a close operation.
type CloseResult struct {
	RealizedPnL     decimal.Decimal
	RemainingShares decimal.Decimal
	LotsClosed      int
}

// ReducePartial closes sharesToClose out of a single lot for the given net
// proceeds. A close size equal to the full lot removes it; anything larger
// is rejected. The realized gain or loss is added to the accumulator.
func (l *Ledger) ReducePartial(ctx context.Context, lotID string, sharesToClose, netProceeds decimal.Decimal) (CloseResult, error) {
	var res CloseResult

	lot, err := l.store.GetLot(ctx, lotID)
	if err != nil {
		return res, err
	}
	if sharesToClose.LessThanOrEqual(decimal.Zero) || sharesToClose.GreaterThan(lot.Shares) {
		return res, ErrInvalidCloseAmount
	}

	realized, remaining, err := l.reduce(ctx, lot, sharesToClose, netProceeds)
	if err != nil {
		return res, err
	}

	if err := l.store.AddRealizedPnL(ctx, lot.UserID, realized); err != nil {
		return res, err
	}

	res.RealizedPnL = realized
	res.RemainingShares = remaining
	res.LotsClosed = 1
	return res, nil
}

// CloseFull closes a lot entirely for the given net proceeds.
func (l *Ledger) CloseFull(ctx context.Context, lotID string, netProceeds decimal.Decimal) (CloseResult, error) {
	lot, err := l.store.GetLot(ctx, lotID)
	if err != nil {
		return CloseResult{}, err
	}
	return l.ReducePartial(ctx, lotID, lot.Shares, netProceeds)
}

// Consumption is one lot's contribution to an aggregate close.
type Consumption struct {
	Lot    model.Lot
	Shares decimal.Decimal
}

// PlanFIFO walks lots oldest-first until the requested share quantity is
// satisfied. Lots are consumed whole until the last one, which may be
// reduced partially.
func PlanFIFO(lots []model.Lot, shares decimal.Decimal) ([]Consumption, error) {
	if shares.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidCloseAmount
	}

	var plan []Consumption
	remaining := shares
	for _, lot := range lots {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		take := decimal.Min(lot.Shares, remaining)
		plan = append(plan, Consumption{Lot: lot, Shares: take})
		remaining = remaining.Sub(take)
	}
	if remaining.GreaterThan(Epsilon) {
		return nil, ErrInvalidCloseAmount
	}
	return plan, nil
}

// CloseAggregate closes totalShares across a user's lots for one market and
// outcome, FIFO, allocating netProceeds across the consumed lots in
// proportion to the shares each contributes.
func (l *Ledger) CloseAggregate(ctx context.Context, userID, marketID string, outcome model.Outcome, totalShares, netProceeds decimal.Decimal) (CloseResult, error) {
	var res CloseResult

	lots, err := l.store.ListLots(ctx, userID, marketID, outcome)
	if err != nil {
		return res, err
	}
	if len(lots) == 0 {
		return res, ErrNoOpenLots
	}

	plan, err := PlanFIFO(lots, totalShares)
	if err != nil {
		return res, err
	}

	totalRealized := decimal.Zero
	for _, c := range plan {
		allocated := netProceeds.Mul(c.Shares).Div(totalShares)
		lot := c.Lot
		realized, remaining, err := l.reduce(ctx, &lot, c.Shares, allocated)
		if err != nil {
			return res, err
		}
		totalRealized = totalRealized.Add(realized)
		res.RemainingShares = res.RemainingShares.Add(remaining)
		res.LotsClosed++
	}

	// Untouched lots still count toward the remaining position.
	consumed := make(map[string]bool, len(plan))
	for _, c := range plan {
		consumed[c.Lot.ID] = true
	}
	for _, lot := range lots {
		if !consumed[lot.ID] {
			res.RemainingShares = res.RemainingShares.Add(lot.Shares)
		}
	}

	if err := l.store.AddRealizedPnL(ctx, userID, totalRealized); err != nil {
		return res, err
	}

	res.RealizedPnL = totalRealized
	return res, nil
}

// TotalShares sums a user's open shares for one market and outcome.
func (l *Ledger) TotalShares(ctx context.Context, userID, marketID string, outcome model.Outcome) (decimal.Decimal, error) {
	lots, err := l.store.ListLots(ctx, userID, marketID, outcome)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.Shares)
	}
	return total, nil
}

// reduce shrinks one lot by sharesToClose against allocated net proceeds.
// Shares, net invested, and gross paid all shrink by the same proportion,
// so AvgCost is unchanged. The lot is deleted when what remains is below
// Epsilon.
func (l *Ledger) reduce(ctx context.Context, lot *model.Lot, sharesToClose, netProceeds decimal.Decimal) (realized, remaining decimal.Decimal, err error) {
	proportion := sharesToClose.Div(lot.Shares)
	realized = netProceeds.Sub(proportion.Mul(lot.GrossPaid))

	remaining = lot.Shares.Sub(sharesToClose)
	if remaining.LessThanOrEqual(Epsilon) {
		if err := l.store.DeleteLot(ctx, lot.ID); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		return realized, decimal.Zero, nil
	}

	keep := decimal.NewFromInt(1).Sub(proportion)
	lot.Shares = remaining
	lot.GrossPaid = lot.GrossPaid.Mul(keep)
	lot.NetInvested = lot.NetInvested.Mul(keep)
	if err := l.store.UpdateLot(ctx, lot); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return realized, remaining, nil
}
