// Package portfolio is the read-only projection over the position ledger
// and current market state. Nothing here mutates: every call recomputes
// from the store because prices move continuously, so caching an aggregate
// across market-state changes would serve stale P&L.
package portfolio

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Ashurkovd/outcomebazaar/internal/model"
	"github.com/Ashurkovd/outcomebazaar/internal/store"
)

// Aggregator builds per-(market, outcome) aggregates and portfolio totals.
type Aggregator struct {
	store   store.Store
	feeRate decimal.Decimal
}

// New creates an aggregator. feeRate is the close-side fee used when
// marking unrealized P&L: a position's exit value is always net of the fee
// the close would pay.
func New(st store.Store, feeRate decimal.Decimal) *Aggregator {
	return &Aggregator{store: st, feeRate: feeRate}
}

// Snapshot computes the full portfolio view for one user. Aggregates are
// ordered by market ID then outcome so repeated reads of unchanged state
// are identical.
func (a *Aggregator) Snapshot(ctx context.Context, userID string) (*model.PortfolioSnapshot, error) {
	lots, err := a.store.ListLotsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("portfolio snapshot: %w", err)
	}

	type key struct {
		marketID string
		outcome  model.Outcome
	}

	aggs := make(map[key]*model.PositionAggregate)
	var order []key

	for _, lot := range lots {
		k := key{lot.MarketID, lot.Outcome}
		agg, ok := aggs[k]
		if !ok {
			agg = &model.PositionAggregate{
				MarketID: lot.MarketID,
				Outcome:  lot.Outcome,
			}
			aggs[k] = agg
			order = append(order, k)
		}
		agg.TotalShares = agg.TotalShares.Add(lot.Shares)
		agg.TotalGrossPaid = agg.TotalGrossPaid.Add(lot.GrossPaid)
		agg.Lots++
	}

	snapshot := &model.PortfolioSnapshot{UserID: userID}

	for _, k := range order {
		agg := aggs[k]

		market, err := a.store.GetMarket(ctx, k.marketID)
		if err != nil {
			return nil, fmt.Errorf("portfolio snapshot: %w", err)
		}
		agg.Question = market.Question
		agg.CurrentPrice = markPrice(market, k.outcome)

		if agg.TotalShares.IsPositive() {
			agg.AvgCost = agg.TotalGrossPaid.Div(agg.TotalShares)
		}
		agg.CurrentValue = agg.TotalShares.Mul(agg.CurrentPrice)

		switch market.State {
		case model.StateCancelled:
			// Refundable at cost: no gain, no loss.
			agg.CurrentValue = agg.TotalGrossPaid
			agg.UnrealizedPnL = decimal.Zero
		default:
			exitFee := agg.CurrentValue.Mul(a.feeRate)
			agg.UnrealizedPnL = agg.CurrentValue.Sub(exitFee).Sub(agg.TotalGrossPaid)
		}

		snapshot.Aggregates = append(snapshot.Aggregates, *agg)
		snapshot.PortfolioValue = snapshot.PortfolioValue.Add(agg.CurrentValue)
		snapshot.UnrealizedPnL = snapshot.UnrealizedPnL.Add(agg.UnrealizedPnL)
	}

	sort.Slice(snapshot.Aggregates, func(i, j int) bool {
		ai, aj := snapshot.Aggregates[i], snapshot.Aggregates[j]
		if ai.MarketID != aj.MarketID {
			return ai.MarketID < aj.MarketID
		}
		return ai.Outcome < aj.Outcome
	})

	realized, err := a.store.RealizedPnL(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("portfolio snapshot: %w", err)
	}
	snapshot.RealizedPnL = realized
	snapshot.TotalPnL = snapshot.UnrealizedPnL.Add(realized)

	return snapshot, nil
}

// markPrice values a position side against the market's lifecycle state:
// live spot for active markets, 1 or 0 once resolved.
func markPrice(m *model.Market, o model.Outcome) decimal.Decimal {
	if m.State == model.StateResolved {
		if m.Outcome == o {
			return decimal.NewFromInt(1)
		}
		return decimal.Zero
	}
	return m.Price(o)
}
