// Package engine orchestrates trade execution for the outcome markets. It
// wires the pricing engine, the fee and liquidity guard, the position
// ledger, and the settlement backend into the buy/sell flows, holding a
// per-market write lock so each market sees a single writer at a time.
//
// Market state is an optimistic local mirror: reserves are updated before
// the settlement backend confirms, and rolled back on timeout or rejection.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Ashurkovd/outcomebazaar/internal/cpmm"
	"github.com/Ashurkovd/outcomebazaar/internal/guard"
	"github.com/Ashurkovd/outcomebazaar/internal/ledger"
	"github.com/Ashurkovd/outcomebazaar/internal/metrics"
	"github.com/Ashurkovd/outcomebazaar/internal/model"
	"github.com/Ashurkovd/outcomebazaar/internal/portfolio"
	"github.com/Ashurkovd/outcomebazaar/internal/settlement"
	"github.com/Ashurkovd/outcomebazaar/internal/store"
)

var (
	// ErrInsufficientBalance is returned when the user's settlement balance
	// cannot cover the requested gross amount.
	ErrInsufficientBalance = errors.New("engine: insufficient balance")

	// ErrSettlementTimeout is returned when the backend did not confirm
	// within the settlement deadline. The market mirror is rolled back.
	ErrSettlementTimeout = errors.New("engine: settlement confirmation timed out")

	// ErrSettlementRejected is returned when the backend refused the trade.
	// The market mirror is rolled back.
	ErrSettlementRejected = errors.New("engine: trade rejected by settlement backend")

	// ErrInvalidOutcome is returned for an outcome other than YES or NO.
	ErrInvalidOutcome = errors.New("engine: outcome must be YES or NO")
)

// Pool-usage thresholds at which trades trigger warnings.
var (
	usageWarn = decimal.NewFromFloat(0.70)
	usageHigh = decimal.NewFromFloat(0.85)
)

// Service executes trades against the optimistic market mirror.
type Service struct {
	store     store.Store
	backend   settlement.Backend
	guard     *guard.Guard
	ledger    *ledger.Ledger
	portfolio *portfolio.Aggregator
	wsHub     *WSHub // optional, nil disables broadcasting

	settleTimeout time.Duration

	// Per-market write locks. Each market sees one writer at a time;
	// different markets trade concurrently.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a trade service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, backend settlement.Backend, g *guard.Guard, hub *WSHub, settleTimeout time.Duration) *Service {
	return &Service{
		store:         st,
		backend:       backend,
		guard:         g,
		ledger:        ledger.New(st),
		portfolio:     portfolio.New(st, g.FeeRate),
		wsHub:         hub,
		settleTimeout: settleTimeout,
		locks:         make(map[string]*sync.Mutex),
	}
}

// marketLock returns the write lock for one market, creating it on first use.
func (s *Service) marketLock(marketID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk, ok := s.locks[marketID]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[marketID] = lk
	}
	return lk
}

// Quote is a read-only preview of a trade. Nothing is persisted.
type Quote struct {
	Side      model.TradeEventType `json:"side"`
	Outcome   model.Outcome        `json:"outcome"`
	Gross     decimal.Decimal      `json:"gross"`
	Fee       decimal.Decimal      `json:"fee"`
	Net       decimal.Decimal      `json:"net"`
	Shares    decimal.Decimal      `json:"shares"`
	AvgPrice  decimal.Decimal      `json:"avg_price"`
	SpotPrice decimal.Decimal      `json:"spot_price"`
	EndPrice  decimal.Decimal      `json:"end_price"`
	// Slippage is the percent difference between average and spot price.
	Slippage decimal.Decimal `json:"slippage_percent"`

	Partial     bool            `json:"partial"`
	InstantNet  decimal.Decimal `json:"instant_net,omitempty"`
	DeferredNet decimal.Decimal `json:"deferred_net,omitempty"`
	FillRatio   decimal.Decimal `json:"fill_ratio"`
}

// QuoteBuy previews a buy without touching market state. Oversized orders
// are quoted at their instant portion with the split reported.
func (s *Service) QuoteBuy(ctx context.Context, marketID string, o model.Outcome, gross decimal.Decimal) (*Quote, error) {
	if !o.Valid() {
		return nil, ErrInvalidOutcome
	}
	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	dec, err := s.guard.CheckBuy(m, o, gross, true)
	if err != nil {
		return nil, err
	}

	same, opposite := m.Reserves(o)
	shares, newSame, newOpposite, err := cpmm.QuoteBuy(same, opposite, dec.InstantNet)
	if err != nil {
		return nil, err
	}

	spot := cpmm.SpotPrice(same, opposite)
	avg := cpmm.AvgPrice(dec.InstantNet, shares)
	return &Quote{
		Side:        model.EventBuy,
		Outcome:     o,
		Gross:       gross,
		Fee:         dec.Fee,
		Net:         dec.Net,
		Shares:      shares,
		AvgPrice:    avg,
		SpotPrice:   spot.Round(cpmm.PriceScale),
		EndPrice:    cpmm.SpotPrice(newSame, newOpposite).Round(cpmm.PriceScale),
		Slippage:    cpmm.Slippage(avg, spot),
		Partial:     dec.Partial,
		InstantNet:  dec.InstantNet,
		DeferredNet: dec.DeferredNet,
		FillRatio:   dec.FillRatio,
	}, nil
}

// QuoteSell previews closing sharesIn of the given outcome.
func (s *Service) QuoteSell(ctx context.Context, marketID string, o model.Outcome, sharesIn decimal.Decimal) (*Quote, error) {
	if !o.Valid() {
		return nil, ErrInvalidOutcome
	}
	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.CheckSell(m, o, sharesIn); err != nil {
		return nil, err
	}

	same, opposite := m.Reserves(o)
	proceeds, newSame, newOpposite, err := cpmm.QuoteSell(same, opposite, sharesIn)
	if err != nil {
		return nil, err
	}
	fee, net := s.guard.Fee(proceeds)

	spot := cpmm.SpotPrice(same, opposite)
	avg := cpmm.AvgPrice(proceeds, sharesIn)
	return &Quote{
		Side:      model.EventSell,
		Outcome:   o,
		Gross:     proceeds,
		Fee:       fee,
		Net:       net,
		Shares:    sharesIn,
		AvgPrice:  avg,
		SpotPrice: spot.Round(cpmm.PriceScale),
		EndPrice:  cpmm.SpotPrice(newSame, newOpposite).Round(cpmm.PriceScale),
		Slippage:  cpmm.Slippage(avg, spot),
		FillRatio: decimal.NewFromInt(1),
	}, nil
}

// BuyResult reports a completed buy.
type BuyResult struct {
	Lot           *model.Lot           `json:"lot"`
	DeferredOrder *model.DeferredOrder `json:"deferred_order,omitempty"`
	Event         *model.TradeEvent    `json:"event"`
	TxID          string               `json:"tx_id"`
	YesPrice      decimal.Decimal      `json:"yes_price"`
	NoPrice       decimal.Decimal      `json:"no_price"`
}

// ExecuteBuy runs the full buy flow: guard checks, balance check, pricing,
// optimistic market update, settlement confirmation, then the lot and
// activity records. On settlement timeout or rejection the market mirror is
// restored and no lot is created.
func (s *Service) ExecuteBuy(ctx context.Context, userID, marketID string, o model.Outcome, gross decimal.Decimal, confirmSplit bool) (*BuyResult, error) {
	if !o.Valid() {
		return nil, ErrInvalidOutcome
	}

	lk := s.marketLock(marketID)
	lk.Lock()
	defer lk.Unlock()

	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	dec, err := s.guard.CheckBuy(m, o, gross, confirmSplit)
	if err != nil {
		s.countRejection(err)
		return nil, err
	}

	balance, err := s.backend.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("balance check: %w", err)
	}
	if balance.LessThan(gross) {
		metrics.TradeRejections.WithLabelValues("balance").Inc()
		return nil, ErrInsufficientBalance
	}

	same, opposite := m.Reserves(o)
	shares, newSame, newOpposite, err := cpmm.QuoteBuy(same, opposite, dec.InstantNet)
	if err != nil {
		return nil, err
	}

	// The gross actually charged now. For a split order the deferred
	// remainder is charged only if it ever fills.
	instantGross := gross
	if dec.Partial {
		instantGross = s.guard.GrossFromNet(dec.InstantNet)
	}

	firstTrade, err := s.isFirstTrade(ctx, userID, marketID)
	if err != nil {
		return nil, err
	}

	// Optimistic mirror update, rolled back if settlement fails.
	prev := *m
	m.SetReserves(o, newSame, newOpposite)
	m.PoolUsage = dec.NewUsage
	m.Volume = m.Volume.Add(instantGross)
	if firstTrade {
		m.Participants++
	}
	if err := s.store.UpdateMarket(ctx, m); err != nil {
		return nil, err
	}

	conf, err := s.settle(ctx, settlement.Trade{
		UserID:   userID,
		MarketID: marketID,
		Outcome:  o,
		Side:     model.EventBuy,
		Gross:    instantGross,
	})
	if err != nil {
		s.restoreMarket(ctx, &prev)
		return nil, err
	}

	now := time.Now().UTC()
	lot := &model.Lot{
		ID:          uuid.New().String(),
		UserID:      userID,
		MarketID:    marketID,
		Outcome:     o,
		Shares:      shares,
		GrossPaid:   instantGross,
		NetInvested: dec.InstantNet,
		CreatedAt:   now,
	}
	if dec.Partial {
		lot.PartialFill = true
		lot.RequestedGross = gross
		lot.FilledGross = instantGross
		lot.FillRatio = dec.FillRatio
	}
	if err := s.ledger.Open(ctx, lot); err != nil {
		// Reserve mutations are all-or-nothing: without a lot the buy
		// never happened, so the mirror goes back.
		s.restoreMarket(ctx, &prev)
		return nil, err
	}

	var deferred *model.DeferredOrder
	if dec.Partial {
		deferred = &model.DeferredOrder{
			ID:          uuid.New().String(),
			UserID:      userID,
			MarketID:    marketID,
			Outcome:     o,
			Amount:      s.guard.GrossFromNet(dec.DeferredNet),
			TargetPrice: m.Price(o).Round(cpmm.PriceScale),
			Status:      model.DeferredPending,
			CreatedAt:   now,
		}
		if err := s.store.InsertDeferredOrder(ctx, deferred); err != nil {
			if delErr := s.store.DeleteLot(ctx, lot.ID); delErr != nil {
				slog.Error("lot unwind failed", "lot", lot.ID, "err", delErr)
			}
			s.restoreMarket(ctx, &prev)
			return nil, err
		}
		metrics.PartialFills.Inc()
	}

	event := &model.TradeEvent{
		ID:        uuid.New().String(),
		Type:      model.EventBuy,
		UserID:    userID,
		MarketID:  marketID,
		Outcome:   o,
		Shares:    shares,
		Price:     cpmm.AvgPrice(dec.InstantNet, shares),
		Amount:    instantGross,
		Fee:       dec.Fee,
		YesPrice:  m.YesPrice().Round(cpmm.PriceScale),
		Timestamp: now,
	}
	if err := s.store.InsertTradeEvent(ctx, event); err != nil {
		if delErr := s.store.DeleteLot(ctx, lot.ID); delErr != nil {
			slog.Error("lot unwind failed", "lot", lot.ID, "err", delErr)
		}
		if deferred != nil {
			if cErr := s.store.UpdateDeferredOrderStatus(ctx, deferred.ID, model.DeferredCancelled); cErr != nil {
				slog.Error("order unwind failed", "order", deferred.ID, "err", cErr)
			}
		}
		s.restoreMarket(ctx, &prev)
		return nil, err
	}

	s.warnUsage(marketID, m.PoolUsage)
	metrics.TradesTotal.WithLabelValues("BUY").Inc()
	metrics.MarketVolume.WithLabelValues(marketID, "BUY").Add(instantGross.InexactFloat64())
	metrics.PoolUsage.WithLabelValues(marketID).Set(m.PoolUsage.InexactFloat64())

	slog.Info("buy executed",
		"user", userID,
		"market", marketID,
		"outcome", o,
		"gross", instantGross.String(),
		"shares", shares.String(),
		"partial", dec.Partial,
		"tx", conf.TxID,
	)

	s.broadcastTrade(m, event)

	return &BuyResult{
		Lot:           lot,
		DeferredOrder: deferred,
		Event:         event,
		TxID:          conf.TxID,
		YesPrice:      m.YesPrice().Round(cpmm.PriceScale),
		NoPrice:       m.NoPrice().Round(cpmm.PriceScale),
	}, nil
}

// SellResult reports a completed close.
type SellResult struct {
	Event           *model.TradeEvent `json:"event"`
	TxID            string            `json:"tx_id"`
	GrossProceeds   decimal.Decimal   `json:"gross_proceeds"`
	Fee             decimal.Decimal   `json:"fee"`
	NetProceeds     decimal.Decimal   `json:"net_proceeds"`
	RealizedPnL     decimal.Decimal   `json:"realized_pnl"`
	RemainingShares decimal.Decimal   `json:"remaining_shares"`
	LotsClosed      int               `json:"lots_closed"`
	YesPrice        decimal.Decimal   `json:"yes_price"`
	NoPrice         decimal.Decimal   `json:"no_price"`
}

// ExecuteSellLot closes sharesToClose out of a single lot. The initial
// lookup only identifies the market; the lot is re-read and validated
// inside the market lock so a concurrent close cannot slip through.
func (s *Service) ExecuteSellLot(ctx context.Context, lotID string, sharesToClose decimal.Decimal) (*SellResult, error) {
	lot, err := s.store.GetLot(ctx, lotID)
	if err != nil {
		return nil, err
	}

	revalidate := func(ctx context.Context) error {
		current, err := s.store.GetLot(ctx, lotID)
		if err != nil {
			return err
		}
		if sharesToClose.LessThanOrEqual(decimal.Zero) || sharesToClose.GreaterThan(current.Shares) {
			return ledger.ErrInvalidCloseAmount
		}
		return nil
	}

	return s.executeSell(ctx, lot.UserID, lot.MarketID, lot.Outcome, sharesToClose, revalidate,
		func(ctx context.Context, netProceeds decimal.Decimal) (ledger.CloseResult, error) {
			return s.ledger.ReducePartial(ctx, lotID, sharesToClose, netProceeds)
		})
}

// ExecuteSellAggregate closes totalShares across a user's lots for one
// market and outcome, consuming lots oldest first. Held shares are counted
// inside the market lock.
func (s *Service) ExecuteSellAggregate(ctx context.Context, userID, marketID string, o model.Outcome, totalShares decimal.Decimal) (*SellResult, error) {
	if !o.Valid() {
		return nil, ErrInvalidOutcome
	}

	revalidate := func(ctx context.Context) error {
		held, err := s.ledger.TotalShares(ctx, userID, marketID, o)
		if err != nil {
			return err
		}
		if totalShares.LessThanOrEqual(decimal.Zero) || totalShares.GreaterThan(held) {
			return ledger.ErrInvalidCloseAmount
		}
		return nil
	}

	return s.executeSell(ctx, userID, marketID, o, totalShares, revalidate,
		func(ctx context.Context, netProceeds decimal.Decimal) (ledger.CloseResult, error) {
			return s.ledger.CloseAggregate(ctx, userID, marketID, o, totalShares, netProceeds)
		})
}

// executeSell is the shared close flow. revalidate re-checks the position
// under the market lock; closeFn receives the net proceeds and applies the
// cost-basis arithmetic to the lot(s). Reserve mutations are all-or-nothing:
// any failure after the optimistic update restores the previous state.
func (s *Service) executeSell(ctx context.Context, userID, marketID string, o model.Outcome, sharesToClose decimal.Decimal, revalidate func(context.Context) error, closeFn func(context.Context, decimal.Decimal) (ledger.CloseResult, error)) (*SellResult, error) {
	lk := s.marketLock(marketID)
	lk.Lock()
	defer lk.Unlock()

	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if err := revalidate(ctx); err != nil {
		return nil, err
	}

	if err := s.guard.CheckSell(m, o, sharesToClose); err != nil {
		s.countRejection(err)
		return nil, err
	}

	same, opposite := m.Reserves(o)
	proceeds, newSame, newOpposite, err := cpmm.QuoteSell(same, opposite, sharesToClose)
	if err != nil {
		return nil, err
	}
	fee, net := s.guard.Fee(proceeds)

	prev := *m
	m.SetReserves(o, newSame, newOpposite)
	m.Volume = m.Volume.Add(proceeds)
	if err := s.store.UpdateMarket(ctx, m); err != nil {
		return nil, err
	}

	conf, err := s.settle(ctx, settlement.Trade{
		UserID:   userID,
		MarketID: marketID,
		Outcome:  o,
		Side:     model.EventSell,
		Gross:    sharesToClose,
	})
	if err != nil {
		s.restoreMarket(ctx, &prev)
		return nil, err
	}

	closed, err := closeFn(ctx, net)
	if err != nil {
		// No lot was reduced, so the reserve mutation must not stand.
		s.restoreMarket(ctx, &prev)
		return nil, err
	}

	now := time.Now().UTC()
	event := &model.TradeEvent{
		ID:        uuid.New().String(),
		Type:      model.EventSell,
		UserID:    userID,
		MarketID:  marketID,
		Outcome:   o,
		Shares:    sharesToClose,
		Price:     cpmm.AvgPrice(proceeds, sharesToClose),
		Amount:    net,
		Fee:       fee,
		PnL:       closed.RealizedPnL,
		YesPrice:  m.YesPrice().Round(cpmm.PriceScale),
		Timestamp: now,
	}
	// The close is already applied; a failed activity append cannot undo
	// it, so it is logged rather than surfaced as a failed trade.
	if err := s.store.InsertTradeEvent(ctx, event); err != nil {
		slog.Error("activity append failed", "market", marketID, "err", err)
	}

	metrics.TradesTotal.WithLabelValues("SELL").Inc()
	metrics.MarketVolume.WithLabelValues(marketID, "SELL").Add(proceeds.InexactFloat64())

	slog.Info("sell executed",
		"user", userID,
		"market", marketID,
		"outcome", o,
		"shares", sharesToClose.String(),
		"net_proceeds", net.String(),
		"realized_pnl", closed.RealizedPnL.String(),
		"tx", conf.TxID,
	)

	s.broadcastTrade(m, event)

	return &SellResult{
		Event:           event,
		TxID:            conf.TxID,
		GrossProceeds:   proceeds,
		Fee:             fee,
		NetProceeds:     net,
		RealizedPnL:     closed.RealizedPnL,
		RemainingShares: closed.RemainingShares,
		LotsClosed:      closed.LotsClosed,
		YesPrice:        m.YesPrice().Round(cpmm.PriceScale),
		NoPrice:         m.NoPrice().Round(cpmm.PriceScale),
	}, nil
}

// restoreMarket puts the pre-trade mirror state back after a failure
// between the optimistic update and the trade's records being written.
func (s *Service) restoreMarket(ctx context.Context, prev *model.Market) {
	if err := s.store.UpdateMarket(ctx, prev); err != nil {
		slog.Error("market rollback failed", "market", prev.ID, "err", err)
	}
}

// settle submits a trade to the backend under the settlement deadline and
// maps the failure modes to engine sentinels.
func (s *Service) settle(ctx context.Context, trade settlement.Trade) (*settlement.Confirmation, error) {
	sctx, cancel := context.WithTimeout(ctx, s.settleTimeout)
	defer cancel()

	start := time.Now()
	conf, err := s.backend.Submit(sctx, trade)
	metrics.SettlementLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		return conf, nil
	case errors.Is(err, context.DeadlineExceeded):
		metrics.SettlementFailures.WithLabelValues("timeout").Inc()
		return nil, ErrSettlementTimeout
	case errors.Is(err, settlement.ErrRejected):
		metrics.SettlementFailures.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrSettlementRejected, err)
	default:
		return nil, fmt.Errorf("settlement submit: %w", err)
	}
}

// CreateMarket seeds a new market. The initial YES price determines how the
// seed splits across the two reserves: yesPrice = noReserve / total.
func (s *Service) CreateMarket(ctx context.Context, question, category string, seed, initialYesPrice decimal.Decimal, endTime time.Time) (*model.Market, error) {
	one := decimal.NewFromInt(1)
	if seed.LessThanOrEqual(decimal.Zero) {
		return nil, guard.ErrInvalidAmount
	}
	if initialYesPrice.LessThanOrEqual(decimal.Zero) || initialYesPrice.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("%w: initial price must lie in (0, 1)", guard.ErrInvalidAmount)
	}

	m := &model.Market{
		ID:         uuid.New().String(),
		Question:   question,
		Category:   category,
		State:      model.StateActive,
		YesReserve: seed.Mul(one.Sub(initialYesPrice)),
		NoReserve:  seed.Mul(initialYesPrice),
		PoolSeed:   seed,
		PoolUsage:  decimal.Zero,
		EndTime:    endTime,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateMarket(ctx, m); err != nil {
		return nil, err
	}

	metrics.ActiveMarkets.Inc()
	slog.Info("market created",
		"id", m.ID,
		"question", question,
		"seed", seed.String(),
		"yes_price", initialYesPrice.String(),
	)
	return m, nil
}

// ResolveMarket moves an active market to its resolved terminal state.
func (s *Service) ResolveMarket(ctx context.Context, marketID string, winner model.Outcome) (*model.Market, error) {
	if !winner.Valid() {
		return nil, ErrInvalidOutcome
	}
	return s.transition(ctx, marketID, func(m *model.Market) error {
		return m.Resolve(winner)
	})
}

// CancelMarket moves an active market to the cancelled terminal state.
func (s *Service) CancelMarket(ctx context.Context, marketID string) (*model.Market, error) {
	return s.transition(ctx, marketID, (*model.Market).Cancel)
}

func (s *Service) transition(ctx context.Context, marketID string, fn func(*model.Market) error) (*model.Market, error) {
	lk := s.marketLock(marketID)
	lk.Lock()
	defer lk.Unlock()

	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	if err := s.store.UpdateMarket(ctx, m); err != nil {
		return nil, err
	}

	metrics.ActiveMarkets.Dec()
	slog.Info("market state changed", "market", marketID, "state", m.State, "outcome", m.Outcome)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "market_" + string(m.State),
			MarketID: m.ID,
			Outcome:  string(m.Outcome),
		})
	}
	return m, nil
}

// CancelDeferredOrder cancels a pending deferred order.
func (s *Service) CancelDeferredOrder(ctx context.Context, orderID string) (*model.DeferredOrder, error) {
	order, err := s.store.GetDeferredOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.DeferredPending {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, model.ErrTerminalState)
	}
	if err := s.store.UpdateDeferredOrderStatus(ctx, orderID, model.DeferredCancelled); err != nil {
		return nil, err
	}
	order.Status = model.DeferredCancelled
	return order, nil
}

// Portfolio returns the user's recomputed portfolio snapshot.
func (s *Service) Portfolio(ctx context.Context, userID string) (*model.PortfolioSnapshot, error) {
	return s.portfolio.Snapshot(ctx, userID)
}

// Reconcile compares each local market against the settlement backend's
// authoritative state and adopts backend lifecycle transitions the mirror
// missed. Reserves are not overwritten: local trades since the last
// reconcile are legitimate mirror divergence.
func (s *Service) Reconcile(ctx context.Context) error {
	markets, err := s.store.ListMarkets(ctx)
	if err != nil {
		return err
	}

	for i := range markets {
		local := &markets[i]
		remote, err := s.backend.MarketState(ctx, local.ID)
		if err != nil {
			if errors.Is(err, settlement.ErrUnknownMarket) {
				continue
			}
			return fmt.Errorf("reconcile %s: %w", local.ID, err)
		}

		if remote.State == local.State {
			continue
		}

		lk := s.marketLock(local.ID)
		lk.Lock()
		m, err := s.store.GetMarket(ctx, local.ID)
		if err != nil {
			lk.Unlock()
			return err
		}
		if m.State == model.StateActive && remote.State != model.StateActive {
			m.State = remote.State
			m.Outcome = remote.Outcome
			if err := s.store.UpdateMarket(ctx, m); err != nil {
				lk.Unlock()
				return err
			}
			slog.Warn("reconciled market state from backend",
				"market", m.ID, "state", m.State, "outcome", m.Outcome)
		}
		lk.Unlock()
	}
	return nil
}

// isFirstTrade reports whether the user has no prior activity in the market.
func (s *Service) isFirstTrade(ctx context.Context, userID, marketID string) (bool, error) {
	events, err := s.store.ListTradeEventsByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, e := range events {
		if e.MarketID == marketID {
			return false, nil
		}
	}
	return true, nil
}

// warnUsage logs as the pool approaches its usage ceiling.
func (s *Service) warnUsage(marketID string, usage decimal.Decimal) {
	switch {
	case usage.GreaterThanOrEqual(usageHigh):
		slog.Warn("pool usage critical", "market", marketID, "usage", usage.String())
	case usage.GreaterThanOrEqual(usageWarn):
		slog.Warn("pool usage elevated", "market", marketID, "usage", usage.String())
	}
}

// countRejection maps guard errors to the rejection metric.
func (s *Service) countRejection(err error) {
	switch {
	case errors.Is(err, guard.ErrInsufficientLiquidity):
		metrics.TradeRejections.WithLabelValues("liquidity").Inc()
	case errors.Is(err, guard.ErrPoolUsageExceeded):
		metrics.TradeRejections.WithLabelValues("pool_usage").Inc()
	case errors.Is(err, guard.ErrMarketNotActive):
		metrics.TradeRejections.WithLabelValues("inactive").Inc()
	}
}

// broadcastTrade pushes the post-trade prices to WebSocket clients.
func (s *Service) broadcastTrade(m *model.Market, event *model.TradeEvent) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Broadcast(WSMessage{
		Type:     "trade_executed",
		MarketID: m.ID,
		Outcome:  string(event.Outcome),
		Side:     string(event.Type),
		YesPrice: m.YesPrice().Round(cpmm.PriceScale).String(),
		NoPrice:  m.NoPrice().Round(cpmm.PriceScale).String(),
		Shares:   event.Shares.String(),
	})
}
