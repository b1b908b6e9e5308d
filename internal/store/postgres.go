package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Ashurkovd/outcomebazaar/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Markets ---

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, question, category, state, outcome,
		                      yes_reserve, no_reserve, pool_seed, pool_usage,
		                      participants, volume, end_time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11::NUMERIC, $12, $13)`,
		m.ID, m.Question, m.Category, string(m.State), string(m.Outcome),
		m.YesReserve.String(), m.NoReserve.String(),
		m.PoolSeed.String(), m.PoolUsage.String(),
		m.Participants, m.Volume.String(),
		m.EndTime, m.CreatedAt,
	)
	return err
}

const marketColumns = `id, question, category, state, outcome,
       yes_reserve::TEXT, no_reserve::TEXT, pool_seed::TEXT, pool_usage::TEXT,
       participants, volume::TEXT, end_time, created_at`

func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var state, outcome string
	var yesRes, noRes, seed, usage, volume string

	err := row.Scan(&m.ID, &m.Question, &m.Category, &state, &outcome,
		&yesRes, &noRes, &seed, &usage,
		&m.Participants, &volume, &m.EndTime, &m.CreatedAt)
	if err != nil {
		return nil, err
	}

	m.State = model.MarketState(state)
	m.Outcome = model.Outcome(outcome)
	m.YesReserve, _ = decimal.NewFromString(yesRes)
	m.NoReserve, _ = decimal.NewFromString(noRes)
	m.PoolSeed, _ = decimal.NewFromString(seed)
	m.PoolUsage, _ = decimal.NewFromString(usage)
	m.Volume, _ = decimal.NewFromString(volume)

	return &m, nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)

	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("market %s: %w", id, ErrMarketNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpdateMarket(ctx context.Context, m *model.Market) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets
		 SET state = $2, outcome = $3,
		     yes_reserve = $4::NUMERIC, no_reserve = $5::NUMERIC,
		     pool_usage = $6::NUMERIC, participants = $7, volume = $8::NUMERIC
		 WHERE id = $1`,
		m.ID, string(m.State), string(m.Outcome),
		m.YesReserve.String(), m.NoReserve.String(),
		m.PoolUsage.String(), m.Participants, m.Volume.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("market %s: %w", m.ID, ErrMarketNotFound)
	}
	return nil
}

// --- Lots ---

const lotColumns = `id, user_id, market_id, outcome,
       shares::TEXT, gross_paid::TEXT, net_invested::TEXT, avg_cost::TEXT,
       partial_fill, requested_gross::TEXT, filled_gross::TEXT, fill_ratio::TEXT,
       created_at`

func scanLot(row pgx.Row) (*model.Lot, error) {
	var lot model.Lot
	var outcome string
	var shares, gross, net, avgCost, reqGross, filledGross, fillRatio string

	err := row.Scan(&lot.ID, &lot.UserID, &lot.MarketID, &outcome,
		&shares, &gross, &net, &avgCost,
		&lot.PartialFill, &reqGross, &filledGross, &fillRatio,
		&lot.CreatedAt)
	if err != nil {
		return nil, err
	}

	lot.Outcome = model.Outcome(outcome)
	lot.Shares, _ = decimal.NewFromString(shares)
	lot.GrossPaid, _ = decimal.NewFromString(gross)
	lot.NetInvested, _ = decimal.NewFromString(net)
	lot.AvgCost, _ = decimal.NewFromString(avgCost)
	lot.RequestedGross, _ = decimal.NewFromString(reqGross)
	lot.FilledGross, _ = decimal.NewFromString(filledGross)
	lot.FillRatio, _ = decimal.NewFromString(fillRatio)

	return &lot, nil
}

func (s *PostgresStore) InsertLot(ctx context.Context, lot *model.Lot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lots (id, user_id, market_id, outcome,
		                   shares, gross_paid, net_invested, avg_cost,
		                   partial_fill, requested_gross, filled_gross, fill_ratio,
		                   created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC,
		         $9, $10::NUMERIC, $11::NUMERIC, $12::NUMERIC, $13)`,
		lot.ID, lot.UserID, lot.MarketID, string(lot.Outcome),
		lot.Shares.String(), lot.GrossPaid.String(),
		lot.NetInvested.String(), lot.AvgCost.String(),
		lot.PartialFill, lot.RequestedGross.String(),
		lot.FilledGross.String(), lot.FillRatio.String(),
		lot.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetLot(ctx context.Context, id string) (*model.Lot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE id = $1`, id)

	lot, err := scanLot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("lot %s: %w", id, ErrLotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get lot %s: %w", id, err)
	}
	return lot, nil
}

func (s *PostgresStore) UpdateLot(ctx context.Context, lot *model.Lot) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lots
		 SET shares = $2::NUMERIC, gross_paid = $3::NUMERIC, net_invested = $4::NUMERIC
		 WHERE id = $1`,
		lot.ID, lot.Shares.String(), lot.GrossPaid.String(), lot.NetInvested.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lot %s: %w", lot.ID, ErrLotNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteLot(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lot %s: %w", id, ErrLotNotFound)
	}
	return nil
}

func (s *PostgresStore) ListLotsByUser(ctx context.Context, userID string) ([]model.Lot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lotColumns+` FROM lots WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLots(rows)
}

func (s *PostgresStore) ListLots(ctx context.Context, userID, marketID string, outcome model.Outcome) ([]model.Lot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+lotColumns+`
		 FROM lots
		 WHERE user_id = $1 AND market_id = $2 AND outcome = $3
		 ORDER BY created_at`,
		userID, marketID, string(outcome))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLots(rows)
}

func collectLots(rows pgx.Rows) ([]model.Lot, error) {
	var lots []model.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, *lot)
	}
	return lots, rows.Err()
}

// --- Deferred orders ---

func (s *PostgresStore) InsertDeferredOrder(ctx context.Context, o *model.DeferredOrder) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deferred_orders (id, user_id, market_id, outcome, amount, target_price, status, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7, $8)`,
		o.ID, o.UserID, o.MarketID, string(o.Outcome),
		o.Amount.String(), o.TargetPrice.String(), string(o.Status), o.CreatedAt,
	)
	return err
}

const orderColumns = `id, user_id, market_id, outcome, amount::TEXT, target_price::TEXT, status, created_at`

func scanDeferredOrder(row pgx.Row) (*model.DeferredOrder, error) {
	var o model.DeferredOrder
	var outcome, status string
	var amount, target string

	err := row.Scan(&o.ID, &o.UserID, &o.MarketID, &outcome,
		&amount, &target, &status, &o.CreatedAt)
	if err != nil {
		return nil, err
	}

	o.Outcome = model.Outcome(outcome)
	o.Status = model.DeferredOrderStatus(status)
	o.Amount, _ = decimal.NewFromString(amount)
	o.TargetPrice, _ = decimal.NewFromString(target)

	return &o, nil
}

func (s *PostgresStore) GetDeferredOrder(ctx context.Context, id string) (*model.DeferredOrder, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM deferred_orders WHERE id = $1`, id)

	o, err := scanDeferredOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("deferred order %s: %w", id, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get deferred order %s: %w", id, err)
	}
	return o, nil
}

func (s *PostgresStore) UpdateDeferredOrderStatus(ctx context.Context, id string, status model.DeferredOrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE deferred_orders SET status = $2 WHERE id = $1`,
		id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deferred order %s: %w", id, ErrOrderNotFound)
	}
	return nil
}

func (s *PostgresStore) ListDeferredOrdersByUser(ctx context.Context, userID string) ([]model.DeferredOrder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM deferred_orders WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.DeferredOrder
	for rows.Next() {
		o, err := scanDeferredOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// --- Trade events ---

func (s *PostgresStore) InsertTradeEvent(ctx context.Context, e *model.TradeEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trade_events (id, type, user_id, market_id, outcome, shares, price, amount, fee, pnl, yes_price, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12)`,
		e.ID, string(e.Type), e.UserID, e.MarketID, string(e.Outcome),
		e.Shares.String(), e.Price.String(), e.Amount.String(),
		e.Fee.String(), e.PnL.String(), e.YesPrice.String(), e.Timestamp,
	)
	return err
}

const eventColumns = `id, type, user_id, market_id, outcome,
       shares::TEXT, price::TEXT, amount::TEXT, fee::TEXT, pnl::TEXT, yes_price::TEXT, timestamp`

func (s *PostgresStore) ListTradeEventsByMarket(ctx context.Context, marketID string) ([]model.TradeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM trade_events WHERE market_id = $1 ORDER BY timestamp`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTradeEvents(rows)
}

func (s *PostgresStore) ListTradeEventsByUser(ctx context.Context, userID string) ([]model.TradeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM trade_events WHERE user_id = $1 ORDER BY timestamp`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTradeEvents(rows)
}

func collectTradeEvents(rows pgx.Rows) ([]model.TradeEvent, error) {
	var events []model.TradeEvent
	for rows.Next() {
		var e model.TradeEvent
		var typ, outcome string
		var shares, price, amount, fee, pnl, yesPrice string

		if err := rows.Scan(&e.ID, &typ, &e.UserID, &e.MarketID, &outcome,
			&shares, &price, &amount, &fee, &pnl, &yesPrice, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Type = model.TradeEventType(typ)
		e.Outcome = model.Outcome(outcome)
		e.Shares, _ = decimal.NewFromString(shares)
		e.Price, _ = decimal.NewFromString(price)
		e.Amount, _ = decimal.NewFromString(amount)
		e.Fee, _ = decimal.NewFromString(fee)
		e.PnL, _ = decimal.NewFromString(pnl)
		e.YesPrice, _ = decimal.NewFromString(yesPrice)

		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Realized P&L ---

func (s *PostgresStore) AddRealizedPnL(ctx context.Context, userID string, delta decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO realized_pnl (user_id, total)
		 VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (user_id) DO UPDATE SET total = realized_pnl.total + EXCLUDED.total`,
		userID, delta.String(),
	)
	return err
}

func (s *PostgresStore) RealizedPnL(ctx context.Context, userID string) (decimal.Decimal, error) {
	var total string
	err := s.pool.QueryRow(ctx,
		`SELECT total::TEXT FROM realized_pnl WHERE user_id = $1`, userID).
		Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("realized pnl for %s: %w", userID, err)
	}

	d, _ := decimal.NewFromString(total)
	return d, nil
}
