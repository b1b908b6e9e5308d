package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Ashurkovd/outcomebazaar/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// for single-session operation where state is an ephemeral mirror of the
// settlement backend. Lots and events keep insertion order, which gives
// the FIFO consumption order for free.
type MemoryStore struct {
	mu       sync.RWMutex
	markets  map[string]*model.Market
	lots     []model.Lot
	orders   []model.DeferredOrder
	events   []model.TradeEvent
	realized map[string]decimal.Decimal
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:  make(map[string]*model.Market),
		realized: make(map[string]decimal.Decimal),
	}
}

// --- Markets ---

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.markets[m.ID]; exists {
		return fmt.Errorf("market %s already exists", m.ID)
	}

	// Store a copy to avoid external mutation.
	cp := *m
	s.markets[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %s: %w", id, ErrMarketNotFound)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	return markets, nil
}

func (s *MemoryStore) UpdateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; !ok {
		return fmt.Errorf("market %s: %w", m.ID, ErrMarketNotFound)
	}
	cp := *m
	s.markets[m.ID] = &cp
	return nil
}

// --- Lots ---

func (s *MemoryStore) InsertLot(_ context.Context, lot *model.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lots = append(s.lots, *lot)
	return nil
}

func (s *MemoryStore) GetLot(_ context.Context, id string) (*model.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, lot := range s.lots {
		if lot.ID == id {
			cp := lot
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("lot %s: %w", id, ErrLotNotFound)
}

func (s *MemoryStore) UpdateLot(_ context.Context, lot *model.Lot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.lots {
		if s.lots[i].ID == lot.ID {
			s.lots[i] = *lot
			return nil
		}
	}
	return fmt.Errorf("lot %s: %w", lot.ID, ErrLotNotFound)
}

func (s *MemoryStore) DeleteLot(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.lots {
		if s.lots[i].ID == id {
			s.lots = append(s.lots[:i], s.lots[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("lot %s: %w", id, ErrLotNotFound)
}

func (s *MemoryStore) ListLotsByUser(_ context.Context, userID string) ([]model.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Lot
	for _, lot := range s.lots {
		if lot.UserID == userID {
			result = append(result, lot)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListLots(_ context.Context, userID, marketID string, outcome model.Outcome) ([]model.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Lot
	for _, lot := range s.lots {
		if lot.UserID == userID && lot.MarketID == marketID && lot.Outcome == outcome {
			result = append(result, lot)
		}
	}
	return result, nil
}

// --- Deferred orders ---

func (s *MemoryStore) InsertDeferredOrder(_ context.Context, order *model.DeferredOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = append(s.orders, *order)
	return nil
}

func (s *MemoryStore) GetDeferredOrder(_ context.Context, id string) (*model.DeferredOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.ID == id {
			cp := o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("deferred order %s: %w", id, ErrOrderNotFound)
}

func (s *MemoryStore) UpdateDeferredOrderStatus(_ context.Context, id string, status model.DeferredOrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("deferred order %s: %w", id, ErrOrderNotFound)
}

func (s *MemoryStore) ListDeferredOrdersByUser(_ context.Context, userID string) ([]model.DeferredOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.DeferredOrder
	for _, o := range s.orders {
		if o.UserID == userID {
			result = append(result, o)
		}
	}
	return result, nil
}

// --- Trade events ---

func (s *MemoryStore) InsertTradeEvent(_ context.Context, event *model.TradeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, *event)
	return nil
}

func (s *MemoryStore) ListTradeEventsByMarket(_ context.Context, marketID string) ([]model.TradeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeEvent
	for _, e := range s.events {
		if e.MarketID == marketID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListTradeEventsByUser(_ context.Context, userID string) ([]model.TradeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeEvent
	for _, e := range s.events {
		if e.UserID == userID {
			result = append(result, e)
		}
	}
	return result, nil
}

// --- Realized P&L ---

func (s *MemoryStore) AddRealizedPnL(_ context.Context, userID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.realized[userID] = s.realized[userID].Add(delta)
	return nil
}

func (s *MemoryStore) RealizedPnL(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.realized[userID], nil
}
