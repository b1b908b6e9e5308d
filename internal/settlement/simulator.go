package settlement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ashurkovd/outcomebazaar/internal/model"
)

// Simulator is an in-process Backend for development and testing. Latency
// is injected, not hard-coded: zero means confirmations return as soon as
// they are scheduled, and tests can force rejections or hangs.
type Simulator struct {
	mu      sync.RWMutex
	latency time.Duration
	reject  bool
	hang    bool

	markets  map[string]*model.Market
	balances map[string]decimal.Decimal
}

// NewSimulator creates a simulator with the given confirmation latency.
func NewSimulator(latency time.Duration) *Simulator {
	return &Simulator{
		latency:  latency,
		markets:  make(map[string]*model.Market),
		balances: make(map[string]decimal.Decimal),
	}
}

// SetReject makes subsequent submissions fail with ErrRejected.
func (s *Simulator) SetReject(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = reject
}

// SetHang makes subsequent submissions block until their context expires,
// simulating a backend that never confirms.
func (s *Simulator) SetHang(hang bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hang = hang
}

// SetMarket installs authoritative market state for reconciliation reads.
func (s *Simulator) SetMarket(m *model.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.markets[m.ID] = &cp
}

// SetBalance installs a user balance.
func (s *Simulator) SetBalance(userID string, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = balance
}

func (s *Simulator) Submit(ctx context.Context, trade Trade) (*Confirmation, error) {
	s.mu.RLock()
	latency, reject, hang := s.latency, s.reject, s.hang
	s.mu.RUnlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if reject {
		return nil, ErrRejected
	}

	buf := make([]byte, 32)
	rand.Read(buf)
	return &Confirmation{
		TxID:        "0x" + hex.EncodeToString(buf),
		FilledGross: trade.Gross,
	}, nil
}

func (s *Simulator) MarketState(_ context.Context, marketID string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[marketID]
	if !ok {
		return nil, ErrUnknownMarket
	}
	cp := *m
	return &cp, nil
}

func (s *Simulator) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.balances[userID]
	if !ok {
		// Unknown users get a generous development balance.
		return decimal.NewFromInt(1_000_000), nil
	}
	return balance, nil
}

var _ Backend = (*Simulator)(nil)
