package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Ashurkovd/outcomebazaar/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestMemoryStore_MarketRoundTrip(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	m := &model.Market{
		ID:         "m1",
		Question:   "Q",
		State:      model.StateActive,
		YesReserve: d(1000),
		NoReserve:  d(1000),
		PoolSeed:   d(2000),
		CreatedAt:  time.Now().UTC(),
	}
	if err := ms.CreateMarket(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ms.CreateMarket(ctx, m); err == nil {
		t.Error("duplicate create should fail")
	}

	got, err := ms.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Mutating the returned copy must not touch the stored market.
	got.YesReserve = d(1)
	again, _ := ms.GetMarket(ctx, "m1")
	if !again.YesReserve.Equal(d(1000)) {
		t.Errorf("store leaked a mutable reference: %s", again.YesReserve)
	}

	if _, err := ms.GetMarket(ctx, "missing"); !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound, got %v", err)
	}
	if err := ms.UpdateMarket(ctx, &model.Market{ID: "missing"}); !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("expected ErrMarketNotFound on update, got %v", err)
	}
}

func TestMemoryStore_LotsKeepInsertionOrder(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		err := ms.InsertLot(ctx, &model.Lot{
			ID: id, UserID: "u1", MarketID: "m1", Outcome: model.OutcomeYes,
			Shares: d(10), GrossPaid: d(10), NetInvested: d(9.85),
		})
		if err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	// A lot for another outcome must not appear in the filtered list.
	ms.InsertLot(ctx, &model.Lot{
		ID: "other", UserID: "u1", MarketID: "m1", Outcome: model.OutcomeNo,
		Shares: d(5), GrossPaid: d(5), NetInvested: d(4.92),
	})

	lots, err := ms.ListLots(ctx, "u1", "m1", model.OutcomeYes)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lots) != 3 {
		t.Fatalf("expected 3 lots, got %d", len(lots))
	}
	for i, want := range []string{"first", "second", "third"} {
		if lots[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, lots[i].ID)
		}
	}

	if err := ms.DeleteLot(ctx, "second"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	lots, _ = ms.ListLots(ctx, "u1", "m1", model.OutcomeYes)
	if len(lots) != 2 || lots[0].ID != "first" || lots[1].ID != "third" {
		t.Errorf("deletion broke ordering: %+v", lots)
	}

	if err := ms.DeleteLot(ctx, "second"); !errors.Is(err, ErrLotNotFound) {
		t.Errorf("expected ErrLotNotFound, got %v", err)
	}
}

func TestMemoryStore_DeferredOrderStatus(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	ms.InsertDeferredOrder(ctx, &model.DeferredOrder{
		ID: "o1", UserID: "u1", MarketID: "m1", Outcome: model.OutcomeYes,
		Amount: d(50), Status: model.DeferredPending,
	})

	if err := ms.UpdateDeferredOrderStatus(ctx, "o1", model.DeferredCancelled); err != nil {
		t.Fatalf("update status: %v", err)
	}
	o, err := ms.GetDeferredOrder(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.Status != model.DeferredCancelled {
		t.Errorf("expected cancelled, got %s", o.Status)
	}

	if err := ms.UpdateDeferredOrderStatus(ctx, "nope", model.DeferredCancelled); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestMemoryStore_RealizedPnLAccumulates(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	ms.AddRealizedPnL(ctx, "u1", d(10))
	ms.AddRealizedPnL(ctx, "u1", d(-4.5))

	total, err := ms.RealizedPnL(ctx, "u1")
	if err != nil {
		t.Fatalf("realized: %v", err)
	}
	if !total.Equal(d(5.5)) {
		t.Errorf("expected 5.5, got %s", total)
	}

	// Unknown users read as zero.
	zero, _ := ms.RealizedPnL(ctx, "nobody")
	if !zero.IsZero() {
		t.Errorf("expected zero, got %s", zero)
	}
}
