package cpmm

import (
	"testing"

	"github.com/shopspring/decimal"
)

// d is a test helper for creating decimals from float64.
func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// --- Precondition tests ---

func TestQuoteBuy_ZeroAmount(t *testing.T) {
	_, _, _, err := QuoteBuy(d(4000), d(6000), d(0))
	if err != ErrInvalidAmount {
		t.Errorf("expected ErrInvalidAmount for zero amount, got %v", err)
	}
}

func TestQuoteBuy_NegativeAmount(t *testing.T) {
	_, _, _, err := QuoteBuy(d(4000), d(6000), d(-50))
	if err != ErrInvalidAmount {
		t.Errorf("expected ErrInvalidAmount for negative amount, got %v", err)
	}
}

func TestQuoteBuy_EmptyPool(t *testing.T) {
	_, _, _, err := QuoteBuy(d(0), d(6000), d(100))
	if err != ErrEmptyPool {
		t.Errorf("expected ErrEmptyPool for zero same reserve, got %v", err)
	}
	_, _, _, err = QuoteBuy(d(4000), d(0), d(100))
	if err != ErrEmptyPool {
		t.Errorf("expected ErrEmptyPool for zero opposite reserve, got %v", err)
	}
}

func TestQuoteSell_ZeroShares(t *testing.T) {
	_, _, _, err := QuoteSell(d(4000), d(6000), d(0))
	if err != ErrInvalidAmount {
		t.Errorf("expected ErrInvalidAmount for zero shares, got %v", err)
	}
}

// --- Spot price tests ---

func TestSpotPrice_SumsToOne(t *testing.T) {
	one := decimal.NewFromInt(1)
	tolerance := d(0.000000001)

	tests := []struct {
		yes, no float64
	}{
		{4000, 6000},
		{6000, 4000},
		{1, 1},
		{100000, 3},
		{3435.93, 6985},
		{0.5, 0.5},
	}
	for _, tt := range tests {
		pYes := SpotPrice(d(tt.yes), d(tt.no))
		pNo := SpotPrice(d(tt.no), d(tt.yes))
		sum := pYes.Add(pNo)
		if sum.Sub(one).Abs().GreaterThan(tolerance) {
			t.Errorf("prices should sum to 1: pYes=%s pNo=%s sum=%s (reserves=%.2f,%.2f)",
				pYes, pNo, sum, tt.yes, tt.no)
		}
	}
}

func TestSpotPrice_BalancedPoolIsFiftyFifty(t *testing.T) {
	price := SpotPrice(d(5000), d(5000))
	if !price.Equal(d(0.5)) {
		t.Errorf("expected 0.5 for balanced pool, got %s", price)
	}
}

// --- Invariant preservation ---

func TestQuoteBuy_PreservesK(t *testing.T) {
	tests := []struct {
		same, opposite, net float64
	}{
		{4000, 6000, 985},
		{6000, 4000, 100},
		{2500, 2500, 1},
		{100, 100, 95},
		{50000, 1000, 12345.678901},
	}
	for _, tt := range tests {
		k := d(tt.same).Mul(d(tt.opposite))
		_, newSame, newOpposite, err := QuoteBuy(d(tt.same), d(tt.opposite), d(tt.net))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		newK := newSame.Mul(newOpposite)
		relErr := newK.Sub(k).Abs().Div(k)
		if relErr.GreaterThan(d(0.000001)) {
			t.Errorf("k not preserved: k=%s newK=%s (reserves=%.0f,%.0f net=%.2f)",
				k, newK, tt.same, tt.opposite, tt.net)
		}
	}
}

func TestQuoteSell_PreservesK(t *testing.T) {
	k := d(4000).Mul(d(6000))
	_, newSame, newOpposite, err := QuoteSell(d(4000), d(6000), d(500))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	newK := newSame.Mul(newOpposite)
	relErr := newK.Sub(k).Abs().Div(k)
	if relErr.GreaterThan(d(0.000001)) {
		t.Errorf("k not preserved: k=%s newK=%s", k, newK)
	}
}

// --- Monotonicity ---

func TestQuoteBuy_SharesMonotonicInAmount(t *testing.T) {
	var prev decimal.Decimal
	for i, net := range []float64{1, 10, 100, 500, 1000, 5000} {
		shares, _, _, err := QuoteBuy(d(4000), d(6000), d(net))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if i > 0 && shares.LessThanOrEqual(prev) {
			t.Errorf("sharesOut should be strictly increasing in netAmount: %s then %s at net=%.0f",
				prev, shares, net)
		}
		prev = shares
	}
}

func TestQuoteBuy_SharesBoundedByReserve(t *testing.T) {
	// Even an enormous deposit cannot drain the purchased reserve.
	shares, newSame, _, err := QuoteBuy(d(4000), d(6000), d(1e9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shares.GreaterThanOrEqual(d(4000)) {
		t.Errorf("sharesOut must stay below reserveSame, got %s", shares)
	}
	if newSame.LessThanOrEqual(decimal.Zero) {
		t.Errorf("newSame must stay positive, got %s", newSame)
	}
}

// --- Round trip ---

func TestRoundTrip_NeverFavorsTrader(t *testing.T) {
	tolerance := d(0.000001)
	for _, net := range []float64{10, 100, 985, 3000} {
		shares, newSame, newOpposite, err := QuoteBuy(d(4000), d(6000), d(net))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		proceeds, _, _, err := QuoteSell(newSame, newOpposite, shares)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if proceeds.GreaterThan(d(net).Add(tolerance)) {
			t.Errorf("round trip must not profit: net in=%.2f, proceeds out=%s", net, proceeds)
		}
	}
}

// --- Worked scenario from the settlement contract ---

func TestQuoteBuy_ReferenceScenario(t *testing.T) {
	// yes=4000, no=6000, k=24,000,000; buy YES with net=985.
	shares, newSame, newOpposite, err := QuoteBuy(d(4000), d(6000), d(985))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !newOpposite.Equal(d(6985)) {
		t.Errorf("expected newOpposite=6985, got %s", newOpposite)
	}
	// newSame = 24,000,000 / 6985 ≈ 3435.93
	if newSame.Sub(d(3435.93)).Abs().GreaterThan(d(0.01)) {
		t.Errorf("expected newSame≈3435.93, got %s", newSame)
	}
	// shares = 4000 - 3435.93 ≈ 564.07
	if shares.Sub(d(564.07)).Abs().GreaterThan(d(0.01)) {
		t.Errorf("expected shares≈564.07, got %s", shares)
	}

	// New YES price ≈ 0.6702, NO ≈ 0.3298, sum exactly 1.
	pYes := SpotPrice(newSame, newOpposite)
	pNo := SpotPrice(newOpposite, newSame)
	if pYes.Sub(d(0.6702)).Abs().GreaterThan(d(0.0001)) {
		t.Errorf("expected yes price≈0.6702, got %s", pYes)
	}
	if pNo.Sub(d(0.3298)).Abs().GreaterThan(d(0.0001)) {
		t.Errorf("expected no price≈0.3298, got %s", pNo)
	}
	sum := pYes.Add(pNo)
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(d(0.000000001)) {
		t.Errorf("post-trade prices must sum to 1, got %s", sum)
	}
}

// --- Helper tests ---

func TestAvgPrice(t *testing.T) {
	avg := AvgPrice(d(985), d(564.07))
	// 985 / 564.07 ≈ 1.7462 — far above spot, expected for a large trade.
	if avg.Sub(d(1.7462)).Abs().GreaterThan(d(0.001)) {
		t.Errorf("expected avg≈1.7462, got %s", avg)
	}
	if !AvgPrice(d(100), d(0)).IsZero() {
		t.Error("avg price with zero shares should be zero")
	}
}

func TestSlippage_PositiveForBuys(t *testing.T) {
	spot := SpotPrice(d(4000), d(6000))
	shares, _, _, _ := QuoteBuy(d(4000), d(6000), d(985))
	avg := AvgPrice(d(985), shares)
	slip := Slippage(avg, spot)
	if slip.LessThanOrEqual(decimal.Zero) {
		t.Errorf("buy slippage should be positive, got %s", slip)
	}
}

func TestSlippage_TinyTradeApproachesMarginalPrice(t *testing.T) {
	// An infinitesimal buy executes at the marginal price opposite/same
	// (1.5 here), not at spot (0.6), so slippage-vs-spot tends to 150%.
	spot := SpotPrice(d(4000), d(6000))
	shares, _, _, _ := QuoteBuy(d(4000), d(6000), d(0.01))
	avg := AvgPrice(d(0.01), shares)

	marginal := d(6000).Div(d(4000))
	if avg.Sub(marginal).Abs().GreaterThan(d(0.0001)) {
		t.Errorf("tiny trade avg should approach %s, got %s", marginal, avg)
	}

	slip := Slippage(avg, spot)
	if slip.Sub(d(150)).Abs().GreaterThan(d(0.01)) {
		t.Errorf("tiny trade slippage should approach 150%%, got %s%%", slip)
	}

	// Larger trades only move the average further from marginal, in the
	// trader's disfavor.
	bigShares, _, _, _ := QuoteBuy(d(4000), d(6000), d(985))
	bigSlip := Slippage(AvgPrice(d(985), bigShares), spot)
	if bigSlip.LessThan(slip) {
		t.Errorf("slippage should grow with size: tiny %s%% vs large %s%%", slip, bigSlip)
	}
}
