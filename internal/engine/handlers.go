package engine

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Ashurkovd/outcomebazaar/internal/guard"
	"github.com/Ashurkovd/outcomebazaar/internal/ledger"
	"github.com/Ashurkovd/outcomebazaar/internal/model"
	"github.com/Ashurkovd/outcomebazaar/internal/store"
)

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Question string          `json:"question"`
	Category string          `json:"category"`
	Seed     decimal.Decimal `json:"seed"`
	// YesPrice is the initial YES probability; 0 → 0.5.
	YesPrice decimal.Decimal `json:"yes_price"`
	EndTime  time.Time       `json:"end_time"`
}

// BuyRequest is the JSON body for POST /trade/buy.
type BuyRequest struct {
	UserID   string          `json:"user_id"`
	MarketID string          `json:"market_id"`
	Outcome  model.Outcome   `json:"outcome"`
	Amount   decimal.Decimal `json:"amount"` // gross currency, fee included
	// ConfirmSplit accepts a partial fill for oversized orders.
	ConfirmSplit bool `json:"confirm_split"`
}

// SellRequest is the JSON body for POST /trade/sell. Either LotID or the
// (UserID, MarketID, Outcome) triple identifies the position.
type SellRequest struct {
	UserID   string          `json:"user_id"`
	MarketID string          `json:"market_id"`
	Outcome  model.Outcome   `json:"outcome"`
	LotID    string          `json:"lot_id,omitempty"`
	Shares   decimal.Decimal `json:"shares"`
}

// QuoteRequest is the JSON body for POST /quote.
type QuoteRequest struct {
	MarketID string          `json:"market_id"`
	Outcome  model.Outcome   `json:"outcome"`
	Side     string          `json:"side"`   // "BUY" or "SELL"
	Amount   decimal.Decimal `json:"amount"` // gross currency (buy) or shares (sell)
}

// ResolveRequest is the JSON body for POST /markets/{marketID}/resolve.
type ResolveRequest struct {
	Outcome model.Outcome `json:"outcome"`
}

// --- HTTP Handlers ---

// HandleCreateMarket handles POST /api/v1/markets
func (s *Service) HandleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		writeError(w, "question is required", http.StatusBadRequest)
		return
	}
	if req.YesPrice.IsZero() {
		req.YesPrice = decimal.NewFromFloat(0.5)
	}

	m, err := s.CreateMarket(r.Context(), req.Question, req.Category, req.Seed, req.YesPrice, req.EndTime)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// HandleGetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) HandleGetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleListMarkets handles GET /api/v1/markets
// Optionally filtered by ?category=<name> and ?state=<state>.
func (s *Service) HandleListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}

	category := r.URL.Query().Get("category")
	state := r.URL.Query().Get("state")
	if category != "" || state != "" {
		filtered := []model.Market{}
		for _, m := range markets {
			if category != "" && m.Category != category {
				continue
			}
			if state != "" && string(m.State) != state {
				continue
			}
			filtered = append(filtered, m)
		}
		markets = filtered
	}
	writeJSON(w, http.StatusOK, markets)
}

// HandleGetPrice handles GET /api/v1/markets/{marketID}/price
func (s *Service) HandleGetPrice(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{
		"yes": m.YesPrice().Round(8),
		"no":  m.NoPrice().Round(8),
	})
}

// HandleMarketActivity handles GET /api/v1/markets/{marketID}/activity
func (s *Service) HandleMarketActivity(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListTradeEventsByMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, "failed to load activity", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.TradeEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleMarketHistory handles GET /api/v1/markets/{marketID}/history
// Returns the market's price over time, one point per executed trade, with
// the current spot appended so charts always end at the live price.
func (s *Service) HandleMarketHistory(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	m, err := s.store.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	events, err := s.store.ListTradeEventsByMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	one := decimal.NewFromInt(1)
	points := make([]model.PricePoint, 0, len(events)+1)
	for _, e := range events {
		points = append(points, model.PricePoint{
			Timestamp: e.Timestamp,
			YesPrice:  e.YesPrice,
			NoPrice:   one.Sub(e.YesPrice),
		})
	}
	points = append(points, model.PricePoint{
		Timestamp: time.Now().UTC(),
		YesPrice:  m.YesPrice().Round(8),
		NoPrice:   m.NoPrice().Round(8),
	})
	writeJSON(w, http.StatusOK, points)
}

// HandleQuote handles POST /api/v1/quote
func (s *Service) HandleQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var (
		q   *Quote
		err error
	)
	switch req.Side {
	case "BUY", "":
		q, err = s.QuoteBuy(r.Context(), req.MarketID, req.Outcome, req.Amount)
	case "SELL":
		q, err = s.QuoteSell(r.Context(), req.MarketID, req.Outcome, req.Amount)
	default:
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HandleBuy handles POST /api/v1/trade/buy
func (s *Service) HandleBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	res, err := s.ExecuteBuy(r.Context(), req.UserID, req.MarketID, req.Outcome, req.Amount, req.ConfirmSplit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSell handles POST /api/v1/trade/sell
func (s *Service) HandleSell(w http.ResponseWriter, r *http.Request) {
	var req SellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var (
		res *SellResult
		err error
	)
	if req.LotID != "" {
		res, err = s.ExecuteSellLot(r.Context(), req.LotID, req.Shares)
	} else {
		if req.UserID == "" {
			writeError(w, "user_id is required", http.StatusBadRequest)
			return
		}
		res, err = s.ExecuteSellAggregate(r.Context(), req.UserID, req.MarketID, req.Outcome, req.Shares)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleResolveMarket handles POST /api/v1/markets/{marketID}/resolve
func (s *Service) HandleResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := s.ResolveMarket(r.Context(), chi.URLParam(r, "marketID"), req.Outcome)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleCancelMarket handles POST /api/v1/markets/{marketID}/cancel
func (s *Service) HandleCancelMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.CancelMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandlePortfolio handles GET /api/v1/portfolio/{userID}
func (s *Service) HandlePortfolio(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Portfolio(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleListLots handles GET /api/v1/lots/{userID}
func (s *Service) HandleListLots(w http.ResponseWriter, r *http.Request) {
	lots, err := s.store.ListLotsByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "failed to load lots", http.StatusInternalServerError)
		return
	}
	if lots == nil {
		lots = []model.Lot{}
	}
	writeJSON(w, http.StatusOK, lots)
}

// HandleListOrders handles GET /api/v1/orders/{userID}
func (s *Service) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.ListDeferredOrdersByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "failed to load orders", http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []model.DeferredOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// HandleCancelOrder handles POST /api/v1/orders/{orderID}/cancel
func (s *Service) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.CancelDeferredOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// HandleUserActivity handles GET /api/v1/activity/{userID}
func (s *Service) HandleUserActivity(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListTradeEventsByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, "failed to load activity", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.TradeEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Routes mounts all handlers on a chi router under the caller's prefix.
func (s *Service) Routes(r chi.Router) {
	r.Get("/markets", s.HandleListMarkets)
	r.Post("/markets", s.HandleCreateMarket)
	r.Get("/markets/{marketID}", s.HandleGetMarket)
	r.Get("/markets/{marketID}/price", s.HandleGetPrice)
	r.Get("/markets/{marketID}/activity", s.HandleMarketActivity)
	r.Get("/markets/{marketID}/history", s.HandleMarketHistory)
	r.Post("/markets/{marketID}/resolve", s.HandleResolveMarket)
	r.Post("/markets/{marketID}/cancel", s.HandleCancelMarket)

	r.Post("/quote", s.HandleQuote)
	r.Post("/trade/buy", s.HandleBuy)
	r.Post("/trade/sell", s.HandleSell)

	r.Get("/portfolio/{userID}", s.HandlePortfolio)
	r.Get("/lots/{userID}", s.HandleListLots)
	r.Get("/orders/{userID}", s.HandleListOrders)
	r.Post("/orders/{orderID}/cancel", s.HandleCancelOrder)
	r.Get("/activity/{userID}", s.HandleUserActivity)
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrMarketNotFound),
		errors.Is(err, store.ErrLotNotFound),
		errors.Is(err, store.ErrOrderNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, guard.ErrInvalidAmount),
		errors.Is(err, ErrInvalidOutcome),
		errors.Is(err, ledger.ErrInvalidCloseAmount),
		errors.Is(err, ledger.ErrNoOpenLots):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, guard.ErrMarketNotActive),
		errors.Is(err, guard.ErrInsufficientLiquidity),
		errors.Is(err, guard.ErrPoolUsageExceeded),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, model.ErrTerminalState):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrSettlementTimeout):
		writeError(w, err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, ErrSettlementRejected):
		writeError(w, err.Error(), http.StatusBadGateway)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
