package apihttp

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"energy-exchange/internal/audit"
	marketapp "energy-exchange/internal/market/application"
	market "energy-exchange/internal/market/domain"
)

// MarketHandler serves /api/v1/market and /api/v1/offers.
type MarketHandler struct {
	service *marketapp.Service
	audit   auditor
}

// NewMarketHandler constructs a MarketHandler.
func NewMarketHandler(service *marketapp.Service, auditLogger audit.Logger) (*MarketHandler, error) {
	if service == nil {
		return nil, errors.New("market handler: nil service")
	}
	return &MarketHandler{service: service, audit: auditor{logger: auditLogger}}, nil
}

// ServeHTTP routes market and offer requests.
func (h *MarketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/market" && r.Method == http.MethodGet:
		h.handleMarket(w, r)
	case path == "/api/v1/market/init" && r.Method == http.MethodPost:
		h.handleInit(w, r)
	case path == "/api/v1/market/settings" && r.Method == http.MethodPost:
		h.handleSettings(w, r)
	case path == "/api/v1/offers" && r.Method == http.MethodPost:
		h.handleCreateOffer(w, r)
	case path == "/api/v1/offers" && r.Method == http.MethodGet:
		h.handleListOffers(w, r)
	case strings.HasPrefix(path, "/api/v1/offers/"):
		offerID, action := splitPath(path, "/api/v1/offers/")
		h.handleOffer(w, r, offerID, action)
	case path == "/api/v1/market", path == "/api/v1/market/init", path == "/api/v1/market/settings", path == "/api/v1/offers":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *MarketHandler) handleOffer(w http.ResponseWriter, r *http.Request, offerID, action string) {
	if offerID == "" || strings.Contains(action, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		h.handleGetOffer(w, r, offerID)
	case action == "trades" && r.Method == http.MethodPost:
		h.handleTrade(w, r, offerID)
	case action == "trades" && r.Method == http.MethodGet:
		h.handleOfferTrades(w, r, offerID)
	case action == "cancel" && r.Method == http.MethodPost:
		h.handleCancel(w, r, offerID)
	case action == "", action == "trades", action == "cancel":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type marketResponse struct {
	Authority         string    `json:"authority"`
	TotalOffers       uint64    `json:"total_offers"`
	TotalVolumeTraded uint64    `json:"total_volume_traded"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toMarketResponse(m *market.Market) marketResponse {
	return marketResponse{
		Authority:         m.Authority(),
		TotalOffers:       m.TotalOffers(),
		TotalVolumeTraded: m.TotalVolumeTraded(),
		IsActive:          m.IsActive(),
		CreatedAt:         m.CreatedAt(),
		UpdatedAt:         m.UpdatedAt(),
	}
}

type offerResponse struct {
	OfferID         string    `json:"offer_id"`
	Seller          string    `json:"seller"`
	EnergyAmount    uint64    `json:"energy_amount"`
	PricePerUnit    uint64    `json:"price_per_unit"`
	OfferType       string    `json:"offer_type"`
	Status          string    `json:"status"`
	EffectiveStatus string    `json:"effective_status"`
	Tradable        bool      `json:"tradable"`
	FilledAmount    uint64    `json:"filled_amount"`
	Remaining       uint64    `json:"remaining"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func toOfferResponse(offer *market.Offer, now time.Time) offerResponse {
	effective := offer.EffectiveStatus(now)
	return offerResponse{
		OfferID:         offer.ID(),
		Seller:          offer.Seller(),
		EnergyAmount:    offer.EnergyAmount(),
		PricePerUnit:    offer.PricePerUnit(),
		OfferType:       string(offer.Type()),
		Status:          string(offer.Status()),
		EffectiveStatus: string(effective),
		Tradable:        !effective.Terminal(),
		FilledAmount:    offer.FilledAmount(),
		Remaining:       offer.Remaining(),
		CreatedAt:       offer.CreatedAt(),
		ExpiresAt:       offer.ExpiresAt(),
	}
}

type tradeResponse struct {
	TradeID      string    `json:"trade_id"`
	OfferID      string    `json:"offer_id"`
	Buyer        string    `json:"buyer"`
	Seller       string    `json:"seller"`
	EnergyAmount uint64    `json:"energy_amount"`
	PricePerUnit uint64    `json:"price_per_unit"`
	TotalCost    uint64    `json:"total_cost"`
	ExecutedAt   time.Time `json:"executed_at"`
}

func toTradeResponse(trade market.Trade) tradeResponse {
	return tradeResponse{
		TradeID:      trade.ID,
		OfferID:      trade.OfferID,
		Buyer:        trade.Buyer,
		Seller:       trade.Seller,
		EnergyAmount: trade.EnergyAmount,
		PricePerUnit: trade.PricePerUnit,
		TotalCost:    trade.TotalCost,
		ExecutedAt:   trade.ExecutedAt,
	}
}

func (h *MarketHandler) handleMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Market(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(m))
}

func (h *MarketHandler) handleInit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	m, err := h.service.Initialize(r.Context(), caller)
	h.audit.record(r, "market.init", "market", "market", nil, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMarketResponse(m))
}

func (h *MarketHandler) handleSettings(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.IsActive == nil {
		http.Error(w, "is_active is required", http.StatusBadRequest)
		return
	}
	m, err := h.service.UpdateSettings(r.Context(), caller, *req.IsActive)
	h.audit.record(r, "market.settings", "market", "market", map[string]any{"is_active": *req.IsActive}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(m))
}

func (h *MarketHandler) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req struct {
		EnergyAmount  uint64 `json:"energy_amount"`
		PricePerUnit  uint64 `json:"price_per_unit"`
		OfferType     string `json:"offer_type"`
		DurationHours uint32 `json:"duration_hours"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.OfferType == "" {
		req.OfferType = string(market.OfferTypeImmediate)
	}
	offerType, err := market.ParseOfferType(req.OfferType)
	if err != nil {
		writeError(w, err)
		return
	}
	offer, err := h.service.CreateOffer(r.Context(), marketapp.CreateOfferCommand{
		Seller:        caller,
		EnergyAmount:  req.EnergyAmount,
		PricePerUnit:  req.PricePerUnit,
		Type:          offerType,
		DurationHours: req.DurationHours,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOfferResponse(offer, h.service.Now()))
}

func (h *MarketHandler) handleListOffers(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	query := marketapp.OfferQuery{Seller: r.URL.Query().Get("seller"), Limit: limit}
	if value := r.URL.Query().Get("status"); value != "" {
		status, err := market.ParseOfferStatus(value)
		if err != nil {
			writeError(w, err)
			return
		}
		query.Status = status
	}
	offers, err := h.service.ListOffers(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	now := h.service.Now()
	resp := make([]offerResponse, 0, len(offers))
	for _, offer := range offers {
		resp = append(resp, toOfferResponse(offer, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MarketHandler) handleGetOffer(w http.ResponseWriter, r *http.Request, offerID string) {
	offer, err := h.service.Offer(r.Context(), offerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferResponse(offer, h.service.Now()))
}

func (h *MarketHandler) handleTrade(w http.ResponseWriter, r *http.Request, offerID string) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req struct {
		EnergyAmount uint64 `json:"energy_amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	trade, err := h.service.ExecuteTrade(r.Context(), marketapp.ExecuteTradeCommand{
		OfferID:      offerID,
		Buyer:        caller,
		EnergyAmount: req.EnergyAmount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTradeResponse(trade))
}

func (h *MarketHandler) handleOfferTrades(w http.ResponseWriter, r *http.Request, offerID string) {
	if _, err := h.service.Offer(r.Context(), offerID); err != nil {
		writeError(w, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	trades, err := h.service.Trades(r.Context(), market.TradeFilter{OfferID: offerID, Limit: limit})
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]tradeResponse, 0, len(trades))
	for _, trade := range trades {
		resp = append(resp, toTradeResponse(trade))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MarketHandler) handleCancel(w http.ResponseWriter, r *http.Request, offerID string) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	offer, err := h.service.CancelOffer(r.Context(), caller, offerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferResponse(offer, h.service.Now()))
}
