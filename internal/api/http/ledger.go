package apihttp

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"energy-exchange/internal/audit"
	creditapp "energy-exchange/internal/credit/application"
	credit "energy-exchange/internal/credit/domain"
)

// LedgerHandler serves /api/v1/ledger and /api/v1/balances/{account}.
type LedgerHandler struct {
	service *creditapp.Service
	audit   auditor
}

// NewLedgerHandler constructs a LedgerHandler.
func NewLedgerHandler(service *creditapp.Service, auditLogger audit.Logger) (*LedgerHandler, error) {
	if service == nil {
		return nil, errors.New("ledger handler: nil service")
	}
	return &LedgerHandler{service: service, audit: auditor{logger: auditLogger}}, nil
}

// ServeHTTP routes ledger requests.
func (h *LedgerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/ledger" && r.Method == http.MethodGet:
		h.handleState(w, r)
	case path == "/api/v1/ledger/init" && r.Method == http.MethodPost:
		h.handleInit(w, r)
	case path == "/api/v1/ledger/mint" && r.Method == http.MethodPost:
		h.handleMint(w, r)
	case path == "/api/v1/ledger/burn" && r.Method == http.MethodPost:
		h.handleBurn(w, r)
	case path == "/api/v1/ledger/transfer" && r.Method == http.MethodPost:
		h.handleTransfer(w, r)
	case strings.HasPrefix(path, "/api/v1/balances/") && r.Method == http.MethodGet:
		h.handleBalance(w, r, strings.TrimPrefix(path, "/api/v1/balances/"))
	case path == "/api/v1/ledger", path == "/api/v1/ledger/init", path == "/api/v1/ledger/mint",
		path == "/api/v1/ledger/burn", path == "/api/v1/ledger/transfer":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type ledgerResponse struct {
	Authority   string    `json:"authority"`
	Asset       string    `json:"asset"`
	Decimals    uint8     `json:"decimals"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	TotalSupply uint64    `json:"total_supply"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toLedgerResponse(state *credit.LedgerState) ledgerResponse {
	return ledgerResponse{
		Authority:   state.Authority(),
		Asset:       state.Asset(),
		Decimals:    state.Decimals(),
		Name:        state.Name(),
		Symbol:      state.Symbol(),
		TotalSupply: state.TotalSupply(),
		CreatedAt:   state.CreatedAt(),
		UpdatedAt:   state.UpdatedAt(),
	}
}

func (h *LedgerHandler) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerResponse(state))
}

func (h *LedgerHandler) handleInit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req struct {
		Asset    string `json:"asset"`
		Decimals uint8  `json:"decimals"`
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	state, err := h.service.Initialize(r.Context(), creditapp.InitializeCommand{
		Caller:   caller,
		Asset:    req.Asset,
		Decimals: req.Decimals,
		Name:     req.Name,
		Symbol:   req.Symbol,
	})
	h.audit.record(r, "ledger.init", "ledger", req.Asset, map[string]any{"symbol": req.Symbol, "decimals": req.Decimals}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLedgerResponse(state))
}

type mintRequest struct {
	Recipient      string `json:"recipient"`
	Amount         uint64 `json:"amount"`
	EnergyProduced uint64 `json:"energy_produced"`
	MeterID        string `json:"meter_id"`
}

type mintResponse struct {
	User           string    `json:"user"`
	MeterID        string    `json:"meter_id"`
	EnergyProduced uint64    `json:"energy_produced"`
	CreditsMinted  uint64    `json:"credits_minted"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (h *LedgerHandler) handleMint(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req mintRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	event, err := h.service.Mint(r.Context(), creditapp.MintCommand{
		Caller:         caller,
		Recipient:      req.Recipient,
		Amount:         req.Amount,
		EnergyProduced: req.EnergyProduced,
		MeterID:        req.MeterID,
	})
	h.audit.record(r, "ledger.mint", "account", req.Recipient, map[string]any{"amount": req.Amount, "meter_id": req.MeterID}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mintResponse{
		User:           event.User,
		MeterID:        event.MeterID,
		EnergyProduced: event.EnergyProduced,
		CreditsMinted:  event.CreditsMinted,
		OccurredAt:     event.OccurredAt,
	})
}

type burnRequest struct {
	Holder         string `json:"holder"`
	Amount         uint64 `json:"amount"`
	EnergyConsumed uint64 `json:"energy_consumed"`
	MeterID        string `json:"meter_id"`
}

type burnResponse struct {
	User           string    `json:"user"`
	MeterID        string    `json:"meter_id"`
	EnergyConsumed uint64    `json:"energy_consumed"`
	CreditsBurned  uint64    `json:"credits_burned"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (h *LedgerHandler) handleBurn(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req burnRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Holder == "" {
		req.Holder = caller
	}
	event, err := h.service.Burn(r.Context(), creditapp.BurnCommand{
		Caller:         caller,
		Holder:         req.Holder,
		Amount:         req.Amount,
		EnergyConsumed: req.EnergyConsumed,
		MeterID:        req.MeterID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, burnResponse{
		User:           event.User,
		MeterID:        event.MeterID,
		EnergyConsumed: event.EnergyConsumed,
		CreditsBurned:  event.CreditsBurned,
		OccurredAt:     event.OccurredAt,
	})
}

type transferResponse struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Amount     uint64    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h *LedgerHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req struct {
		To     string `json:"to"`
		Amount uint64 `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	event, err := h.service.Transfer(r.Context(), creditapp.TransferCommand{From: caller, To: req.To, Amount: req.Amount})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{From: event.From, To: event.To, Amount: event.Amount, OccurredAt: event.OccurredAt})
}

func (h *LedgerHandler) handleBalance(w http.ResponseWriter, r *http.Request, account string) {
	if account == "" || strings.Contains(account, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	balance, err := h.service.BalanceOf(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "balance": balance})
}
