package apihttp

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"energy-exchange/internal/audit"
	"energy-exchange/internal/auth"
	marketapp "energy-exchange/internal/market/application"
	marketinterfaces "energy-exchange/internal/market/interfaces"
	"energy-exchange/internal/observability/metrics"
)

// StatementHandler exports an account's trade history under /api/v1/statements.
type StatementHandler struct {
	service *marketapp.Service
	asset   string
	audit   auditor
}

// NewStatementHandler constructs a StatementHandler.
func NewStatementHandler(service *marketapp.Service, asset string, auditLogger audit.Logger) (*StatementHandler, error) {
	if service == nil {
		return nil, errors.New("statement handler: nil service")
	}
	return &StatementHandler{service: service, asset: asset, audit: auditor{logger: auditLogger}}, nil
}

// ServeHTTP handles GET /api/v1/statements/trades.{pdf,xlsx}?account=&from=&to=.
func (h *StatementHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var format string
	switch r.URL.Path {
	case "/api/v1/statements/trades.pdf":
		format = "pdf"
	case "/api/v1/statements/trades.xlsx":
		format = "xlsx"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	account := strings.TrimSpace(r.URL.Query().Get("account"))
	if account == "" {
		account = caller
	}
	if account != caller && !auth.RoleFromContext(r.Context()).Allows(auth.RoleAdmin) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveStatementExport(format, result, time.Since(start))
	}()

	trades, err := h.service.AccountTrades(r.Context(), account, from, to)
	if err != nil {
		result = metrics.ResultError
		writeError(w, err)
		return
	}
	stmt := marketinterfaces.TradeStatement{
		Account:     account,
		Asset:       h.asset,
		From:        from,
		To:          to,
		GeneratedAt: h.service.Now(),
		Trades:      trades,
	}

	var (
		data        []byte
		contentType string
	)
	if format == "pdf" {
		data, err = marketinterfaces.BuildStatementPDF(stmt)
		contentType = "application/pdf"
	} else {
		data, err = marketinterfaces.BuildStatementXLSX(stmt)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="trades-`+account+`.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.audit.record(r, "statement.export", "account", account, map[string]any{"format": format, "trades": len(trades)}, nil)
}
