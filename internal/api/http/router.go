package apihttp

import "net/http"

// Handlers groups the API handlers mounted by Mount. Nil handlers are skipped.
type Handlers struct {
	Ledger     *LedgerHandler
	Oracle     *OracleHandler
	Market     *MarketHandler
	Statements *StatementHandler
	Admin      *AdminHandler
	// Ingest is mounted as given; wrap it with the gateway auth middleware first.
	Ingest http.Handler
}

// Mount registers every API route on mux.
func Mount(mux *http.ServeMux, h Handlers) {
	if h.Ledger != nil {
		mux.Handle("/api/v1/ledger", h.Ledger)
		mux.Handle("/api/v1/ledger/", h.Ledger)
		mux.Handle("/api/v1/balances/", h.Ledger)
	}
	if h.Oracle != nil {
		mux.Handle("/api/v1/oracle", h.Oracle)
		mux.Handle("/api/v1/oracle/", h.Oracle)
		mux.Handle("/api/v1/meters", h.Oracle)
		mux.Handle("/api/v1/meters/", h.Oracle)
	}
	if h.Market != nil {
		mux.Handle("/api/v1/market", h.Market)
		mux.Handle("/api/v1/market/", h.Market)
		mux.Handle("/api/v1/offers", h.Market)
		mux.Handle("/api/v1/offers/", h.Market)
	}
	if h.Statements != nil {
		mux.Handle("/api/v1/statements/", h.Statements)
	}
	if h.Admin != nil {
		mux.Handle("/api/v1/admin/", h.Admin)
	}
	if h.Ingest != nil {
		mux.Handle("/ingest/meters/readings", h.Ingest)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
