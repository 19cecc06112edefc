package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"energy-exchange/internal/audit"
	"energy-exchange/internal/auth"
	readingbridge "energy-exchange/internal/credit/adapters/oracle"
	creditapp "energy-exchange/internal/credit/application"
	creditmemory "energy-exchange/internal/credit/infrastructure/memory"
	creditinterfaces "energy-exchange/internal/credit/interfaces"
	"energy-exchange/internal/eventing"
	eventmemory "energy-exchange/internal/eventing/infrastructure/memory"
	marketapp "energy-exchange/internal/market/application"
	marketmemory "energy-exchange/internal/market/infrastructure/memory"
	marketinterfaces "energy-exchange/internal/market/interfaces"
	oracleapp "energy-exchange/internal/oracle/application"
	oraclememory "energy-exchange/internal/oracle/infrastructure/memory"
	oracleinterfaces "energy-exchange/internal/oracle/interfaces"
	tokenmemory "energy-exchange/internal/token/memory"
)

var (
	jwtSecret    = []byte("test-jwt-secret")
	ingestSecret = []byte("test-ingest-secret")
	quiet        = log.New(io.Discard, "", 0)
)

type testAPI struct {
	handler    http.Handler
	dispatcher *eventing.Dispatcher
	dlq        *eventmemory.DLQStore
	audit      *audit.MemoryLogger
}

func newTestAPI(t *testing.T) testAPI {
	t.Helper()
	bus := eventing.NewInMemoryBus()
	outbox := eventmemory.NewOutboxStore()
	dlq := eventmemory.NewDLQStore()
	registry := eventing.NewRegistry(
		creditapp.LedgerInitialized{}, creditapp.EnergyProduced{}, creditapp.EnergyConsumed{}, creditapp.CreditsTransferred{},
		oracleapp.OracleInitialized{}, oracleapp.OracleSettingsUpdated{}, oracleapp.MeterRegistered{},
		oracleapp.ReadingSubmitted{}, oracleapp.MeterAuthorizationUpdated{},
		marketapp.MarketInitialized{}, marketapp.MarketSettingsUpdated{}, marketapp.OfferCreated{},
		marketapp.TradeExecuted{}, marketapp.OfferCancelled{},
	)
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, dlq)
	publisher := eventing.NewPublisher(outbox, dispatcher, "exchange", quiet)

	tokens := tokenmemory.NewLedger()
	creditSvc, err := creditapp.NewService(creditmemory.NewLedgerRepository(), tokens, creditinterfaces.NewOutboxPublisher(publisher), nil, nil, quiet)
	if err != nil {
		t.Fatalf("credit service: %v", err)
	}
	oracleSvc, err := oracleapp.NewService(oraclememory.NewRepository(), oracleinterfaces.NewOutboxPublisher(publisher), nil, nil, quiet, oracleapp.Options{})
	if err != nil {
		t.Fatalf("oracle service: %v", err)
	}
	marketSvc, err := marketapp.NewService(marketmemory.NewRepository(), tokens, "GRX", marketinterfaces.NewOutboxPublisher(publisher), nil, nil, quiet)
	if err != nil {
		t.Fatalf("market service: %v", err)
	}

	bridge, err := readingbridge.NewReadingConsumer(creditSvc, "root", 2, quiet)
	if err != nil {
		t.Fatalf("bridge: %v", err)
	}
	eventing.Subscribe(bus, eventing.EventTypeOf[oracleapp.ReadingSubmitted](), readingbridge.ConsumerName, bridge.HandleReadingSubmitted, eventmemory.NewProcessedStore())

	auditLog := audit.NewMemoryLogger()
	ledgerHandler, err := NewLedgerHandler(creditSvc, auditLog)
	if err != nil {
		t.Fatalf("ledger handler: %v", err)
	}
	oracleHandler, err := NewOracleHandler(oracleSvc, auditLog)
	if err != nil {
		t.Fatalf("oracle handler: %v", err)
	}
	marketHandler, err := NewMarketHandler(marketSvc, auditLog)
	if err != nil {
		t.Fatalf("market handler: %v", err)
	}
	statementHandler, err := NewStatementHandler(marketSvc, "GRX", auditLog)
	if err != nil {
		t.Fatalf("statement handler: %v", err)
	}
	adminHandler, err := NewAdminHandler(dlq, auditLog)
	if err != nil {
		t.Fatalf("admin handler: %v", err)
	}
	ingestHandler, err := NewIngestHandler(oracleSvc, quiet)
	if err != nil {
		t.Fatalf("ingest handler: %v", err)
	}

	mux := http.NewServeMux()
	Mount(mux, Handlers{
		Ledger:     ledgerHandler,
		Oracle:     oracleHandler,
		Market:     marketHandler,
		Statements: statementHandler,
		Admin:      adminHandler,
		Ingest:     auth.NewIngestAuthMiddleware(ingestSecret, time.Minute).Wrap(ingestHandler),
	})
	policy := auth.NewDefaultPolicy([]string{"/healthz"}, []string{"/ingest/"})
	return testAPI{
		handler:    auth.NewMiddleware(jwtSecret, policy).Wrap(mux),
		dispatcher: dispatcher,
		dlq:        dlq,
		audit:      auditLog,
	}
}

func (a testAPI) call(t *testing.T, method, path, subject string, role auth.Role, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if subject != "" {
		token, err := auth.IssueJWT(subject, role, jwtSecret, time.Hour, time.Now())
		if err != nil {
			t.Fatalf("issue jwt: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a testAPI) ingest(t *testing.T, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/ingest/meters/readings", bytes.NewReader(data))
	req.Header.Set(auth.IngestTimestampHeader, ts)
	req.Header.Set(auth.IngestSignatureHeader, auth.SignIngest(ingestSecret, ts, data))
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a testAPI) bootstrap(t *testing.T) {
	t.Helper()
	expect(t, a.call(t, http.MethodPost, "/api/v1/ledger/init", "root", auth.RoleAdmin,
		map[string]any{"asset": "GRX", "decimals": 0, "name": "Grid", "symbol": "GRX"}), http.StatusCreated)
	expect(t, a.call(t, http.MethodPost, "/api/v1/oracle/init", "root", auth.RoleAdmin, nil), http.StatusCreated)
	expect(t, a.call(t, http.MethodPost, "/api/v1/market/init", "root", auth.RoleAdmin, nil), http.StatusCreated)
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func balanceOf(t *testing.T, a testAPI, account string) uint64 {
	t.Helper()
	rec := a.call(t, http.MethodGet, "/api/v1/balances/"+account, "viewer-1", auth.RoleViewer, nil)
	expect(t, rec, http.StatusOK)
	return decode[struct {
		Balance uint64 `json:"balance"`
	}](t, rec).Balance
}

func TestAPI_ReadingToTradeToStatement(t *testing.T) {
	a := newTestAPI(t)
	a.bootstrap(t)

	rec := a.call(t, http.MethodPost, "/api/v1/meters", "alice", auth.RoleOperator,
		map[string]any{"meter_id": "panel-1", "meter_type": "solar", "location": "roof"})
	expect(t, rec, http.StatusCreated)
	if meter := decode[meterResponse](t, rec); meter.Owner != "alice" || !meter.IsAuthorized || meter.LastReadingAt != nil {
		t.Fatalf("unexpected meter %+v", meter)
	}

	rec = a.ingest(t, map[string]any{"meter_id": "panel-1", "value": 50, "reading_type": "production", "signature": "sig"})
	expect(t, rec, http.StatusOK)
	if _, err := a.dispatcher.Dispatch(context.Background(), 100); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := balanceOf(t, a, "alice"); got != 100 {
		t.Fatalf("expected 100 credits for alice, got %d", got)
	}

	rec = a.call(t, http.MethodGet, "/api/v1/meters/panel-1/latest", "viewer-1", auth.RoleViewer, nil)
	expect(t, rec, http.StatusOK)
	if reading := decode[ReadingResponse](t, rec); reading.Value != 50 || reading.Unit == "" || !reading.IsVerified {
		t.Fatalf("unexpected latest reading %+v", reading)
	}
	rec = a.call(t, http.MethodGet, "/api/v1/meters/panel-1/readings?limit=5", "viewer-1", auth.RoleViewer, nil)
	expect(t, rec, http.StatusOK)
	if readings := decode[[]ReadingResponse](t, rec); len(readings) != 1 {
		t.Fatalf("expected one reading, got %d", len(readings))
	}

	expect(t, a.call(t, http.MethodPost, "/api/v1/ledger/mint", "root", auth.RoleAdmin,
		map[string]any{"recipient": "bob", "amount": 200, "energy_produced": 200, "meter_id": "grid-import"}), http.StatusOK)

	rec = a.call(t, http.MethodPost, "/api/v1/offers", "alice", auth.RoleOperator,
		map[string]any{"energy_amount": 40, "price_per_unit": 2, "offer_type": "immediate", "duration_hours": 24})
	expect(t, rec, http.StatusCreated)
	offer := decode[offerResponse](t, rec)
	if offer.Seller != "alice" || offer.EffectiveStatus != "active" || !offer.Tradable || offer.Remaining != 40 {
		t.Fatalf("unexpected offer %+v", offer)
	}

	rec = a.call(t, http.MethodPost, "/api/v1/offers/"+offer.OfferID+"/trades", "bob", auth.RoleOperator, map[string]any{"energy_amount": 10})
	expect(t, rec, http.StatusOK)
	if trade := decode[tradeResponse](t, rec); trade.TotalCost != 20 || trade.Buyer != "bob" || trade.Seller != "alice" {
		t.Fatalf("unexpected trade %+v", trade)
	}
	if got := balanceOf(t, a, "alice"); got != 120 {
		t.Fatalf("expected alice 120, got %d", got)
	}
	if got := balanceOf(t, a, "bob"); got != 180 {
		t.Fatalf("expected bob 180, got %d", got)
	}

	rec = a.call(t, http.MethodGet, "/api/v1/offers/"+offer.OfferID, "viewer-1", auth.RoleViewer, nil)
	expect(t, rec, http.StatusOK)
	if got := decode[offerResponse](t, rec); got.FilledAmount != 10 || got.Remaining != 30 {
		t.Fatalf("unexpected offer after trade %+v", got)
	}
	rec = a.call(t, http.MethodGet, "/api/v1/offers/"+offer.OfferID+"/trades", "viewer-1", auth.RoleViewer, nil)
	expect(t, rec, http.StatusOK)
	if trades := decode[[]tradeResponse](t, rec); len(trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(trades))
	}
	rec = a.call(t, http.MethodGet, "/api/v1/offers?seller=alice&status=active", "viewer-1", auth.RoleViewer, nil)
	expect(t, rec, http.StatusOK)
	if offers := decode[[]offerResponse](t, rec); len(offers) != 1 {
		t.Fatalf("expected one active offer, got %d", len(offers))
	}
	rec = a.call(t, http.MethodGet, "/api/v1/market", "viewer-1", auth.RoleViewer, nil)
	expect(t, rec, http.StatusOK)
	if m := decode[marketResponse](t, rec); m.TotalOffers != 1 || m.TotalVolumeTraded != 10 {
		t.Fatalf("unexpected market %+v", m)
	}

	from := queryTime(time.Now().Add(-time.Hour))
	to := queryTime(time.Now().Add(time.Hour))
	rec = a.call(t, http.MethodGet, "/api/v1/statements/trades.pdf?from="+from+"&to="+to, "alice", auth.RoleViewer, nil)
	expect(t, rec, http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("unexpected pdf response %q", ct)
	}
	rec = a.call(t, http.MethodGet, "/api/v1/statements/trades.xlsx?account=alice&from="+from+"&to="+to, "root", auth.RoleAdmin, nil)
	expect(t, rec, http.StatusOK)
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected xlsx zip payload")
	}
	expect(t, a.call(t, http.MethodGet, "/api/v1/statements/trades.pdf?account=alice&from="+from+"&to="+to, "bob", auth.RoleOperator, nil), http.StatusForbidden)

	rec = a.call(t, http.MethodGet, "/api/v1/admin/dead-letters", "root", auth.RoleAdmin, nil)
	expect(t, rec, http.StatusOK)
	if letters := decode[[]eventing.DeadLetter](t, rec); len(letters) != 0 {
		t.Fatalf("unexpected dead letters %+v", letters)
	}
	rec = a.call(t, http.MethodGet, "/api/v1/admin/audit-logs?limit=50", "root", auth.RoleAdmin, nil)
	expect(t, rec, http.StatusOK)
	actions := map[string]bool{}
	for _, entry := range decode[[]auditLogResponse](t, rec) {
		actions[entry.Action] = true
	}
	for _, want := range []string{"ledger.init", "oracle.init", "market.init", "ledger.mint", "statement.export"} {
		if !actions[want] {
			t.Fatalf("missing audit action %s in %v", want, actions)
		}
	}
}

func queryTime(ts time.Time) string {
	return strings.ReplaceAll(ts.UTC().Format(time.RFC3339), "+", "%2B")
}

func TestAPI_ErrorKindsMapToStatus(t *testing.T) {
	a := newTestAPI(t)
	a.bootstrap(t)

	rec := a.call(t, http.MethodPost, "/api/v1/ledger/init", "root", auth.RoleAdmin,
		map[string]any{"asset": "GRX", "decimals": 0, "name": "Grid", "symbol": "GRX"})
	expect(t, rec, http.StatusConflict)
	if body := decode[errorResponse](t, rec); body.Kind != "state" {
		t.Fatalf("unexpected error body %+v", body)
	}

	expect(t, a.call(t, http.MethodPost, "/api/v1/offers", "alice", auth.RoleOperator,
		map[string]any{"energy_amount": 10, "price_per_unit": 1, "duration_hours": 0}), http.StatusBadRequest)
	expect(t, a.call(t, http.MethodPost, "/api/v1/offers", "alice", auth.RoleOperator,
		map[string]any{"energy_amount": 10, "price_per_unit": 1, "offer_type": "weekly", "duration_hours": 1}), http.StatusBadRequest)
	expect(t, a.call(t, http.MethodGet, "/api/v1/offers/missing", "viewer-1", auth.RoleViewer, nil), http.StatusNotFound)
	expect(t, a.call(t, http.MethodGet, "/api/v1/meters/missing", "viewer-1", auth.RoleViewer, nil), http.StatusNotFound)

	rec = a.call(t, http.MethodPost, "/api/v1/offers", "alice", auth.RoleOperator,
		map[string]any{"energy_amount": 10, "price_per_unit": 3, "duration_hours": 1})
	expect(t, rec, http.StatusCreated)
	offer := decode[offerResponse](t, rec)

	expect(t, a.call(t, http.MethodPost, "/api/v1/offers/"+offer.OfferID+"/trades", "carol", auth.RoleOperator,
		map[string]any{"energy_amount": 5}), http.StatusUnprocessableEntity)
	expect(t, a.call(t, http.MethodPost, "/api/v1/offers/"+offer.OfferID+"/trades", "carol", auth.RoleOperator,
		map[string]any{"energy_amount": 11}), http.StatusUnprocessableEntity)
	expect(t, a.call(t, http.MethodPost, "/api/v1/offers/"+offer.OfferID+"/cancel", "carol", auth.RoleOperator, nil), http.StatusForbidden)
	expect(t, a.call(t, http.MethodPost, "/api/v1/offers/"+offer.OfferID+"/cancel", "alice", auth.RoleOperator, nil), http.StatusOK)
	expect(t, a.call(t, http.MethodPost, "/api/v1/offers/"+offer.OfferID+"/cancel", "alice", auth.RoleOperator, nil), http.StatusConflict)

	rec = a.call(t, http.MethodPost, "/api/v1/market/settings", "mallory", auth.RoleAdmin, map[string]any{"is_active": false})
	expect(t, rec, http.StatusForbidden)
	entries := a.audit.Entries()
	last := entries[len(entries)-1]
	if last.Action != "market.settings" || last.Outcome != audit.OutcomeDenied || last.Actor != "mallory" {
		t.Fatalf("unexpected audit entry %+v", last)
	}
	expect(t, a.call(t, http.MethodPost, "/api/v1/market/settings", "root", auth.RoleAdmin, map[string]any{}), http.StatusBadRequest)
	expect(t, a.call(t, http.MethodPost, "/api/v1/market/settings", "root", auth.RoleAdmin, map[string]any{"is_active": false}), http.StatusOK)
	expect(t, a.call(t, http.MethodPost, "/api/v1/offers", "alice", auth.RoleOperator,
		map[string]any{"energy_amount": 10, "price_per_unit": 3, "duration_hours": 1}), http.StatusConflict)

	expect(t, a.call(t, http.MethodGet, "/api/v1/balances/alice", "viewer-1", auth.RoleViewer, nil), http.StatusOK)
	expect(t, a.call(t, http.MethodPost, "/api/v1/ledger/transfer", "alice", auth.RoleOperator, map[string]any{"to": "bob", "amount": 0}), http.StatusBadRequest)
	expect(t, a.call(t, http.MethodPost, "/api/v1/ledger/transfer", "alice", auth.RoleOperator, map[string]any{"to": "bob", "amount": 5}), http.StatusUnprocessableEntity)
	expect(t, a.call(t, http.MethodPost, "/api/v1/ledger/burn", "alice", auth.RoleOperator,
		map[string]any{"amount": 5, "energy_consumed": 5, "meter_id": "house"}), http.StatusUnprocessableEntity)
	expect(t, a.call(t, http.MethodPost, "/api/v1/ledger/offers", "alice", auth.RoleOperator, map[string]any{}), http.StatusNotFound)
	expect(t, a.call(t, http.MethodDelete, "/api/v1/market", "root", auth.RoleAdmin, nil), http.StatusMethodNotAllowed)
}

func TestAPI_MeterAuthorizationAndThrottle(t *testing.T) {
	a := newTestAPI(t)
	a.bootstrap(t)
	expect(t, a.call(t, http.MethodPost, "/api/v1/meters", "alice", auth.RoleOperator,
		map[string]any{"meter_id": "m-1", "meter_type": "consumption", "location": "flat 3"}), http.StatusCreated)
	expect(t, a.call(t, http.MethodPost, "/api/v1/meters", "alice", auth.RoleOperator,
		map[string]any{"meter_id": "m-1", "meter_type": "consumption", "location": "flat 3"}), http.StatusConflict)
	expect(t, a.call(t, http.MethodPost, "/api/v1/meters", "alice", auth.RoleOperator,
		map[string]any{"meter_id": "m-2", "meter_type": "tidal", "location": "pier"}), http.StatusBadRequest)

	expect(t, a.call(t, http.MethodPost, "/api/v1/meters/m-1/authorization", "mallory", auth.RoleAdmin,
		map[string]any{"is_authorized": false}), http.StatusForbidden)
	rec := a.call(t, http.MethodPost, "/api/v1/meters/m-1/authorization", "root", auth.RoleAdmin, map[string]any{"is_authorized": false})
	expect(t, rec, http.StatusOK)
	if meter := decode[meterResponse](t, rec); meter.IsAuthorized {
		t.Fatalf("expected deauthorized meter")
	}

	rec = a.ingest(t, map[string]any{"meter_id": "m-1", "value": 7, "reading_type": "consumption", "signature": "sig"})
	expect(t, rec, http.StatusConflict)

	expect(t, a.call(t, http.MethodPost, "/api/v1/meters/m-1/authorization", "root", auth.RoleAdmin, map[string]any{"is_authorized": true}), http.StatusOK)
	rec = a.ingest(t, map[string]any{"readings": []map[string]any{
		{"meter_id": "m-1", "value": 7, "reading_type": "consumption", "signature": "sig"},
		{"meter_id": "m-1", "value": 8, "reading_type": "consumption", "signature": "sig"},
	}})
	expect(t, rec, http.StatusConflict)
	results := decode[struct {
		Results []ingestResult `json:"results"`
	}](t, rec).Results
	if len(results) != 2 || results[0].Reading == nil || results[1].Kind != "state" {
		t.Fatalf("unexpected ingest results %+v", results)
	}
	expect(t, a.call(t, http.MethodGet, "/api/v1/meters/m-1/latest", "viewer-1", auth.RoleViewer, nil), http.StatusOK)

	rec = a.call(t, http.MethodGet, "/api/v1/oracle", "viewer-1", auth.RoleViewer, nil)
	expect(t, rec, http.StatusOK)
	if registry := decode[registryResponse](t, rec); registry.TotalMeters != 1 || registry.TotalReadings != 1 {
		t.Fatalf("unexpected registry %+v", registry)
	}
}

func TestAPI_AuthBoundaries(t *testing.T) {
	a := newTestAPI(t)
	expect(t, a.call(t, http.MethodGet, "/api/v1/ledger", "", "", nil), http.StatusUnauthorized)
	expect(t, a.call(t, http.MethodPost, "/api/v1/offers", "v", auth.RoleViewer, map[string]any{}), http.StatusForbidden)
	expect(t, a.call(t, http.MethodPost, "/api/v1/ledger/mint", "op", auth.RoleOperator, map[string]any{}), http.StatusForbidden)
	expect(t, a.call(t, http.MethodGet, "/api/v1/admin/audit-logs", "op", auth.RoleOperator, nil), http.StatusForbidden)
	expect(t, a.call(t, http.MethodGet, "/api/v1/ledger", "v", auth.RoleViewer, nil), http.StatusConflict)
	expect(t, a.call(t, http.MethodGet, "/healthz", "", "", nil), http.StatusOK)

	req := httptest.NewRequest(http.MethodPost, "/ingest/meters/readings", strings.NewReader(`{"meter_id":"m"}`))
	req.Header.Set(auth.IngestTimestampHeader, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(auth.IngestSignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	expect(t, rec, http.StatusUnauthorized)

	expect(t, a.ingest(t, map[string]any{}), http.StatusBadRequest)
}
