package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apihttp "energy-exchange/internal/api/http"
	"energy-exchange/internal/audit"
	"energy-exchange/internal/auth"
	"energy-exchange/internal/config"
	readingbridge "energy-exchange/internal/credit/adapters/oracle"
	creditapp "energy-exchange/internal/credit/application"
	credit "energy-exchange/internal/credit/domain"
	creditmemory "energy-exchange/internal/credit/infrastructure/memory"
	creditrepo "energy-exchange/internal/credit/infrastructure/postgres"
	creditinterfaces "energy-exchange/internal/credit/interfaces"
	"energy-exchange/internal/eventing"
	eventingmemory "energy-exchange/internal/eventing/infrastructure/memory"
	eventingrepo "energy-exchange/internal/eventing/infrastructure/postgres"
	marketapp "energy-exchange/internal/market/application"
	market "energy-exchange/internal/market/domain"
	marketmemory "energy-exchange/internal/market/infrastructure/memory"
	marketrepo "energy-exchange/internal/market/infrastructure/postgres"
	marketinterfaces "energy-exchange/internal/market/interfaces"
	"energy-exchange/internal/observability/metrics"
	oracleapp "energy-exchange/internal/oracle/application"
	oracle "energy-exchange/internal/oracle/domain"
	oraclememory "energy-exchange/internal/oracle/infrastructure/memory"
	oraclerepo "energy-exchange/internal/oracle/infrastructure/postgres"
	"energy-exchange/internal/oracle/infrastructure/signature"
	oracleinterfaces "energy-exchange/internal/oracle/interfaces"
	"energy-exchange/internal/platform/keylock"
	"energy-exchange/internal/reconcile"
	"energy-exchange/internal/reconcile/notify"
	"energy-exchange/internal/token"
	tokenmemory "energy-exchange/internal/token/memory"
	tokenrepo "energy-exchange/internal/token/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
	} else {
		logger.Printf("storage: DATABASE_URL not set, using in-memory stores")
	}

	metrics.Init(db, logger)
	st := openStores(db)

	baseBus := eventing.NewInMemoryBus()
	dispatcher := eventing.NewDispatcher(baseBus, st.outbox, eventRegistry(), st.dlq)
	publisher := eventing.NewPublisher(st.outbox, dispatcher, "exchange", logger)

	// One locker across services so ledger, meter and offer keys share a lock order.
	locks := keylock.New()

	creditService, err := creditapp.NewService(st.credit, st.tokens, creditinterfaces.NewOutboxPublisher(publisher), locks, creditapp.SystemClock{}, logger)
	if err != nil {
		logger.Fatalf("credit service error: %v", err)
	}

	var oracleOpts oracleapp.Options
	if cfg.Oracle.Verification == config.VerifyHMAC {
		verifier, err := signature.NewHMACVerifier(cfg.Oracle.MeterSecret)
		if err != nil {
			logger.Fatalf("reading verifier error: %v", err)
		}
		oracleOpts.Verifier = verifier
		oracleOpts.RejectUnverified = true
	}
	oracleService, err := oracleapp.NewService(st.oracle, oracleinterfaces.NewOutboxPublisher(publisher), locks, oracleapp.SystemClock{}, logger, oracleOpts)
	if err != nil {
		logger.Fatalf("oracle service error: %v", err)
	}

	marketService, err := marketapp.NewService(st.market, st.tokens, cfg.Ledger.Asset, marketinterfaces.NewOutboxPublisher(publisher), locks, marketapp.SystemClock{}, logger)
	if err != nil {
		logger.Fatalf("market service error: %v", err)
	}

	if cfg.Ledger.Authority != "" {
		bridge, err := readingbridge.NewReadingConsumer(creditService, cfg.Ledger.Authority, cfg.Ledger.CreditsPerUnit, logger)
		if err != nil {
			logger.Fatalf("reading consumer error: %v", err)
		}
		eventing.Subscribe(baseBus, eventing.EventTypeOf[oracleapp.ReadingSubmitted](), readingbridge.ConsumerName, bridge.HandleReadingSubmitted, st.processed)
	} else {
		logger.Printf("reading consumer: LEDGER_AUTHORITY not set, readings will not mint or burn credits")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Bootstrap {
		bootstrap(ctx, cfg, creditService, oracleService, marketService, logger)
	}

	go dispatcher.Run(ctx, cfg.Outbox.DispatchInterval, cfg.Outbox.BatchSize, func(err error) {
		logger.Printf("outbox dispatch error: %v", err)
	})

	if db != nil && cfg.Reconcile.Interval > 0 {
		runner, err := newReconcileRunner(cfg, db, logger)
		if err != nil {
			logger.Fatalf("reconcile runner error: %v", err)
		}
		go runner.Run(ctx, cfg.Reconcile.Interval)
	}

	handlers, err := buildHandlers(cfg, st, creditService, oracleService, marketService, logger)
	if err != nil {
		logger.Fatalf("http handlers error: %v", err)
	}
	mux := http.NewServeMux()
	apihttp.Mount(mux, handlers)
	mux.Handle("/metrics", promhttp.Handler())

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
}

type outboxStore interface {
	eventing.OutboxWriter
	eventing.OutboxStore
}

type deadLetterStore interface {
	eventing.DLQStore
	apihttp.DeadLetterLister
}

type auditStore interface {
	audit.Logger
	audit.Reader
}

type stores struct {
	credit    credit.Repository
	tokens    token.Ledger
	oracle    oracle.Repository
	market    market.Repository
	outbox    outboxStore
	processed eventing.ProcessedStore
	dlq       deadLetterStore
	audit     auditStore
}

func openStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			credit:    creditmemory.NewLedgerRepository(),
			tokens:    tokenmemory.NewLedger(),
			oracle:    oraclememory.NewRepository(),
			market:    marketmemory.NewRepository(),
			outbox:    eventingmemory.NewOutboxStore(),
			processed: eventingmemory.NewProcessedStore(),
			dlq:       eventingmemory.NewDLQStore(),
			audit:     audit.NewMemoryLogger(),
		}
	}
	return stores{
		credit:    creditrepo.NewLedgerRepository(db),
		tokens:    tokenrepo.NewLedger(db),
		oracle:    oraclerepo.NewRepository(db),
		market:    marketrepo.NewRepository(db),
		outbox:    eventingrepo.NewOutboxStore(db),
		processed: eventingrepo.NewProcessedStore(db),
		dlq:       eventingrepo.NewDLQStore(db),
		audit:     audit.NewRepository(db),
	}
}

func eventRegistry() *eventing.Registry {
	return eventing.NewRegistry(
		creditapp.LedgerInitialized{},
		creditapp.EnergyProduced{},
		creditapp.EnergyConsumed{},
		creditapp.CreditsTransferred{},
		oracleapp.OracleInitialized{},
		oracleapp.OracleSettingsUpdated{},
		oracleapp.MeterRegistered{},
		oracleapp.ReadingSubmitted{},
		oracleapp.MeterAuthorizationUpdated{},
		marketapp.MarketInitialized{},
		marketapp.MarketSettingsUpdated{},
		marketapp.OfferCreated{},
		marketapp.TradeExecuted{},
		marketapp.OfferCancelled{},
	)
}

func buildHandlers(cfg config.Config, st stores, creditService *creditapp.Service, oracleService *oracleapp.Service, marketService *marketapp.Service, logger *log.Logger) (apihttp.Handlers, error) {
	ledgerHandler, err := apihttp.NewLedgerHandler(creditService, st.audit)
	if err != nil {
		return apihttp.Handlers{}, err
	}
	oracleHandler, err := apihttp.NewOracleHandler(oracleService, st.audit)
	if err != nil {
		return apihttp.Handlers{}, err
	}
	marketHandler, err := apihttp.NewMarketHandler(marketService, st.audit)
	if err != nil {
		return apihttp.Handlers{}, err
	}
	statementHandler, err := apihttp.NewStatementHandler(marketService, cfg.Ledger.Asset, st.audit)
	if err != nil {
		return apihttp.Handlers{}, err
	}
	adminHandler, err := apihttp.NewAdminHandler(st.dlq, st.audit)
	if err != nil {
		return apihttp.Handlers{}, err
	}
	ingestHandler, err := apihttp.NewIngestHandler(oracleService, logger)
	if err != nil {
		return apihttp.Handlers{}, err
	}
	if cfg.Ingest.Secret == "" {
		logger.Printf("meter ingest: INGEST_HMAC_SECRET not set, /ingest/meters/readings rejects all requests")
	}
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.Ingest.Secret), cfg.Ingest.MaxSkew)
	return apihttp.Handlers{
		Ledger:     ledgerHandler,
		Oracle:     oracleHandler,
		Market:     marketHandler,
		Statements: statementHandler,
		Admin:      adminHandler,
		Ingest:     ingestAuth.Wrap(ingestHandler),
	}, nil
}

func newReconcileRunner(cfg config.Config, db *sql.DB, logger *log.Logger) (*reconcile.Runner, error) {
	var notifier notify.Notifier
	if cfg.Reconcile.WebhookURL != "" {
		notifier = notify.NewDeduper(notify.NewWebhookNotifier(cfg.Reconcile.WebhookURL, nil), cfg.Reconcile.DedupeWindow)
	}
	return reconcile.NewRunner(reconcile.NewLoader(db), cfg.Ledger.Asset, cfg.Reconcile.OutDir, notifier, logger)
}

// bootstrap creates the ledger, registry and market with the configured
// authorities. Records that already exist are left untouched.
func bootstrap(ctx context.Context, cfg config.Config, creditService *creditapp.Service, oracleService *oracleapp.Service, marketService *marketapp.Service, logger *log.Logger) {
	_, err := creditService.Initialize(ctx, creditapp.InitializeCommand{
		Caller:   cfg.Ledger.Authority,
		Asset:    cfg.Ledger.Asset,
		Decimals: cfg.Ledger.Decimals,
		Name:     cfg.Ledger.Name,
		Symbol:   cfg.Ledger.Symbol,
	})
	if err != nil && !errors.Is(err, credit.ErrAlreadyInitialized) {
		logger.Fatalf("bootstrap ledger error: %v", err)
	}
	if _, err := oracleService.Initialize(ctx, cfg.Oracle.Authority); err != nil && !errors.Is(err, oracle.ErrAlreadyInitialized) {
		logger.Fatalf("bootstrap oracle error: %v", err)
	}
	if _, err := marketService.Initialize(ctx, cfg.Market.Authority); err != nil && !errors.Is(err, market.ErrAlreadyInitialized) {
		logger.Fatalf("bootstrap market error: %v", err)
	}
	logger.Printf("bootstrap complete: asset=%s", cfg.Ledger.Asset)
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
