package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"energy-exchange/internal/reconcile"
	"energy-exchange/internal/reconcile/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dbURL      string
	asset      string
	outDir     string
	webhookURL string
}

// Exit codes: 0 clean, 1 drift found, 2 run failed.
func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	db, err := sql.Open("pgx", cfg.dbURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	var notifier notify.Notifier
	if cfg.webhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.webhookURL, nil)
	}
	runner, err := reconcile.NewRunner(reconcile.NewLoader(db), cfg.asset, cfg.outDir, notifier, log.New(io.Discard, "", 0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	report, err := runner.RunOnce(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "reconcile:", err)
		os.Exit(2)
	}

	for _, finding := range report.Findings {
		fmt.Printf("%-18s %-40s expected=%s actual=%s\n", finding.Check, finding.Subject, finding.Expected, finding.Actual)
	}
	fmt.Printf("Reconciliation %s: checked=%d findings=%d, outputs in %s\n", report.ID, report.Checked, len(report.Findings), cfg.outDir)
	if !report.Clean() {
		os.Exit(1)
	}
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.dbURL, "db", getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")), "Postgres DSN")
	flag.StringVar(&cfg.asset, "asset", getenvDefault("LEDGER_ASSET", ""), "credit asset (defaults to the stored ledger asset)")
	flag.StringVar(&cfg.outDir, "out", "./out", "output directory")
	flag.StringVar(&cfg.webhookURL, "webhook", getenvDefault("RECONCILE_WEBHOOK_URL", ""), "alert webhook URL (optional)")
	flag.Parse()

	if cfg.dbURL == "" {
		return cfg, errors.New("missing --db or DATABASE_URL/PG_DSN")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
