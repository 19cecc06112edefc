package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_EnvDefaults(t *testing.T) {
	t.Setenv("EXCHANGE_CONFIG", "")
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "postgres://localhost/exchange")
	t.Setenv("CREDITS_PER_UNIT", "10")
	t.Setenv("LEDGER_DECIMALS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/exchange" {
		t.Fatalf("expected PG_DSN fallback, got %q", cfg.DatabaseURL)
	}
	if cfg.Ledger.CreditsPerUnit != 10 || cfg.Ledger.Decimals != 6 {
		t.Fatalf("unexpected env values %+v", cfg)
	}
	if cfg.Ingest.MaxSkew != 5*time.Minute || cfg.Outbox.BatchSize != 50 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.yaml")
	data := `
http_addr: ":9090"
bootstrap: true
ledger:
  authority: ledger-admin
  symbol: GRX
  credits_per_unit: 3
oracle:
  authority: oracle-admin
  verification: hmac
  meter_secret: meters
market:
  authority: market-admin
outbox:
  dispatch_interval: 250ms
reconcile:
  interval: 30m
  webhook_url: http://alerts.local/hook
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("EXCHANGE_CONFIG", path)
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("LEDGER_SYMBOL", "ENV")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || !cfg.Bootstrap {
		t.Fatalf("unexpected top-level values %+v", cfg)
	}
	if cfg.Ledger.Symbol != "GRX" || cfg.Ledger.Name != "Energy Credit" || cfg.Ledger.CreditsPerUnit != 3 {
		t.Fatalf("expected yaml to override env, got %+v", cfg.Ledger)
	}
	if cfg.Oracle.Verification != VerifyHMAC || cfg.Oracle.MeterSecret != "meters" {
		t.Fatalf("unexpected oracle config %+v", cfg.Oracle)
	}
	if cfg.Outbox.DispatchInterval != 250*time.Millisecond {
		t.Fatalf("unexpected outbox interval %v", cfg.Outbox.DispatchInterval)
	}
	if cfg.Reconcile.Interval != 30*time.Minute || cfg.Reconcile.WebhookURL != "http://alerts.local/hook" || cfg.Reconcile.DedupeWindow != 6*time.Hour {
		t.Fatalf("unexpected reconcile config %+v", cfg.Reconcile)
	}
}

func TestLoad_RejectsOutOfRangeNumbers(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"LEDGER_DECIMALS", "300"},
		{"LEDGER_DECIMALS", "-1"},
		{"LEDGER_DECIMALS", "six"},
		{"CREDITS_PER_UNIT", "-1"},
		{"CREDITS_PER_UNIT", "18446744073709551616"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv("EXCHANGE_CONFIG", "")
			t.Setenv("AUTH_JWT_SECRET", "secret")
			t.Setenv("LEDGER_DECIMALS", "")
			t.Setenv("CREDITS_PER_UNIT", "")
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error naming %s, got %v", tc.key, err)
			}
		})
	}
}

func TestLoad_YAMLRejectsOutOfRangeDecimals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.yaml")
	if err := os.WriteFile(path, []byte("ledger:\n  decimals: 300\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("EXCHANGE_CONFIG", path)
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("LEDGER_DECIMALS", "")
	t.Setenv("CREDITS_PER_UNIT", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected yaml decimals overflow to fail")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		HTTPAddr:  ":8080",
		JWTSecret: "secret",
		Ledger:    LedgerConfig{CreditsPerUnit: 1},
		Oracle:    OracleConfig{Verification: VerifyNone},
		Outbox:    OutboxConfig{BatchSize: 10},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no jwt secret", func(c *Config) { c.JWTSecret = "" }, "AUTH_JWT_SECRET"},
		{"zero rate", func(c *Config) { c.Ledger.CreditsPerUnit = 0 }, "credits per unit"},
		{"hmac without secret", func(c *Config) { c.Oracle.Verification = VerifyHMAC }, "METER_HMAC_SECRET"},
		{"unknown verification", func(c *Config) { c.Oracle.Verification = "ed25519" }, "unknown reading verification"},
		{"bootstrap without authorities", func(c *Config) { c.Bootstrap = true }, "bootstrap"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
