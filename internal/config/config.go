// Package config loads exchange settings from the environment, optionally
// overlaid by a YAML file named in EXCHANGE_CONFIG.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Verification modes for meter reading signatures.
const (
	VerifyNone = "none"
	VerifyHMAC = "hmac"
)

// Config holds process settings.
type Config struct {
	DatabaseURL string          `yaml:"database_url"`
	HTTPAddr    string          `yaml:"http_addr"`
	JWTSecret   string          `yaml:"jwt_secret"`
	Bootstrap   bool            `yaml:"bootstrap"`
	Ingest      IngestConfig    `yaml:"ingest"`
	Ledger      LedgerConfig    `yaml:"ledger"`
	Oracle      OracleConfig    `yaml:"oracle"`
	Market      MarketConfig    `yaml:"market"`
	Outbox      OutboxConfig    `yaml:"outbox"`
	Reconcile   ReconcileConfig `yaml:"reconcile"`
}

// IngestConfig configures the meter gateway endpoint.
type IngestConfig struct {
	Secret  string        `yaml:"secret"`
	MaxSkew time.Duration `yaml:"max_skew"`
}

// LedgerConfig describes the credit asset.
type LedgerConfig struct {
	Authority      string `yaml:"authority"`
	Asset          string `yaml:"asset"`
	Decimals       uint8  `yaml:"decimals"`
	Name           string `yaml:"name"`
	Symbol         string `yaml:"symbol"`
	CreditsPerUnit uint64 `yaml:"credits_per_unit"`
}

// OracleConfig configures reading admission.
type OracleConfig struct {
	Authority    string `yaml:"authority"`
	Verification string `yaml:"verification"`
	MeterSecret  string `yaml:"meter_secret"`
}

// MarketConfig configures the marketplace.
type MarketConfig struct {
	Authority string `yaml:"authority"`
}

// OutboxConfig configures background event dispatch.
type OutboxConfig struct {
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	BatchSize        int           `yaml:"batch_size"`
}

// ReconcileConfig configures the periodic counter reconciliation. A zero
// interval disables it; it only runs against Postgres.
type ReconcileConfig struct {
	Interval     time.Duration `yaml:"interval"`
	OutDir       string        `yaml:"out_dir"`
	WebhookURL   string        `yaml:"webhook_url"`
	DedupeWindow time.Duration `yaml:"dedupe_window"`
}

// Load reads the environment, then the YAML file in EXCHANGE_CONFIG if set.
// Malformed or out-of-range numeric variables are errors, not defaults.
func Load() (Config, error) {
	decimals, err := getenvUint("LEDGER_DECIMALS", 6, 8)
	if err != nil {
		return Config{}, err
	}
	creditsPerUnit, err := getenvUint("CREDITS_PER_UNIT", 1, 64)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		Bootstrap:   getenvBool("EXCHANGE_BOOTSTRAP", false),
		Ingest: IngestConfig{
			Secret:  getenvDefault("INGEST_HMAC_SECRET", ""),
			MaxSkew: time.Duration(getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300)) * time.Second,
		},
		Ledger: LedgerConfig{
			Authority:      getenvDefault("LEDGER_AUTHORITY", ""),
			Asset:          getenvDefault("LEDGER_ASSET", "energy-credit"),
			Decimals:       uint8(decimals),
			Name:           getenvDefault("LEDGER_NAME", "Energy Credit"),
			Symbol:         getenvDefault("LEDGER_SYMBOL", "EC"),
			CreditsPerUnit: creditsPerUnit,
		},
		Oracle: OracleConfig{
			Authority:    getenvDefault("ORACLE_AUTHORITY", ""),
			Verification: getenvDefault("READING_VERIFICATION", VerifyNone),
			MeterSecret:  getenvDefault("METER_HMAC_SECRET", ""),
		},
		Market: MarketConfig{
			Authority: getenvDefault("MARKET_AUTHORITY", ""),
		},
		Outbox: OutboxConfig{
			DispatchInterval: getenvDuration("OUTBOX_DISPATCH_INTERVAL", time.Second),
			BatchSize:        getenvIntDefault("OUTBOX_BATCH_SIZE", 50),
		},
		Reconcile: ReconcileConfig{
			Interval:     getenvDuration("RECONCILE_INTERVAL", 0),
			OutDir:       getenvDefault("RECONCILE_OUT_DIR", ""),
			WebhookURL:   getenvDefault("RECONCILE_WEBHOOK_URL", ""),
			DedupeWindow: getenvDuration("RECONCILE_DEDUPE_WINDOW", 6*time.Hour),
		},
	}

	if path := os.Getenv("EXCHANGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks required settings.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required")
	}
	if c.HTTPAddr == "" {
		return errors.New("config: http address is required")
	}
	if c.Ledger.CreditsPerUnit == 0 {
		return errors.New("config: credits per unit must be positive")
	}
	switch c.Oracle.Verification {
	case VerifyNone:
	case VerifyHMAC:
		if c.Oracle.MeterSecret == "" {
			return errors.New("config: METER_HMAC_SECRET is required for hmac verification")
		}
	default:
		return fmt.Errorf("config: unknown reading verification %q", c.Oracle.Verification)
	}
	if c.Bootstrap && (c.Ledger.Authority == "" || c.Oracle.Authority == "" || c.Market.Authority == "") {
		return errors.New("config: bootstrap requires ledger, oracle and market authorities")
	}
	if c.Outbox.BatchSize <= 0 {
		return errors.New("config: outbox batch size must be positive")
	}
	if c.Reconcile.Interval < 0 {
		return errors.New("config: reconcile interval must not be negative")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvUint parses an unsigned integer that must fit in bits.
func getenvUint(key string, fallback uint64, bits int) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseUint(value, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an unsigned %d-bit integer", key, value, bits)
	}
	return parsed, nil
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
