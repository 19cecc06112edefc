package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"energy-exchange/internal/platform/pgutil"
)

const singletonKey = "default"

// Loader reads a Snapshot from the exchange tables.
type Loader struct {
	db *sql.DB
}

// NewLoader constructs a Postgres snapshot loader.
func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// Load reads every counter and the aggregates of its records for asset.
func (l *Loader) Load(ctx context.Context, asset string) (Snapshot, error) {
	if l == nil || l.db == nil {
		return Snapshot{}, errors.New("reconcile loader: nil db")
	}
	snapshot := Snapshot{Asset: asset, TakenAt: time.Now().UTC()}

	ledger, resolved, err := l.loadLedger(ctx, asset)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Ledger = ledger
	snapshot.Asset = resolved

	registry, err := l.loadRegistry(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Registry = registry

	marketTotals, err := l.loadMarket(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Market = marketTotals

	if snapshot.Meters, err = l.loadMeters(ctx); err != nil {
		return Snapshot{}, err
	}
	if snapshot.Offers, err = l.loadOffers(ctx); err != nil {
		return Snapshot{}, err
	}
	if snapshot.Trades, err = l.loadMispricedTrades(ctx); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// loadLedger falls back to the stored asset when asset is empty.
func (l *Loader) loadLedger(ctx context.Context, asset string) (*LedgerTotals, string, error) {
	var (
		supply   pgutil.Uint64
		storedAs string
	)
	err := l.db.QueryRowContext(ctx, `
SELECT total_supply, asset
FROM credit_ledger
WHERE id = $1`, singletonKey).Scan(&supply, &storedAs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, asset, nil
	}
	if err != nil {
		return nil, asset, fmt.Errorf("reconcile loader: ledger: %w", err)
	}
	if asset == "" {
		asset = storedAs
	}

	var (
		sum      string
		accounts int
	)
	err = l.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(balance), 0)::text, COUNT(*)
FROM token_balances
WHERE asset = $1 AND balance > 0`, asset).Scan(&sum, &accounts)
	if err != nil {
		return nil, asset, fmt.Errorf("reconcile loader: balances: %w", err)
	}
	totals := &LedgerTotals{TotalSupply: supply.V, Accounts: accounts}
	if err := parseSum(sum, &totals.BalanceSum); err != nil {
		return nil, asset, err
	}
	return totals, asset, nil
}

func (l *Loader) loadRegistry(ctx context.Context) (*RegistryTotals, error) {
	var meters, readings pgutil.Uint64
	err := l.db.QueryRowContext(ctx, `
SELECT total_meters, total_readings
FROM oracle_registry
WHERE id = $1`, singletonKey).Scan(&meters, &readings)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reconcile loader: registry: %w", err)
	}
	totals := &RegistryTotals{TotalMeters: meters.V, TotalReadings: readings.V}
	err = l.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM meters),
	(SELECT COUNT(*) FROM meter_readings)`).Scan(&totals.MeterCount, &totals.ReadingCount)
	if err != nil {
		return nil, fmt.Errorf("reconcile loader: registry counts: %w", err)
	}
	return totals, nil
}

func (l *Loader) loadMarket(ctx context.Context) (*MarketTotals, error) {
	var offers, volume pgutil.Uint64
	err := l.db.QueryRowContext(ctx, `
SELECT total_offers, total_volume_traded
FROM market
WHERE id = $1`, singletonKey).Scan(&offers, &volume)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reconcile loader: market: %w", err)
	}
	totals := &MarketTotals{TotalOffers: offers.V, TotalVolumeTraded: volume.V}
	var traded string
	err = l.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM energy_offers),
	(SELECT COALESCE(SUM(energy_amount), 0)::text FROM trades)`).Scan(&totals.OfferCount, &traded)
	if err != nil {
		return nil, fmt.Errorf("reconcile loader: market counts: %w", err)
	}
	if err := parseSum(traded, &totals.TradedSum); err != nil {
		return nil, err
	}
	return totals, nil
}

func (l *Loader) loadMeters(ctx context.Context) ([]MeterTotals, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT m.meter_id, m.total_readings, COUNT(r.id)
FROM meters m
LEFT JOIN meter_readings r ON r.meter_id = m.meter_id
GROUP BY m.meter_id, m.total_readings
ORDER BY m.meter_id`)
	if err != nil {
		return nil, fmt.Errorf("reconcile loader: meters: %w", err)
	}
	defer rows.Close()

	var result []MeterTotals
	for rows.Next() {
		var (
			row   MeterTotals
			total pgutil.Uint64
		)
		if err := rows.Scan(&row.MeterID, &total, &row.ReadingCount); err != nil {
			return nil, fmt.Errorf("reconcile loader: scan meter: %w", err)
		}
		row.TotalReadings = total.V
		result = append(result, row)
	}
	return result, rows.Err()
}

func (l *Loader) loadOffers(ctx context.Context) ([]OfferTotals, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT o.id, o.energy_amount, o.filled_amount, o.status, COALESCE(SUM(t.energy_amount), 0)::text
FROM energy_offers o
LEFT JOIN trades t ON t.offer_id = o.id
GROUP BY o.id, o.energy_amount, o.filled_amount, o.status
ORDER BY o.id`)
	if err != nil {
		return nil, fmt.Errorf("reconcile loader: offers: %w", err)
	}
	defer rows.Close()

	var result []OfferTotals
	for rows.Next() {
		var (
			row            OfferTotals
			amount, filled pgutil.Uint64
			traded         string
		)
		if err := rows.Scan(&row.OfferID, &amount, &filled, &row.Status, &traded); err != nil {
			return nil, fmt.Errorf("reconcile loader: scan offer: %w", err)
		}
		row.EnergyAmount = amount.V
		row.FilledAmount = filled.V
		if err := parseSum(traded, &row.TradedSum); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// loadMispricedTrades only returns trades whose stored cost differs from
// amount * price; the comparison runs in NUMERIC so it cannot overflow.
func (l *Loader) loadMispricedTrades(ctx context.Context) ([]TradeCost, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT id, energy_amount, price_per_unit, total_cost
FROM trades
WHERE total_cost <> energy_amount * price_per_unit
ORDER BY executed_at, id`)
	if err != nil {
		return nil, fmt.Errorf("reconcile loader: trades: %w", err)
	}
	defer rows.Close()

	var result []TradeCost
	for rows.Next() {
		var (
			row                 TradeCost
			amount, price, cost pgutil.Uint64
		)
		if err := rows.Scan(&row.TradeID, &amount, &price, &cost); err != nil {
			return nil, fmt.Errorf("reconcile loader: scan trade: %w", err)
		}
		row.EnergyAmount = amount.V
		row.PricePerUnit = price.V
		row.TotalCost = cost.V
		result = append(result, row)
	}
	return result, rows.Err()
}

func parseSum(text string, dst *uint256.Int) error {
	if err := dst.SetFromDecimal(text); err != nil {
		return fmt.Errorf("reconcile loader: parse sum %q: %w", text, err)
	}
	return nil
}
