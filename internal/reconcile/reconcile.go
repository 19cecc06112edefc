// Package reconcile cross-checks the stored counters of the ledger, the meter
// registry and the marketplace against the records they summarise.
//
// Every operation updates a counter and appends or mutates a record in one
// step; a finding means the two drifted apart (manual edits, a partial restore,
// a failed compensation) and needs an operator.
package reconcile

import (
	"sort"
	"time"

	"github.com/holiman/uint256"

	"energy-exchange/internal/id"
	market "energy-exchange/internal/market/domain"
)

// Check names.
const (
	CheckSupply           = "supply"
	CheckMarketVolume     = "market_volume"
	CheckMarketOffers     = "market_offers"
	CheckOfferFill        = "offer_fill"
	CheckOfferStatus      = "offer_status"
	CheckTradeCost        = "trade_cost"
	CheckRegistryMeters   = "registry_meters"
	CheckRegistryReadings = "registry_readings"
	CheckMeterReadings    = "meter_readings"
)

// Checks lists every check in report order.
var Checks = []string{
	CheckSupply,
	CheckMarketVolume,
	CheckMarketOffers,
	CheckOfferFill,
	CheckOfferStatus,
	CheckTradeCost,
	CheckRegistryMeters,
	CheckRegistryReadings,
	CheckMeterReadings,
}

// LedgerTotals pairs the stored supply with the sum of holder balances.
type LedgerTotals struct {
	TotalSupply uint64
	BalanceSum  uint256.Int
	Accounts    int
}

// RegistryTotals pairs the registry counters with the stored meters and readings.
type RegistryTotals struct {
	TotalMeters   uint64
	TotalReadings uint64
	MeterCount    uint64
	ReadingCount  uint64
}

// MarketTotals pairs the market counters with the stored offers and trades.
type MarketTotals struct {
	TotalOffers       uint64
	TotalVolumeTraded uint64
	OfferCount        uint64
	TradedSum         uint256.Int
}

// MeterTotals pairs a meter's reading counter with its stored readings.
type MeterTotals struct {
	MeterID       string
	TotalReadings uint64
	ReadingCount  uint64
}

// OfferTotals pairs an offer's fill with the trades executed against it.
type OfferTotals struct {
	OfferID      string
	EnergyAmount uint64
	FilledAmount uint64
	Status       string
	TradedSum    uint256.Int
}

// TradeCost is a stored trade whose cost is checked against amount * price.
type TradeCost struct {
	TradeID      string
	EnergyAmount uint64
	PricePerUnit uint64
	TotalCost    uint64
}

// Snapshot is a point-in-time view of the exchange. Nil aggregates are
// skipped: an uninitialised ledger, registry or market has nothing to check.
type Snapshot struct {
	Asset    string
	TakenAt  time.Time
	Ledger   *LedgerTotals
	Registry *RegistryTotals
	Market   *MarketTotals
	Meters   []MeterTotals
	Offers   []OfferTotals
	Trades   []TradeCost
}

// Finding is one counter that disagrees with its records.
type Finding struct {
	Check    string `json:"check"`
	Subject  string `json:"subject"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// Report is the result of one reconciliation run.
type Report struct {
	ID        string    `json:"id"`
	Asset     string    `json:"asset"`
	CheckedAt time.Time `json:"checked_at"`
	Checked   int       `json:"checked"`
	Findings  []Finding `json:"findings"`
}

// Clean reports whether the run found nothing.
func (r Report) Clean() bool {
	return len(r.Findings) == 0
}

// CountByCheck returns the number of findings per check.
func (r Report) CountByCheck() map[string]int {
	counts := make(map[string]int, len(Checks))
	for _, finding := range r.Findings {
		counts[finding.Check]++
	}
	return counts
}

// Check compares every counter in the snapshot with its records. The
// expected value is what the records imply; the actual value is the counter.
func Check(s Snapshot) Report {
	report := Report{
		ID:        id.New(id.PrefixReconcile),
		Asset:     s.Asset,
		CheckedAt: s.TakenAt.UTC(),
	}
	add := func(check, subject, expected, actual string) {
		report.Findings = append(report.Findings, Finding{Check: check, Subject: subject, Expected: expected, Actual: actual})
	}
	compare := func(check, subject string, expected *uint256.Int, actual uint64) {
		report.Checked++
		if !expected.Eq(uint256.NewInt(actual)) {
			add(check, subject, expected.Dec(), uint256.NewInt(actual).Dec())
		}
	}

	if s.Ledger != nil {
		compare(CheckSupply, s.Asset, &s.Ledger.BalanceSum, s.Ledger.TotalSupply)
	}

	if s.Market != nil {
		compare(CheckMarketVolume, "market", &s.Market.TradedSum, s.Market.TotalVolumeTraded)
		compare(CheckMarketOffers, "market", uint256.NewInt(s.Market.OfferCount), s.Market.TotalOffers)
	}

	for _, offer := range s.Offers {
		compare(CheckOfferFill, offer.OfferID, &offer.TradedSum, offer.FilledAmount)

		report.Checked++
		full := offer.FilledAmount == offer.EnergyAmount
		completed := offer.Status == string(market.OfferStatusCompleted)
		switch {
		case full && !completed:
			add(CheckOfferStatus, offer.OfferID, string(market.OfferStatusCompleted), offer.Status)
		case !full && completed:
			add(CheckOfferStatus, offer.OfferID, "active or cancelled", offer.Status)
		}
	}

	for _, trade := range s.Trades {
		expected := new(uint256.Int).Mul(uint256.NewInt(trade.EnergyAmount), uint256.NewInt(trade.PricePerUnit))
		compare(CheckTradeCost, trade.TradeID, expected, trade.TotalCost)
	}

	if s.Registry != nil {
		compare(CheckRegistryMeters, "registry", uint256.NewInt(s.Registry.MeterCount), s.Registry.TotalMeters)
		compare(CheckRegistryReadings, "registry", uint256.NewInt(s.Registry.ReadingCount), s.Registry.TotalReadings)
	}

	for _, meter := range s.Meters {
		compare(CheckMeterReadings, meter.MeterID, uint256.NewInt(meter.ReadingCount), meter.TotalReadings)
	}

	order := make(map[string]int, len(Checks))
	for i, check := range Checks {
		order[check] = i
	}
	sort.SliceStable(report.Findings, func(i, j int) bool {
		return order[report.Findings[i].Check] < order[report.Findings[j].Check]
	})
	return report
}
