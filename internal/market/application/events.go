package application

import (
	"time"

	market "energy-exchange/internal/market/domain"
)

// MarketInitialized is emitted once when the market is created.
type MarketInitialized struct {
	Authority  string
	OccurredAt time.Time
}

// MarketSettingsUpdated is emitted when trading is halted or resumed.
type MarketSettingsUpdated struct {
	Authority  string
	IsActive   bool
	OccurredAt time.Time
}

// OfferCreated is emitted for a new sell offer.
type OfferCreated struct {
	OfferID      string
	Seller       string
	EnergyAmount uint64
	PricePerUnit uint64
	OfferType    market.OfferType
	ExpiresAt    time.Time
	OccurredAt   time.Time
}

// TradeExecuted is emitted for each fill.
type TradeExecuted struct {
	TradeID      string
	OfferID      string
	Buyer        string
	Seller       string
	EnergyAmount uint64
	TotalCost    uint64
	OfferStatus  market.OfferStatus
	OccurredAt   time.Time
}

// OfferCancelled is emitted when a seller withdraws an offer.
type OfferCancelled struct {
	OfferID    string
	Seller     string
	OccurredAt time.Time
}
