package market

import "time"

// Trade is an immutable record of one executed fill.
type Trade struct {
	ID           string
	OfferID      string
	Buyer        string
	Seller       string
	EnergyAmount uint64
	PricePerUnit uint64
	TotalCost    uint64
	ExecutedAt   time.Time
}

// TradeFilter narrows trade history queries. Zero values match everything.
type TradeFilter struct {
	OfferID string
	Seller  string
	Buyer   string
	From    time.Time
	To      time.Time
	Limit   int
}

// Matches reports whether t satisfies the filter. To is exclusive.
func (f TradeFilter) Matches(t Trade) bool {
	if f.OfferID != "" && t.OfferID != f.OfferID {
		return false
	}
	if f.Seller != "" && t.Seller != f.Seller {
		return false
	}
	if f.Buyer != "" && t.Buyer != f.Buyer {
		return false
	}
	if !f.From.IsZero() && t.ExecutedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.ExecutedAt.Before(f.To) {
		return false
	}
	return true
}

// OfferFilter narrows offer queries by stored status. Zero values match everything.
type OfferFilter struct {
	Seller string
	Status OfferStatus
	Limit  int
}
