package market

import "context"

// Repository persists the market, offers and trades. Methods that touch
// several records commit them together or not at all.
type Repository interface {
	// GetMarket returns nil, nil before initialization.
	GetMarket(ctx context.Context) (*Market, error)
	CreateMarket(ctx context.Context, market *Market) error
	SaveMarket(ctx context.Context, market *Market) error

	// CreateOffer inserts the offer and saves the market counters.
	CreateOffer(ctx context.Context, offer *Offer, market *Market) error
	// FindOffer returns nil, nil for an unknown id.
	FindOffer(ctx context.Context, offerID string) (*Offer, error)
	SaveOffer(ctx context.Context, offer *Offer) error
	// ListOffers returns offers newest first.
	ListOffers(ctx context.Context, filter OfferFilter) ([]*Offer, error)

	// RecordTrade stores the trade and saves the offer and market.
	RecordTrade(ctx context.Context, trade Trade, offer *Offer, market *Market) error
	// ListTrades returns trades oldest first.
	ListTrades(ctx context.Context, filter TradeFilter) ([]Trade, error)
}
