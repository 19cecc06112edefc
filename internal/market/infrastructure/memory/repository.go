package memory

import (
	"context"
	"sync"

	market "energy-exchange/internal/market/domain"
)

// Repository keeps market records in memory.
type Repository struct {
	mu     sync.RWMutex
	market *market.Market
	offers map[string]*market.Offer
	order  []string
	trades []market.Trade
}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{offers: make(map[string]*market.Offer)}
}

// GetMarket returns a copy of the market.
func (r *Repository) GetMarket(ctx context.Context) (*market.Market, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.market.Clone(), nil
}

// CreateMarket stores the market once.
func (r *Repository) CreateMarket(ctx context.Context, m *market.Market) error {
	_ = ctx
	if m == nil {
		return market.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.market != nil {
		return market.ErrAlreadyInitialized
	}
	r.market = m.Clone()
	return nil
}

// SaveMarket overwrites the market.
func (r *Repository) SaveMarket(ctx context.Context, m *market.Market) error {
	_ = ctx
	if m == nil {
		return market.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.market == nil {
		return market.ErrNotInitialized
	}
	r.market = m.Clone()
	return nil
}

// CreateOffer inserts the offer and the updated market together.
func (r *Repository) CreateOffer(ctx context.Context, offer *market.Offer, m *market.Market) error {
	_ = ctx
	if offer == nil || m == nil {
		return market.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.market == nil {
		return market.ErrNotInitialized
	}
	r.offers[offer.ID()] = offer.Clone()
	r.order = append(r.order, offer.ID())
	r.market = m.Clone()
	return nil
}

// FindOffer returns a copy of the offer, or nil.
func (r *Repository) FindOffer(ctx context.Context, offerID string) (*market.Offer, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.offers[offerID].Clone(), nil
}

// SaveOffer overwrites an offer.
func (r *Repository) SaveOffer(ctx context.Context, offer *market.Offer) error {
	_ = ctx
	if offer == nil {
		return market.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.offers[offer.ID()]; !ok {
		return market.ErrOfferNotFound
	}
	r.offers[offer.ID()] = offer.Clone()
	return nil
}

// ListOffers returns matching offers newest first.
func (r *Repository) ListOffers(ctx context.Context, filter market.OfferFilter) ([]*market.Offer, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*market.Offer, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		offer := r.offers[r.order[i]]
		if filter.Seller != "" && offer.Seller() != filter.Seller {
			continue
		}
		if filter.Status != "" && offer.Status() != filter.Status {
			continue
		}
		result = append(result, offer.Clone())
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// RecordTrade stores the trade, offer and market together.
func (r *Repository) RecordTrade(ctx context.Context, trade market.Trade, offer *market.Offer, m *market.Market) error {
	_ = ctx
	if offer == nil || m == nil {
		return market.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.offers[offer.ID()]; !ok {
		return market.ErrOfferNotFound
	}
	r.trades = append(r.trades, trade)
	r.offers[offer.ID()] = offer.Clone()
	r.market = m.Clone()
	return nil
}

// ListTrades returns matching trades oldest first.
func (r *Repository) ListTrades(ctx context.Context, filter market.TradeFilter) ([]market.Trade, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]market.Trade, 0)
	for _, trade := range r.trades {
		if !filter.Matches(trade) {
			continue
		}
		result = append(result, trade)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}
