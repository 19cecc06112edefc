package application

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"energy-exchange/internal/id"
	market "energy-exchange/internal/market/domain"
	"energy-exchange/internal/observability/metrics"
	"energy-exchange/internal/platform/keylock"
	"energy-exchange/internal/token"
)

const marketLockKey = "market:market"

// EventPublisher emits market events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// CreateOfferCommand posts a sell offer.
type CreateOfferCommand struct {
	Seller        string
	EnergyAmount  uint64
	PricePerUnit  uint64
	Type          market.OfferType
	DurationHours uint32
}

// ExecuteTradeCommand buys part or all of an offer's remaining energy.
type ExecuteTradeCommand struct {
	OfferID      string
	Buyer        string
	EnergyAmount uint64
}

// OfferQuery filters offers by seller and effective status.
type OfferQuery struct {
	Seller string
	Status market.OfferStatus
	Limit  int
}

// Service handles marketplace use cases.
type Service struct {
	repo      market.Repository
	tokens    token.Ledger
	asset     string
	publisher EventPublisher
	locks     *keylock.Locker
	clock     Clock
	logger    *log.Logger
}

// NewService constructs the service. asset is the credit asset trades settle in.
func NewService(repo market.Repository, tokens token.Ledger, asset string, publisher EventPublisher, locks *keylock.Locker, clock Clock, logger *log.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("market service: nil repository")
	}
	if tokens == nil {
		return nil, errors.New("market service: nil token ledger")
	}
	if asset == "" {
		return nil, errors.New("market service: empty asset")
	}
	if locks == nil {
		locks = keylock.New()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:      repo,
		tokens:    tokens,
		asset:     asset,
		publisher: publisher,
		locks:     locks,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Initialize creates the market. Caller becomes the authority.
func (s *Service) Initialize(ctx context.Context, caller string) (*market.Market, error) {
	m, err := market.NewMarket(caller, s.clock.Now())
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(marketLockKey)
	err = s.repo.CreateMarket(ctx, m)
	unlock()
	if err != nil {
		return nil, err
	}
	s.logger.Printf("market initialized: authority=%s", caller)
	s.publish(ctx, MarketInitialized{Authority: caller, OccurredAt: m.CreatedAt()})
	return m, nil
}

// Market returns the market record.
func (s *Service) Market(ctx context.Context) (*market.Market, error) {
	m, err := s.repo.GetMarket(ctx)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, market.ErrNotInitialized
	}
	return m, nil
}

// UpdateSettings halts or resumes trading. Only the market authority may call it.
func (s *Service) UpdateSettings(ctx context.Context, caller string, isActive bool) (*market.Market, error) {
	unlock := s.locks.Lock(marketLockKey)
	m, err := s.Market(ctx)
	if err == nil && !m.IsAuthority(caller) {
		err = market.ErrUnauthorized
	}
	now := s.clock.Now()
	if err == nil {
		m.SetActive(isActive, now)
		err = s.repo.SaveMarket(ctx, m)
	}
	unlock()
	if err != nil {
		return nil, err
	}
	s.logger.Printf("market settings updated: active=%t by=%s", isActive, caller)
	s.publish(ctx, MarketSettingsUpdated{Authority: caller, IsActive: isActive, OccurredAt: now})
	return m, nil
}

// CreateOffer posts a sell offer. Fails with ErrMarketInactive while trading is halted.
func (s *Service) CreateOffer(ctx context.Context, cmd CreateOfferCommand) (*market.Offer, error) {
	now := s.clock.Now()
	offer, err := market.NewOffer(id.NewOfferID(), cmd.Seller, cmd.EnergyAmount, cmd.PricePerUnit, cmd.Type, cmd.DurationHours, now)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(marketLockKey)
	err = s.createOffer(ctx, offer, now)
	unlock()
	if err != nil {
		return nil, err
	}

	metrics.IncOfferEvent("created")
	s.logger.Printf("offer created: id=%s seller=%s energy=%d price=%d expires=%s",
		offer.ID(), offer.Seller(), offer.EnergyAmount(), offer.PricePerUnit(), offer.ExpiresAt().Format(time.RFC3339))
	s.publish(ctx, OfferCreated{
		OfferID:      offer.ID(),
		Seller:       offer.Seller(),
		EnergyAmount: offer.EnergyAmount(),
		PricePerUnit: offer.PricePerUnit(),
		OfferType:    offer.Type(),
		ExpiresAt:    offer.ExpiresAt(),
		OccurredAt:   offer.CreatedAt(),
	})
	return offer, nil
}

func (s *Service) createOffer(ctx context.Context, offer *market.Offer, now time.Time) error {
	m, err := s.activeMarket(ctx)
	if err != nil {
		return err
	}
	if err := m.CountOffer(now); err != nil {
		return err
	}
	return s.repo.CreateOffer(ctx, offer, m)
}

// Offer returns an offer by id.
func (s *Service) Offer(ctx context.Context, offerID string) (*market.Offer, error) {
	offer, err := s.repo.FindOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, market.ErrOfferNotFound
	}
	return offer, nil
}

// ListOffers returns offers newest first, filtered by effective status.
func (s *Service) ListOffers(ctx context.Context, q OfferQuery) ([]*market.Offer, error) {
	filter := market.OfferFilter{Seller: q.Seller, Status: q.Status, Limit: q.Limit}
	lazy := q.Status == market.OfferStatusActive || q.Status == market.OfferStatusExpired
	if lazy {
		filter.Status = market.OfferStatusActive
		filter.Limit = 0
	}
	offers, err := s.repo.ListOffers(ctx, filter)
	if err != nil || !lazy {
		return offers, err
	}

	now := s.clock.Now()
	result := make([]*market.Offer, 0, len(offers))
	for _, offer := range offers {
		if offer.EffectiveStatus(now) != q.Status {
			continue
		}
		result = append(result, offer)
		if q.Limit > 0 && len(result) == q.Limit {
			break
		}
	}
	return result, nil
}

// ExecuteTrade fills part of an offer and pays the seller from the buyer's balance.
// Fails with ErrMarketInactive while trading is halted.
func (s *Service) ExecuteTrade(ctx context.Context, cmd ExecuteTradeCommand) (market.Trade, error) {
	trade, status, err := s.executeTrade(ctx, cmd)
	if err != nil {
		return market.Trade{}, err
	}

	metrics.ObserveTrade(trade.EnergyAmount, trade.TotalCost)
	if status == market.OfferStatusCompleted {
		metrics.IncOfferEvent("completed")
	}
	s.logger.Printf("trade executed: offer=%s buyer=%s seller=%s energy=%d cost=%d status=%s",
		trade.OfferID, trade.Buyer, trade.Seller, trade.EnergyAmount, trade.TotalCost, status)
	s.publish(ctx, TradeExecuted{
		TradeID:      trade.ID,
		OfferID:      trade.OfferID,
		Buyer:        trade.Buyer,
		Seller:       trade.Seller,
		EnergyAmount: trade.EnergyAmount,
		TotalCost:    trade.TotalCost,
		OfferStatus:  status,
		OccurredAt:   trade.ExecutedAt,
	})
	return trade, nil
}

func (s *Service) executeTrade(ctx context.Context, cmd ExecuteTradeCommand) (market.Trade, market.OfferStatus, error) {
	if cmd.EnergyAmount == 0 {
		return market.Trade{}, "", market.ErrInvalidAmount
	}
	if cmd.Buyer == "" {
		return market.Trade{}, "", market.ErrInvalidBuyer
	}

	// The seller never changes, so it can be read before taking the locks.
	listed, err := s.Offer(ctx, cmd.OfferID)
	if err != nil {
		return market.Trade{}, "", err
	}
	unlock := s.locks.Lock(marketLockKey, offerLockKey(cmd.OfferID),
		token.AccountLockKey(cmd.Buyer), token.AccountLockKey(listed.Seller()))
	defer unlock()

	m, err := s.activeMarket(ctx)
	if err != nil {
		return market.Trade{}, "", err
	}
	offer, err := s.Offer(ctx, cmd.OfferID)
	if err != nil {
		return market.Trade{}, "", err
	}

	now := s.clock.Now()
	cost, err := offer.Fill(cmd.EnergyAmount, now)
	if err != nil {
		return market.Trade{}, "", err
	}
	if err := m.AddVolume(cmd.EnergyAmount, now); err != nil {
		return market.Trade{}, "", err
	}

	if err := s.tokens.Transfer(ctx, s.asset, cmd.Buyer, offer.Seller(), cost); err != nil {
		return market.Trade{}, "", err
	}

	trade := market.Trade{
		ID:           id.NewTradeID(),
		OfferID:      offer.ID(),
		Buyer:        cmd.Buyer,
		Seller:       offer.Seller(),
		EnergyAmount: cmd.EnergyAmount,
		PricePerUnit: offer.PricePerUnit(),
		TotalCost:    cost,
		ExecutedAt:   now.UTC(),
	}
	if err := s.repo.RecordTrade(ctx, trade, offer, m); err != nil {
		if undoErr := s.tokens.Transfer(ctx, s.asset, offer.Seller(), cmd.Buyer, cost); undoErr != nil {
			s.logger.Printf("market trade: compensation failed offer=%s buyer=%s cost=%d err=%v", offer.ID(), cmd.Buyer, cost, undoErr)
		}
		return market.Trade{}, "", err
	}
	return trade, offer.Status(), nil
}

// CancelOffer withdraws an active offer. Only its seller may cancel. Allowed while trading is halted.
func (s *Service) CancelOffer(ctx context.Context, caller, offerID string) (*market.Offer, error) {
	unlock := s.locks.Lock(offerLockKey(offerID))
	offer, err := s.Offer(ctx, offerID)
	now := s.clock.Now()
	if err == nil {
		err = offer.Cancel(caller, now)
	}
	if err == nil {
		err = s.repo.SaveOffer(ctx, offer)
	}
	unlock()
	if err != nil {
		return nil, err
	}

	metrics.IncOfferEvent("cancelled")
	s.logger.Printf("offer cancelled: id=%s seller=%s", offer.ID(), offer.Seller())
	s.publish(ctx, OfferCancelled{OfferID: offer.ID(), Seller: offer.Seller(), OccurredAt: now})
	return offer, nil
}

// Trades returns trade history oldest first.
func (s *Service) Trades(ctx context.Context, filter market.TradeFilter) ([]market.Trade, error) {
	return s.repo.ListTrades(ctx, filter)
}

// AccountTrades returns trades where account was buyer or seller within [from, to), oldest first.
func (s *Service) AccountTrades(ctx context.Context, account string, from, to time.Time) ([]market.Trade, error) {
	if account == "" {
		return nil, market.ErrInvalidSeller
	}
	sold, err := s.repo.ListTrades(ctx, market.TradeFilter{Seller: account, From: from, To: to})
	if err != nil {
		return nil, err
	}
	bought, err := s.repo.ListTrades(ctx, market.TradeFilter{Buyer: account, From: from, To: to})
	if err != nil {
		return nil, err
	}
	merged := make([]market.Trade, 0, len(sold)+len(bought))
	merged = append(merged, sold...)
	for _, trade := range bought {
		if trade.Seller == account {
			continue
		}
		merged = append(merged, trade)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].ExecutedAt.Before(merged[j].ExecutedAt)
	})
	return merged, nil
}

// Now exposes the service clock for effective-status rendering.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

func (s *Service) activeMarket(ctx context.Context) (*market.Market, error) {
	m, err := s.Market(ctx)
	if err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, market.ErrMarketInactive
	}
	return m, nil
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("market publish failed: event=%T err=%v", event, err)
	}
}

func offerLockKey(offerID string) string {
	return "market:offer:" + offerID
}
