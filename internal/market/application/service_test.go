package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	market "energy-exchange/internal/market/domain"
	"energy-exchange/internal/market/infrastructure/memory"
	"energy-exchange/internal/token"
	tokenmemory "energy-exchange/internal/token/memory"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(ctx context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type failingTradeRepo struct {
	market.Repository
}

func (r failingTradeRepo) RecordTrade(context.Context, market.Trade, *market.Offer, *market.Market) error {
	return errors.New("connection reset")
}

const asset = "GRX"

var t0 = time.Date(2026, time.August, 3, 6, 0, 0, 0, time.UTC)

type fixture struct {
	svc    *Service
	repo   market.Repository
	tokens *tokenmemory.Ledger
	clock  *stepClock
	pub    *recordingPublisher
}

func newFixture(t *testing.T, wrap func(market.Repository) market.Repository) fixture {
	t.Helper()
	var repo market.Repository = memory.NewRepository()
	if wrap != nil {
		repo = wrap(repo)
	}
	tokens := tokenmemory.NewLedger()
	clock := &stepClock{now: t0}
	pub := &recordingPublisher{}
	svc, err := NewService(repo, tokens, asset, pub, nil, clock, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	if _, err := svc.Initialize(ctx, "market-admin"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := tokens.Mint(ctx, asset, "bob", 1_000); err != nil {
		t.Fatalf("fund buyer: %v", err)
	}
	pub.events = nil
	return fixture{svc: svc, repo: repo, tokens: tokens, clock: clock, pub: pub}
}

func (f fixture) offer(t *testing.T, energy, price uint64, hours uint32) *market.Offer {
	t.Helper()
	offer, err := f.svc.CreateOffer(context.Background(), CreateOfferCommand{
		Seller: "alice", EnergyAmount: energy, PricePerUnit: price, Type: market.OfferTypeImmediate, DurationHours: hours,
	})
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	return offer
}

func (f fixture) balance(t *testing.T, account string) uint64 {
	t.Helper()
	balance, err := f.tokens.BalanceOf(context.Background(), asset, account)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func TestExecuteTrade_PartialFillsToCompletion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	offer := f.offer(t, 100, 5, 24)
	f.clock.now = t0.Add(time.Hour)

	trade, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: offer.ID(), Buyer: "bob", EnergyAmount: 60})
	if err != nil {
		t.Fatalf("trade 60: %v", err)
	}
	if trade.TotalCost != 300 || trade.Seller != "alice" {
		t.Fatalf("unexpected trade %+v", trade)
	}
	stored, _ := f.svc.Offer(ctx, offer.ID())
	if stored.Status() != market.OfferStatusActive || stored.FilledAmount() != 60 {
		t.Fatalf("unexpected offer after 60: %s %d", stored.Status(), stored.FilledAmount())
	}

	trade, err = f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: offer.ID(), Buyer: "bob", EnergyAmount: 40})
	if err != nil {
		t.Fatalf("trade 40: %v", err)
	}
	if trade.TotalCost != 200 {
		t.Fatalf("expected cost 200, got %d", trade.TotalCost)
	}
	stored, _ = f.svc.Offer(ctx, offer.ID())
	if stored.Status() != market.OfferStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status())
	}

	if _, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: offer.ID(), Buyer: "bob", EnergyAmount: 1}); !errors.Is(err, market.ErrOfferNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}

	if f.balance(t, "alice") != 500 || f.balance(t, "bob") != 500 {
		t.Fatalf("unexpected balances alice=%d bob=%d", f.balance(t, "alice"), f.balance(t, "bob"))
	}
	m, _ := f.svc.Market(ctx)
	if m.TotalOffers() != 1 || m.TotalVolumeTraded() != 100 {
		t.Fatalf("unexpected market counters offers=%d volume=%d", m.TotalOffers(), m.TotalVolumeTraded())
	}
	trades, _ := f.svc.Trades(ctx, market.TradeFilter{OfferID: offer.ID()})
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}

	if len(f.pub.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(f.pub.events))
	}
	last := f.pub.events[2].(TradeExecuted)
	if last.OfferStatus != market.OfferStatusCompleted || last.Buyer != "bob" {
		t.Fatalf("unexpected last event %+v", last)
	}
}

func TestExecuteTrade_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	offer := f.offer(t, 10, 5, 1)

	if _, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: offer.ID(), Buyer: "bob"}); !errors.Is(err, market.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: offer.ID(), Buyer: "bob", EnergyAmount: 11}); !errors.Is(err, market.ErrInsufficientEnergy) {
		t.Fatalf("expected insufficient energy, got %v", err)
	}
	if _, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: "offer_missing", Buyer: "bob", EnergyAmount: 1}); !errors.Is(err, market.ErrOfferNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: offer.ID(), Buyer: "carol", EnergyAmount: 1}); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	stored, _ := f.svc.Offer(ctx, offer.ID())
	if stored.FilledAmount() != 0 {
		t.Fatalf("failed payment must not fill the offer")
	}

	f.clock.now = t0.Add(time.Hour)
	if _, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: offer.ID(), Buyer: "bob", EnergyAmount: 1}); !errors.Is(err, market.ErrOfferExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if f.balance(t, "bob") != 1_000 {
		t.Fatalf("rejected trades must not move credits")
	}
}

func TestExecuteTrade_CompensatesFailedSave(t *testing.T) {
	f := newFixture(t, func(r market.Repository) market.Repository { return failingTradeRepo{Repository: r} })
	ctx := context.Background()
	offer := f.offer(t, 10, 5, 1)

	if _, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: offer.ID(), Buyer: "bob", EnergyAmount: 2}); err == nil {
		t.Fatalf("expected save error")
	}
	if f.balance(t, "bob") != 1_000 || f.balance(t, "alice") != 0 {
		t.Fatalf("payment must be reversed, bob=%d alice=%d", f.balance(t, "bob"), f.balance(t, "alice"))
	}
	m, _ := f.svc.Market(ctx)
	if m.TotalVolumeTraded() != 0 {
		t.Fatalf("volume must not change")
	}
}

func TestCancelOffer(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	offer := f.offer(t, 10, 5, 1)

	if _, err := f.svc.CancelOffer(ctx, "bob", offer.ID()); !errors.Is(err, market.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	cancelled, err := f.svc.CancelOffer(ctx, "alice", offer.ID())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status() != market.OfferStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status())
	}
	if _, err := f.svc.CancelOffer(ctx, "alice", offer.ID()); !errors.Is(err, market.ErrOfferNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}
	if _, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: offer.ID(), Buyer: "bob", EnergyAmount: 1}); !errors.Is(err, market.ErrOfferNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}
	if _, ok := f.pub.events[len(f.pub.events)-1].(OfferCancelled); !ok {
		t.Fatalf("expected cancellation event")
	}
}

func TestMarketHalt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	offer := f.offer(t, 10, 5, 24)

	if _, err := f.svc.UpdateSettings(ctx, "alice", false); !errors.Is(err, market.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.svc.UpdateSettings(ctx, "market-admin", false); err != nil {
		t.Fatalf("halt: %v", err)
	}
	_, err := f.svc.CreateOffer(ctx, CreateOfferCommand{Seller: "alice", EnergyAmount: 1, PricePerUnit: 1, Type: market.OfferTypeScheduled, DurationHours: 1})
	if !errors.Is(err, market.ErrMarketInactive) {
		t.Fatalf("expected inactive on create, got %v", err)
	}
	if _, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: offer.ID(), Buyer: "bob", EnergyAmount: 1}); !errors.Is(err, market.ErrMarketInactive) {
		t.Fatalf("expected inactive on trade, got %v", err)
	}
	if _, err := f.svc.CancelOffer(ctx, "alice", offer.ID()); err != nil {
		t.Fatalf("cancel while halted: %v", err)
	}
	if _, err := f.svc.UpdateSettings(ctx, "market-admin", true); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := f.svc.Initialize(ctx, "market-admin"); !errors.Is(err, market.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
}

func TestListOffers_EffectiveStatus(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	short := f.offer(t, 10, 5, 1)
	long := f.offer(t, 10, 5, 48)
	done := f.offer(t, 10, 5, 48)
	if _, err := f.svc.CancelOffer(ctx, "alice", done.ID()); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	f.clock.now = t0.Add(2 * time.Hour)
	active, err := f.svc.ListOffers(ctx, OfferQuery{Status: market.OfferStatusActive})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID() != long.ID() {
		t.Fatalf("expected only the long offer active, got %d", len(active))
	}
	expired, _ := f.svc.ListOffers(ctx, OfferQuery{Status: market.OfferStatusExpired})
	if len(expired) != 1 || expired[0].ID() != short.ID() {
		t.Fatalf("expected only the short offer expired, got %d", len(expired))
	}
	cancelled, _ := f.svc.ListOffers(ctx, OfferQuery{Status: market.OfferStatusCancelled})
	if len(cancelled) != 1 || cancelled[0].ID() != done.ID() {
		t.Fatalf("expected one cancelled offer, got %d", len(cancelled))
	}
	all, _ := f.svc.ListOffers(ctx, OfferQuery{Seller: "alice"})
	if len(all) != 3 || all[0].ID() != done.ID() {
		t.Fatalf("expected 3 offers newest first, got %d", len(all))
	}
}

func TestAccountTrades_BothSides(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sold := f.offer(t, 50, 2, 24)
	f.clock.now = t0.Add(time.Minute)
	if _, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: sold.ID(), Buyer: "bob", EnergyAmount: 10}); err != nil {
		t.Fatalf("bob buys: %v", err)
	}

	f.clock.now = t0.Add(2 * time.Minute)
	bobOffer, err := f.svc.CreateOffer(ctx, CreateOfferCommand{
		Seller: "bob", EnergyAmount: 20, PricePerUnit: 1, Type: market.OfferTypeScheduled, DurationHours: 1,
	})
	if err != nil {
		t.Fatalf("bob offer: %v", err)
	}
	f.clock.now = t0.Add(3 * time.Minute)
	if _, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: bobOffer.ID(), Buyer: "alice", EnergyAmount: 5}); err != nil {
		t.Fatalf("alice buys: %v", err)
	}

	trades, err := f.svc.AccountTrades(ctx, "alice", t0, t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("account trades: %v", err)
	}
	if len(trades) != 2 || trades[0].Seller != "alice" || trades[1].Buyer != "alice" {
		t.Fatalf("unexpected trades %+v", trades)
	}
	window, _ := f.svc.AccountTrades(ctx, "alice", t0.Add(2*time.Minute), t0.Add(time.Hour))
	if len(window) != 1 || window[0].OfferID != bobOffer.ID() {
		t.Fatalf("unexpected windowed trades %+v", window)
	}
	if _, err := f.svc.AccountTrades(ctx, "", t0, t0.Add(time.Hour)); !errors.Is(err, market.ErrInvalidSeller) {
		t.Fatalf("expected invalid seller, got %v", err)
	}
}

func TestExecuteTrade_ConcurrentBuyersNeverOverfill(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if err := f.tokens.Mint(ctx, asset, "carol", 1_000); err != nil {
		t.Fatalf("fund carol: %v", err)
	}
	offer := f.offer(t, 100, 5, 24)
	f.clock.now = t0.Add(time.Hour)

	const workers = 50
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		unexpect []error
	)
	for i := 0; i < workers; i++ {
		buyer := "bob"
		if i%2 == 1 {
			buyer = "carol"
		}
		wg.Add(1)
		go func(buyer string) {
			defer wg.Done()
			_, err := f.svc.ExecuteTrade(ctx, ExecuteTradeCommand{OfferID: offer.ID(), Buyer: buyer, EnergyAmount: 3})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, market.ErrInsufficientEnergy):
			default:
				unexpect = append(unexpect, err)
			}
		}(buyer)
	}
	wg.Wait()

	if len(unexpect) != 0 {
		t.Fatalf("unexpected errors: %v", unexpect)
	}
	if ok != 33 {
		t.Fatalf("expected 33 fills of 3 units, got %d", ok)
	}
	stored, err := f.svc.Offer(ctx, offer.ID())
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if stored.FilledAmount() != 99 || stored.FilledAmount() > stored.EnergyAmount() || stored.Status() != market.OfferStatusActive {
		t.Fatalf("unexpected offer filled=%d status=%s", stored.FilledAmount(), stored.Status())
	}
	m, _ := f.svc.Market(ctx)
	trades, _ := f.svc.Trades(ctx, market.TradeFilter{OfferID: offer.ID()})
	var traded uint64
	for _, trade := range trades {
		traded += trade.EnergyAmount
	}
	if len(trades) != ok || m.TotalVolumeTraded() != traded || traded != stored.FilledAmount() {
		t.Fatalf("counters drifted: trades=%d volume=%d traded=%d filled=%d", len(trades), m.TotalVolumeTraded(), traded, stored.FilledAmount())
	}
	if seller := f.balance(t, "alice"); seller != 495 {
		t.Fatalf("expected seller balance 495, got %d", seller)
	}
	if spent := 2_000 - f.balance(t, "bob") - f.balance(t, "carol"); spent != 495 {
		t.Fatalf("expected buyers to spend 495, got %d", spent)
	}
	if len(f.pub.events) != ok+1 {
		t.Fatalf("expected the offer event plus one per fill, got %d", len(f.pub.events))
	}
}
