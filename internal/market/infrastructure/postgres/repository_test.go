package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"energy-exchange/internal/id"
	market "energy-exchange/internal/market/domain"
	"energy-exchange/internal/platform/pgutil"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	for _, table := range []string{"market", "energy_offers", "trades"} {
		if !pgutil.TableExists(db, table) {
			t.Skip("missing tables; run migrations")
		}
	}

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM trades")
	_, _ = db.ExecContext(ctx, "DELETE FROM energy_offers")
	_, _ = db.ExecContext(ctx, "DELETE FROM market")

	repo := NewRepository(db)
	now := time.Date(2026, time.July, 1, 8, 0, 0, 0, time.UTC)

	m, _ := market.NewMarket("market-admin", now)
	if err := repo.CreateMarket(ctx, m); err != nil {
		t.Fatalf("create market: %v", err)
	}
	if err := repo.CreateMarket(ctx, m); !errors.Is(err, market.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}

	offer, err := market.NewOffer(id.NewOfferID(), "alice", 100, 5, market.OfferTypeImmediate, 24, now)
	if err != nil {
		t.Fatalf("new offer: %v", err)
	}
	if err := m.CountOffer(now); err != nil {
		t.Fatalf("count: %v", err)
	}
	if err := repo.CreateOffer(ctx, offer, m); err != nil {
		t.Fatalf("create offer: %v", err)
	}

	at := now.Add(time.Hour)
	cost, err := offer.Fill(60, at)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if err := m.AddVolume(60, at); err != nil {
		t.Fatalf("volume: %v", err)
	}
	trade := market.Trade{
		ID: id.NewTradeID(), OfferID: offer.ID(), Buyer: "bob", Seller: "alice",
		EnergyAmount: 60, PricePerUnit: 5, TotalCost: cost, ExecutedAt: at,
	}
	if err := repo.RecordTrade(ctx, trade, offer, m); err != nil {
		t.Fatalf("record trade: %v", err)
	}

	loaded, err := repo.FindOffer(ctx, offer.ID())
	if err != nil || loaded == nil {
		t.Fatalf("find offer: %v", err)
	}
	if loaded.FilledAmount() != 60 || loaded.Status() != market.OfferStatusActive || !loaded.ExpiresAt().Equal(now.Add(24*time.Hour)) {
		t.Fatalf("unexpected offer %+v", loaded)
	}

	offers, err := repo.ListOffers(ctx, market.OfferFilter{Seller: "alice", Status: market.OfferStatusActive})
	if err != nil || len(offers) != 1 {
		t.Fatalf("list offers: %v len=%d", err, len(offers))
	}

	trades, err := repo.ListTrades(ctx, market.TradeFilter{Seller: "alice", From: now, To: now.Add(2 * time.Hour)})
	if err != nil || len(trades) != 1 || trades[0].TotalCost != 300 {
		t.Fatalf("list trades: %v %+v", err, trades)
	}

	stored, err := repo.GetMarket(ctx)
	if err != nil || stored.TotalOffers() != 1 || stored.TotalVolumeTraded() != 60 {
		t.Fatalf("unexpected market %+v err=%v", stored, err)
	}

	missing, err := repo.FindOffer(ctx, "offer_missing")
	if err != nil || missing != nil {
		t.Fatalf("expected nil offer, got %v %v", missing, err)
	}
}
