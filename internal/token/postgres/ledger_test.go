package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"testing"

	"energy-exchange/internal/platform/pgutil"
	"energy-exchange/internal/token"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestLedger_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if !pgutil.TableExists(db, "token_balances") {
		t.Skip("missing tables; run migrations")
	}

	ctx := context.Background()
	const asset = "GRX-TEST"
	_, _ = db.ExecContext(ctx, "DELETE FROM token_balances WHERE asset = $1", asset)

	l := NewLedger(db)
	if err := l.Mint(ctx, asset, "alice", math.MaxUint64); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := l.Mint(ctx, asset, "alice", 1); !errors.Is(err, token.ErrBalanceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if err := l.Transfer(ctx, asset, "alice", "bob", 40); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := l.Burn(ctx, asset, "bob", 41); !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := l.Burn(ctx, asset, "bob", 15); err != nil {
		t.Fatalf("burn: %v", err)
	}

	alice, err := l.BalanceOf(ctx, asset, "alice")
	if err != nil {
		t.Fatalf("balance alice: %v", err)
	}
	if alice != math.MaxUint64-40 {
		t.Fatalf("unexpected alice balance %d", alice)
	}
	bob, _ := l.BalanceOf(ctx, asset, "bob")
	if bob != 25 {
		t.Fatalf("unexpected bob balance %d", bob)
	}
	nobody, _ := l.BalanceOf(ctx, asset, "nobody")
	if nobody != 0 {
		t.Fatalf("expected zero for unknown account, got %d", nobody)
	}
}
