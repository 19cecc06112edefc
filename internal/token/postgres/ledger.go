package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"energy-exchange/internal/platform/pgutil"
	"energy-exchange/internal/token"
)

const defaultBalancesTable = "token_balances"

// maxUint64 bounds NUMERIC balances to the uint64 range.
const maxUint64 = "18446744073709551615"

// Ledger stores balances in Postgres.
type Ledger struct {
	db    *sql.DB
	table string
}

// Option configures the ledger.
type Option func(*Ledger)

// WithTable overrides the balances table.
func WithTable(table string) Option {
	return func(l *Ledger) {
		if table != "" {
			l.table = table
		}
	}
}

// NewLedger constructs a Postgres ledger.
func NewLedger(db *sql.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db, table: defaultBalancesTable}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Mint credits amount to the account.
func (l *Ledger) Mint(ctx context.Context, asset, to string, amount uint64) error {
	if l == nil || l.db == nil {
		return errors.New("token ledger: nil db")
	}
	if err := token.Validate(asset, amount, to); err != nil {
		return err
	}
	return l.credit(ctx, l.db, asset, to, amount)
}

// Burn debits amount from the account.
func (l *Ledger) Burn(ctx context.Context, asset, from string, amount uint64) error {
	if l == nil || l.db == nil {
		return errors.New("token ledger: nil db")
	}
	if err := token.Validate(asset, amount, from); err != nil {
		return err
	}
	return l.debit(ctx, l.db, asset, from, amount)
}

// Transfer moves amount between accounts in one transaction.
func (l *Ledger) Transfer(ctx context.Context, asset, from, to string, amount uint64) error {
	if l == nil || l.db == nil {
		return errors.New("token ledger: nil db")
	}
	if err := token.Validate(asset, amount, from, to); err != nil {
		return err
	}
	if from == to {
		balance, err := l.BalanceOf(ctx, asset, from)
		if err != nil {
			return err
		}
		if balance < amount {
			return token.ErrInsufficientBalance
		}
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("token ledger: begin: %w", err)
	}
	if err := l.debit(ctx, tx, asset, from, amount); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := l.credit(ctx, tx, asset, to, amount); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// BalanceOf returns the account balance; unknown accounts hold zero.
func (l *Ledger) BalanceOf(ctx context.Context, asset, account string) (uint64, error) {
	if l == nil || l.db == nil {
		return 0, errors.New("token ledger: nil db")
	}
	if asset == "" || account == "" {
		return 0, token.ErrInvalidAccount
	}
	var balance pgutil.Uint64
	err := l.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT balance::text
FROM %s
WHERE asset = $1 AND account = $2`, l.table), asset, account).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("token ledger: balance: %w", err)
	}
	return balance.V, nil
}

func (l *Ledger) credit(ctx context.Context, db execer, asset, account string, amount uint64) error {
	query := fmt.Sprintf(`
INSERT INTO %s AS b (asset, account, balance, updated_at)
VALUES ($1, $2, $3::numeric, $4)
ON CONFLICT (asset, account)
DO UPDATE SET balance = b.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
WHERE b.balance + EXCLUDED.balance <= %s`, l.table, maxUint64)
	res, err := db.ExecContext(ctx, query, asset, account, pgutil.Uint64Param(amount), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("token ledger: credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return token.ErrBalanceOverflow
	}
	return nil
}

func (l *Ledger) debit(ctx context.Context, db execer, asset, account string, amount uint64) error {
	query := fmt.Sprintf(`
UPDATE %s
SET balance = balance - $3::numeric, updated_at = $4
WHERE asset = $1 AND account = $2 AND balance >= $3::numeric`, l.table)
	res, err := db.ExecContext(ctx, query, asset, account, pgutil.Uint64Param(amount), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("token ledger: debit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return token.ErrInsufficientBalance
	}
	return nil
}
