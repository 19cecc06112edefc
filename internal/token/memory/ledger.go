package memory

import (
	"context"
	"errors"
	"sync"

	"energy-exchange/internal/amount"
	"energy-exchange/internal/token"
)

type balanceKey struct {
	asset   string
	account string
}

// Ledger is an in-memory token ledger.
type Ledger struct {
	mu       sync.Mutex
	balances map[balanceKey]uint64
}

// NewLedger constructs a ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[balanceKey]uint64)}
}

// Mint credits amount to the account.
func (l *Ledger) Mint(_ context.Context, asset, to string, value uint64) error {
	if err := token.Validate(asset, value, to); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.credit(balanceKey{asset, to}, value)
}

// Burn debits amount from the account.
func (l *Ledger) Burn(_ context.Context, asset, from string, value uint64) error {
	if err := token.Validate(asset, value, from); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debit(balanceKey{asset, from}, value)
}

// Transfer moves amount between accounts atomically.
func (l *Ledger) Transfer(_ context.Context, asset, from, to string, value uint64) error {
	if err := token.Validate(asset, value, from, to); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	src := balanceKey{asset, from}
	if l.balances[src] < value {
		return token.ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	dst := balanceKey{asset, to}
	if _, err := amount.Add(l.balances[dst], value); err != nil {
		return token.ErrBalanceOverflow
	}
	if err := l.debit(src, value); err != nil {
		return err
	}
	return l.credit(dst, value)
}

// BalanceOf returns the account balance.
func (l *Ledger) BalanceOf(_ context.Context, asset, account string) (uint64, error) {
	if asset == "" || account == "" {
		return 0, token.ErrInvalidAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey{asset, account}], nil
}

func (l *Ledger) credit(key balanceKey, value uint64) error {
	next, err := amount.Add(l.balances[key], value)
	if err != nil {
		if errors.Is(err, amount.ErrOverflow) {
			return token.ErrBalanceOverflow
		}
		return err
	}
	l.balances[key] = next
	return nil
}

func (l *Ledger) debit(key balanceKey, value uint64) error {
	next, err := amount.Sub(l.balances[key], value)
	if err != nil {
		return token.ErrInsufficientBalance
	}
	if next == 0 {
		delete(l.balances, key)
		return nil
	}
	l.balances[key] = next
	return nil
}
