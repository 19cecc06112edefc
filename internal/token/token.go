// Package token defines the fungible-asset primitive the exchange settles in.
//
// The primitive owns balances. Callers are responsible for authorization; the
// primitive only enforces account validity, positive amounts and balance
// sufficiency.
package token

import (
	"context"
	"errors"

	"energy-exchange/internal/platform/errkind"
)

var (
	// ErrInvalidAccount is returned for an empty asset or account.
	ErrInvalidAccount = errors.New("token: invalid account")
	// ErrInvalidAmount is returned for a zero amount.
	ErrInvalidAmount = errors.New("token: invalid amount")
	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrBalanceOverflow is returned when a credit would exceed uint64.
	ErrBalanceOverflow = errors.New("token: balance overflow")
)

// Ledger moves units of an asset between accounts.
type Ledger interface {
	Mint(ctx context.Context, asset, to string, amount uint64) error
	Burn(ctx context.Context, asset, from string, amount uint64) error
	Transfer(ctx context.Context, asset, from, to string, amount uint64) error
	BalanceOf(ctx context.Context, asset, account string) (uint64, error)
}

// AccountLockKey is the keylock key held while an operation moves account's
// balance, so a compensating movement cannot race another debit.
func AccountLockKey(account string) string {
	return "account:" + account
}

// Validate checks the common arguments of a balance movement.
func Validate(asset string, amount uint64, accounts ...string) error {
	if asset == "" {
		return ErrInvalidAccount
	}
	for _, account := range accounts {
		if account == "" {
			return ErrInvalidAccount
		}
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Classify reports the kind of a token error.
func Classify(err error) errkind.Kind {
	return kinds.Of(err)
}

var kinds = errkind.Table{
	ErrInvalidAccount:      errkind.Validation,
	ErrInvalidAmount:       errkind.Validation,
	ErrInsufficientBalance: errkind.Arithmetic,
	ErrBalanceOverflow:     errkind.Arithmetic,
}
