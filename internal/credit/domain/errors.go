package credit

import (
	"errors"

	"energy-exchange/internal/platform/errkind"
)

var (
	// ErrAlreadyInitialized is returned when the ledger state already exists.
	ErrAlreadyInitialized = errors.New("credit: already initialized")
	// ErrNotInitialized is returned when the ledger state does not exist yet.
	ErrNotInitialized = errors.New("credit: not initialized")
	// ErrInvalidAmount is returned for a zero credit amount.
	ErrInvalidAmount = errors.New("credit: invalid amount")
	// ErrInvalidMeterID is returned when mint/burn carries no meter id.
	ErrInvalidMeterID = errors.New("credit: invalid meter id")
	// ErrInvalidAccount is returned for an empty recipient, holder or counterparty.
	ErrInvalidAccount = errors.New("credit: invalid account")
	// ErrInvalidAuthority is returned when initializing without an authority.
	ErrInvalidAuthority = errors.New("credit: invalid authority")
	// ErrInvalidAsset is returned when initializing without an asset id.
	ErrInvalidAsset = errors.New("credit: invalid asset")
	// ErrInvalidName is returned for an empty or over-long display name.
	ErrInvalidName = errors.New("credit: invalid name")
	// ErrInvalidSymbol is returned for an empty or over-long symbol.
	ErrInvalidSymbol = errors.New("credit: invalid symbol")
	// ErrOverflow is returned when minting would wrap total supply.
	ErrOverflow = errors.New("credit: overflow")
	// ErrInsufficientSupply is returned when burning more than total supply.
	ErrInsufficientSupply = errors.New("credit: insufficient supply")
	// ErrUnauthorized is returned when the caller may not perform the operation.
	ErrUnauthorized = errors.New("credit: unauthorized")
	// ErrNilState is returned when saving a nil ledger state.
	ErrNilState = errors.New("credit: nil ledger state")
)

var kinds = errkind.Table{
	ErrAlreadyInitialized: errkind.State,
	ErrNotInitialized:     errkind.State,
	ErrInvalidAmount:      errkind.Validation,
	ErrInvalidMeterID:     errkind.Validation,
	ErrInvalidAccount:     errkind.Validation,
	ErrInvalidAuthority:   errkind.Validation,
	ErrInvalidAsset:       errkind.Validation,
	ErrInvalidName:        errkind.Validation,
	ErrInvalidSymbol:      errkind.Validation,
	ErrOverflow:           errkind.Arithmetic,
	ErrInsufficientSupply: errkind.Arithmetic,
	ErrUnauthorized:       errkind.Authorization,
}

// Classify reports the kind of a credit error.
func Classify(err error) errkind.Kind {
	return kinds.Of(err)
}
