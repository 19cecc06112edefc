package market

import (
	"errors"

	"energy-exchange/internal/platform/errkind"
)

var (
	// ErrAlreadyInitialized is returned when the market already exists.
	ErrAlreadyInitialized = errors.New("market: already initialized")
	// ErrNotInitialized is returned before the market exists.
	ErrNotInitialized = errors.New("market: not initialized")
	// ErrMarketInactive is returned for offer creation and trades while trading is halted.
	ErrMarketInactive = errors.New("market: inactive")
	// ErrInvalidAuthority is returned when initializing without an authority.
	ErrInvalidAuthority = errors.New("market: invalid authority")
	// ErrInvalidAmount is returned for a zero energy amount.
	ErrInvalidAmount = errors.New("market: invalid amount")
	// ErrInvalidPrice is returned for a zero unit price.
	ErrInvalidPrice = errors.New("market: invalid price")
	// ErrInvalidDuration is returned for a duration outside 1..168 hours.
	ErrInvalidDuration = errors.New("market: invalid duration")
	// ErrInvalidOfferType is returned for an unknown offer type.
	ErrInvalidOfferType = errors.New("market: invalid offer type")
	// ErrInvalidStatus is returned for an unknown offer status.
	ErrInvalidStatus = errors.New("market: invalid status")
	// ErrInvalidSeller is returned when creating an offer without a seller.
	ErrInvalidSeller = errors.New("market: invalid seller")
	// ErrInvalidBuyer is returned when trading without a buyer.
	ErrInvalidBuyer = errors.New("market: invalid buyer")
	// ErrOfferNotFound is returned for an unknown offer id.
	ErrOfferNotFound = errors.New("market: offer not found")
	// ErrOfferNotActive is returned when the offer is completed or cancelled.
	ErrOfferNotActive = errors.New("market: offer not active")
	// ErrOfferExpired is returned when trading past the offer expiry.
	ErrOfferExpired = errors.New("market: offer expired")
	// ErrInsufficientEnergy is returned when a trade exceeds the unfilled remainder.
	ErrInsufficientEnergy = errors.New("market: insufficient energy")
	// ErrOverflow is returned when cost or counters would wrap.
	ErrOverflow = errors.New("market: overflow")
	// ErrUnauthorized is returned when the caller is not the required principal.
	ErrUnauthorized = errors.New("market: unauthorized")
	// ErrNilAggregate is returned when persisting a nil record.
	ErrNilAggregate = errors.New("market: nil aggregate")
)

var kinds = errkind.Table{
	ErrAlreadyInitialized: errkind.State,
	ErrNotInitialized:     errkind.State,
	ErrMarketInactive:     errkind.State,
	ErrInvalidAuthority:   errkind.Validation,
	ErrInvalidAmount:      errkind.Validation,
	ErrInvalidPrice:       errkind.Validation,
	ErrInvalidDuration:    errkind.Validation,
	ErrInvalidOfferType:   errkind.Validation,
	ErrInvalidStatus:      errkind.Validation,
	ErrInvalidSeller:      errkind.Validation,
	ErrInvalidBuyer:       errkind.Validation,
	ErrOfferNotFound:      errkind.NotFound,
	ErrOfferNotActive:     errkind.State,
	ErrOfferExpired:       errkind.State,
	ErrInsufficientEnergy: errkind.Arithmetic,
	ErrOverflow:           errkind.Arithmetic,
	ErrUnauthorized:       errkind.Authorization,
}

// Classify reports the kind of a market error.
func Classify(err error) errkind.Kind {
	return kinds.Of(err)
}
