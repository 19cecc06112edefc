package oracle

import (
	"errors"

	"energy-exchange/internal/platform/errkind"
)

var (
	// ErrAlreadyInitialized is returned when the registry already exists.
	ErrAlreadyInitialized = errors.New("oracle: already initialized")
	// ErrNotInitialized is returned before the registry exists.
	ErrNotInitialized = errors.New("oracle: not initialized")
	// ErrOracleInactive is returned while the registry is halted.
	ErrOracleInactive = errors.New("oracle: inactive")
	// ErrInvalidMeterID is returned for an empty or over-long meter id.
	ErrInvalidMeterID = errors.New("oracle: invalid meter id")
	// ErrInvalidLocation is returned for an empty or over-long location.
	ErrInvalidLocation = errors.New("oracle: invalid location")
	// ErrInvalidOwner is returned when registering without an owner.
	ErrInvalidOwner = errors.New("oracle: invalid owner")
	// ErrInvalidMeterType is returned for an unknown meter type.
	ErrInvalidMeterType = errors.New("oracle: invalid meter type")
	// ErrInvalidReadingType is returned for an unknown reading type.
	ErrInvalidReadingType = errors.New("oracle: invalid reading type")
	// ErrInvalidReading is returned for a zero reading value.
	ErrInvalidReading = errors.New("oracle: invalid reading")
	// ErrInvalidSignature is returned for an empty or over-long signature.
	ErrInvalidSignature = errors.New("oracle: invalid signature")
	// ErrInvalidAuthority is returned when initializing without an authority.
	ErrInvalidAuthority = errors.New("oracle: invalid authority")
	// ErrMeterExists is returned when registering a known meter id.
	ErrMeterExists = errors.New("oracle: meter exists")
	// ErrMeterNotFound is returned for an unknown meter id.
	ErrMeterNotFound = errors.New("oracle: meter not found")
	// ErrMeterNotAuthorized is returned when a deauthorized meter submits.
	ErrMeterNotAuthorized = errors.New("oracle: meter not authorized")
	// ErrMeterIDMismatch is returned when the stored record belongs to another meter.
	ErrMeterIDMismatch = errors.New("oracle: meter id mismatch")
	// ErrReadingTooFrequent is returned inside the throttle window.
	ErrReadingTooFrequent = errors.New("oracle: reading too frequent")
	// ErrReadingNotFound is returned when a meter has no readings.
	ErrReadingNotFound = errors.New("oracle: reading not found")
	// ErrOverflow is returned when a counter would wrap.
	ErrOverflow = errors.New("oracle: overflow")
	// ErrUnauthorized is returned when the caller is not the registry authority.
	ErrUnauthorized = errors.New("oracle: unauthorized")
	// ErrNilAggregate is returned when persisting a nil record.
	ErrNilAggregate = errors.New("oracle: nil aggregate")
)

var kinds = errkind.Table{
	ErrAlreadyInitialized: errkind.State,
	ErrNotInitialized:     errkind.State,
	ErrOracleInactive:     errkind.State,
	ErrInvalidMeterID:     errkind.Validation,
	ErrInvalidLocation:    errkind.Validation,
	ErrInvalidOwner:       errkind.Validation,
	ErrInvalidMeterType:   errkind.Validation,
	ErrInvalidReadingType: errkind.Validation,
	ErrInvalidReading:     errkind.Validation,
	ErrInvalidSignature:   errkind.Validation,
	ErrInvalidAuthority:   errkind.Validation,
	ErrMeterExists:        errkind.State,
	ErrMeterNotFound:      errkind.NotFound,
	ErrMeterNotAuthorized: errkind.State,
	ErrMeterIDMismatch:    errkind.Validation,
	ErrReadingTooFrequent: errkind.State,
	ErrReadingNotFound:    errkind.NotFound,
	ErrOverflow:           errkind.Arithmetic,
	ErrUnauthorized:       errkind.Authorization,
}

// Classify reports the kind of an oracle error.
func Classify(err error) errkind.Kind {
	return kinds.Of(err)
}
