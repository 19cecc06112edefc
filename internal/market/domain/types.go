package market

import "time"

const (
	// MinDurationHours is the shortest offer lifetime.
	MinDurationHours = 1
	// MaxDurationHours is the longest offer lifetime (one week).
	MaxDurationHours = 168
)

// OfferType describes when the offered energy is delivered.
type OfferType string

const (
	OfferTypeImmediate OfferType = "immediate"
	OfferTypeScheduled OfferType = "scheduled"
	OfferTypeRecurring OfferType = "recurring"
)

// ParseOfferType validates an offer type.
func ParseOfferType(value string) (OfferType, error) {
	t := OfferType(value)
	switch t {
	case OfferTypeImmediate, OfferTypeScheduled, OfferTypeRecurring:
		return t, nil
	default:
		return "", ErrInvalidOfferType
	}
}

// OfferStatus is the lifecycle state of an offer.
type OfferStatus string

const (
	OfferStatusActive    OfferStatus = "active"
	OfferStatusCompleted OfferStatus = "completed"
	OfferStatusCancelled OfferStatus = "cancelled"
	// OfferStatusExpired is never stored. It is reported for active offers past expiry.
	OfferStatusExpired OfferStatus = "expired"
)

// ParseOfferStatus validates an offer status.
func ParseOfferStatus(value string) (OfferStatus, error) {
	s := OfferStatus(value)
	switch s {
	case OfferStatusActive, OfferStatusCompleted, OfferStatusCancelled, OfferStatusExpired:
		return s, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Terminal reports whether no further transition is possible.
func (s OfferStatus) Terminal() bool {
	switch s {
	case OfferStatusCompleted, OfferStatusCancelled, OfferStatusExpired:
		return true
	case OfferStatusActive:
		return false
	default:
		return false
	}
}

func durationFromHours(hours uint32) (time.Duration, error) {
	if hours < MinDurationHours || hours > MaxDurationHours {
		return 0, ErrInvalidDuration
	}
	return time.Duration(hours) * time.Hour, nil
}
