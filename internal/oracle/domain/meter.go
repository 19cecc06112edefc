package oracle

import (
	"time"

	"energy-exchange/internal/amount"
)

// Meter is a registered metering device.
// A zero lastReadingAt means the meter never reported.
type Meter struct {
	meterID       string
	meterType     MeterType
	location      string
	owner         string
	isAuthorized  bool
	registeredAt  time.Time
	lastReadingAt time.Time
	totalReadings uint64
}

// NewMeter creates an authorized meter that has never reported.
func NewMeter(meterID string, meterType MeterType, location, owner string, now time.Time) (*Meter, error) {
	if meterID == "" || len(meterID) > MaxMeterIDLen {
		return nil, ErrInvalidMeterID
	}
	if location == "" || len(location) > MaxLocationLen {
		return nil, ErrInvalidLocation
	}
	if _, err := ParseMeterType(string(meterType)); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, ErrInvalidOwner
	}
	return &Meter{
		meterID:      meterID,
		meterType:    meterType,
		location:     location,
		owner:        owner,
		isAuthorized: true,
		registeredAt: now.UTC(),
	}, nil
}

// RestoreMeter rebuilds a persisted meter.
func RestoreMeter(meterID string, meterType MeterType, location, owner string, isAuthorized bool, registeredAt, lastReadingAt time.Time, totalReadings uint64) *Meter {
	m := &Meter{
		meterID:       meterID,
		meterType:     meterType,
		location:      location,
		owner:         owner,
		isAuthorized:  isAuthorized,
		registeredAt:  registeredAt.UTC(),
		totalReadings: totalReadings,
	}
	if !lastReadingAt.IsZero() {
		m.lastReadingAt = lastReadingAt.UTC()
	}
	return m
}

// Admit checks that a reading for meterID may be recorded at now and, if so,
// advances the meter's last reading time and counter. The throttle compares
// whole seconds: more than ReadingIntervalSeconds must have elapsed.
func (m *Meter) Admit(meterID string, now time.Time) error {
	if !m.isAuthorized {
		return ErrMeterNotAuthorized
	}
	if m.meterID != meterID {
		return ErrMeterIDMismatch
	}
	if !m.lastReadingAt.IsZero() && now.Unix()-m.lastReadingAt.Unix() <= ReadingIntervalSeconds {
		return ErrReadingTooFrequent
	}
	next, err := amount.Add(m.totalReadings, 1)
	if err != nil {
		return ErrOverflow
	}
	m.totalReadings = next
	m.lastReadingAt = now.UTC()
	return nil
}

// SetAuthorized flips the authorization flag.
func (m *Meter) SetAuthorized(authorized bool) {
	m.isAuthorized = authorized
}

// MeterID returns the meter id.
func (m *Meter) MeterID() string { return m.meterID }

// Type returns the device kind.
func (m *Meter) Type() MeterType { return m.meterType }

// Location returns the installation location.
func (m *Meter) Location() string { return m.location }

// Owner returns the account credited for the meter's readings.
func (m *Meter) Owner() string { return m.owner }

// IsAuthorized reports whether the meter may submit.
func (m *Meter) IsAuthorized() bool { return m.isAuthorized }

// RegisteredAt returns the registration time.
func (m *Meter) RegisteredAt() time.Time { return m.registeredAt }

// LastReadingAt returns the time of the latest admitted reading.
func (m *Meter) LastReadingAt() time.Time { return m.lastReadingAt }

// TotalReadings returns the admitted reading count.
func (m *Meter) TotalReadings() uint64 { return m.totalReadings }

// Clone returns a detached copy.
func (m *Meter) Clone() *Meter {
	if m == nil {
		return nil
	}
	copy := *m
	return &copy
}
