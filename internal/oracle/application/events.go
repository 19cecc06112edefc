package application

import (
	"time"

	oracle "energy-exchange/internal/oracle/domain"
)

// OracleInitialized is emitted when the registry is created.
type OracleInitialized struct {
	Authority  string
	OccurredAt time.Time
}

// OracleSettingsUpdated is emitted when admission is halted or resumed.
type OracleSettingsUpdated struct {
	Authority  string
	IsActive   bool
	OccurredAt time.Time
}

// MeterRegistered is emitted for a new meter.
type MeterRegistered struct {
	MeterID    string
	MeterType  oracle.MeterType
	Owner      string
	Location   string
	OccurredAt time.Time
}

// ReadingSubmitted is emitted for each admitted reading.
type ReadingSubmitted struct {
	ReadingID  string
	MeterID    string
	Owner      string
	Value      uint64
	Type       oracle.ReadingType
	Verified   bool
	OccurredAt time.Time
}

// MeterAuthorizationUpdated is emitted when a meter is (de)authorized.
type MeterAuthorizationUpdated struct {
	MeterID      string
	IsAuthorized bool
	OccurredAt   time.Time
}
