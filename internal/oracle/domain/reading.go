package oracle

import (
	"strconv"
	"time"
)

// Reading is an immutable admitted meter reading.
type Reading struct {
	ID         string
	MeterID    string
	Value      uint64
	Type       ReadingType
	Timestamp  time.Time
	Signature  []byte
	IsVerified bool
}

// ValidateSubmission checks the caller-supplied fields of a reading.
func ValidateSubmission(meterID string, value uint64, readingType ReadingType, signature []byte) error {
	if meterID == "" || len(meterID) > MaxMeterIDLen {
		return ErrInvalidMeterID
	}
	if value == 0 {
		return ErrInvalidReading
	}
	if len(signature) == 0 || len(signature) > MaxSignatureLen {
		return ErrInvalidSignature
	}
	if _, err := ParseReadingType(string(readingType)); err != nil {
		return err
	}
	return nil
}

// Clone returns a copy that shares no memory with r.
func (r Reading) Clone() Reading {
	r.Signature = append([]byte(nil), r.Signature...)
	return r
}

// CanonicalPayload is the byte string a meter signs for one reading.
func CanonicalPayload(meterID string, value uint64, readingType ReadingType) []byte {
	return []byte(meterID + "\n" + strconv.FormatUint(value, 10) + "\n" + string(readingType))
}
