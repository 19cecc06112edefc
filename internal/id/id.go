// Package id builds prefixed, K-sortable identifiers for exchange records.
//
// Identifiers are TypeIDs rendered as "prefix_suffix" strings so they can be
// stored in plain text columns and passed through URLs unchanged.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the record type encoded in an identifier.
type Prefix string

const (
	PrefixOffer     Prefix = "offer"
	PrefixTrade     Prefix = "trade"
	PrefixReading   Prefix = "rdg"
	PrefixEvent     Prefix = "evt"
	PrefixOutbox    Prefix = "obx"
	PrefixAudit     Prefix = "audit"
	PrefixReconcile Prefix = "rcn"
)

// New generates a new identifier with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) string {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return tid.String()
}

// NewOfferID generates an offer identifier.
func NewOfferID() string { return New(PrefixOffer) }

// NewTradeID generates a trade identifier.
func NewTradeID() string { return New(PrefixTrade) }

// NewReadingID generates a meter reading identifier.
func NewReadingID() string { return New(PrefixReading) }

// NewEventID generates an event identifier.
func NewEventID() string { return New(PrefixEvent) }

// Validate checks that value parses as an identifier with the expected prefix.
func Validate(value string, expected Prefix) error {
	if value == "" {
		return fmt.Errorf("id: parse %q: empty string", value)
	}
	tid, err := typeid.Parse(value)
	if err != nil {
		return fmt.Errorf("id: parse %q: %w", value, err)
	}
	if Prefix(tid.Prefix()) != expected {
		return fmt.Errorf("id: expected prefix %q, got %q", expected, tid.Prefix())
	}
	return nil
}
