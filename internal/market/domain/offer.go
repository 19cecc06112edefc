package market

import (
	"time"

	"energy-exchange/internal/amount"
)

// Offer is a standing sell order for a fixed energy quantity at a fixed unit price.
// The stored status is Active, Completed or Cancelled. Expiry is derived from
// expiresAt at read and trade time.
type Offer struct {
	id           string
	seller       string
	energyAmount uint64
	pricePerUnit uint64
	offerType    OfferType
	status       OfferStatus
	filledAmount uint64
	createdAt    time.Time
	expiresAt    time.Time
	updatedAt    time.Time
}

// NewOffer creates an active offer expiring durationHours after now.
func NewOffer(offerID, seller string, energyAmount, pricePerUnit uint64, offerType OfferType, durationHours uint32, now time.Time) (*Offer, error) {
	if energyAmount == 0 {
		return nil, ErrInvalidAmount
	}
	if pricePerUnit == 0 {
		return nil, ErrInvalidPrice
	}
	lifetime, err := durationFromHours(durationHours)
	if err != nil {
		return nil, err
	}
	if _, err := ParseOfferType(string(offerType)); err != nil {
		return nil, err
	}
	if seller == "" {
		return nil, ErrInvalidSeller
	}
	created := now.UTC()
	return &Offer{
		id:           offerID,
		seller:       seller,
		energyAmount: energyAmount,
		pricePerUnit: pricePerUnit,
		offerType:    offerType,
		status:       OfferStatusActive,
		createdAt:    created,
		expiresAt:    created.Add(lifetime),
		updatedAt:    created,
	}, nil
}

// RestoreOffer rebuilds a persisted offer.
func RestoreOffer(offerID, seller string, energyAmount, pricePerUnit uint64, offerType OfferType, status OfferStatus, filledAmount uint64, createdAt, expiresAt, updatedAt time.Time) *Offer {
	return &Offer{
		id:           offerID,
		seller:       seller,
		energyAmount: energyAmount,
		pricePerUnit: pricePerUnit,
		offerType:    offerType,
		status:       status,
		filledAmount: filledAmount,
		createdAt:    createdAt.UTC(),
		expiresAt:    expiresAt.UTC(),
		updatedAt:    updatedAt.UTC(),
	}
}

// Fill applies a trade of energy units at now and returns its total cost.
// Checks run in order: amount, status, expiry, remaining, cost.
// The offer is unchanged when an error is returned.
func (o *Offer) Fill(energy uint64, now time.Time) (uint64, error) {
	if energy == 0 {
		return 0, ErrInvalidAmount
	}
	if o.status != OfferStatusActive {
		return 0, ErrOfferNotActive
	}
	if !now.Before(o.expiresAt) {
		return 0, ErrOfferExpired
	}
	if energy > o.Remaining() {
		return 0, ErrInsufficientEnergy
	}
	cost, err := amount.Mul(energy, o.pricePerUnit)
	if err != nil {
		return 0, ErrOverflow
	}
	o.filledAmount += energy
	if o.filledAmount >= o.energyAmount {
		o.status = OfferStatusCompleted
	}
	o.updatedAt = now.UTC()
	return cost, nil
}

// Cancel withdraws the offer. Only the seller may cancel an active offer.
func (o *Offer) Cancel(caller string, now time.Time) error {
	if o.status != OfferStatusActive {
		return ErrOfferNotActive
	}
	if caller != o.seller {
		return ErrUnauthorized
	}
	o.status = OfferStatusCancelled
	o.updatedAt = now.UTC()
	return nil
}

// EffectiveStatus reports Expired for an active offer at or past its expiry.
func (o *Offer) EffectiveStatus(now time.Time) OfferStatus {
	if o.status == OfferStatusActive && !now.Before(o.expiresAt) {
		return OfferStatusExpired
	}
	return o.status
}

// Remaining returns the unfilled energy.
func (o *Offer) Remaining() uint64 {
	if o.filledAmount >= o.energyAmount {
		return 0
	}
	return o.energyAmount - o.filledAmount
}

// ID returns the offer identifier.
func (o *Offer) ID() string { return o.id }

// Seller returns the selling account.
func (o *Offer) Seller() string { return o.seller }

// EnergyAmount returns the total offered energy.
func (o *Offer) EnergyAmount() uint64 { return o.energyAmount }

// PricePerUnit returns the posted unit price in credits.
func (o *Offer) PricePerUnit() uint64 { return o.pricePerUnit }

// Type returns the delivery kind.
func (o *Offer) Type() OfferType { return o.offerType }

// Status returns the stored status. Use EffectiveStatus for display.
func (o *Offer) Status() OfferStatus { return o.status }

// FilledAmount returns the traded energy.
func (o *Offer) FilledAmount() uint64 { return o.filledAmount }

// CreatedAt returns the creation time.
func (o *Offer) CreatedAt() time.Time { return o.createdAt }

// ExpiresAt returns the expiry time.
func (o *Offer) ExpiresAt() time.Time { return o.expiresAt }

// UpdatedAt returns the last change time.
func (o *Offer) UpdatedAt() time.Time { return o.updatedAt }

// Clone returns a detached copy.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	copy := *o
	return &copy
}
