package market

import (
	"time"

	"energy-exchange/internal/amount"
)

// Market is the singleton marketplace record.
type Market struct {
	authority         string
	totalOffers       uint64
	totalVolumeTraded uint64
	isActive          bool
	createdAt         time.Time
	updatedAt         time.Time
}

// NewMarket creates an active market with zero counters.
func NewMarket(authority string, now time.Time) (*Market, error) {
	if authority == "" {
		return nil, ErrInvalidAuthority
	}
	return &Market{
		authority: authority,
		isActive:  true,
		createdAt: now.UTC(),
		updatedAt: now.UTC(),
	}, nil
}

// RestoreMarket rebuilds a persisted market.
func RestoreMarket(authority string, totalOffers, totalVolumeTraded uint64, isActive bool, createdAt, updatedAt time.Time) *Market {
	return &Market{
		authority:         authority,
		totalOffers:       totalOffers,
		totalVolumeTraded: totalVolumeTraded,
		isActive:          isActive,
		createdAt:         createdAt.UTC(),
		updatedAt:         updatedAt.UTC(),
	}
}

// CountOffer increments the offer counter.
func (m *Market) CountOffer(now time.Time) error {
	next, err := amount.Add(m.totalOffers, 1)
	if err != nil {
		return ErrOverflow
	}
	m.totalOffers = next
	m.updatedAt = now.UTC()
	return nil
}

// AddVolume accumulates traded energy.
func (m *Market) AddVolume(energy uint64, now time.Time) error {
	next, err := amount.Add(m.totalVolumeTraded, energy)
	if err != nil {
		return ErrOverflow
	}
	m.totalVolumeTraded = next
	m.updatedAt = now.UTC()
	return nil
}

// SetActive halts or resumes trading.
func (m *Market) SetActive(active bool, now time.Time) {
	m.isActive = active
	m.updatedAt = now.UTC()
}

// IsAuthority reports whether account administers the market.
func (m *Market) IsAuthority(account string) bool {
	return account != "" && account == m.authority
}

func (m *Market) Authority() string         { return m.authority }
func (m *Market) TotalOffers() uint64       { return m.totalOffers }
func (m *Market) TotalVolumeTraded() uint64 { return m.totalVolumeTraded }
func (m *Market) IsActive() bool            { return m.isActive }
func (m *Market) CreatedAt() time.Time      { return m.createdAt }
func (m *Market) UpdatedAt() time.Time      { return m.updatedAt }

// Clone returns a detached copy.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	copy := *m
	return &copy
}
