package oracle

import (
	"time"

	"energy-exchange/internal/amount"
)

// Registry is the singleton oracle record: authority, counters and halt flag.
type Registry struct {
	authority     string
	totalMeters   uint64
	totalReadings uint64
	isActive      bool
	createdAt     time.Time
	updatedAt     time.Time
}

// NewRegistry creates an active registry with zero counters.
func NewRegistry(authority string, now time.Time) (*Registry, error) {
	if authority == "" {
		return nil, ErrInvalidAuthority
	}
	return &Registry{
		authority: authority,
		isActive:  true,
		createdAt: now.UTC(),
		updatedAt: now.UTC(),
	}, nil
}

// RestoreRegistry rebuilds a persisted registry.
func RestoreRegistry(authority string, totalMeters, totalReadings uint64, isActive bool, createdAt, updatedAt time.Time) *Registry {
	return &Registry{
		authority:     authority,
		totalMeters:   totalMeters,
		totalReadings: totalReadings,
		isActive:      isActive,
		createdAt:     createdAt.UTC(),
		updatedAt:     updatedAt.UTC(),
	}
}

// CountMeter increments the meter counter.
func (r *Registry) CountMeter(now time.Time) error {
	next, err := amount.Add(r.totalMeters, 1)
	if err != nil {
		return ErrOverflow
	}
	r.totalMeters = next
	r.updatedAt = now.UTC()
	return nil
}

// CountReading increments the reading counter.
func (r *Registry) CountReading(now time.Time) error {
	next, err := amount.Add(r.totalReadings, 1)
	if err != nil {
		return ErrOverflow
	}
	r.totalReadings = next
	r.updatedAt = now.UTC()
	return nil
}

// SetActive toggles admission.
func (r *Registry) SetActive(active bool, now time.Time) {
	r.isActive = active
	r.updatedAt = now.UTC()
}

// IsAuthority reports whether account administers the registry.
func (r *Registry) IsAuthority(account string) bool {
	return account != "" && account == r.authority
}

// Authority returns the administering account.
func (r *Registry) Authority() string { return r.authority }

// TotalMeters returns the registered meter count.
func (r *Registry) TotalMeters() uint64 { return r.totalMeters }

// TotalReadings returns the admitted reading count.
func (r *Registry) TotalReadings() uint64 { return r.totalReadings }

// IsActive reports whether admission is open.
func (r *Registry) IsActive() bool { return r.isActive }

// CreatedAt returns the creation time.
func (r *Registry) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last change time.
func (r *Registry) UpdatedAt() time.Time { return r.updatedAt }

// Clone returns a detached copy.
func (r *Registry) Clone() *Registry {
	if r == nil {
		return nil
	}
	copy := *r
	return &copy
}
