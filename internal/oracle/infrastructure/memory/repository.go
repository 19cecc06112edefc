package memory

import (
	"context"
	"sync"

	oracle "energy-exchange/internal/oracle/domain"
)

// Repository keeps oracle records in memory.
type Repository struct {
	mu       sync.RWMutex
	registry *oracle.Registry
	meters   map[string]*oracle.Meter
	readings map[string][]oracle.Reading
}

// NewRepository constructs a repository.
func NewRepository() *Repository {
	return &Repository{
		meters:   make(map[string]*oracle.Meter),
		readings: make(map[string][]oracle.Reading),
	}
}

// GetRegistry returns a copy of the registry.
func (r *Repository) GetRegistry(ctx context.Context) (*oracle.Registry, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registry.Clone(), nil
}

// CreateRegistry stores the registry once.
func (r *Repository) CreateRegistry(ctx context.Context, registry *oracle.Registry) error {
	_ = ctx
	if registry == nil {
		return oracle.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registry != nil {
		return oracle.ErrAlreadyInitialized
	}
	r.registry = registry.Clone()
	return nil
}

// SaveRegistry overwrites the registry.
func (r *Repository) SaveRegistry(ctx context.Context, registry *oracle.Registry) error {
	_ = ctx
	if registry == nil {
		return oracle.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registry == nil {
		return oracle.ErrNotInitialized
	}
	r.registry = registry.Clone()
	return nil
}

// FindMeter returns a copy of the meter, or nil.
func (r *Repository) FindMeter(ctx context.Context, meterID string) (*oracle.Meter, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.meters[meterID].Clone(), nil
}

// RegisterMeter inserts the meter and the updated registry together.
func (r *Repository) RegisterMeter(ctx context.Context, meter *oracle.Meter, registry *oracle.Registry) error {
	_ = ctx
	if meter == nil || registry == nil {
		return oracle.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meters[meter.MeterID()]; ok {
		return oracle.ErrMeterExists
	}
	if r.registry == nil {
		return oracle.ErrNotInitialized
	}
	r.meters[meter.MeterID()] = meter.Clone()
	r.registry = registry.Clone()
	return nil
}

// SaveMeter overwrites a meter.
func (r *Repository) SaveMeter(ctx context.Context, meter *oracle.Meter) error {
	_ = ctx
	if meter == nil {
		return oracle.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meters[meter.MeterID()]; !ok {
		return oracle.ErrMeterNotFound
	}
	r.meters[meter.MeterID()] = meter.Clone()
	return nil
}

// AppendReading stores the reading, meter and registry together.
func (r *Repository) AppendReading(ctx context.Context, reading oracle.Reading, meter *oracle.Meter, registry *oracle.Registry) error {
	_ = ctx
	if meter == nil || registry == nil {
		return oracle.ErrNilAggregate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.meters[meter.MeterID()]; !ok {
		return oracle.ErrMeterNotFound
	}
	r.readings[reading.MeterID] = append(r.readings[reading.MeterID], reading.Clone())
	r.meters[meter.MeterID()] = meter.Clone()
	r.registry = registry.Clone()
	return nil
}

// LatestReading returns the newest reading, or nil.
func (r *Repository) LatestReading(ctx context.Context, meterID string) (*oracle.Reading, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.readings[meterID]
	if len(list) == 0 {
		return nil, nil
	}
	latest := list[len(list)-1].Clone()
	return &latest, nil
}

// ListReadings returns up to limit readings, newest first.
func (r *Repository) ListReadings(ctx context.Context, meterID string, limit int) ([]oracle.Reading, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.readings[meterID]
	result := make([]oracle.Reading, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		result = append(result, list[i].Clone())
	}
	return result, nil
}
