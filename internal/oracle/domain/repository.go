package oracle

import "context"

// Repository persists the registry, meters and readings. Methods that touch
// several records commit them together or not at all.
type Repository interface {
	// GetRegistry returns nil, nil before initialization.
	GetRegistry(ctx context.Context) (*Registry, error)
	CreateRegistry(ctx context.Context, registry *Registry) error
	SaveRegistry(ctx context.Context, registry *Registry) error

	// FindMeter returns nil, nil for an unknown id.
	FindMeter(ctx context.Context, meterID string) (*Meter, error)
	// RegisterMeter inserts the meter and saves the registry counters.
	RegisterMeter(ctx context.Context, meter *Meter, registry *Registry) error
	SaveMeter(ctx context.Context, meter *Meter) error

	// AppendReading stores the reading and saves the meter and registry.
	AppendReading(ctx context.Context, reading Reading, meter *Meter, registry *Registry) error
	// LatestReading returns nil, nil when the meter has no readings.
	LatestReading(ctx context.Context, meterID string) (*Reading, error)
	ListReadings(ctx context.Context, meterID string, limit int) ([]Reading, error)
}
