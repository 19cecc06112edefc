package oracle

const (
	// MaxMeterIDLen bounds meter ids in bytes.
	MaxMeterIDLen = 64
	// MaxLocationLen bounds meter locations in bytes.
	MaxLocationLen = 128
	// MaxSignatureLen bounds reading signatures in bytes.
	MaxSignatureLen = 128
	// ReadingIntervalSeconds is the minimum spacing, in whole seconds, between
	// two readings of one meter. It is fixed, not configurable.
	ReadingIntervalSeconds = 300
)

// MeterType is the kind of device behind a meter.
type MeterType string

const (
	MeterTypeSolar       MeterType = "solar"
	MeterTypeWind        MeterType = "wind"
	MeterTypeBattery     MeterType = "battery"
	MeterTypeGrid        MeterType = "grid"
	MeterTypeConsumption MeterType = "consumption"
)

// ParseMeterType validates a meter type.
func ParseMeterType(value string) (MeterType, error) {
	t := MeterType(value)
	switch t {
	case MeterTypeSolar, MeterTypeWind, MeterTypeBattery, MeterTypeGrid, MeterTypeConsumption:
		return t, nil
	default:
		return "", ErrInvalidMeterType
	}
}

// ReadingType is the direction of a reported energy value.
type ReadingType string

const (
	ReadingTypeProduction  ReadingType = "production"
	ReadingTypeConsumption ReadingType = "consumption"
)

// ParseReadingType validates a reading type.
func ParseReadingType(value string) (ReadingType, error) {
	t := ReadingType(value)
	switch t {
	case ReadingTypeProduction, ReadingTypeConsumption:
		return t, nil
	default:
		return "", ErrInvalidReadingType
	}
}

// Unit describes the reading for logs and statements.
func (t ReadingType) Unit() string {
	switch t {
	case ReadingTypeProduction:
		return "kWh produced"
	case ReadingTypeConsumption:
		return "kWh consumed"
	default:
		return "kWh"
	}
}
