package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	oracle "energy-exchange/internal/oracle/domain"
	"energy-exchange/internal/platform/pgutil"
)

const (
	registryKey          = "default"
	uniqueViolation      = "23505"
	defaultReadingsLimit = 100
)

// Repository persists oracle records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetRegistry loads the registry.
func (r *Repository) GetRegistry(ctx context.Context) (*oracle.Registry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("oracle repo: nil db")
	}
	var (
		authority            string
		meters, readings     pgutil.Uint64
		isActive             bool
		createdAt, updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx, `
SELECT authority, total_meters::text, total_readings::text, is_active, created_at, updated_at
FROM oracle_registry
WHERE id = $1`, registryKey).Scan(&authority, &meters, &readings, &isActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("oracle repo: get registry: %w", err)
	}
	return oracle.RestoreRegistry(authority, meters.V, readings.V, isActive, createdAt, updatedAt), nil
}

// CreateRegistry inserts the registry row once.
func (r *Repository) CreateRegistry(ctx context.Context, registry *oracle.Registry) error {
	if r == nil || r.db == nil {
		return errors.New("oracle repo: nil db")
	}
	if registry == nil {
		return oracle.ErrNilAggregate
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO oracle_registry (id, authority, total_meters, total_readings, is_active, created_at, updated_at)
VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`,
		registryKey, registry.Authority(), pgutil.Uint64Param(registry.TotalMeters()), pgutil.Uint64Param(registry.TotalReadings()),
		registry.IsActive(), registry.CreatedAt(), registry.UpdatedAt())
	if err != nil {
		return fmt.Errorf("oracle repo: create registry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return oracle.ErrAlreadyInitialized
	}
	return nil
}

// SaveRegistry updates counters and the active flag.
func (r *Repository) SaveRegistry(ctx context.Context, registry *oracle.Registry) error {
	if r == nil || r.db == nil {
		return errors.New("oracle repo: nil db")
	}
	if registry == nil {
		return oracle.ErrNilAggregate
	}
	return saveRegistry(ctx, r.db, registry)
}

// FindMeter loads a meter.
func (r *Repository) FindMeter(ctx context.Context, meterID string) (*oracle.Meter, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("oracle repo: nil db")
	}
	var (
		meterType, location, owner string
		isAuthorized               bool
		registeredAt               time.Time
		lastReadingAt              sql.NullTime
		total                      pgutil.Uint64
	)
	err := r.db.QueryRowContext(ctx, `
SELECT meter_type, location, owner, is_authorized, registered_at, last_reading_at, total_readings::text
FROM meters
WHERE meter_id = $1`, meterID).Scan(&meterType, &location, &owner, &isAuthorized, &registeredAt, &lastReadingAt, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("oracle repo: find meter: %w", err)
	}
	return oracle.RestoreMeter(meterID, oracle.MeterType(meterType), location, owner, isAuthorized, registeredAt, pgutil.TimeOrZero(lastReadingAt), total.V), nil
}

// RegisterMeter inserts the meter and saves the registry in one transaction.
func (r *Repository) RegisterMeter(ctx context.Context, meter *oracle.Meter, registry *oracle.Registry) error {
	if r == nil || r.db == nil {
		return errors.New("oracle repo: nil db")
	}
	if meter == nil || registry == nil {
		return oracle.ErrNilAggregate
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO meters (meter_id, meter_type, location, owner, is_authorized, registered_at, last_reading_at, total_readings)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric)`,
		meter.MeterID(), string(meter.Type()), meter.Location(), meter.Owner(), meter.IsAuthorized(),
		meter.RegisteredAt(), pgutil.NullTime(meter.LastReadingAt()), pgutil.Uint64Param(meter.TotalReadings()))
	if err != nil {
		_ = tx.Rollback()
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return oracle.ErrMeterExists
		}
		return fmt.Errorf("oracle repo: insert meter: %w", err)
	}
	if err := saveRegistry(ctx, tx, registry); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// SaveMeter updates a meter's mutable fields.
func (r *Repository) SaveMeter(ctx context.Context, meter *oracle.Meter) error {
	if r == nil || r.db == nil {
		return errors.New("oracle repo: nil db")
	}
	if meter == nil {
		return oracle.ErrNilAggregate
	}
	return saveMeter(ctx, r.db, meter)
}

// AppendReading stores the reading and saves meter and registry in one transaction.
func (r *Repository) AppendReading(ctx context.Context, reading oracle.Reading, meter *oracle.Meter, registry *oracle.Registry) error {
	if r == nil || r.db == nil {
		return errors.New("oracle repo: nil db")
	}
	if meter == nil || registry == nil {
		return oracle.ErrNilAggregate
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO meter_readings (id, meter_id, value, reading_type, recorded_at, signature, is_verified)
VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)`,
		reading.ID, reading.MeterID, pgutil.Uint64Param(reading.Value), string(reading.Type), reading.Timestamp, reading.Signature, reading.IsVerified)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("oracle repo: insert reading: %w", err)
	}
	if err := saveMeter(ctx, tx, meter); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := saveRegistry(ctx, tx, registry); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// LatestReading returns the newest reading for a meter.
func (r *Repository) LatestReading(ctx context.Context, meterID string) (*oracle.Reading, error) {
	readings, err := r.ListReadings(ctx, meterID, 1)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, nil
	}
	return &readings[0], nil
}

// ListReadings returns readings newest first.
func (r *Repository) ListReadings(ctx context.Context, meterID string, limit int) ([]oracle.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("oracle repo: nil db")
	}
	if limit <= 0 {
		limit = defaultReadingsLimit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, meter_id, value::text, reading_type, recorded_at, signature, is_verified
FROM meter_readings
WHERE meter_id = $1
ORDER BY recorded_at DESC, id DESC
LIMIT $2`, meterID, limit)
	if err != nil {
		return nil, fmt.Errorf("oracle repo: list readings: %w", err)
	}
	defer rows.Close()

	var result []oracle.Reading
	for rows.Next() {
		var (
			reading     oracle.Reading
			value       pgutil.Uint64
			readingType string
		)
		if err := rows.Scan(&reading.ID, &reading.MeterID, &value, &readingType, &reading.Timestamp, &reading.Signature, &reading.IsVerified); err != nil {
			return nil, err
		}
		reading.Value = value.V
		reading.Type = oracle.ReadingType(readingType)
		reading.Timestamp = reading.Timestamp.UTC()
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func saveRegistry(ctx context.Context, db queryer, registry *oracle.Registry) error {
	res, err := db.ExecContext(ctx, `
UPDATE oracle_registry
SET total_meters = $2::numeric, total_readings = $3::numeric, is_active = $4, updated_at = $5
WHERE id = $1`,
		registryKey, pgutil.Uint64Param(registry.TotalMeters()), pgutil.Uint64Param(registry.TotalReadings()), registry.IsActive(), registry.UpdatedAt())
	if err != nil {
		return fmt.Errorf("oracle repo: save registry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return oracle.ErrNotInitialized
	}
	return nil
}

func saveMeter(ctx context.Context, db queryer, meter *oracle.Meter) error {
	res, err := db.ExecContext(ctx, `
UPDATE meters
SET is_authorized = $2, last_reading_at = $3, total_readings = $4::numeric
WHERE meter_id = $1`,
		meter.MeterID(), meter.IsAuthorized(), pgutil.NullTime(meter.LastReadingAt()), pgutil.Uint64Param(meter.TotalReadings()))
	if err != nil {
		return fmt.Errorf("oracle repo: save meter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return oracle.ErrMeterNotFound
	}
	return nil
}
