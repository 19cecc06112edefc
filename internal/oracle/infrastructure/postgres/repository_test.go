package postgres

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	oracle "energy-exchange/internal/oracle/domain"
	"energy-exchange/internal/platform/pgutil"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if !pgutil.TableExists(db, "oracle_registry") || !pgutil.TableExists(db, "meter_readings") {
		t.Skip("missing tables; run migrations")
	}

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM meter_readings")
	_, _ = db.ExecContext(ctx, "DELETE FROM meters")
	_, _ = db.ExecContext(ctx, "DELETE FROM oracle_registry")

	repo := NewRepository(db)
	now := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	registry, err := oracle.NewRegistry("authority", now)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if err := repo.CreateRegistry(ctx, registry); err != nil {
		t.Fatalf("create registry: %v", err)
	}

	meter, err := oracle.NewMeter("meter-pg-1", oracle.MeterTypeSolar, "roof", "owner-1", now)
	if err != nil {
		t.Fatalf("new meter: %v", err)
	}
	if err := registry.CountMeter(now); err != nil {
		t.Fatalf("count meter: %v", err)
	}
	if err := repo.RegisterMeter(ctx, meter, registry); err != nil {
		t.Fatalf("register meter: %v", err)
	}

	for i, value := range []uint64{100, 250} {
		at := now.Add(time.Duration(i+1) * 10 * time.Minute)
		if err := meter.Admit(meter.MeterID(), at); err != nil {
			t.Fatalf("admit: %v", err)
		}
		if err := registry.CountReading(at); err != nil {
			t.Fatalf("count reading: %v", err)
		}
		reading := oracle.Reading{
			ID:         "rdg-pg-" + string(rune('a'+i)),
			MeterID:    meter.MeterID(),
			Value:      value,
			Type:       oracle.ReadingTypeProduction,
			Timestamp:  at,
			Signature:  []byte{0x01, 0x02},
			IsVerified: true,
		}
		if err := repo.AppendReading(ctx, reading, meter, registry); err != nil {
			t.Fatalf("append reading: %v", err)
		}
	}

	loaded, err := repo.GetRegistry(ctx)
	if err != nil {
		t.Fatalf("get registry: %v", err)
	}
	if loaded == nil || loaded.TotalMeters() != 1 || loaded.TotalReadings() != 2 {
		t.Fatalf("unexpected registry %+v", loaded)
	}

	stored, err := repo.FindMeter(ctx, meter.MeterID())
	if err != nil {
		t.Fatalf("find meter: %v", err)
	}
	if stored == nil || stored.TotalReadings() != 2 || stored.Owner() != "owner-1" {
		t.Fatalf("unexpected meter %+v", stored)
	}
	if missing, err := repo.FindMeter(ctx, "meter-unknown"); err != nil || missing != nil {
		t.Fatalf("expected nil meter, got %+v err=%v", missing, err)
	}

	latest, err := repo.LatestReading(ctx, meter.MeterID())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.Value != 250 {
		t.Fatalf("unexpected latest reading %+v", latest)
	}
	readings, err := repo.ListReadings(ctx, meter.MeterID(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(readings) != 2 || readings[1].Value != 100 {
		t.Fatalf("unexpected readings %+v", readings)
	}
}
