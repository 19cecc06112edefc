package application

import (
	"context"
	"errors"
	"testing"
	"time"

	oracle "energy-exchange/internal/oracle/domain"
	"energy-exchange/internal/oracle/infrastructure/memory"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Set(t time.Time) { c.now = t }

type recordingPublisher struct {
	events []any
}

func (p *recordingPublisher) Publish(ctx context.Context, event any) error {
	p.events = append(p.events, event)
	return nil
}

type stubVerifier struct {
	ok  bool
	err error
}

func (v stubVerifier) Verify(context.Context, string, []byte, []byte) (bool, error) {
	return v.ok, v.err
}

var t0 = time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	repo  *memory.Repository
	clock *stepClock
	pub   *recordingPublisher
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	repo := memory.NewRepository()
	clock := &stepClock{now: t0.Add(-time.Hour)}
	pub := &recordingPublisher{}
	svc, err := NewService(repo, pub, nil, clock, nil, opts)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	if _, err := svc.Initialize(ctx, "oracle-admin"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := svc.RegisterMeter(ctx, RegisterMeterCommand{
		MeterID: "meter-1", Type: oracle.MeterTypeSolar, Location: "roof A", Owner: "alice",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	pub.events = nil
	clock.Set(t0)
	return fixture{svc: svc, repo: repo, clock: clock, pub: pub}
}

func submit(f fixture, value uint64) (oracle.Reading, error) {
	return f.svc.SubmitReading(context.Background(), SubmitReadingCommand{
		MeterID: "meter-1", Value: value, Type: oracle.ReadingTypeProduction, Signature: []byte("sig"),
	})
}

func TestInitialize_Twice(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := f.svc.Initialize(context.Background(), "other"); !errors.Is(err, oracle.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
}

func TestRegisterMeter(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	_, err := f.svc.RegisterMeter(ctx, RegisterMeterCommand{MeterID: "meter-1", Type: oracle.MeterTypeWind, Location: "x", Owner: "bob"})
	if !errors.Is(err, oracle.ErrMeterExists) {
		t.Fatalf("expected meter exists, got %v", err)
	}
	if _, err := f.svc.RegisterMeter(ctx, RegisterMeterCommand{MeterID: "meter-2", Type: oracle.MeterTypeWind, Owner: "bob"}); !errors.Is(err, oracle.ErrInvalidLocation) {
		t.Fatalf("expected invalid location, got %v", err)
	}
	meter, err := f.svc.RegisterMeter(ctx, RegisterMeterCommand{MeterID: "meter-2", Type: oracle.MeterTypeWind, Location: "hill", Owner: "bob"})
	if err != nil {
		t.Fatalf("register meter-2: %v", err)
	}
	if !meter.IsAuthorized() || !meter.LastReadingAt().IsZero() {
		t.Fatalf("unexpected new meter state")
	}
	registry, _ := f.svc.Registry(ctx)
	if registry.TotalMeters() != 2 {
		t.Fatalf("expected 2 meters, got %d", registry.TotalMeters())
	}
	if len(f.pub.events) != 1 {
		t.Fatalf("expected one registration event, got %d", len(f.pub.events))
	}
	event, ok := f.pub.events[0].(MeterRegistered)
	if !ok || event.MeterID != "meter-2" || event.Owner != "bob" || event.MeterType != oracle.MeterTypeWind {
		t.Fatalf("unexpected event %+v", f.pub.events[0])
	}
}

func TestSubmitReading_Throttle(t *testing.T) {
	f := newFixture(t, Options{})

	first, err := submit(f, 10)
	if err != nil {
		t.Fatalf("t=0: %v", err)
	}
	if !first.IsVerified || !first.Timestamp.Equal(t0) {
		t.Fatalf("unexpected reading %+v", first)
	}

	f.clock.Set(t0.Add(299 * time.Second))
	if _, err := submit(f, 11); !errors.Is(err, oracle.ErrReadingTooFrequent) {
		t.Fatalf("t=299: expected too frequent, got %v", err)
	}

	f.clock.Set(t0.Add(301 * time.Second))
	if _, err := submit(f, 12); err != nil {
		t.Fatalf("t=301: %v", err)
	}

	meter, _ := f.svc.Meter(context.Background(), "meter-1")
	if meter.TotalReadings() != 2 || !meter.LastReadingAt().Equal(t0.Add(301*time.Second)) {
		t.Fatalf("unexpected meter counters total=%d last=%v", meter.TotalReadings(), meter.LastReadingAt())
	}
	registry, _ := f.svc.Registry(context.Background())
	if registry.TotalReadings() != 2 {
		t.Fatalf("expected 2 registry readings, got %d", registry.TotalReadings())
	}
	if len(f.pub.events) != 2 {
		t.Fatalf("expected 2 reading events, got %d", len(f.pub.events))
	}
	event := f.pub.events[1].(ReadingSubmitted)
	if event.Owner != "alice" || event.Value != 12 || !event.Verified {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestSubmitReading_Validation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	cases := []struct {
		name string
		cmd  SubmitReadingCommand
		want error
	}{
		{"zero", SubmitReadingCommand{MeterID: "meter-1", Type: oracle.ReadingTypeProduction, Signature: []byte("s")}, oracle.ErrInvalidReading},
		{"no signature", SubmitReadingCommand{MeterID: "meter-1", Value: 1, Type: oracle.ReadingTypeProduction}, oracle.ErrInvalidSignature},
		{"no meter id", SubmitReadingCommand{Value: 1, Type: oracle.ReadingTypeProduction, Signature: []byte("s")}, oracle.ErrInvalidMeterID},
		{"unknown meter", SubmitReadingCommand{MeterID: "ghost", Value: 1, Type: oracle.ReadingTypeProduction, Signature: []byte("s")}, oracle.ErrMeterNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.SubmitReading(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := f.svc.LatestReading(ctx, "meter-1"); !errors.Is(err, oracle.ErrReadingNotFound) {
		t.Fatalf("rejected readings must not be stored, got %v", err)
	}
}

func TestDeauthorization_KeepsPriorReadings(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	first, err := submit(f, 10)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := f.svc.UpdateMeterAuthorization(ctx, "alice", "meter-1", false); !errors.Is(err, oracle.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.svc.UpdateMeterAuthorization(ctx, "oracle-admin", "meter-1", false); err != nil {
		t.Fatalf("deauthorize: %v", err)
	}

	f.clock.Set(t0.Add(time.Hour))
	if _, err := submit(f, 20); !errors.Is(err, oracle.ErrMeterNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}

	latest, err := f.svc.LatestReading(ctx, "meter-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != first.ID || !latest.IsVerified {
		t.Fatalf("prior reading must stay valid, got %+v", latest)
	}

	last := f.pub.events[len(f.pub.events)-1]
	if update, ok := last.(MeterAuthorizationUpdated); !ok || update.IsAuthorized {
		t.Fatalf("unexpected last event %+v", last)
	}

	if _, err := f.svc.UpdateMeterAuthorization(ctx, "oracle-admin", "ghost", true); !errors.Is(err, oracle.ErrMeterNotFound) {
		t.Fatalf("expected meter not found, got %v", err)
	}
}

func TestInactiveRegistry(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	if _, err := f.svc.UpdateSettings(ctx, "alice", false); !errors.Is(err, oracle.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.svc.UpdateSettings(ctx, "oracle-admin", false); err != nil {
		t.Fatalf("halt: %v", err)
	}
	if _, err := submit(f, 1); !errors.Is(err, oracle.ErrOracleInactive) {
		t.Fatalf("expected inactive, got %v", err)
	}
	_, err := f.svc.RegisterMeter(ctx, RegisterMeterCommand{MeterID: "m9", Type: oracle.MeterTypeGrid, Location: "x", Owner: "bob"})
	if !errors.Is(err, oracle.ErrOracleInactive) {
		t.Fatalf("expected inactive, got %v", err)
	}
	if _, err := f.svc.UpdateSettings(ctx, "oracle-admin", true); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := submit(f, 1); err != nil {
		t.Fatalf("submit after resume: %v", err)
	}
}

func TestVerifier(t *testing.T) {
	f := newFixture(t, Options{Verifier: stubVerifier{ok: false}})
	reading, err := submit(f, 5)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if reading.IsVerified {
		t.Fatalf("expected unverified reading")
	}

	g := newFixture(t, Options{Verifier: stubVerifier{err: errors.New("hsm offline")}})
	if _, err := submit(g, 5); err == nil {
		t.Fatalf("expected verifier error")
	}
	meter, _ := g.svc.Meter(context.Background(), "meter-1")
	if meter.TotalReadings() != 0 || !meter.LastReadingAt().IsZero() {
		t.Fatalf("failed submission must not advance the meter")
	}
}

func TestReadings_NewestFirst(t *testing.T) {
	f := newFixture(t, Options{})
	for i := 0; i < 3; i++ {
		f.clock.Set(t0.Add(time.Duration(i) * 10 * time.Minute))
		if _, err := submit(f, uint64(i+1)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	readings, err := f.svc.Readings(context.Background(), "meter-1", 2)
	if err != nil {
		t.Fatalf("readings: %v", err)
	}
	if len(readings) != 2 || readings[0].Value != 3 || readings[1].Value != 2 {
		t.Fatalf("unexpected readings %+v", readings)
	}
}

func TestSubmitReading_ThrottleIsFixed(t *testing.T) {
	f := newFixture(t, Options{})
	if _, err := submit(f, 1); err != nil {
		t.Fatalf("first: %v", err)
	}
	for _, offset := range []time.Duration{2 * time.Second, 300 * time.Second, 300*time.Second + 900*time.Millisecond} {
		f.clock.Set(t0.Add(offset))
		if _, err := submit(f, 1); !errors.Is(err, oracle.ErrReadingTooFrequent) {
			t.Fatalf("offset %v: expected too frequent, got %v", offset, err)
		}
	}
	f.clock.Set(t0.Add(301 * time.Second))
	if _, err := submit(f, 1); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestSubmitReading_RejectUnverifiedKeepsWindow(t *testing.T) {
	f := newFixture(t, Options{Verifier: stubVerifier{ok: false}, RejectUnverified: true})
	ctx := context.Background()
	if _, err := submit(f, 5); !errors.Is(err, oracle.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	meter, err := f.svc.Meter(ctx, "meter-1")
	if err != nil {
		t.Fatalf("meter: %v", err)
	}
	if meter.TotalReadings() != 0 || !meter.LastReadingAt().IsZero() {
		t.Fatalf("rejected signature must not advance the meter")
	}
	registry, err := f.svc.Registry(ctx)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if registry.TotalReadings() != 0 {
		t.Fatalf("rejected signature must not count, got %d", registry.TotalReadings())
	}
	if len(f.pub.events) != 0 {
		t.Fatalf("rejected signature must not emit, got %+v", f.pub.events)
	}
}
