package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"energy-exchange/internal/id"
	"energy-exchange/internal/observability/metrics"
	oracle "energy-exchange/internal/oracle/domain"
	"energy-exchange/internal/platform/errkind"
	"energy-exchange/internal/platform/keylock"
)

const registryLockKey = "oracle:registry"

// EventPublisher emits oracle events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Verifier checks a meter's signature over a reading payload.
type Verifier interface {
	Verify(ctx context.Context, meterID string, payload, signature []byte) (bool, error)
}

// AcceptAll marks every reading verified.
type AcceptAll struct{}

// Verify always succeeds.
func (AcceptAll) Verify(context.Context, string, []byte, []byte) (bool, error) { return true, nil }

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// RegisterMeterCommand registers a meter on behalf of its owner.
type RegisterMeterCommand struct {
	MeterID  string
	Type     oracle.MeterType
	Location string
	Owner    string
}

// SubmitReadingCommand submits one reading.
type SubmitReadingCommand struct {
	MeterID   string
	Value     uint64
	Type      oracle.ReadingType
	Signature []byte
}

// Options tune admission.
type Options struct {
	Verifier Verifier
	// RejectUnverified turns a failed signature check into ErrInvalidSignature
	// instead of storing the reading unverified.
	RejectUnverified bool
}

// Service handles meter registry and reading admission.
type Service struct {
	repo             oracle.Repository
	publisher        EventPublisher
	locks            *keylock.Locker
	clock            Clock
	logger           *log.Logger
	verifier         Verifier
	rejectUnverified bool
}

// NewService constructs the service.
func NewService(repo oracle.Repository, publisher EventPublisher, locks *keylock.Locker, clock Clock, logger *log.Logger, opts Options) (*Service, error) {
	if repo == nil {
		return nil, errors.New("oracle service: nil repository")
	}
	if locks == nil {
		locks = keylock.New()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	if opts.Verifier == nil {
		opts.Verifier = AcceptAll{}
	}
	return &Service{
		repo:             repo,
		publisher:        publisher,
		locks:            locks,
		clock:            clock,
		logger:           logger,
		verifier:         opts.Verifier,
		rejectUnverified: opts.RejectUnverified,
	}, nil
}

// Initialize creates the registry. Caller becomes the authority.
func (s *Service) Initialize(ctx context.Context, caller string) (*oracle.Registry, error) {
	registry, err := oracle.NewRegistry(caller, s.clock.Now())
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(registryLockKey)
	err = s.repo.CreateRegistry(ctx, registry)
	unlock()
	if err != nil {
		return nil, err
	}
	s.logger.Printf("oracle initialized: authority=%s", caller)
	s.publish(ctx, OracleInitialized{Authority: caller, OccurredAt: registry.CreatedAt()})
	return registry, nil
}

// Registry returns the registry record.
func (s *Service) Registry(ctx context.Context) (*oracle.Registry, error) {
	registry, err := s.repo.GetRegistry(ctx)
	if err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, oracle.ErrNotInitialized
	}
	return registry, nil
}

// UpdateSettings halts or resumes admission. Only the registry authority may call it.
func (s *Service) UpdateSettings(ctx context.Context, caller string, isActive bool) (*oracle.Registry, error) {
	unlock := s.locks.Lock(registryLockKey)
	registry, err := s.Registry(ctx)
	if err == nil && !registry.IsAuthority(caller) {
		err = oracle.ErrUnauthorized
	}
	now := s.clock.Now()
	if err == nil {
		registry.SetActive(isActive, now)
		err = s.repo.SaveRegistry(ctx, registry)
	}
	unlock()
	if err != nil {
		return nil, err
	}
	s.logger.Printf("oracle settings updated: active=%t", isActive)
	s.publish(ctx, OracleSettingsUpdated{Authority: caller, IsActive: isActive, OccurredAt: now})
	return registry, nil
}

// RegisterMeter registers a new, authorized meter.
func (s *Service) RegisterMeter(ctx context.Context, cmd RegisterMeterCommand) (*oracle.Meter, error) {
	now := s.clock.Now()
	meter, err := oracle.NewMeter(cmd.MeterID, cmd.Type, cmd.Location, cmd.Owner, now)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(registryLockKey, meterLockKey(cmd.MeterID))
	err = s.registerMeter(ctx, meter, now)
	unlock()
	if err != nil {
		return nil, err
	}

	s.publish(ctx, MeterRegistered{
		MeterID:    meter.MeterID(),
		MeterType:  meter.Type(),
		Owner:      meter.Owner(),
		Location:   meter.Location(),
		OccurredAt: now,
	})
	return meter, nil
}

func (s *Service) registerMeter(ctx context.Context, meter *oracle.Meter, now time.Time) error {
	registry, err := s.activeRegistry(ctx)
	if err != nil {
		return err
	}
	if err := registry.CountMeter(now); err != nil {
		return err
	}
	return s.repo.RegisterMeter(ctx, meter, registry)
}

// Meter returns a registered meter.
func (s *Service) Meter(ctx context.Context, meterID string) (*oracle.Meter, error) {
	meter, err := s.repo.FindMeter(ctx, meterID)
	if err != nil {
		return nil, err
	}
	if meter == nil {
		return nil, oracle.ErrMeterNotFound
	}
	return meter, nil
}

// SubmitReading admits one reading subject to authorization and throttling.
func (s *Service) SubmitReading(ctx context.Context, cmd SubmitReadingCommand) (oracle.Reading, error) {
	reading, owner, err := s.submitReading(ctx, cmd)
	if err != nil {
		metrics.IncReadingRejected(rejectReason(err))
		return oracle.Reading{}, err
	}
	metrics.IncReadingAdmitted(string(reading.Type), reading.IsVerified)
	s.logger.Printf("reading admitted: meter=%s value=%d %s verified=%t", reading.MeterID, reading.Value, reading.Type.Unit(), reading.IsVerified)
	s.publish(ctx, ReadingSubmitted{
		ReadingID:  reading.ID,
		MeterID:    reading.MeterID,
		Owner:      owner,
		Value:      reading.Value,
		Type:       reading.Type,
		Verified:   reading.IsVerified,
		OccurredAt: reading.Timestamp,
	})
	return reading, nil
}

func (s *Service) submitReading(ctx context.Context, cmd SubmitReadingCommand) (oracle.Reading, string, error) {
	if err := oracle.ValidateSubmission(cmd.MeterID, cmd.Value, cmd.Type, cmd.Signature); err != nil {
		return oracle.Reading{}, "", err
	}

	unlock := s.locks.Lock(registryLockKey, meterLockKey(cmd.MeterID))
	defer unlock()

	registry, err := s.activeRegistry(ctx)
	if err != nil {
		return oracle.Reading{}, "", err
	}
	meter, err := s.Meter(ctx, cmd.MeterID)
	if err != nil {
		return oracle.Reading{}, "", err
	}

	// Verify before Admit so a rejected signature never takes the meter's window.
	verified, err := s.verifier.Verify(ctx, cmd.MeterID, oracle.CanonicalPayload(cmd.MeterID, cmd.Value, cmd.Type), cmd.Signature)
	if err != nil {
		return oracle.Reading{}, "", fmt.Errorf("oracle: verify signature: %w", err)
	}
	if !verified && s.rejectUnverified {
		return oracle.Reading{}, "", oracle.ErrInvalidSignature
	}

	now := s.clock.Now()
	if err := meter.Admit(cmd.MeterID, now); err != nil {
		return oracle.Reading{}, "", err
	}
	if err := registry.CountReading(now); err != nil {
		return oracle.Reading{}, "", err
	}

	reading := oracle.Reading{
		ID:         id.NewReadingID(),
		MeterID:    cmd.MeterID,
		Value:      cmd.Value,
		Type:       cmd.Type,
		Timestamp:  now.UTC(),
		Signature:  append([]byte(nil), cmd.Signature...),
		IsVerified: verified,
	}
	if err := s.repo.AppendReading(ctx, reading, meter, registry); err != nil {
		return oracle.Reading{}, "", err
	}
	return reading, meter.Owner(), nil
}

// UpdateMeterAuthorization flips a meter's authorization. Only the registry authority may call it.
func (s *Service) UpdateMeterAuthorization(ctx context.Context, caller, meterID string, isAuthorized bool) (*oracle.Meter, error) {
	unlock := s.locks.Lock(registryLockKey, meterLockKey(meterID))
	meter, err := s.updateMeterAuthorization(ctx, caller, meterID, isAuthorized)
	unlock()
	if err != nil {
		return nil, err
	}
	s.logger.Printf("meter authorization updated: meter=%s authorized=%t", meterID, isAuthorized)
	s.publish(ctx, MeterAuthorizationUpdated{MeterID: meterID, IsAuthorized: isAuthorized, OccurredAt: s.clock.Now()})
	return meter, nil
}

func (s *Service) updateMeterAuthorization(ctx context.Context, caller, meterID string, isAuthorized bool) (*oracle.Meter, error) {
	registry, err := s.Registry(ctx)
	if err != nil {
		return nil, err
	}
	if !registry.IsAuthority(caller) {
		return nil, oracle.ErrUnauthorized
	}
	meter, err := s.Meter(ctx, meterID)
	if err != nil {
		return nil, err
	}
	meter.SetAuthorized(isAuthorized)
	if err := s.repo.SaveMeter(ctx, meter); err != nil {
		return nil, err
	}
	return meter, nil
}

// LatestReading returns the most recent admitted reading of a meter.
func (s *Service) LatestReading(ctx context.Context, meterID string) (oracle.Reading, error) {
	if _, err := s.Meter(ctx, meterID); err != nil {
		return oracle.Reading{}, err
	}
	reading, err := s.repo.LatestReading(ctx, meterID)
	if err != nil {
		return oracle.Reading{}, err
	}
	if reading == nil {
		return oracle.Reading{}, oracle.ErrReadingNotFound
	}
	return *reading, nil
}

// Readings lists a meter's readings, newest first.
func (s *Service) Readings(ctx context.Context, meterID string, limit int) ([]oracle.Reading, error) {
	if _, err := s.Meter(ctx, meterID); err != nil {
		return nil, err
	}
	return s.repo.ListReadings(ctx, meterID, limit)
}

func (s *Service) activeRegistry(ctx context.Context) (*oracle.Registry, error) {
	registry, err := s.Registry(ctx)
	if err != nil {
		return nil, err
	}
	if !registry.IsActive() {
		return nil, oracle.ErrOracleInactive
	}
	return registry, nil
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("oracle publish failed: event=%T err=%v", event, err)
	}
}

func meterLockKey(meterID string) string {
	return "oracle:meter:" + meterID
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, oracle.ErrReadingTooFrequent):
		return "too_frequent"
	case errors.Is(err, oracle.ErrMeterNotAuthorized):
		return "not_authorized"
	case errors.Is(err, oracle.ErrMeterNotFound):
		return "unknown_meter"
	case errors.Is(err, oracle.ErrOracleInactive):
		return "inactive"
	case errors.Is(err, oracle.ErrInvalidSignature):
		return "bad_signature"
	case oracle.Classify(err) == errkind.Unknown:
		return "internal"
	default:
		return "invalid"
	}
}
