package application

import (
	"context"
	"errors"
	"log"
	"time"

	credit "energy-exchange/internal/credit/domain"
	"energy-exchange/internal/observability/metrics"
	"energy-exchange/internal/platform/keylock"
	"energy-exchange/internal/token"
)

const ledgerLockKey = "credit:ledger"

// EventPublisher emits credit events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// InitializeCommand creates the ledger. Caller becomes the authority.
type InitializeCommand struct {
	Caller   string
	Asset    string
	Decimals uint8
	Name     string
	Symbol   string
}

// MintCommand issues credits against metered production.
type MintCommand struct {
	Caller         string
	Recipient      string
	Amount         uint64
	EnergyProduced uint64
	MeterID        string
}

// BurnCommand retires credits against metered consumption.
type BurnCommand struct {
	Caller         string
	Holder         string
	Amount         uint64
	EnergyConsumed uint64
	MeterID        string
}

// TransferCommand moves credits from the caller to another holder.
type TransferCommand struct {
	From   string
	To     string
	Amount uint64
}

// Service handles credit ledger use cases.
type Service struct {
	repo      credit.Repository
	tokens    token.Ledger
	publisher EventPublisher
	locks     *keylock.Locker
	clock     Clock
	logger    *log.Logger
}

// NewService constructs the service.
func NewService(repo credit.Repository, tokens token.Ledger, publisher EventPublisher, locks *keylock.Locker, clock Clock, logger *log.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("credit service: nil repository")
	}
	if tokens == nil {
		return nil, errors.New("credit service: nil token ledger")
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
	return &Service{
		repo:      repo,
		tokens:    tokens,
		publisher: publisher,
		locks:     locks,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Initialize creates the ledger state with zero supply.
func (s *Service) Initialize(ctx context.Context, cmd InitializeCommand) (*credit.LedgerState, error) {
	state, err := credit.NewLedgerState(cmd.Caller, cmd.Asset, cmd.Decimals, cmd.Name, cmd.Symbol, s.clock.Now())
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(ledgerLockKey)
	err = s.repo.Create(ctx, state)
	unlock()
	if err != nil {
		return nil, err
	}

	metrics.SetTotalSupply(0)
	s.logger.Printf("credit ledger initialized: asset=%s symbol=%s authority=%s", state.Asset(), state.Symbol(), state.Authority())
	s.publish(ctx, LedgerInitialized{
		Authority:  state.Authority(),
		Asset:      state.Asset(),
		Decimals:   state.Decimals(),
		Name:       state.Name(),
		Symbol:     state.Symbol(),
		OccurredAt: state.CreatedAt(),
	})
	return state.Clone(), nil
}

// State returns the current ledger state.
func (s *Service) State(ctx context.Context) (*credit.LedgerState, error) {
	state, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, credit.ErrNotInitialized
	}
	return state, nil
}

// Mint issues credits to the recipient. Only the ledger authority may mint.
func (s *Service) Mint(ctx context.Context, cmd MintCommand) (EnergyProduced, error) {
	start := time.Now()
	event, err := s.mint(ctx, cmd)
	observe("mint", err, start)
	if err != nil {
		return EnergyProduced{}, err
	}
	s.publish(ctx, event)
	return event, nil
}

func (s *Service) mint(ctx context.Context, cmd MintCommand) (EnergyProduced, error) {
	if cmd.Amount == 0 {
		return EnergyProduced{}, credit.ErrInvalidAmount
	}
	if cmd.MeterID == "" {
		return EnergyProduced{}, credit.ErrInvalidMeterID
	}
	if cmd.Recipient == "" {
		return EnergyProduced{}, credit.ErrInvalidAccount
	}

	unlock := s.locks.Lock(ledgerLockKey, token.AccountLockKey(cmd.Recipient))
	defer unlock()

	state, err := s.State(ctx)
	if err != nil {
		return EnergyProduced{}, err
	}
	if !state.IsAuthority(cmd.Caller) {
		return EnergyProduced{}, credit.ErrUnauthorized
	}

	now := s.clock.Now()
	if err := state.Mint(cmd.Amount, now); err != nil {
		return EnergyProduced{}, err
	}
	if err := s.tokens.Mint(ctx, state.Asset(), cmd.Recipient, cmd.Amount); err != nil {
		return EnergyProduced{}, err
	}
	if err := s.repo.Save(ctx, state); err != nil {
		if undoErr := s.tokens.Burn(ctx, state.Asset(), cmd.Recipient, cmd.Amount); undoErr != nil {
			s.logger.Printf("credit mint: compensation failed recipient=%s amount=%d err=%v", cmd.Recipient, cmd.Amount, undoErr)
		}
		return EnergyProduced{}, err
	}
	metrics.SetTotalSupply(state.TotalSupply())

	return EnergyProduced{
		User:           cmd.Recipient,
		MeterID:        cmd.MeterID,
		EnergyProduced: cmd.EnergyProduced,
		CreditsMinted:  cmd.Amount,
		OccurredAt:     now,
	}, nil
}

// Burn retires credits held by the holder. The holder or the ledger authority may burn.
func (s *Service) Burn(ctx context.Context, cmd BurnCommand) (EnergyConsumed, error) {
	start := time.Now()
	event, err := s.burn(ctx, cmd)
	observe("burn", err, start)
	if err != nil {
		return EnergyConsumed{}, err
	}
	s.publish(ctx, event)
	return event, nil
}

func (s *Service) burn(ctx context.Context, cmd BurnCommand) (EnergyConsumed, error) {
	if cmd.Amount == 0 {
		return EnergyConsumed{}, credit.ErrInvalidAmount
	}
	if cmd.MeterID == "" {
		return EnergyConsumed{}, credit.ErrInvalidMeterID
	}
	if cmd.Holder == "" {
		return EnergyConsumed{}, credit.ErrInvalidAccount
	}

	unlock := s.locks.Lock(ledgerLockKey, token.AccountLockKey(cmd.Holder))
	defer unlock()

	state, err := s.State(ctx)
	if err != nil {
		return EnergyConsumed{}, err
	}
	if cmd.Caller != cmd.Holder && !state.IsAuthority(cmd.Caller) {
		return EnergyConsumed{}, credit.ErrUnauthorized
	}

	now := s.clock.Now()
	if err := state.Burn(cmd.Amount, now); err != nil {
		return EnergyConsumed{}, err
	}
	if err := s.tokens.Burn(ctx, state.Asset(), cmd.Holder, cmd.Amount); err != nil {
		return EnergyConsumed{}, err
	}
	if err := s.repo.Save(ctx, state); err != nil {
		if undoErr := s.tokens.Mint(ctx, state.Asset(), cmd.Holder, cmd.Amount); undoErr != nil {
			s.logger.Printf("credit burn: compensation failed holder=%s amount=%d err=%v", cmd.Holder, cmd.Amount, undoErr)
		}
		return EnergyConsumed{}, err
	}
	metrics.SetTotalSupply(state.TotalSupply())

	return EnergyConsumed{
		User:           cmd.Holder,
		MeterID:        cmd.MeterID,
		EnergyConsumed: cmd.EnergyConsumed,
		CreditsBurned:  cmd.Amount,
		OccurredAt:     now,
	}, nil
}

// Transfer moves credits between holders without touching total supply.
func (s *Service) Transfer(ctx context.Context, cmd TransferCommand) (CreditsTransferred, error) {
	start := time.Now()
	event, err := s.transfer(ctx, cmd)
	observe("transfer", err, start)
	if err != nil {
		return CreditsTransferred{}, err
	}
	s.publish(ctx, event)
	return event, nil
}

func (s *Service) transfer(ctx context.Context, cmd TransferCommand) (CreditsTransferred, error) {
	if cmd.Amount == 0 {
		return CreditsTransferred{}, credit.ErrInvalidAmount
	}
	if cmd.From == "" || cmd.To == "" {
		return CreditsTransferred{}, credit.ErrInvalidAccount
	}

	unlock := s.locks.Lock(token.AccountLockKey(cmd.From), token.AccountLockKey(cmd.To))
	defer unlock()

	state, err := s.State(ctx)
	if err != nil {
		return CreditsTransferred{}, err
	}
	if err := s.tokens.Transfer(ctx, state.Asset(), cmd.From, cmd.To, cmd.Amount); err != nil {
		return CreditsTransferred{}, err
	}
	return CreditsTransferred{
		From:       cmd.From,
		To:         cmd.To,
		Amount:     cmd.Amount,
		OccurredAt: s.clock.Now(),
	}, nil
}

// BalanceOf returns the credit balance of account.
func (s *Service) BalanceOf(ctx context.Context, account string) (uint64, error) {
	if account == "" {
		return 0, credit.ErrInvalidAccount
	}
	state, err := s.State(ctx)
	if err != nil {
		return 0, err
	}
	return s.tokens.BalanceOf(ctx, state.Asset(), account)
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("credit publish failed: event=%T err=%v", event, err)
	}
}

func observe(op string, err error, start time.Time) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveLedgerOp(op, result, time.Since(start))
}
