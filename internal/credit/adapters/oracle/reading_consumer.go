package oracle

import (
	"context"
	"errors"
	"fmt"
	"log"

	"energy-exchange/internal/amount"
	"energy-exchange/internal/credit/application"
	credit "energy-exchange/internal/credit/domain"
	oracleapp "energy-exchange/internal/oracle/application"
	meters "energy-exchange/internal/oracle/domain"
)

// ConsumerName identifies the bridge in the processed-events store.
const ConsumerName = "credit.readings"

// LedgerCommands is the subset of the credit service the bridge drives.
type LedgerCommands interface {
	Mint(ctx context.Context, cmd application.MintCommand) (application.EnergyProduced, error)
	Burn(ctx context.Context, cmd application.BurnCommand) (application.EnergyConsumed, error)
}

// ReadingConsumer converts admitted meter readings into credit mints and burns.
type ReadingConsumer struct {
	ledger         LedgerCommands
	authority      string
	creditsPerUnit uint64
	logger         *log.Logger
}

// NewReadingConsumer constructs the bridge. authority must be the ledger authority.
func NewReadingConsumer(ledger LedgerCommands, authority string, creditsPerUnit uint64, logger *log.Logger) (*ReadingConsumer, error) {
	if ledger == nil {
		return nil, errors.New("reading consumer: nil ledger")
	}
	if authority == "" {
		return nil, errors.New("reading consumer: empty authority")
	}
	if creditsPerUnit == 0 {
		return nil, errors.New("reading consumer: zero credits per unit")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ReadingConsumer{ledger: ledger, authority: authority, creditsPerUnit: creditsPerUnit, logger: logger}, nil
}

// HandleReadingSubmitted handles oracle ReadingSubmitted events.
func (c *ReadingConsumer) HandleReadingSubmitted(ctx context.Context, event any) error {
	if c == nil {
		return errors.New("reading consumer: nil consumer")
	}

	var evt oracleapp.ReadingSubmitted
	switch e := event.(type) {
	case oracleapp.ReadingSubmitted:
		evt = e
	case *oracleapp.ReadingSubmitted:
		if e == nil {
			return nil
		}
		evt = *e
	default:
		return nil
	}

	if !evt.Verified {
		c.logger.Printf("credit bridge: skip unverified reading id=%s meter=%s", evt.ReadingID, evt.MeterID)
		return nil
	}
	if evt.Owner == "" {
		return fmt.Errorf("credit bridge: reading %s has no owner", evt.ReadingID)
	}

	credits, err := amount.Mul(evt.Value, c.creditsPerUnit)
	if err != nil {
		return fmt.Errorf("credit bridge: reading %s: %w", evt.ReadingID, credit.ErrOverflow)
	}

	switch evt.Type {
	case meters.ReadingTypeProduction:
		_, err = c.ledger.Mint(ctx, application.MintCommand{
			Caller:         c.authority,
			Recipient:      evt.Owner,
			Amount:         credits,
			EnergyProduced: evt.Value,
			MeterID:        evt.MeterID,
		})
	case meters.ReadingTypeConsumption:
		_, err = c.ledger.Burn(ctx, application.BurnCommand{
			Caller:         c.authority,
			Holder:         evt.Owner,
			Amount:         credits,
			EnergyConsumed: evt.Value,
			MeterID:        evt.MeterID,
		})
	default:
		return fmt.Errorf("credit bridge: reading %s: %w", evt.ReadingID, meters.ErrInvalidReadingType)
	}
	if err != nil {
		return fmt.Errorf("credit bridge: reading %s: %w", evt.ReadingID, err)
	}
	c.logger.Printf("credit bridge: %s meter=%s owner=%s credits=%d", evt.Type, evt.MeterID, evt.Owner, credits)
	return nil
}
