package interfaces

import (
	"context"

	"energy-exchange/internal/eventing"
)

// EventSource tags envelopes emitted by the credit ledger.
const EventSource = "credit"

// OutboxPublisher writes credit events to the outbox.
type OutboxPublisher struct {
	publisher *eventing.Publisher
}

// NewOutboxPublisher constructs an outbox publisher.
func NewOutboxPublisher(publisher *eventing.Publisher) *OutboxPublisher {
	return &OutboxPublisher{publisher: publisher}
}

// Publish writes event to outbox.
func (p *OutboxPublisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	return p.publisher.Publish(eventing.WithSource(ctx, EventSource), event)
}
