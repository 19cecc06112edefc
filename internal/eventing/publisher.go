package eventing

import (
	"context"
	"log"
	"time"

	"energy-exchange/internal/observability/metrics"
)

// Publisher writes events to the outbox and triggers an inline dispatch.
type Publisher struct {
	outbox   OutboxWriter
	dispatch *Dispatcher
	source   string
	logger   *log.Logger
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// NewPublisher constructs a publisher. source names the emitting subsystem
// when the caller does not set one on the context.
func NewPublisher(outbox OutboxWriter, dispatch *Dispatcher, source string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{outbox: outbox, dispatch: dispatch, source: source, logger: logger}
}

// Publish writes the event to outbox and triggers dispatch.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	start := time.Now()
	if p == nil || p.outbox == nil {
		return nil
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx, p.source))
	if err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	duration := time.Since(start)
	metrics.ObserveOutboxPublish(metrics.ResultSuccess, duration)
	if duration > 50*time.Millisecond {
		p.logger.Printf("outbox publish: slow duration_ms=%d event_type=%s", duration.Milliseconds(), env.EventType)
	}
	if p.dispatch != nil {
		if _, err := p.dispatch.Dispatch(ctx, 1); err != nil {
			p.logger.Printf("outbox publish: inline dispatch error: %v", err)
		}
	}
	return nil
}
