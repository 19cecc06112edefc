package eventing_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"energy-exchange/internal/eventing"
	"energy-exchange/internal/eventing/infrastructure/memory"
)

type offerPosted struct {
	OfferID    string
	Seller     string
	OccurredAt time.Time
}

type unregistered struct {
	MeterID string
}

func newPipeline(t *testing.T) (*eventing.InMemoryBus, *eventing.Publisher, *eventing.Dispatcher, *memory.OutboxStore, *memory.DLQStore) {
	t.Helper()
	bus := eventing.NewInMemoryBus()
	outbox := memory.NewOutboxStore()
	dlq := memory.NewDLQStore()
	dispatcher := eventing.NewDispatcher(bus, outbox, eventing.NewRegistry(offerPosted{}), dlq)
	publisher := eventing.NewPublisher(outbox, dispatcher, "market", nil)
	return bus, publisher, dispatcher, outbox, dlq
}

func TestBuildEnvelope_Defaults(t *testing.T) {
	at := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)
	env, err := eventing.BuildEnvelope(offerPosted{OfferID: "offer-1", OccurredAt: at}, eventing.Meta{Source: "market"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if !strings.HasPrefix(env.EventID, "evt_") {
		t.Fatalf("unexpected event id %q", env.EventID)
	}
	if env.CorrelationID != env.EventID {
		t.Fatalf("expected correlation to default to event id")
	}
	if env.SubjectID != "offer-1" {
		t.Fatalf("expected subject offer-1, got %q", env.SubjectID)
	}
	if !env.OccurredAt.Equal(at) {
		t.Fatalf("expected occurred_at from payload, got %v", env.OccurredAt)
	}
	if env.SchemaVersion != 1 {
		t.Fatalf("expected schema version 1, got %d", env.SchemaVersion)
	}
	if env.EventType != eventing.EventTypeOf[offerPosted]() {
		t.Fatalf("unexpected event type %q", env.EventType)
	}

	if _, err := eventing.BuildEnvelope(offerPosted{}, eventing.Meta{}); err == nil {
		t.Fatalf("expected error for empty source")
	}
	if _, err := eventing.BuildEnvelope(nil, eventing.Meta{Source: "market"}); !errors.Is(err, eventing.ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
}

func TestMetaFromContext_InheritsCorrelation(t *testing.T) {
	ctx := eventing.WithEnvelope(context.Background(), eventing.Envelope{EventID: "evt-a", CorrelationID: "corr-1"})
	meta := eventing.MetaFromContext(ctx, "credit")
	if meta.CorrelationID != "corr-1" {
		t.Fatalf("expected inherited correlation, got %q", meta.CorrelationID)
	}
	if meta.Source != "credit" {
		t.Fatalf("expected default source, got %q", meta.Source)
	}

	ctx = eventing.WithSource(eventing.WithCorrelationID(ctx, "corr-2"), "ingest")
	meta = eventing.MetaFromContext(ctx, "credit")
	if meta.CorrelationID != "corr-2" || meta.Source != "ingest" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestPublisher_DeliversInline(t *testing.T) {
	bus, publisher, _, outbox, _ := newPipeline(t)
	var got []offerPosted
	bus.Subscribe(eventing.EventTypeOf[offerPosted](), func(ctx context.Context, event any) error {
		env, ok := eventing.EnvelopeFromContext(ctx)
		if !ok || env.Source != "market" {
			t.Errorf("expected envelope in context, got %+v", env)
		}
		got = append(got, event.(offerPosted))
		return nil
	})

	if err := publisher.Publish(context.Background(), offerPosted{OfferID: "offer-1", Seller: "alice"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 1 || got[0].OfferID != "offer-1" || got[0].Seller != "alice" {
		t.Fatalf("unexpected deliveries %+v", got)
	}
	if outbox.Pending() != 0 {
		t.Fatalf("expected empty outbox, got %d pending", outbox.Pending())
	}
}

func TestSubscribe_Idempotent(t *testing.T) {
	bus, publisher, dispatcher, _, _ := newPipeline(t)
	count := 0
	eventing.Subscribe(bus, eventing.EventTypeOf[offerPosted](), "counter", func(ctx context.Context, event any) error {
		count++
		return nil
	}, memory.NewProcessedStore())

	ctx := eventing.WithEventID(context.Background(), "evt-fixed")
	for i := 0; i < 3; i++ {
		if err := publisher.Publish(ctx, offerPosted{OfferID: "offer-1"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if _, err := dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one delivery, got %d", count)
	}
}

func TestDispatcher_FailureGoesToDLQ(t *testing.T) {
	bus, publisher, _, _, dlq := newPipeline(t)
	bus.Subscribe(eventing.EventTypeOf[offerPosted](), func(ctx context.Context, event any) error {
		return errors.New("boom")
	})

	if err := publisher.Publish(context.Background(), offerPosted{OfferID: "offer-9"}); err != nil {
		t.Fatalf("publish should not surface consumer failure: %v", err)
	}
	letters, err := dlq.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(letters) != 1 || letters[0].Error != "boom" || letters[0].Attempts != 1 {
		t.Fatalf("unexpected dlq contents %+v", letters)
	}
}

func TestDispatcher_UnregisteredTypeGoesToDLQ(t *testing.T) {
	_, publisher, dispatcher, _, dlq := newPipeline(t)
	if err := publisher.Publish(context.Background(), unregistered{MeterID: "m-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	result, err := dispatcher.Dispatch(context.Background(), 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Claimed != 0 {
		t.Fatalf("expected inline dispatch to have claimed the record, got %+v", result)
	}
	letters, _ := dlq.List(context.Background(), 10)
	if len(letters) != 1 || !strings.Contains(letters[0].Error, "unknown event type") {
		t.Fatalf("unexpected dlq contents %+v", letters)
	}
}

func TestRegistry_DecodePayload(t *testing.T) {
	registry := eventing.NewRegistry(&offerPosted{})
	env, err := eventing.BuildEnvelope(offerPosted{OfferID: "offer-2", Seller: "bob"}, eventing.Meta{Source: "market"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	decoded, err := registry.DecodePayload(env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	event, ok := decoded.(offerPosted)
	if !ok || event.Seller != "bob" {
		t.Fatalf("unexpected decoded value %#v", decoded)
	}
	if types := registry.Types(); len(types) != 1 || types[0] != eventing.EventTypeOf[offerPosted]() {
		t.Fatalf("unexpected registered types %v", types)
	}
}
