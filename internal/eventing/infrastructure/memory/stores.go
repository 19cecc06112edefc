// Package memory holds in-process outbox, processed and dead-letter stores
// used when no database is configured and in tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"energy-exchange/internal/eventing"
	"energy-exchange/internal/id"
)

const (
	statusPending     = "pending"
	statusDispatching = "dispatching"
	statusSent        = "sent"
	statusFailed      = "failed"
)

type outboxRow struct {
	env      eventing.Envelope
	status   string
	attempts int
	seq      int
}

// OutboxStore keeps outbox records in memory.
type OutboxStore struct {
	mu   sync.Mutex
	rows map[string]*outboxRow
	seq  int
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{rows: make(map[string]*outboxRow)}
}

// Insert stores an envelope as pending.
func (s *OutboxStore) Insert(_ context.Context, env eventing.Envelope) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	recordID := id.New(id.PrefixOutbox)
	s.rows[recordID] = &outboxRow{env: env, status: statusPending, seq: s.seq}
	return recordID, nil
}

// ListPending claims up to limit pending records in insertion order.
func (s *OutboxStore) ListPending(_ context.Context, limit int) ([]eventing.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	ids := make([]string, 0, len(s.rows))
	for recordID, row := range s.rows {
		if row.status == statusPending {
			ids = append(ids, recordID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return s.rows[ids[i]].seq < s.rows[ids[j]].seq })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	result := make([]eventing.OutboxRecord, 0, len(ids))
	for _, recordID := range ids {
		row := s.rows[recordID]
		row.status = statusDispatching
		result = append(result, eventing.OutboxRecord{ID: recordID, Envelope: row.env})
	}
	return result, nil
}

// MarkSent marks a record as sent.
func (s *OutboxStore) MarkSent(_ context.Context, recordID string) error {
	return s.setStatus(recordID, statusSent)
}

// MarkFailed marks a record as failed.
func (s *OutboxStore) MarkFailed(_ context.Context, recordID string) error {
	return s.setStatus(recordID, statusFailed)
}

// Pending counts records not yet claimed.
func (s *OutboxStore) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, row := range s.rows {
		if row.status == statusPending {
			count++
		}
	}
	return count
}

func (s *OutboxStore) setStatus(recordID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[recordID]
	if !ok {
		return errors.New("outbox store: record not found")
	}
	row.status = status
	if status == statusFailed {
		row.attempts++
	}
	return nil
}

// ProcessedStore tracks processed (event, consumer) pairs.
type ProcessedStore struct {
	mu   sync.Mutex
	seen map[[2]string]struct{}
}

// NewProcessedStore constructs a processed store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{seen: make(map[[2]string]struct{})}
}

// HasProcessed reports whether consumerName already handled eventID.
func (s *ProcessedStore) HasProcessed(_ context.Context, eventID, consumerName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[[2]string{eventID, consumerName}]
	return ok, nil
}

// MarkProcessed records an event as processed.
func (s *ProcessedStore) MarkProcessed(_ context.Context, eventID, consumerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[[2]string{eventID, consumerName}] = struct{}{}
	return nil
}

// DLQStore keeps failures in memory.
type DLQStore struct {
	mu      sync.Mutex
	records map[string]*eventing.DeadLetter
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore() *DLQStore {
	return &DLQStore{records: make(map[string]*eventing.DeadLetter)}
}

// RecordFailure inserts or bumps a failure record.
func (s *DLQStore) RecordFailure(_ context.Context, env eventing.Envelope, cause error) error {
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[env.EventID]; ok {
		existing.Attempts++
		existing.Error = message
		existing.LastSeenAt = now
		return nil
	}
	s.records[env.EventID] = &eventing.DeadLetter{
		EventID:     env.EventID,
		EventType:   env.EventType,
		Error:       message,
		Attempts:    1,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	return nil
}

// List returns the most recently failed records first.
func (s *DLQStore) List(_ context.Context, limit int) ([]eventing.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]eventing.DeadLetter, 0, len(s.records))
	for _, record := range s.records {
		result = append(result, *record)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastSeenAt.After(result[j].LastSeenAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
