// Package notify delivers reconciliation alerts to operators.
package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// AlertMessage describes a reconciliation run that found drift.
type AlertMessage struct {
	ReportID          string         `json:"report_id"`
	Asset             string         `json:"asset"`
	CheckedAt         time.Time      `json:"checked_at"`
	Findings          int            `json:"findings"`
	ByCheck           map[string]int `json:"by_check"`
	ReportPath        string         `json:"report_path,omitempty"`
	RecommendedAction string         `json:"recommended_action"`
}

// Notifier sends alerts.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}

// MultiNotifier forwards alerts to every notifier and returns the first error.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier constructs a MultiNotifier, skipping nil entries.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify forwards msg to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, msg AlertMessage) error {
	if m == nil {
		return nil
	}
	var first error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Deduper suppresses an alert whose findings match the previous one within
// the window, so a persistent drift is not re-sent on every run.
type Deduper struct {
	next   Notifier
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	lastHash string
	lastAt   time.Time
}

// NewDeduper wraps next with a dedupe window.
func NewDeduper(next Notifier, window time.Duration) *Deduper {
	return &Deduper{next: next, window: window, now: time.Now}
}

// Notify forwards msg unless an identical alert was sent within the window.
func (d *Deduper) Notify(ctx context.Context, msg AlertMessage) error {
	if d == nil || d.next == nil {
		return nil
	}
	hash := fingerprint(msg)
	now := d.now()

	d.mu.Lock()
	if d.window > 0 && hash == d.lastHash && now.Sub(d.lastAt) < d.window {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if err := d.next.Notify(ctx, msg); err != nil {
		return err
	}

	d.mu.Lock()
	d.lastHash = hash
	d.lastAt = now
	d.mu.Unlock()
	return nil
}

// fingerprint covers the asset and per-check counts only; ids and report
// paths change on every run.
func fingerprint(msg AlertMessage) string {
	checks := make([]string, 0, len(msg.ByCheck))
	for name, count := range msg.ByCheck {
		if count > 0 {
			checks = append(checks, name+"="+strconv.Itoa(count))
		}
	}
	sort.Strings(checks)
	sum := sha1.Sum([]byte(msg.Asset + "|" + strings.Join(checks, ",")))
	return hex.EncodeToString(sum[:])
}
