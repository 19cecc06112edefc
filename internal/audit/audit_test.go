package audit

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMemoryLogger_FillsDefaults(t *testing.T) {
	logger := NewMemoryLogger()
	meta := json.RawMessage(`{"is_active":false}`)
	if err := logger.Log(context.Background(), Entry{Actor: "admin", Action: "market.settings", Metadata: meta}); err != nil {
		t.Fatalf("log: %v", err)
	}
	entries := logger.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	got := entries[0]
	if !strings.HasPrefix(got.ID, "audit_") {
		t.Fatalf("unexpected id %q", got.ID)
	}
	if got.Outcome != OutcomeSuccess || got.CreatedAt.IsZero() {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if got.PayloadDigest != DigestJSON(meta) || len(got.PayloadDigest) != 64 {
		t.Fatalf("unexpected digest %q", got.PayloadDigest)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:4321"
	if ip := ClientIP(req); ip != "10.0.0.5" {
		t.Fatalf("expected remote addr host, got %q", ip)
	}
	req.Header.Set("X-Real-IP", " 192.168.1.9 ")
	if ip := ClientIP(req); ip != "192.168.1.9" {
		t.Fatalf("expected real ip, got %q", ip)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if ip := ClientIP(req); ip != "203.0.113.7" {
		t.Fatalf("expected forwarded ip, got %q", ip)
	}
	if ip := ClientIP(nil); ip != "" {
		t.Fatalf("expected empty for nil request")
	}
}

func TestWithRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/ledger/mint", nil)
	req.RemoteAddr = "10.1.1.1:80"
	req.Header.Set("User-Agent", "gateway/1.0")
	entry := WithRequest(Entry{Action: "ledger.mint"}, req)
	if entry.IP != "10.1.1.1" || entry.UserAgent != "gateway/1.0" || entry.Action != "ledger.mint" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestMemoryLogger_ListNewestFirst(t *testing.T) {
	logger := NewMemoryLogger()
	ctx := context.Background()
	for _, action := range []string{"ledger.init", "oracle.init", "market.init"} {
		if err := logger.Log(ctx, Entry{Actor: "admin", Action: action}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	entries, err := logger.List(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Action != "market.init" || entries[1].Action != "oracle.init" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}
