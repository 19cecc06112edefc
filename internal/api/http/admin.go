package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"energy-exchange/internal/audit"
	"energy-exchange/internal/eventing"
)

// DeadLetterLister lists events whose delivery failed.
type DeadLetterLister interface {
	List(ctx context.Context, limit int) ([]eventing.DeadLetter, error)
}

// AdminHandler serves operator queries under /api/v1/admin.
type AdminHandler struct {
	deadLetters DeadLetterLister
	auditLogs   audit.Reader
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(deadLetters DeadLetterLister, auditLogs audit.Reader) (*AdminHandler, error) {
	if deadLetters == nil {
		return nil, errors.New("admin handler: nil dead letter store")
	}
	if auditLogs == nil {
		return nil, errors.New("admin handler: nil audit reader")
	}
	return &AdminHandler{deadLetters: deadLetters, auditLogs: auditLogs}, nil
}

type auditLogResponse struct {
	ID           string    `json:"id"`
	Actor        string    `json:"actor"`
	Role         string    `json:"role"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Outcome      string    `json:"outcome"`
	Metadata     any       `json:"metadata,omitempty"`
	IP           string    `json:"ip,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ServeHTTP handles GET /api/v1/admin/dead-letters and /api/v1/admin/audit-logs.
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch strings.TrimSuffix(r.URL.Path, "/") {
	case "/api/v1/admin/dead-letters":
		list, err := h.deadLetters.List(r.Context(), limit)
		if err != nil {
			http.Error(w, "query dead letters error", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []eventing.DeadLetter{}
		}
		writeJSON(w, http.StatusOK, list)
	case "/api/v1/admin/audit-logs":
		entries, err := h.auditLogs.List(r.Context(), limit)
		if err != nil {
			http.Error(w, "query audit logs error", http.StatusInternalServerError)
			return
		}
		resp := make([]auditLogResponse, 0, len(entries))
		for _, entry := range entries {
			item := auditLogResponse{
				ID:           entry.ID,
				Actor:        entry.Actor,
				Role:         entry.Role,
				Action:       entry.Action,
				ResourceType: entry.ResourceType,
				ResourceID:   entry.ResourceID,
				Outcome:      entry.Outcome,
				IP:           entry.IP,
				CreatedAt:    entry.CreatedAt,
			}
			if len(entry.Metadata) > 0 {
				item.Metadata = entry.Metadata
			}
			resp = append(resp, item)
		}
		writeJSON(w, http.StatusOK, resp)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
