// Package apihttp exposes the ledger, meter registry, marketplace and admin
// queries over JSON HTTP.
package apihttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"energy-exchange/internal/audit"
	"energy-exchange/internal/auth"
	credit "energy-exchange/internal/credit/domain"
	market "energy-exchange/internal/market/domain"
	oracle "energy-exchange/internal/oracle/domain"
	"energy-exchange/internal/platform/errkind"
	"energy-exchange/internal/token"
)

const (
	timeLayout   = time.RFC3339
	maxBodyBytes = 1 << 20
	maxListLimit = 500
)

var errMissingCaller = errors.New("caller identity required")

// ErrorKind classifies errors from every domain the API fronts.
func ErrorKind(err error) errkind.Kind {
	return errkind.First(err, credit.Classify, oracle.Classify, market.Classify, token.Classify)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	kind := ErrorKind(err)
	if kind == errkind.Unknown {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, kind.HTTPStatus(), errorResponse{Error: err.Error(), Kind: kind.String()})
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.New("read body error")
	}
	defer r.Body.Close()
	if len(body) == 0 {
		return errors.New("empty body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.New("invalid json")
	}
	return nil
}

func callerOf(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := auth.SubjectFromContext(r.Context())
	if caller == "" {
		http.Error(w, errMissingCaller.Error(), http.StatusUnauthorized)
		return "", false
	}
	return caller, true
}

func parseLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

// splitPath returns the id and optional action segment after prefix.
func splitPath(path, prefix string) (string, string) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, action, _ := strings.Cut(rest, "/")
	return id, action
}

func formatTime(value time.Time) *string {
	if value.IsZero() {
		return nil
	}
	s := value.UTC().Format(timeLayout)
	return &s
}

type auditor struct {
	logger audit.Logger
}

func (a auditor) record(r *http.Request, action, resourceType, resourceID string, meta map[string]any, err error) {
	if a.logger == nil {
		return
	}
	outcome := audit.OutcomeSuccess
	if err != nil {
		outcome = audit.OutcomeFailed
		if ErrorKind(err) == errkind.Authorization {
			outcome = audit.OutcomeDenied
		}
		if meta == nil {
			meta = map[string]any{}
		}
		meta["error"] = err.Error()
	}
	var payload json.RawMessage
	if len(meta) > 0 {
		payload, _ = json.Marshal(meta)
	}
	entry := audit.WithRequest(audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      outcome,
		Metadata:     payload,
	}, r)
	_ = a.logger.Log(r.Context(), entry)
}
