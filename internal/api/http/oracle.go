package apihttp

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"energy-exchange/internal/audit"
	oracleapp "energy-exchange/internal/oracle/application"
	oracle "energy-exchange/internal/oracle/domain"
)

// OracleHandler serves the meter registry under /api/v1/oracle and /api/v1/meters.
type OracleHandler struct {
	service *oracleapp.Service
	audit   auditor
}

// NewOracleHandler constructs an OracleHandler.
func NewOracleHandler(service *oracleapp.Service, auditLogger audit.Logger) (*OracleHandler, error) {
	if service == nil {
		return nil, errors.New("oracle handler: nil service")
	}
	return &OracleHandler{service: service, audit: auditor{logger: auditLogger}}, nil
}

// ServeHTTP routes registry and meter requests.
func (h *OracleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/oracle" && r.Method == http.MethodGet:
		h.handleRegistry(w, r)
	case path == "/api/v1/oracle/init" && r.Method == http.MethodPost:
		h.handleInit(w, r)
	case path == "/api/v1/oracle/settings" && r.Method == http.MethodPost:
		h.handleSettings(w, r)
	case path == "/api/v1/meters" && r.Method == http.MethodPost:
		h.handleRegister(w, r)
	case strings.HasPrefix(path, "/api/v1/meters/"):
		meterID, action := splitPath(path, "/api/v1/meters/")
		h.handleMeter(w, r, meterID, action)
	case path == "/api/v1/oracle", path == "/api/v1/oracle/init", path == "/api/v1/oracle/settings", path == "/api/v1/meters":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *OracleHandler) handleMeter(w http.ResponseWriter, r *http.Request, meterID, action string) {
	if meterID == "" || strings.Contains(action, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		h.handleGetMeter(w, r, meterID)
	case action == "authorization" && r.Method == http.MethodPost:
		h.handleAuthorization(w, r, meterID)
	case action == "latest" && r.Method == http.MethodGet:
		h.handleLatest(w, r, meterID)
	case action == "readings" && r.Method == http.MethodGet:
		h.handleReadings(w, r, meterID)
	case action == "", action == "authorization", action == "latest", action == "readings":
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type registryResponse struct {
	Authority     string    `json:"authority"`
	TotalMeters   uint64    `json:"total_meters"`
	TotalReadings uint64    `json:"total_readings"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toRegistryResponse(registry *oracle.Registry) registryResponse {
	return registryResponse{
		Authority:     registry.Authority(),
		TotalMeters:   registry.TotalMeters(),
		TotalReadings: registry.TotalReadings(),
		IsActive:      registry.IsActive(),
		CreatedAt:     registry.CreatedAt(),
		UpdatedAt:     registry.UpdatedAt(),
	}
}

type meterResponse struct {
	MeterID       string    `json:"meter_id"`
	MeterType     string    `json:"meter_type"`
	Location      string    `json:"location"`
	Owner         string    `json:"owner"`
	IsAuthorized  bool      `json:"is_authorized"`
	RegisteredAt  time.Time `json:"registered_at"`
	LastReadingAt *string   `json:"last_reading_at,omitempty"`
	TotalReadings uint64    `json:"total_readings"`
}

func toMeterResponse(meter *oracle.Meter) meterResponse {
	return meterResponse{
		MeterID:       meter.MeterID(),
		MeterType:     string(meter.Type()),
		Location:      meter.Location(),
		Owner:         meter.Owner(),
		IsAuthorized:  meter.IsAuthorized(),
		RegisteredAt:  meter.RegisteredAt(),
		LastReadingAt: formatTime(meter.LastReadingAt()),
		TotalReadings: meter.TotalReadings(),
	}
}

// ReadingResponse is the JSON form of an admitted reading.
type ReadingResponse struct {
	ReadingID   string    `json:"reading_id"`
	MeterID     string    `json:"meter_id"`
	Value       uint64    `json:"value"`
	ReadingType string    `json:"reading_type"`
	Unit        string    `json:"unit"`
	Timestamp   time.Time `json:"timestamp"`
	IsVerified  bool      `json:"is_verified"`
}

// ToReadingResponse renders a reading.
func ToReadingResponse(reading oracle.Reading) ReadingResponse {
	return ReadingResponse{
		ReadingID:   reading.ID,
		MeterID:     reading.MeterID,
		Value:       reading.Value,
		ReadingType: string(reading.Type),
		Unit:        reading.Type.Unit(),
		Timestamp:   reading.Timestamp,
		IsVerified:  reading.IsVerified,
	}
}

func (h *OracleHandler) handleRegistry(w http.ResponseWriter, r *http.Request) {
	registry, err := h.service.Registry(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRegistryResponse(registry))
}

func (h *OracleHandler) handleInit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	registry, err := h.service.Initialize(r.Context(), caller)
	h.audit.record(r, "oracle.init", "oracle", "registry", nil, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRegistryResponse(registry))
}

type settingsRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h *OracleHandler) handleSettings(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.IsActive == nil {
		http.Error(w, "is_active is required", http.StatusBadRequest)
		return
	}
	registry, err := h.service.UpdateSettings(r.Context(), caller, *req.IsActive)
	h.audit.record(r, "oracle.settings", "oracle", "registry", map[string]any{"is_active": *req.IsActive}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRegistryResponse(registry))
}

func (h *OracleHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req struct {
		MeterID   string `json:"meter_id"`
		MeterType string `json:"meter_type"`
		Location  string `json:"location"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	meterType, err := oracle.ParseMeterType(req.MeterType)
	if err != nil {
		writeError(w, err)
		return
	}
	meter, err := h.service.RegisterMeter(r.Context(), oracleapp.RegisterMeterCommand{
		MeterID:  req.MeterID,
		Type:     meterType,
		Location: req.Location,
		Owner:    caller,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMeterResponse(meter))
}

func (h *OracleHandler) handleGetMeter(w http.ResponseWriter, r *http.Request, meterID string) {
	meter, err := h.service.Meter(r.Context(), meterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeterResponse(meter))
}

func (h *OracleHandler) handleAuthorization(w http.ResponseWriter, r *http.Request, meterID string) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var req struct {
		IsAuthorized *bool `json:"is_authorized"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.IsAuthorized == nil {
		http.Error(w, "is_authorized is required", http.StatusBadRequest)
		return
	}
	meter, err := h.service.UpdateMeterAuthorization(r.Context(), caller, meterID, *req.IsAuthorized)
	h.audit.record(r, "meter.authorization", "meter", meterID, map[string]any{"is_authorized": *req.IsAuthorized}, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeterResponse(meter))
}

func (h *OracleHandler) handleLatest(w http.ResponseWriter, r *http.Request, meterID string) {
	reading, err := h.service.LatestReading(r.Context(), meterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToReadingResponse(reading))
}

func (h *OracleHandler) handleReadings(w http.ResponseWriter, r *http.Request, meterID string) {
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	readings, err := h.service.Readings(r.Context(), meterID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]ReadingResponse, 0, len(readings))
	for _, reading := range readings {
		resp = append(resp, ToReadingResponse(reading))
	}
	writeJSON(w, http.StatusOK, resp)
}
