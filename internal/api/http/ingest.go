package apihttp

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"energy-exchange/internal/observability/metrics"
	oracleapp "energy-exchange/internal/oracle/application"
	oracle "energy-exchange/internal/oracle/domain"
	"energy-exchange/internal/platform/errkind"
)

const maxIngestBatch = 500

// IngestHandler admits meter readings pushed by the device gateway.
// Requests are authenticated by the gateway HMAC middleware, not JWTs.
type IngestHandler struct {
	service *oracleapp.Service
	logger  *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(service *oracleapp.Service, logger *log.Logger) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("meter ingest: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{service: service, logger: logger}, nil
}

type ingestReading struct {
	MeterID     string `json:"meter_id"`
	Value       uint64 `json:"value"`
	ReadingType string `json:"reading_type"`
	Signature   string `json:"signature"`
}

type ingestRequest struct {
	ingestReading
	Readings []ingestReading `json:"readings"`
}

type ingestResult struct {
	MeterID string           `json:"meter_id"`
	Reading *ReadingResponse `json:"reading,omitempty"`
	Error   string           `json:"error,omitempty"`
	Kind    string           `json:"kind,omitempty"`
}

// ServeHTTP admits one reading or a batch. Each reading is admitted on its own;
// the response status is the status of the first rejection, 200 when all pass.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveIngest(result, time.Since(start))
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		result = metrics.ResultError
		metrics.IncIngestError("read_body")
		h.logger.Printf("meter ingest: read body error: %v", err)
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		result = metrics.ResultError
		metrics.IncIngestError("decode")
		h.logger.Printf("meter ingest: decode error: %v", err)
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	readings := req.Readings
	if len(readings) == 0 && req.MeterID != "" {
		readings = []ingestReading{req.ingestReading}
	}
	if len(readings) == 0 || len(readings) > maxIngestBatch {
		result = metrics.ResultError
		metrics.IncIngestError("batch_size")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	results := make([]ingestResult, 0, len(readings))
	for _, item := range readings {
		admitted, err := h.admit(r, item)
		if err != nil {
			kind := oracle.Classify(err)
			if status == http.StatusOK {
				status = kind.HTTPStatus()
			}
			if kind == errkind.Unknown {
				h.logger.Printf("meter ingest: meter=%s error: %v", item.MeterID, err)
			}
			results = append(results, ingestResult{MeterID: item.MeterID, Error: err.Error(), Kind: kind.String()})
			continue
		}
		resp := ToReadingResponse(admitted)
		results = append(results, ingestResult{MeterID: item.MeterID, Reading: &resp})
	}
	if status != http.StatusOK {
		result = metrics.ResultError
	}
	writeJSON(w, status, map[string]any{"results": results})
}

func (h *IngestHandler) admit(r *http.Request, item ingestReading) (oracle.Reading, error) {
	readingType, err := oracle.ParseReadingType(item.ReadingType)
	if err != nil {
		return oracle.Reading{}, err
	}
	return h.service.SubmitReading(r.Context(), oracleapp.SubmitReadingCommand{
		MeterID:   item.MeterID,
		Value:     item.Value,
		Type:      readingType,
		Signature: []byte(item.Signature),
	})
}
