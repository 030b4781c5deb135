package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"energytrade/internal/audit"
	"energytrade/internal/auth"
	"energytrade/internal/observability/metrics"
	oracleapp "energytrade/internal/oracle/application"
	oracle "energytrade/internal/oracle/domain"
	"energytrade/internal/uow"
)

// ReadingHandler handles reading submission and validator admin APIs.
type ReadingHandler struct {
	service     *oracleapp.OracleService
	auditLogger audit.Logger
}

// NewReadingHandler constructs a handler.
func NewReadingHandler(service *oracleapp.OracleService, auditLogger audit.Logger) (*ReadingHandler, error) {
	if service == nil {
		return nil, errors.New("reading handler: nil service")
	}
	return &ReadingHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP routes reading and validator requests.
func (h *ReadingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/readings" && r.Method == http.MethodPost:
		h.handleSubmit(w, r)
	case path == "/api/v1/validator" && r.Method == http.MethodGet:
		h.handleState(w, r)
	case path == "/api/v1/validator/gateway" && r.Method == http.MethodPost:
		h.handleSetGateway(w, r)
	case path == "/api/v1/validator/backup-gateways" && r.Method == http.MethodPost:
		h.handleAddBackup(w, r)
	case strings.HasPrefix(path, "/api/v1/validator/backup-gateways/") && r.Method == http.MethodDelete:
		h.handleRemoveBackup(w, r, strings.TrimPrefix(path, "/api/v1/validator/backup-gateways/"))
	case path == "/api/v1/validator/active" && r.Method == http.MethodPost:
		h.handleSetActive(w, r)
	case path == "/api/v1/validator/config" && r.Method == http.MethodPost:
		h.handleUpdateConfig(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *ReadingHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MeterID   string    `json:"meter_id"`
		Produced  uint64    `json:"produced"`
		Consumed  uint64    `json:"consumed"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	submitter := auth.SubjectFromContext(r.Context())
	cmd := oracleapp.SubmitReadingCommand{
		MeterID:   req.MeterID,
		Produced:  req.Produced,
		Consumed:  req.Consumed,
		Timestamp: req.Timestamp,
		Submitter: submitter,
	}

	start := time.Now()
	err := h.service.SubmitReading(r.Context(), cmd)
	if err != nil {
		metrics.ObserveReading(metrics.ResultError, time.Since(start))
		if oracleapp.IsValidationError(err) {
			metrics.IncReadingReject(rejectReason(err))
			h.logAudit(r, "reading.rejected", req.MeterID, map[string]any{
				"produced": req.Produced,
				"consumed": req.Consumed,
				"reason":   err.Error(),
			})
		}
		respondOracleError(w, err)
		return
	}
	metrics.ObserveReading(metrics.ResultSuccess, time.Since(start))
	h.logAudit(r, "reading.accepted", req.MeterID, map[string]any{
		"produced": req.Produced,
		"consumed": req.Consumed,
	})
	w.WriteHeader(http.StatusAccepted)
}

func (h *ReadingHandler) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.State(r.Context())
	if err != nil {
		respondOracleError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"gateway":              state.Gateway(),
		"backup_gateways":      state.BackupGateways(),
		"active":               state.Active(),
		"min_energy":           state.MinEnergy(),
		"max_energy":           state.MaxEnergy(),
		"anomaly_detection":    state.AnomalyDetection(),
		"min_interval_seconds": int64(state.MinInterval() / time.Second),
		"avg_interval_seconds": state.AvgIntervalSeconds(),
		"total_readings":       state.TotalReadings(),
		"valid_readings":       state.ValidReadings(),
		"rejected_readings":    state.RejectedReadings(),
		"quality_score":        state.QualityScore(),
	})
}

func (h *ReadingHandler) handleSetGateway(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Gateway string `json:"gateway"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	if err := h.service.SetGateway(r.Context(), caller, req.Gateway); err != nil {
		respondOracleError(w, err)
		return
	}
	h.logAudit(r, "validator.set_gateway", req.Gateway, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReadingHandler) handleAddBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Gateway string `json:"gateway"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	if err := h.service.AddBackupGateway(r.Context(), caller, req.Gateway); err != nil {
		respondOracleError(w, err)
		return
	}
	h.logAudit(r, "validator.add_backup", req.Gateway, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReadingHandler) handleRemoveBackup(w http.ResponseWriter, r *http.Request, gateway string) {
	caller := auth.SubjectFromContext(r.Context())
	if err := h.service.RemoveBackupGateway(r.Context(), caller, gateway); err != nil {
		respondOracleError(w, err)
		return
	}
	h.logAudit(r, "validator.remove_backup", gateway, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReadingHandler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	if err := h.service.SetActive(r.Context(), caller, req.Active); err != nil {
		respondOracleError(w, err)
		return
	}
	h.logAudit(r, "validator.set_active", "", map[string]any{"active": req.Active})
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReadingHandler) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinEnergy          uint64 `json:"min_energy"`
		MaxEnergy          uint64 `json:"max_energy"`
		AnomalyDetection   bool   `json:"anomaly_detection"`
		MinIntervalSeconds int64  `json:"min_interval_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	err := h.service.UpdateValidationConfig(r.Context(), caller,
		req.MinEnergy, req.MaxEnergy, req.AnomalyDetection,
		time.Duration(req.MinIntervalSeconds)*time.Second)
	if err != nil {
		respondOracleError(w, err)
		return
	}
	h.logAudit(r, "validator.update_config", "", map[string]any{
		"min_energy": req.MinEnergy,
		"max_energy": req.MaxEnergy,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReadingHandler) logAudit(r *http.Request, action, resourceID string, details map[string]any) {
	if h.auditLogger == nil {
		return
	}
	var metadata json.RawMessage
	if details != nil {
		metadata, _ = json.Marshal(details)
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "validator",
		ResourceID:   resourceID,
		Metadata:     metadata,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, oracle.ErrOutdatedReading):
		return "outdated"
	case errors.Is(err, oracle.ErrFutureReading):
		return "future"
	case errors.Is(err, oracle.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, oracle.ErrOutOfRange):
		return "out_of_range"
	case errors.Is(err, oracle.ErrAnomalousReading):
		return "anomalous"
	default:
		return "unknown"
	}
}

func respondOracleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, oracle.ErrEmptyGateway),
		errors.Is(err, oracle.ErrInvalidBounds):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, oracle.ErrUnauthorizedGateway),
		errors.Is(err, oracle.ErrUnauthorizedAdmin):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, oracle.ErrGatewayNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, oracle.ErrValidatorInactive),
		errors.Is(err, oracle.ErrGatewayExists),
		errors.Is(err, oracle.ErrMaxBackupGateways),
		errors.Is(err, oracle.ErrOutdatedReading),
		errors.Is(err, oracle.ErrFutureReading),
		errors.Is(err, oracle.ErrRateLimited),
		errors.Is(err, oracle.ErrOutOfRange),
		errors.Is(err, oracle.ErrAnomalousReading):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, uow.ErrConflict):
		http.Error(w, "conflict, retry", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
