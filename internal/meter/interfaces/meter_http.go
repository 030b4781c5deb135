package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"energytrade/internal/audit"
	"energytrade/internal/auth"
	meterapp "energytrade/internal/meter/application"
	meter "energytrade/internal/meter/domain"
	"energytrade/internal/observability/metrics"
	"energytrade/internal/uow"
)

// MeterHandler handles meter ledger APIs under /api/v1/meters.
type MeterHandler struct {
	service     *meterapp.MeterService
	auditLogger audit.Logger
}

// NewMeterHandler constructs a handler.
func NewMeterHandler(service *meterapp.MeterService, auditLogger audit.Logger) (*MeterHandler, error) {
	if service == nil {
		return nil, errors.New("meter handler: nil service")
	}
	return &MeterHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP routes meter requests.
func (h *MeterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/meters" {
		switch r.Method {
		case http.MethodPost:
			h.handleRegister(w, r)
		case http.MethodGet:
			h.handleList(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	if strings.HasPrefix(path, "/api/v1/meters/") {
		rest := strings.TrimPrefix(path, "/api/v1/meters/")
		parts := strings.Split(rest, "/")
		id := parts[0]
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if len(parts) == 1 && r.Method == http.MethodGet {
			h.handleGet(w, r, id)
			return
		}
		if len(parts) == 2 && r.Method == http.MethodPost {
			switch parts[1] {
			case "status":
				h.handleStatus(w, r, id)
				return
			case "settle":
				h.handleSettle(w, r, id)
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *MeterHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MeterID string `json:"meter_id"`
		Owner   string `json:"owner"`
		Source  string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	m, err := h.service.Register(r.Context(), req.MeterID, req.Owner, req.Source)
	if err != nil {
		respondMeterError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(meterResponse(m))
	h.logAudit(r, "meter.register", req.MeterID, map[string]any{
		"owner":  req.Owner,
		"source": req.Source,
	})
}

func (h *MeterHandler) handleList(w http.ResponseWriter, r *http.Request) {
	meters, err := h.service.List(r.Context())
	if err != nil {
		respondMeterError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(meters))
	for _, m := range meters {
		resp = append(resp, meterResponse(m))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *MeterHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondMeterError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(meterResponse(m))
}

func (h *MeterHandler) handleStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	if err := h.service.SetStatus(r.Context(), id, caller, req.Status); err != nil {
		respondMeterError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.logAudit(r, "meter.status", id, map[string]any{"status": req.Status})
}

func (h *MeterHandler) handleSettle(w http.ResponseWriter, r *http.Request, id string) {
	caller := auth.SubjectFromContext(r.Context())
	start := time.Now()
	minted, err := h.service.Settle(r.Context(), id, caller)
	if err != nil {
		metrics.ObserveSettlement(metrics.ResultError, time.Since(start))
		respondMeterError(w, err)
		return
	}
	metrics.ObserveSettlement(metrics.ResultSuccess, time.Since(start))
	metrics.AddMinted(minted)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"meter_id": id, "minted": minted})
}

func (h *MeterHandler) logAudit(r *http.Request, action, meterID string, details map[string]any) {
	if h.auditLogger == nil {
		return
	}
	metadata, _ := json.Marshal(details)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "meter",
		ResourceID:   meterID,
		Metadata:     metadata,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}

func meterResponse(m *meter.Meter) map[string]any {
	return map[string]any{
		"meter_id":             m.ID(),
		"owner":                m.Owner(),
		"source":               string(m.SourceType()),
		"status":               string(m.Status()),
		"total_generation":     m.TotalGeneration(),
		"total_consumption":    m.TotalConsumption(),
		"settled_generation":   m.SettledGeneration(),
		"certified_generation": m.CertifiedGeneration(),
	}
}

func respondMeterError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, meter.ErrEmptyMeterID),
		errors.Is(err, meter.ErrEmptyOwner),
		errors.Is(err, meter.ErrInvalidSource),
		errors.Is(err, meter.ErrInvalidStatus),
		errors.Is(err, meter.ErrZeroAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, meter.ErrMeterNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, meter.ErrUnauthorizedOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, meter.ErrMeterExists),
		errors.Is(err, meter.ErrMeterNotActive),
		errors.Is(err, meter.ErrAlreadyInactive),
		errors.Is(err, meter.ErrReadingRegression),
		errors.Is(err, meter.ErrNoUnsettledBalance),
		errors.Is(err, meter.ErrInsufficientUnclaimedGeneration):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, uow.ErrConflict):
		http.Error(w, "conflict, retry", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
