package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"energytrade/internal/audit"
	"energytrade/internal/auth"
	certapp "energytrade/internal/certificate/application"
	certificate "energytrade/internal/certificate/domain"
	meter "energytrade/internal/meter/domain"
	"energytrade/internal/observability/metrics"
	"energytrade/internal/uow"
)

// CertificateHandler handles the certificate registry API.
type CertificateHandler struct {
	service     *certapp.RegistryService
	auditLogger audit.Logger
}

// NewCertificateHandler constructs a handler.
func NewCertificateHandler(service *certapp.RegistryService, auditLogger audit.Logger) (*CertificateHandler, error) {
	if service == nil {
		return nil, errors.New("certificate handler: nil service")
	}
	return &CertificateHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP routes certificate requests.
func (h *CertificateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/certificates" && r.Method == http.MethodPost:
		h.handleIssue(w, r)
	case path == "/api/v1/certificates" && r.Method == http.MethodGet:
		h.handleList(w, r)
	case strings.HasPrefix(path, "/api/v1/certificates/"):
		rest := strings.TrimPrefix(path, "/api/v1/certificates/")
		switch {
		case strings.HasSuffix(rest, "/validate") && r.Method == http.MethodPost:
			h.handleValidate(w, r, strings.TrimSuffix(rest, "/validate"))
		case strings.HasSuffix(rest, "/revoke") && r.Method == http.MethodPost:
			h.handleRevoke(w, r, strings.TrimSuffix(rest, "/revoke"))
		case strings.HasSuffix(rest, "/transfer") && r.Method == http.MethodPost:
			h.handleTransfer(w, r, strings.TrimSuffix(rest, "/transfer"))
		case !strings.Contains(rest, "/") && r.Method == http.MethodGet:
			h.handleGet(w, r, rest)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *CertificateHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MeterID       string `json:"meter_id"`
		CertificateID string `json:"certificate_id"`
		EnergyAmount  uint64 `json:"energy_amount"`
		Source        string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	cert, err := h.service.Issue(r.Context(), caller, certapp.IssueCommand{
		MeterID:       req.MeterID,
		CertificateID: req.CertificateID,
		EnergyAmount:  req.EnergyAmount,
		Source:        req.Source,
	})
	if err != nil {
		metrics.IncCertificate("issue", metrics.ResultError)
		respondCertificateError(w, err)
		return
	}
	metrics.IncCertificate("issue", metrics.ResultSuccess)
	h.logAudit(r, "certificate.issue", cert.ID(), map[string]any{
		"meter_id":      cert.MeterID(),
		"energy_amount": cert.EnergyAmount(),
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(certificateResponse(cert))
}

func (h *CertificateHandler) handleList(w http.ResponseWriter, r *http.Request) {
	certs, err := h.service.List(r.Context())
	if err != nil {
		respondCertificateError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(certs))
	for _, cert := range certs {
		out = append(out, certificateResponse(cert))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *CertificateHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	cert, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondCertificateError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(certificateResponse(cert))
}

func (h *CertificateHandler) handleValidate(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.ValidateForTrading(r.Context(), id); err != nil {
		metrics.IncCertificate("validate", metrics.ResultError)
		respondCertificateError(w, err)
		return
	}
	metrics.IncCertificate("validate", metrics.ResultSuccess)
	h.logAudit(r, "certificate.validate", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *CertificateHandler) handleRevoke(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	if err := h.service.Revoke(r.Context(), caller, id, req.Reason); err != nil {
		metrics.IncCertificate("revoke", metrics.ResultError)
		respondCertificateError(w, err)
		return
	}
	metrics.IncCertificate("revoke", metrics.ResultSuccess)
	h.logAudit(r, "certificate.revoke", id, map[string]any{"reason": req.Reason})
	w.WriteHeader(http.StatusNoContent)
}

func (h *CertificateHandler) handleTransfer(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		NewOwner string `json:"new_owner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	if err := h.service.Transfer(r.Context(), id, caller, req.NewOwner); err != nil {
		metrics.IncCertificate("transfer", metrics.ResultError)
		respondCertificateError(w, err)
		return
	}
	metrics.IncCertificate("transfer", metrics.ResultSuccess)
	h.logAudit(r, "certificate.transfer", id, map[string]any{"new_owner": req.NewOwner})
	w.WriteHeader(http.StatusNoContent)
}

func (h *CertificateHandler) logAudit(r *http.Request, action, resourceID string, details map[string]any) {
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
		ResourceType: "certificate",
		ResourceID:   resourceID,
		Metadata:     metadata,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}

func certificateResponse(cert *certificate.Certificate) map[string]any {
	resp := map[string]any{
		"id":                    cert.ID(),
		"meter_id":              cert.MeterID(),
		"owner":                 cert.Owner(),
		"energy_amount":         cert.EnergyAmount(),
		"source":                cert.Source(),
		"status":                string(cert.Status()),
		"validated_for_trading": cert.ValidatedForTrading(),
		"issued_at":             cert.IssuedAt().Format(time.RFC3339),
		"expires_at":            cert.ExpiresAt().Format(time.RFC3339),
		"transfer_count":        cert.TransferCount(),
	}
	if cert.RevocationReason() != "" {
		resp["revocation_reason"] = cert.RevocationReason()
		resp["revoked_at"] = cert.RevokedAt().Format(time.RFC3339)
	}
	if !cert.LastTransferredAt().IsZero() {
		resp["last_transferred_at"] = cert.LastTransferredAt().Format(time.RFC3339)
	}
	return resp
}

func respondCertificateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, certificate.ErrEmptyCertificateID),
		errors.Is(err, certificate.ErrCertificateIDTooLong),
		errors.Is(err, certificate.ErrEmptySource),
		errors.Is(err, certificate.ErrSourceNameTooLong),
		errors.Is(err, certificate.ErrZeroEnergy),
		errors.Is(err, certificate.ErrBelowMinimumEnergy),
		errors.Is(err, certificate.ErrExceedsMaximumEnergy),
		errors.Is(err, certificate.ErrReasonRequired),
		errors.Is(err, certificate.ErrReasonTooLong),
		errors.Is(err, certificate.ErrEmptyRecipient):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, certificate.ErrUnauthorizedIssuer),
		errors.Is(err, certificate.ErrUnauthorizedHolder):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, certificate.ErrCertificateNotFound),
		errors.Is(err, meter.ErrMeterNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, certificate.ErrCertificateExists),
		errors.Is(err, certificate.ErrAlreadyValidated),
		errors.Is(err, certificate.ErrAlreadyRevoked),
		errors.Is(err, certificate.ErrExpired),
		errors.Is(err, certificate.ErrNotValid),
		errors.Is(err, certificate.ErrTransfersNotAllowed),
		errors.Is(err, certificate.ErrNotValidatedForTrading),
		errors.Is(err, certificate.ErrCannotTransferToSelf),
		errors.Is(err, meter.ErrInsufficientUnclaimedGeneration),
		errors.Is(err, meter.ErrMeterNotActive):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, uow.ErrConflict):
		http.Error(w, "conflict, retry", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
