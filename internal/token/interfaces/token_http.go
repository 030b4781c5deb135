package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"energytrade/internal/auth"
	"energytrade/internal/observability/metrics"
	tokenapp "energytrade/internal/token/application"
	token "energytrade/internal/token/domain"
	"energytrade/internal/uow"
)

// TokenHandler handles credit supply APIs under /api/v1/token.
type TokenHandler struct {
	service *tokenapp.TokenService
}

// NewTokenHandler constructs a handler.
func NewTokenHandler(service *tokenapp.TokenService) (*TokenHandler, error) {
	if service == nil {
		return nil, errors.New("token handler: nil service")
	}
	return &TokenHandler{service: service}, nil
}

// ServeHTTP routes token requests.
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/token/supply" && r.Method == http.MethodGet:
		h.handleSupply(w, r)
	case path == "/api/v1/token/transfer" && r.Method == http.MethodPost:
		h.handleTransfer(w, r)
	case path == "/api/v1/token/mint" && r.Method == http.MethodPost:
		h.handleMint(w, r)
	case path == "/api/v1/token/burn" && r.Method == http.MethodPost:
		h.handleBurn(w, r)
	case path == "/api/v1/token/minting" && r.Method == http.MethodPost:
		h.handleMinting(w, r)
	case strings.HasPrefix(path, "/api/v1/token/balance/") && r.Method == http.MethodGet:
		h.handleBalance(w, r, strings.TrimPrefix(path, "/api/v1/token/balance/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *TokenHandler) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := h.service.Supply(r.Context())
	if err != nil {
		respondTokenError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_supply": supply.TotalSupply(),
		"burned":       supply.Burned(),
		"circulating":  supply.Circulating(),
		"mint_enabled": supply.MintEnabled(),
	})
}

func (h *TokenHandler) handleBalance(w http.ResponseWriter, r *http.Request, holder string) {
	if holder == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	balance, err := h.service.Balance(r.Context(), holder)
	if err != nil {
		respondTokenError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"holder": holder, "balance": balance})
}

func (h *TokenHandler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	if req.From == "" {
		req.From = caller
	}
	err := h.service.Transfer(r.Context(), caller, req.From, req.To, req.Amount)
	if err != nil {
		metrics.IncTokenTransfer(metrics.ResultError)
		respondTokenError(w, err)
		return
	}
	metrics.IncTokenTransfer(metrics.ResultSuccess)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TokenHandler) handleMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient string `json:"recipient"`
		Amount    uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	if err := h.service.Mint(r.Context(), caller, req.Recipient, req.Amount); err != nil {
		respondTokenError(w, err)
		return
	}
	metrics.AddMinted(req.Amount)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TokenHandler) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Holder string `json:"holder"`
		Amount uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	if req.Holder == "" {
		req.Holder = caller
	}
	if err := h.service.Burn(r.Context(), caller, req.Holder, req.Amount); err != nil {
		respondTokenError(w, err)
		return
	}
	metrics.AddBurned(req.Amount)
	w.WriteHeader(http.StatusNoContent)
}

func (h *TokenHandler) handleMinting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	caller := auth.SubjectFromContext(r.Context())
	if err := h.service.SetMintEnabled(r.Context(), caller, req.Enabled); err != nil {
		respondTokenError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondTokenError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, token.ErrZeroAmount), errors.Is(err, token.ErrEmptyHolder):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, token.ErrUnauthorizedMinter),
		errors.Is(err, token.ErrUnauthorizedAuthority),
		errors.Is(err, token.ErrUnauthorizedHolder):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, token.ErrMintingDisabled),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrSupplyOverflow):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, uow.ErrConflict):
		http.Error(w, "conflict, retry", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
