package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"energytrade/internal/audit"
	"energytrade/internal/auth"
	marketapp "energytrade/internal/market/application"
	market "energytrade/internal/market/domain"
	"energytrade/internal/observability/metrics"
	"energytrade/internal/uow"
)

// MarketHandler handles the order book, settlement, and escrow APIs.
type MarketHandler struct {
	service     *marketapp.MarketService
	auditLogger audit.Logger
}

// NewMarketHandler constructs a handler.
func NewMarketHandler(service *marketapp.MarketService, auditLogger audit.Logger) (*MarketHandler, error) {
	if service == nil {
		return nil, errors.New("market handler: nil service")
	}
	return &MarketHandler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP routes market requests.
func (h *MarketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/orders" && r.Method == http.MethodPost:
		h.handleCreateOrder(w, r)
	case path == "/api/v1/orders" && r.Method == http.MethodGet:
		h.handleListOrders(w, r)
	case strings.HasPrefix(path, "/api/v1/orders/"):
		rest := strings.TrimPrefix(path, "/api/v1/orders/")
		switch {
		case strings.HasSuffix(rest, "/fill") && r.Method == http.MethodPost:
			h.handleMatch(w, r, strings.TrimSuffix(rest, "/fill"))
		case !strings.Contains(rest, "/") && r.Method == http.MethodGet:
			h.handleGetOrder(w, r, rest)
		case !strings.Contains(rest, "/") && r.Method == http.MethodDelete:
			h.handleCancelOrder(w, r, rest)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	case path == "/api/v1/settlements" && r.Method == http.MethodPost:
		h.handleSettlement(w, r)
	case path == "/api/v1/settlements/batch" && r.Method == http.MethodPost:
		h.handleBatch(w, r)
	case path == "/api/v1/trades" && r.Method == http.MethodGet:
		h.handleListTrades(w, r)
	case path == "/api/v1/market/stats" && r.Method == http.MethodGet:
		h.handleStats(w, r)
	case strings.HasPrefix(path, "/api/v1/escrow/"):
		rest := strings.TrimPrefix(path, "/api/v1/escrow/")
		switch {
		case strings.HasSuffix(rest, "/deposit") && r.Method == http.MethodPost:
			h.handleDeposit(w, r, strings.TrimSuffix(rest, "/deposit"))
		case strings.HasSuffix(rest, "/freeze") && r.Method == http.MethodPost:
			h.handleFreeze(w, r, strings.TrimSuffix(rest, "/freeze"))
		case !strings.Contains(rest, "/") && r.Method == http.MethodGet:
			h.handleGetEscrow(w, r, rest)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *MarketHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Side          string    `json:"side"`
		Amount        uint64    `json:"amount"`
		PricePerUnit  uint64    `json:"price_per_unit"`
		ExpiresAt     time.Time `json:"expires_at"`
		CertificateID string    `json:"certificate_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	owner := auth.SubjectFromContext(r.Context())
	order, err := h.service.CreateOrder(r.Context(), marketapp.CreateOrderCommand{
		Owner:         owner,
		Side:          req.Side,
		Amount:        req.Amount,
		PricePerUnit:  req.PricePerUnit,
		ExpiresAt:     req.ExpiresAt,
		CertificateID: req.CertificateID,
	})
	if err != nil {
		metrics.IncOrder("create", metrics.ResultError)
		respondMarketError(w, err)
		return
	}
	metrics.IncOrder("create", metrics.ResultSuccess)
	h.logAudit(r, "order.create", order.ID(), map[string]any{
		"side": req.Side, "amount": req.Amount, "price": req.PricePerUnit,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(orderResponse(order))
}

func (h *MarketHandler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		respondMarketError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(orders))
	for _, order := range orders {
		out = append(out, orderResponse(order))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *MarketHandler) handleGetOrder(w http.ResponseWriter, r *http.Request, id string) {
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		respondMarketError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(orderResponse(order))
}

func (h *MarketHandler) handleMatch(w http.ResponseWriter, r *http.Request, buyID string) {
	var req struct {
		SellOrderID string `json:"sell_order_id"`
		Amount      uint64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	start := time.Now()
	trade, err := h.service.MatchOrders(r.Context(), buyID, req.SellOrderID, req.Amount)
	if err != nil {
		metrics.ObserveMatch(metrics.ResultError, time.Since(start))
		respondMarketError(w, err)
		return
	}
	metrics.ObserveMatch(metrics.ResultSuccess, time.Since(start))
	metrics.AddMatched(trade.Amount)
	metrics.AddFees(trade.Fee)
	h.logAudit(r, "order.match", trade.ID, map[string]any{
		"buy_order_id": buyID, "sell_order_id": req.SellOrderID, "amount": trade.Amount,
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tradeResponse(trade))
}

func (h *MarketHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request, id string) {
	caller := auth.SubjectFromContext(r.Context())
	if err := h.service.CancelOrder(r.Context(), id, caller); err != nil {
		metrics.IncOrder("cancel", metrics.ResultError)
		respondMarketError(w, err)
		return
	}
	metrics.IncOrder("cancel", metrics.ResultSuccess)
	h.logAudit(r, "order.cancel", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *MarketHandler) handleSettlement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuyOrderID     string `json:"buy_order_id"`
		SellOrderID    string `json:"sell_order_id"`
		Amount         uint64 `json:"amount"`
		Price          uint64 `json:"price"`
		WheelingCharge uint64 `json:"wheeling_charge"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	start := time.Now()
	trade, err := h.service.ExecuteAtomicSettlement(r.Context(), marketapp.SettlementCommand{
		BuyOrderID:     req.BuyOrderID,
		SellOrderID:    req.SellOrderID,
		Amount:         req.Amount,
		Price:          req.Price,
		WheelingCharge: req.WheelingCharge,
	})
	if err != nil {
		metrics.ObserveMatch(metrics.ResultError, time.Since(start))
		respondMarketError(w, err)
		return
	}
	metrics.ObserveMatch(metrics.ResultSuccess, time.Since(start))
	metrics.AddMatched(trade.Amount)
	metrics.AddFees(trade.Fee)
	h.logAudit(r, "settlement.execute", trade.ID, map[string]any{
		"buy_order_id": req.BuyOrderID, "sell_order_id": req.SellOrderID, "amount": trade.Amount,
	})
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tradeResponse(trade))
}

func (h *MarketHandler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []struct {
			BuyOrderID     string `json:"buy_order_id"`
			SellOrderID    string `json:"sell_order_id"`
			Amount         uint64 `json:"amount"`
			Price          uint64 `json:"price"`
			WheelingCharge uint64 `json:"wheeling_charge"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	items := make([]marketapp.SettlementCommand, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, marketapp.SettlementCommand{
			BuyOrderID:     item.BuyOrderID,
			SellOrderID:    item.SellOrderID,
			Amount:         item.Amount,
			Price:          item.Price,
			WheelingCharge: item.WheelingCharge,
		})
	}
	results, err := h.service.ExecuteBatch(r.Context(), items)
	if err != nil {
		metrics.IncBatchSettlement(metrics.ResultError)
		respondMarketError(w, err)
		return
	}
	metrics.IncBatchSettlement(metrics.ResultSuccess)
	h.logAudit(r, "settlement.batch", "", map[string]any{"items": len(items)})

	out := make([]map[string]any, 0, len(results))
	for _, result := range results {
		entry := map[string]any{
			"buy_order_id":  result.BuyOrderID,
			"sell_order_id": result.SellOrderID,
		}
		if result.Err != nil {
			entry["error"] = result.Err.Error()
		} else {
			entry["trade_id"] = result.TradeID
			entry["amount"] = result.Amount
		}
		out = append(out, entry)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"results": out})
}

func (h *MarketHandler) handleListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.service.ListTrades(r.Context())
	if err != nil {
		respondMarketError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(trades))
	for _, trade := range trades {
		out = append(out, tradeResponse(trade))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *MarketHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		respondMarketError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_orders":        stats.TotalOrders(),
		"total_trades":        stats.TotalTrades(),
		"total_volume_wh":     stats.TotalVolumeWh(),
		"total_fees":          stats.TotalFees(),
		"last_clearing_price": stats.LastClearingPrice(),
	})
}

func (h *MarketHandler) handleDeposit(w http.ResponseWriter, r *http.Request, owner string) {
	var req struct {
		Energy   uint64 `json:"energy"`
		Currency uint64 `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.service.Deposit(r.Context(), owner, req.Energy, req.Currency); err != nil {
		respondMarketError(w, err)
		return
	}
	h.logAudit(r, "escrow.deposit", owner, map[string]any{
		"energy": req.Energy, "currency": req.Currency,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *MarketHandler) handleFreeze(w http.ResponseWriter, r *http.Request, owner string) {
	var req struct {
		Frozen bool `json:"frozen"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.service.SetFrozen(r.Context(), owner, req.Frozen); err != nil {
		respondMarketError(w, err)
		return
	}
	h.logAudit(r, "escrow.freeze", owner, map[string]any{"frozen": req.Frozen})
	w.WriteHeader(http.StatusNoContent)
}

func (h *MarketHandler) handleGetEscrow(w http.ResponseWriter, r *http.Request, owner string) {
	account, err := h.service.GetEscrow(r.Context(), owner)
	if err != nil {
		respondMarketError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"owner":            account.Owner(),
		"energy_balance":   account.EnergyBalance(),
		"currency_balance": account.CurrencyBalance(),
		"held_energy":      account.HeldEnergy(),
		"held_currency":    account.HeldCurrency(),
		"frozen":           account.Frozen(),
	})
}

func (h *MarketHandler) logAudit(r *http.Request, action, resourceID string, details map[string]any) {
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
		ResourceType: "market",
		ResourceID:   resourceID,
		Metadata:     metadata,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}

func orderResponse(order *market.Order) map[string]any {
	resp := map[string]any{
		"id":             order.ID(),
		"side":           string(order.Side()),
		"owner":          order.Owner(),
		"amount":         order.Amount(),
		"filled_amount":  order.FilledAmount(),
		"price_per_unit": order.PricePerUnit(),
		"status":         string(order.Status()),
		"created_at":     order.CreatedAt().Format(time.RFC3339),
		"expires_at":     order.ExpiresAt().Format(time.RFC3339),
	}
	if order.CertificateID() != "" {
		resp["certificate_id"] = order.CertificateID()
	}
	return resp
}

func tradeResponse(trade market.TradeRecord) map[string]any {
	return map[string]any{
		"id":              trade.ID,
		"buy_order_id":    trade.BuyOrderID,
		"sell_order_id":   trade.SellOrderID,
		"buyer":           trade.Buyer,
		"seller":          trade.Seller,
		"amount":          trade.Amount,
		"price":           trade.Price,
		"total_value":     trade.TotalValue,
		"fee":             trade.Fee,
		"wheeling_charge": trade.WheelingCharge,
		"executed_at":     trade.ExecutedAt.Format(time.RFC3339),
	}
}

func respondMarketError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrInvalidSide),
		errors.Is(err, market.ErrZeroAmount),
		errors.Is(err, market.ErrZeroPrice),
		errors.Is(err, market.ErrOrderTooSmall),
		errors.Is(err, market.ErrOrderTooLarge),
		errors.Is(err, market.ErrEmptyOwner),
		errors.Is(err, market.ErrEmptyBatch),
		errors.Is(err, market.ErrBatchTooLarge),
		errors.Is(err, market.ErrBalanceOverflow):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, market.ErrUnauthorizedOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, market.ErrOrderNotFound),
		errors.Is(err, market.ErrEscrowNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, market.ErrOrderNotActive),
		errors.Is(err, market.ErrOrderExpired),
		errors.Is(err, market.ErrSelfTrade),
		errors.Is(err, market.ErrPriceMismatch),
		errors.Is(err, market.ErrSideMismatch),
		errors.Is(err, market.ErrOverfill),
		errors.Is(err, market.ErrAccountFrozen),
		errors.Is(err, market.ErrInsufficientEscrow),
		errors.Is(err, market.ErrCertificateNotTradable),
		errors.Is(err, market.ErrCertificateExpired),
		errors.Is(err, market.ErrCertificateNotOwned),
		errors.Is(err, market.ErrExceedsCertificate):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, uow.ErrConflict):
		http.Error(w, "conflict, retry", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
