// Package httpapi exposes the core operations to external
// collaborators (admin tooling, the conversational front-end). It is a
// thin boundary: request decoding, error mapping, nothing else.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fulfillment/internal/domain"
	"fulfillment/internal/inventory"
	"fulfillment/internal/order"
	"fulfillment/internal/pkg/config"
	"fulfillment/internal/pool"
)

type Handler struct {
	orders    *order.Service
	engine    *inventory.Engine
	allocator *pool.Allocator
	settings  *config.Settings
	log       zerolog.Logger
}

func NewHandler(orders *order.Service, engine *inventory.Engine, allocator *pool.Allocator, settings *config.Settings, log zerolog.Logger) *Handler {
	return &Handler{
		orders:    orders,
		engine:    engine,
		allocator: allocator,
		settings:  settings,
		log:       log.With().Str("component", "http").Logger(),
	}
}

// Register wires the routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /checkout", h.checkout)
	mux.HandleFunc("GET /orders/{code}", h.getOrder)
	mux.HandleFunc("POST /orders/{code}/confirm", h.confirmOrder)
	mux.HandleFunc("POST /orders/{code}/deliver", h.deliverOrder)
	mux.HandleFunc("POST /orders/{code}/cancel", h.cancelOrder)
	mux.HandleFunc("POST /items/{name}/restock", h.restock)
	mux.HandleFunc("GET /items/{name}/stats", h.itemStats)
	mux.HandleFunc("POST /pool/addresses", h.addAddresses)
	mux.HandleFunc("GET /pool/stats", h.poolStats)
	mux.HandleFunc("PUT /settings/cash-timeout-hours", h.setCashTimeout)
}

type checkoutRequest struct {
	BuyerID  int64  `json:"buyer_id"`
	Username string `json:"username"`
	Method   string `json:"payment_method"`
	Bonus    string `json:"bonus,omitempty"`
	Lines    []struct {
		ItemName string `json:"item_name"`
		Quantity int    `json:"quantity"`
	} `json:"lines"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bonus := decimal.Zero
	if req.Bonus != "" {
		parsed, err := decimal.NewFromString(req.Bonus)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid bonus amount")
			return
		}
		bonus = parsed
	}

	lines := make([]inventory.Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, inventory.Line{ItemName: l.ItemName, Quantity: l.Quantity})
	}

	created, err := h.orders.Checkout(r.Context(), order.CheckoutInput{
		BuyerID:  req.BuyerID,
		Username: req.Username,
		Lines:    lines,
		Method:   domain.PaymentMethod(req.Method),
		Bonus:    bonus,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse(created))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("code"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o))
}

type actorRequest struct {
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason,omitempty"`
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := h.orders.Confirm(r.Context(), r.PathValue("code"), req.ActorID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := h.orders.Deliver(r.Context(), r.PathValue("code"), req.ActorID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	reason := req.Reason
	if reason == "" {
		reason = "order cancelled"
	}
	if err := h.orders.Cancel(r.Context(), r.PathValue("code"), reason, req.ActorID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type restockRequest struct {
	Quantity int    `json:"quantity"`
	ActorID  int64  `json:"actor_id"`
	Comment  string `json:"comment,omitempty"`
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.engine.Restock(r.Context(), r.PathValue("name"), req.Quantity, req.ActorID, req.Comment); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) itemStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context(), r.PathValue("name"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"stock":     stats.Stock,
		"reserved":  stats.Reserved,
		"available": stats.Available,
	})
}

type addAddressesRequest struct {
	Addresses []string `json:"addresses"`
}

func (h *Handler) addAddresses(w http.ResponseWriter, r *http.Request) {
	var req addAddressesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	added, err := h.allocator.Add(r.Context(), req.Addresses)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added})
}

func (h *Handler) poolStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.allocator.Stats(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"total":     stats.Total,
		"used":      stats.Used,
		"available": stats.Available,
	})
}

type settingRequest struct {
	Hours int `json:"hours"`
}

func (h *Handler) setCashTimeout(w http.ResponseWriter, r *http.Request) {
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Hours <= 0 {
		writeError(w, http.StatusBadRequest, "hours must be a positive integer")
		return
	}
	if err := h.settings.SetInt(r.Context(), domain.SettingCashTimeoutHours, req.Hours); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientStockError
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrBuyerNotFound),
		errors.Is(err, domain.ErrAddressNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &insufficient),
		errors.Is(err, domain.ErrPoolExhausted),
		errors.Is(err, domain.ErrAddressUsed),
		errors.Is(err, domain.ErrOrderTerminal),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNeverReserved),
		errors.Is(err, domain.ErrCodeTaken),
		errors.Is(err, order.ErrInsufficientBonus):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

type orderView struct {
	Code           string  `json:"code"`
	BuyerID        int64   `json:"buyer_id"`
	Status         string  `json:"status"`
	TotalPrice     string  `json:"total_price"`
	BonusApplied   string  `json:"bonus_applied"`
	PaymentMethod  string  `json:"payment_method"`
	PaymentAddress *string `json:"payment_address,omitempty"`
	ReservedUntil  *string `json:"reserved_until,omitempty"`
	Items          []struct {
		ItemName string `json:"item_name"`
		Price    string `json:"price"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
}

func orderResponse(o *domain.Order) orderView {
	view := orderView{
		Code:           o.Code,
		BuyerID:        o.BuyerID,
		Status:         string(o.Status),
		TotalPrice:     o.TotalPrice.StringFixed(2),
		BonusApplied:   o.BonusApplied.StringFixed(2),
		PaymentMethod:  string(o.PaymentMethod),
		PaymentAddress: o.PaymentAddress,
	}
	if o.ReservedUntil != nil {
		s := o.ReservedUntil.UTC().Format("2006-01-02T15:04:05Z07:00")
		view.ReservedUntil = &s
	}
	for _, item := range o.Items {
		view.Items = append(view.Items, struct {
			ItemName string `json:"item_name"`
			Price    string `json:"price"`
			Quantity int    `json:"quantity"`
		}{item.ItemName, item.Price.StringFixed(2), item.Quantity})
	}
	return view
}
