package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/platform/auth"
	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/services"
)

const maxAdminOrderBodySize = 4 * 1024

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPendingConfirmation: {},
	domain.OrderStatusReceived:            {},
	domain.OrderStatusPreparing:           {},
	domain.OrderStatusReadyForPickup:      {},
	domain.OrderStatusOutForDelivery:      {},
	domain.OrderStatusCompleted:           {},
	domain.OrderStatusCancelled:           {},
}

// AdminOrderHandlers exposes staff-only order lifecycle endpoints.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminOrderHandlers constructs a new AdminOrderHandlers instance.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /admin order endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}
	r.Post("/orders/{orderID}:transition", h.transitionOrder)
	r.Post("/orders/{orderID}:cancel", h.cancelOrder)
}

type transitionOrderRequest struct {
	TargetStatus string `json:"target_status"`
	Force        bool   `json:"force"`
	Reason       string `json:"reason"`
}

type adminCancelOrderRequest struct {
	Reason     string `json:"reason"`
	SkipRefund bool   `json:"skip_refund"`
}

func (h *AdminOrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxAdminOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req transitionOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	target := domain.OrderStatus(strings.TrimSpace(strings.ToLower(req.TargetStatus)))
	if _, valid := validOrderStatuses[target]; !valid {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "target_status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: target,
		Actor:        actorFromIdentity(identity),
		Force:        req.Force,
		Reason:       strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req adminCancelOrderRequest
	body, err := readLimitedBody(r, maxAdminOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	cancelled, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:    orderID,
		Actor:      actorFromIdentity(identity),
		Reason:     strings.TrimSpace(req.Reason),
		SkipRefund: req.SkipRefund,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled)})
}
