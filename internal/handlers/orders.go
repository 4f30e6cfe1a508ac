package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/platform/auth"
	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/services"
)

const (
	defaultOrderPageSize  = 20
	maxOrderPageSize      = 100
	maxCheckoutBodySize   = 64 * 1024
	maxOrderCancelReqSize = 4 * 1024
)

// OrderHandlers exposes checkout and order lifecycle endpoints for
// authenticated customers.
type OrderHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	orders   services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, checkout services.CheckoutService, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		checkout: checkout,
		orders:   orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

type checkoutItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

type addressRequest struct {
	Line1  string  `json:"line1"`
	Line2  *string `json:"line2,omitempty"`
	City   string  `json:"city"`
	ZoneID string  `json:"zone_id"`
	Phone  *string `json:"phone,omitempty"`
}

type dineInRequest struct {
	At     string `json:"at"`
	Guests int    `json:"guests"`
}

type checkoutRequest struct {
	BranchID        string                `json:"branch_id"`
	OrderType       string                `json:"order_type"`
	Email           string                `json:"email"`
	Items           []checkoutItemRequest `json:"items"`
	DeliveryAddress *addressRequest       `json:"delivery_address,omitempty"`
	PickupTime      *string               `json:"pickup_time,omitempty"`
	DineIn          *dineInRequest        `json:"dine_in,omitempty"`
	PromoCode       *string               `json:"promo_code,omitempty"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd, err := buildCheckoutCommand(identity, req)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.checkout.Checkout(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildCheckoutResponse(result))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	filter, err := parseOrderListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, actorFromIdentity(identity), filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.orders.GetOrder(ctx, actorFromIdentity(identity), orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
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

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderCancelReqSize)
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
		OrderID: orderID,
		Actor:   actorFromIdentity(identity),
		Reason:  strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled)})
}

func buildCheckoutCommand(identity *auth.Identity, req checkoutRequest) (services.CheckoutCommand, error) {
	cmd := services.CheckoutCommand{
		PayerID:   strings.TrimSpace(identity.UID),
		Email:     strings.TrimSpace(req.Email),
		BranchID:  strings.TrimSpace(req.BranchID),
		OrderType: services.OrderType(strings.TrimSpace(req.OrderType)),
		PromoCode: cloneStringPointer(req.PromoCode),
	}
	if cmd.Email == "" {
		cmd.Email = strings.TrimSpace(identity.Email)
	}

	cmd.Items = make([]services.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, services.CheckoutItem{
			MenuItemID: strings.TrimSpace(item.MenuItemID),
			Name:       strings.TrimSpace(item.Name),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}

	if req.DeliveryAddress != nil {
		addr := buildAddress(*req.DeliveryAddress)
		cmd.DeliveryAddress = &addr
	}
	if req.PickupTime != nil {
		ts, err := parseTimeParam(*req.PickupTime)
		if err != nil {
			return services.CheckoutCommand{}, errors.New("pickup_time must be a valid RFC3339 timestamp")
		}
		cmd.PickupTime = &ts
	}
	if req.DineIn != nil {
		at, err := parseTimeParam(req.DineIn.At)
		if err != nil {
			return services.CheckoutCommand{}, errors.New("dine_in.at must be a valid RFC3339 timestamp")
		}
		cmd.DineIn = &services.DineInDetail{
			At:     at,
			Guests: req.DineIn.Guests,
		}
	}
	return cmd, nil
}

func buildAddress(req addressRequest) domain.Address {
	return domain.Address{
		Line1:  strings.TrimSpace(req.Line1),
		Line2:  cloneStringPointer(req.Line2),
		City:   strings.TrimSpace(req.City),
		ZoneID: strings.TrimSpace(req.ZoneID),
		Phone:  cloneStringPointer(req.Phone),
	}
}

func parseOrderListFilter(r *http.Request) (services.OrderListFilter, error) {
	query := r.URL.Query()

	filter := services.OrderListFilter{
		UserID:   strings.TrimSpace(query.Get("user_id")),
		BranchID: strings.TrimSpace(query.Get("branch_id")),
		Status:   parseFilterValues(query["status"]),
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("created_after must be a valid RFC3339 timestamp")
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("created_before must be a valid RFC3339 timestamp")
		}
		filter.DateRange.To = &ts
	}

	pageSize := defaultOrderPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("page_size must be an integer")
		}
		switch {
		case size <= 0:
			pageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}
	filter.Pagination = services.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}
	return filter, nil
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	BranchID    string `json:"branch_id"`
	Status      string `json:"status"`
	OrderType   string `json:"order_type"`
	Total       int64  `json:"total"`
	CreatedAt   string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type checkoutResponse struct {
	Order             orderPayload        `json:"order"`
	Payment           *paymentInitPayload `json:"payment,omitempty"`
	PromotionSkipped  bool                `json:"promotion_skipped,omitempty"`
	PromotionSkipInfo string              `json:"promotion_skipped_reason,omitempty"`
	AlreadyCheckedOut bool                `json:"already_checked_out,omitempty"`
}

type paymentInitPayload struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code,omitempty"`
	Reference        string `json:"reference"`
}

type orderPayload struct {
	ID               string              `json:"id"`
	OrderNumber      string              `json:"order_number"`
	BranchID         string              `json:"branch_id"`
	UserID           string              `json:"user_id"`
	CartRef          string              `json:"cart_ref,omitempty"`
	Status           string              `json:"status"`
	Payment          string              `json:"payment"`
	PaymentReference string              `json:"payment_reference,omitempty"`
	OrderType        string              `json:"order_type"`
	Items            []orderItemPayload  `json:"items"`
	DeliveryAddress  *addressPayload     `json:"delivery_address,omitempty"`
	PickupTime       string              `json:"pickup_time,omitempty"`
	DineIn           *dineInPayload      `json:"dine_in,omitempty"`
	Totals           orderTotalsPayload  `json:"totals"`
	AppliedPromoID   *string             `json:"applied_promo_id,omitempty"`
	CancelReason     *string             `json:"cancel_reason,omitempty"`
	CreatedAt        string              `json:"created_at"`
	UpdatedAt        string              `json:"updated_at,omitempty"`
	PaidAt           string              `json:"paid_at,omitempty"`
	CompletedAt      string              `json:"completed_at,omitempty"`
	CancelledAt      string              `json:"cancelled_at,omitempty"`
	RefundedAt       string              `json:"refunded_at,omitempty"`
}

type orderItemPayload struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Total      int64  `json:"total"`
}

type addressPayload struct {
	Line1  string  `json:"line1"`
	Line2  *string `json:"line2,omitempty"`
	City   string  `json:"city"`
	ZoneID string  `json:"zone_id"`
	Phone  *string `json:"phone,omitempty"`
}

type dineInPayload struct {
	At     string `json:"at"`
	Guests int    `json:"guests"`
}

type orderTotalsPayload struct {
	Subtotal    int64 `json:"subtotal"`
	Discount    int64 `json:"discount"`
	DeliveryFee int64 `json:"delivery_fee"`
	Total       int64 `json:"total"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		BranchID:    strings.TrimSpace(order.BranchID),
		Status:      string(order.Status),
		OrderType:   string(order.OrderType),
		Total:       order.TotalAmount,
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:               strings.TrimSpace(order.ID),
		OrderNumber:      strings.TrimSpace(order.OrderNumber),
		BranchID:         strings.TrimSpace(order.BranchID),
		UserID:           strings.TrimSpace(order.UserID),
		Status:           string(order.Status),
		Payment:          string(order.Payment),
		PaymentReference: strings.TrimSpace(order.PaystackReference),
		OrderType:        string(order.OrderType),
		Items:            make([]orderItemPayload, 0, len(order.Items)),
		Totals: orderTotalsPayload{
			Subtotal:    order.TotalAmount + order.DiscountAmount - order.DeliveryFee,
			Discount:    order.DiscountAmount,
			DeliveryFee: order.DeliveryFee,
			Total:       order.TotalAmount,
		},
		AppliedPromoID: cloneStringPointer(order.AppliedPromoID),
		CancelReason:   cloneStringPointer(order.CancelReason),
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
		PaidAt:         formatTime(pointerTime(order.PaidAt)),
		CompletedAt:    formatTime(pointerTime(order.CompletedAt)),
		CancelledAt:    formatTime(pointerTime(order.CancelledAt)),
		RefundedAt:     formatTime(pointerTime(order.RefundedAt)),
	}

	if order.CartRef != nil {
		payload.CartRef = strings.TrimSpace(*order.CartRef)
	}
	if order.PickupTime != nil {
		payload.PickupTime = formatTime(*order.PickupTime)
	}
	if order.DeliveryAddress != nil {
		addr := addressPayload{
			Line1:  order.DeliveryAddress.Line1,
			Line2:  cloneStringPointer(order.DeliveryAddress.Line2),
			City:   order.DeliveryAddress.City,
			ZoneID: order.DeliveryAddress.ZoneID,
			Phone:  cloneStringPointer(order.DeliveryAddress.Phone),
		}
		payload.DeliveryAddress = &addr
	}
	if order.DineIn != nil {
		payload.DineIn = &dineInPayload{
			At:     formatTime(order.DineIn.At),
			Guests: order.DineIn.Guests,
		}
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			MenuItemID: strings.TrimSpace(item.MenuItemID),
			Name:       strings.TrimSpace(item.Name),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Total:      item.UnitPrice * int64(item.Quantity),
		})
	}

	return payload
}

func buildCheckoutResponse(result services.CheckoutResult) checkoutResponse {
	response := checkoutResponse{
		Order:             buildOrderPayload(result.Order),
		PromotionSkipped:  result.PromotionSkipped,
		PromotionSkipInfo: result.PromotionSkippedReason,
		AlreadyCheckedOut: result.AlreadyCheckedOut,
	}
	if result.AuthorizationURL != "" {
		response.Payment = &paymentInitPayload{
			AuthorizationURL: result.AuthorizationURL,
			AccessCode:       result.AccessCode,
			Reference:        strings.TrimSpace(result.Order.PaystackReference),
		}
	}
	return response
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func actorFromIdentity(identity *auth.Identity) services.Actor {
	return services.Actor{
		ID:    strings.TrimSpace(identity.UID),
		Admin: identity.HasAnyRole(auth.RoleAdmin, auth.RoleStaff),
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed for this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderRefundUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("refund_unavailable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput), errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingZoneNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_delivery_zone", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutPaymentInit):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_unavailable", "payment initialization failed", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout", http.StatusInternalServerError))
	}
}
