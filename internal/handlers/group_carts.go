package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/plateful/api/internal/platform/auth"
	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/services"
)

const maxGroupCartBodySize = 16 * 1024

// GroupCartHandlers exposes shared cart endpoints: create, join via invite
// code, item mutations, and checkout into an order.
type GroupCartHandlers struct {
	authn *auth.Authenticator
	carts services.SharedCartService
}

// NewGroupCartHandlers constructs a new GroupCartHandlers instance.
func NewGroupCartHandlers(authn *auth.Authenticator, carts services.SharedCartService) *GroupCartHandlers {
	return &GroupCartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes registers the /group-carts endpoints.
func (h *GroupCartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createCart)
	r.Post("/join", h.joinCart)
	r.Get("/{cartID}", h.getCart)
	r.Post("/{cartID}/items", h.addItem)
	r.Put("/{cartID}/items/{menuItemID}", h.updateItem)
	r.Post("/{cartID}:checkout", h.checkoutCart)
}

type createGroupCartRequest struct {
	BranchID    string `json:"branch_id"`
	OrderType   string `json:"order_type"`
	PaymentMode string `json:"payment_mode"`
}

type joinGroupCartRequest struct {
	InviteCode string `json:"invite_code"`
}

type groupCartItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	UnitPrice  int64  `json:"unit_price"`
	// Quantity is a signed delta; a line whose quantity drops to zero or
	// below is removed.
	Quantity int `json:"quantity"`
}

type groupCartCheckoutRequest struct {
	Email           string          `json:"email"`
	DeliveryAddress *addressRequest `json:"delivery_address,omitempty"`
	PickupTime      *string         `json:"pickup_time,omitempty"`
	DineIn          *dineInRequest  `json:"dine_in,omitempty"`
	PromoCode       *string         `json:"promo_code,omitempty"`
}

func (h *GroupCartHandlers) createCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "shared cart service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxGroupCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req createGroupCartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.Create(ctx, services.CreateSharedCartCommand{
		InitiatorID: strings.TrimSpace(identity.UID),
		BranchID:    strings.TrimSpace(req.BranchID),
		OrderType:   services.OrderType(strings.TrimSpace(req.OrderType)),
		PaymentMode: services.PaymentMode(strings.TrimSpace(req.PaymentMode)),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, groupCartResponse{Cart: buildGroupCartPayload(cart)})
}

func (h *GroupCartHandlers) joinCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "shared cart service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxGroupCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req joinGroupCartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.Join(ctx, services.JoinSharedCartCommand{
		InviteCode: req.InviteCode,
		UserID:     strings.TrimSpace(identity.UID),
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, groupCartResponse{Cart: buildGroupCartPayload(cart)})
}

func (h *GroupCartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "shared cart service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	cartID := strings.TrimSpace(chi.URLParam(r, "cartID"))
	if cartID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cart id is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.Get(ctx, actorFromIdentity(identity), cartID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, groupCartResponse{Cart: buildGroupCartPayload(cart)})
}

func (h *GroupCartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, false)
}

func (h *GroupCartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	h.mutateItem(w, r, true)
}

func (h *GroupCartHandlers) mutateItem(w http.ResponseWriter, r *http.Request, update bool) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "shared cart service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	cartID := strings.TrimSpace(chi.URLParam(r, "cartID"))
	if cartID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cart id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxGroupCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req groupCartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	cmd := services.SharedCartItemCommand{
		CartID:     cartID,
		UserID:     strings.TrimSpace(identity.UID),
		MenuItemID: strings.TrimSpace(req.MenuItemID),
		Name:       strings.TrimSpace(req.Name),
		UnitPrice:  req.UnitPrice,
		Quantity:   req.Quantity,
	}
	if update {
		cmd.MenuItemID = strings.TrimSpace(chi.URLParam(r, "menuItemID"))
	}

	var cart services.SharedCart
	if update {
		cart, err = h.carts.UpdateItem(ctx, cmd)
	} else {
		cart, err = h.carts.AddItem(ctx, cmd)
	}
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, groupCartResponse{Cart: buildGroupCartPayload(cart)})
}

func (h *GroupCartHandlers) checkoutCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "shared cart service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	cartID := strings.TrimSpace(chi.URLParam(r, "cartID"))
	if cartID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "cart id is required", http.StatusBadRequest))
		return
	}

	var req groupCartCheckoutRequest
	body, err := readLimitedBody(r, maxGroupCartBodySize)
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

	cmd := services.SharedCartCheckoutCommand{
		CartID:    cartID,
		Actor:     actorFromIdentity(identity),
		Email:     strings.TrimSpace(req.Email),
		PromoCode: cloneStringPointer(req.PromoCode),
	}
	if cmd.Email == "" {
		cmd.Email = strings.TrimSpace(identity.Email)
	}
	if req.DeliveryAddress != nil {
		addr := buildAddress(*req.DeliveryAddress)
		cmd.DeliveryAddress = &addr
	}
	if req.PickupTime != nil {
		ts, err := parseTimeParam(*req.PickupTime)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pickup_time must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.PickupTime = &ts
	}
	if req.DineIn != nil {
		at, err := parseTimeParam(req.DineIn.At)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "dine_in.at must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.DineIn = &services.DineInDetail{
			At:     at,
			Guests: req.DineIn.Guests,
		}
	}

	result, err := h.carts.Checkout(ctx, cmd)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyCheckedOut {
		status = http.StatusOK
	}
	writeJSONResponse(w, status, buildCheckoutResponse(result))
}

type groupCartResponse struct {
	Cart groupCartPayload `json:"cart"`
}

type groupCartPayload struct {
	ID               string                 `json:"id"`
	BranchID         string                 `json:"branch_id"`
	OrderType        string                 `json:"order_type"`
	PaymentMode      string                 `json:"payment_mode"`
	InviteCode       string                 `json:"invite_code"`
	InitiatorID      string                 `json:"initiator_id"`
	Members          []string               `json:"members"`
	Items            []groupCartItemPayload `json:"items"`
	Status           string                 `json:"status"`
	ResultingOrderID *string                `json:"resulting_order_id,omitempty"`
	CreatedAt        string                 `json:"created_at"`
	UpdatedAt        string                 `json:"updated_at,omitempty"`
	ExpiresAt        string                 `json:"expires_at"`
}

type groupCartItemPayload struct {
	UserID     string `json:"user_id"`
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
}

func buildGroupCartPayload(cart services.SharedCart) groupCartPayload {
	payload := groupCartPayload{
		ID:               strings.TrimSpace(cart.ID),
		BranchID:         strings.TrimSpace(cart.BranchID),
		OrderType:        string(cart.OrderType),
		PaymentMode:      string(cart.PaymentMode),
		InviteCode:       strings.TrimSpace(cart.InviteCode),
		InitiatorID:      strings.TrimSpace(cart.InitiatorID),
		Members:          append([]string(nil), cart.Members...),
		Items:            make([]groupCartItemPayload, 0, len(cart.Items)),
		Status:           string(cart.Status),
		ResultingOrderID: cloneStringPointer(cart.ResultingOrderID),
		CreatedAt:        formatTime(cart.CreatedAt),
		UpdatedAt:        formatTime(cart.UpdatedAt),
		ExpiresAt:        formatTime(cart.ExpiresAt),
	}
	if payload.Members == nil {
		payload.Members = []string{}
	}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, groupCartItemPayload{
			UserID:     strings.TrimSpace(item.UserID),
			MenuItemID: strings.TrimSpace(item.MenuItemID),
			Name:       strings.TrimSpace(item.Name),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return payload
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "shared cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not a member of this cart", http.StatusForbidden))
	case errors.Is(err, services.ErrCartClosed):
		httpx.WriteError(ctx, w, httpx.NewError("cart_closed", "shared cart is no longer open", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInvalidInput), errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingZoneNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_delivery_zone", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutPaymentInit):
		httpx.WriteError(ctx, w, httpx.NewError("payment_provider_unavailable", "payment initialization failed", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process shared cart request", http.StatusInternalServerError))
	}
}
