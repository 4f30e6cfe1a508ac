package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/platform/auth"
	"github.com/plateful/api/internal/services"
)

type stubCheckoutService struct {
	checkoutFn func(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
	if s.checkoutFn == nil {
		return services.CheckoutResult{}, errors.New("not implemented")
	}
	return s.checkoutFn(ctx, cmd)
}

type stubOrderService struct {
	listFn       func(ctx context.Context, actor services.Actor, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	getFn        func(ctx context.Context, actor services.Actor, orderID string) (services.Order, error)
	transitionFn func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error)
	cancelFn     func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
}

func (s *stubOrderService) ListOrders(ctx context.Context, actor services.Actor, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[services.Order]{}, errors.New("not implemented")
	}
	return s.listFn(ctx, actor, filter)
}

func (s *stubOrderService) GetOrder(ctx context.Context, actor services.Actor, orderID string) (services.Order, error) {
	if s.getFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.getFn(ctx, actor, orderID)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.transitionFn(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn == nil {
		return services.Order{}, errors.New("not implemented")
	}
	return s.cancelFn(ctx, cmd)
}

var (
	_ services.CheckoutService = (*stubCheckoutService)(nil)
	_ services.OrderService    = (*stubOrderService)(nil)
)

func customerIdentity(uid string) *auth.Identity {
	return &auth.Identity{
		UID:   uid,
		Email: uid + "@example.test",
		Roles: []string{auth.RoleUser},
	}
}

func staffIdentity(uid string) *auth.Identity {
	return &auth.Identity{
		UID:   uid,
		Roles: []string{auth.RoleAdmin},
	}
}

func authedRequest(t *testing.T, method, target string, body []byte, identity *auth.Identity) *http.Request {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	return req
}

func newOrderRouter(h *OrderHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/orders", func(group chi.Router) {
		h.Routes(group)
	})
	return r
}

func sampleOrder() services.Order {
	created := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	return services.Order{
		ID:                "ord_1",
		OrderNumber:       "PF-2026-000042",
		BranchID:          "branch-1",
		UserID:            "user-1",
		Status:            domain.OrderStatusPendingConfirmation,
		Payment:           domain.PaymentStatusPending,
		PaystackReference: "ord_1",
		OrderType:         domain.OrderTypeTakeOut,
		Items: []services.OrderItem{
			{MenuItemID: "menu-1", Name: "Jollof Rice", Quantity: 2, UnitPrice: 150000},
		},
		TotalAmount: 300000,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestOrderHandlersCreateOrder(t *testing.T) {
	var captured services.CheckoutCommand
	checkout := &stubCheckoutService{
		checkoutFn: func(_ context.Context, cmd services.CheckoutCommand) (services.CheckoutResult, error) {
			captured = cmd
			return services.CheckoutResult{
				Order:            sampleOrder(),
				AuthorizationURL: "https://checkout.paystack.com/abc",
				AccessCode:       "access-1",
			}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, checkout, &stubOrderService{}))

	body := []byte(`{
		"branch_id": "branch-1",
		"order_type": "take_out",
		"items": [{"menu_item_id": "menu-1", "name": "Jollof Rice", "quantity": 2, "unit_price": 150000}],
		"pickup_time": "2026-08-30T13:00:00Z",
		"promo_code": "WELCOME10"
	}`)
	req := authedRequest(t, http.MethodPost, "/orders/", body, customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.PayerID != "user-1" {
		t.Fatalf("expected payer user-1, got %q", captured.PayerID)
	}
	if captured.Email != "user-1@example.test" {
		t.Fatalf("expected email fallback from identity, got %q", captured.Email)
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", captured.Items)
	}
	if captured.PromoCode == nil || *captured.PromoCode != "WELCOME10" {
		t.Fatalf("expected promo code forwarded, got %v", captured.PromoCode)
	}
	if captured.PickupTime == nil || !captured.PickupTime.Equal(time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected pickup time parsed, got %v", captured.PickupTime)
	}

	var response struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
		Payment struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"payment"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Order.ID != "ord_1" {
		t.Fatalf("expected order ord_1, got %q", response.Order.ID)
	}
	if response.Payment.AuthorizationURL != "https://checkout.paystack.com/abc" {
		t.Fatalf("unexpected authorization url %q", response.Payment.AuthorizationURL)
	}
	if response.Payment.Reference != "ord_1" {
		t.Fatalf("expected reference ord_1, got %q", response.Payment.Reference)
	}
}

func TestOrderHandlersCreateOrderInvalidJSON(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubCheckoutService{}, &stubOrderService{}))

	req := authedRequest(t, http.MethodPost, "/orders/", []byte("{not json"), customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderPaymentInitFailure(t *testing.T) {
	checkout := &stubCheckoutService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrCheckoutPaymentInit
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, checkout, &stubOrderService{}))

	body := []byte(`{"branch_id": "branch-1", "order_type": "take_out", "items": []}`)
	req := authedRequest(t, http.MethodPost, "/orders/", body, customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderUnauthenticated(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubCheckoutService{}, &stubOrderService{}))

	req := authedRequest(t, http.MethodPost, "/orders/", []byte(`{}`), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersListOrders(t *testing.T) {
	var capturedActor services.Actor
	var capturedFilter services.OrderListFilter
	orders := &stubOrderService{
		listFn: func(_ context.Context, actor services.Actor, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			capturedActor = actor
			capturedFilter = filter
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{sampleOrder()},
				NextPageToken: "token-1",
			}, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, &stubCheckoutService{}, orders))

	req := authedRequest(t, http.MethodGet, "/orders/?status=received,preparing&page_size=5&created_after=2026-08-01T00:00:00Z", nil, customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedActor.ID != "user-1" || capturedActor.Admin {
		t.Fatalf("unexpected actor %+v", capturedActor)
	}
	if len(capturedFilter.Status) != 2 || capturedFilter.Status[0] != "received" {
		t.Fatalf("unexpected status filter %v", capturedFilter.Status)
	}
	if capturedFilter.Pagination.PageSize != 5 {
		t.Fatalf("expected page size 5, got %d", capturedFilter.Pagination.PageSize)
	}
	if capturedFilter.DateRange.From == nil {
		t.Fatal("expected created_after parsed into date range")
	}

	var response struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
		NextPageToken string `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(response.Items) != 1 || response.Items[0].ID != "ord_1" {
		t.Fatalf("unexpected items %+v", response.Items)
	}
	if response.NextPageToken != "token-1" {
		t.Fatalf("expected next page token, got %q", response.NextPageToken)
	}
}

func TestOrderHandlersListOrdersInvalidPageSize(t *testing.T) {
	router := newOrderRouter(NewOrderHandlers(nil, &stubCheckoutService{}, &stubOrderService{}))

	req := authedRequest(t, http.MethodGet, "/orders/?page_size=abc", nil, customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderNotFound(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(context.Context, services.Actor, string) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, &stubCheckoutService{}, orders))

	req := authedRequest(t, http.MethodGet, "/orders/ord_missing", nil, customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrder(t *testing.T) {
	var captured services.CancelOrderCommand
	orders := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, &stubCheckoutService{}, orders))

	req := authedRequest(t, http.MethodPost, "/orders/ord_1:cancel", []byte(`{"reason": "changed my mind"}`), customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" {
		t.Fatalf("expected order ord_1, got %q", captured.OrderID)
	}
	if captured.Reason != "changed my mind" {
		t.Fatalf("unexpected reason %q", captured.Reason)
	}
	if captured.SkipRefund {
		t.Fatal("customer cancel must not skip refunds")
	}

	var response struct {
		Order struct {
			Status string `json:"status"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response.Order.Status != string(domain.OrderStatusCancelled) {
		t.Fatalf("expected cancelled status, got %q", response.Order.Status)
	}
}

func TestOrderHandlersCancelRefundUnavailable(t *testing.T) {
	orders := &stubOrderService{
		cancelFn: func(context.Context, services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderRefundUnavailable
		},
	}
	router := newOrderRouter(NewOrderHandlers(nil, &stubCheckoutService{}, orders))

	req := authedRequest(t, http.MethodPost, "/orders/ord_1:cancel", nil, customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}
