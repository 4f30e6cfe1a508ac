package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/services"
)

func newAdminRouter(h *AdminOrderHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/admin", func(group chi.Router) {
		h.Routes(group)
	})
	return r
}

func TestAdminOrderHandlersTransition(t *testing.T) {
	var captured services.OrderStatusTransitionCommand
	orders := &stubOrderService{
		transitionFn: func(_ context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = cmd.TargetStatus
			return order, nil
		},
	}
	router := newAdminRouter(NewAdminOrderHandlers(nil, orders))

	body := []byte(`{"target_status": "preparing", "force": true, "reason": "kitchen restarted"}`)
	req := authedRequest(t, http.MethodPost, "/admin/orders/ord_1:transition", body, staffIdentity("staff-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" {
		t.Fatalf("expected order ord_1, got %q", captured.OrderID)
	}
	if captured.TargetStatus != domain.OrderStatusPreparing {
		t.Fatalf("expected target preparing, got %q", captured.TargetStatus)
	}
	if !captured.Force {
		t.Fatal("expected force flag forwarded")
	}
	if !captured.Actor.Admin {
		t.Fatal("expected admin actor")
	}
}

func TestAdminOrderHandlersTransitionInvalidStatus(t *testing.T) {
	router := newAdminRouter(NewAdminOrderHandlers(nil, &stubOrderService{}))

	body := []byte(`{"target_status": "teleported"}`)
	req := authedRequest(t, http.MethodPost, "/admin/orders/ord_1:transition", body, staffIdentity("staff-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersTransitionInvalidState(t *testing.T) {
	orders := &stubOrderService{
		transitionFn: func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidTransition
		},
	}
	router := newAdminRouter(NewAdminOrderHandlers(nil, orders))

	body := []byte(`{"target_status": "completed"}`)
	req := authedRequest(t, http.MethodPost, "/admin/orders/ord_1:transition", body, staffIdentity("staff-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersCancelSkipRefund(t *testing.T) {
	var captured services.CancelOrderCommand
	orders := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	router := newAdminRouter(NewAdminOrderHandlers(nil, orders))

	body := []byte(`{"reason": "fraud review", "skip_refund": true}`)
	req := authedRequest(t, http.MethodPost, "/admin/orders/ord_1:cancel", body, staffIdentity("staff-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !captured.SkipRefund {
		t.Fatal("expected skip_refund forwarded")
	}
	if captured.Reason != "fraud review" {
		t.Fatalf("unexpected reason %q", captured.Reason)
	}
}

func TestAdminOrderHandlersForbidden(t *testing.T) {
	orders := &stubOrderService{
		cancelFn: func(context.Context, services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderForbidden
		},
	}
	router := newAdminRouter(NewAdminOrderHandlers(nil, orders))

	req := authedRequest(t, http.MethodPost, "/admin/orders/ord_1:cancel", []byte(`{}`), customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}
