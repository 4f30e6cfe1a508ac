package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/plateful/api/internal/services"
)

type stubPaymentService struct {
	processFn func(ctx context.Context, cmd services.PaymentWebhookCommand) (services.PaymentWebhookResult, error)
	verifyFn  func(ctx context.Context, cmd services.VerifyPaymentCommand) (services.VerifyPaymentResult, error)
}

func (s *stubPaymentService) ProcessWebhook(ctx context.Context, cmd services.PaymentWebhookCommand) (services.PaymentWebhookResult, error) {
	if s.processFn == nil {
		return services.PaymentWebhookResult{}, errors.New("not implemented")
	}
	return s.processFn(ctx, cmd)
}

func (s *stubPaymentService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.VerifyPaymentResult, error) {
	if s.verifyFn == nil {
		return services.VerifyPaymentResult{}, errors.New("not implemented")
	}
	return s.verifyFn(ctx, cmd)
}

var _ services.PaymentService = (*stubPaymentService)(nil)

func newPaymentRouter(h *PaymentHandlers) chi.Router {
	r := chi.NewRouter()
	r.Route("/payments", func(group chi.Router) {
		h.Routes(group)
	})
	return r
}

func TestPaymentHandlersVerify(t *testing.T) {
	var captured services.VerifyPaymentCommand
	paymentsSvc := &stubPaymentService{
		verifyFn: func(_ context.Context, cmd services.VerifyPaymentCommand) (services.VerifyPaymentResult, error) {
			captured = cmd
			return services.VerifyPaymentResult{
				Order:          sampleOrder(),
				ProviderStatus: "success",
				Settled:        true,
			}, nil
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(nil, paymentsSvc))

	req := authedRequest(t, http.MethodGet, "/payments/verify?reference=ord_1", nil, customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Reference != "ord_1" {
		t.Fatalf("expected reference ord_1, got %q", captured.Reference)
	}
	if captured.Actor.ID != "user-1" {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}

	var response struct {
		ProviderStatus string `json:"provider_status"`
		Settled        bool   `json:"settled"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !response.Settled || response.ProviderStatus != "success" {
		t.Fatalf("unexpected response %+v", response)
	}
}

func TestPaymentHandlersVerifyMissingReference(t *testing.T) {
	router := newPaymentRouter(NewPaymentHandlers(nil, &stubPaymentService{}))

	req := authedRequest(t, http.MethodGet, "/payments/verify", nil, customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestPaymentHandlersVerifyUnknownReference(t *testing.T) {
	paymentsSvc := &stubPaymentService{
		verifyFn: func(context.Context, services.VerifyPaymentCommand) (services.VerifyPaymentResult, error) {
			return services.VerifyPaymentResult{}, services.ErrPaymentReferenceUnknown
		},
	}
	router := newPaymentRouter(NewPaymentHandlers(nil, paymentsSvc))

	req := authedRequest(t, http.MethodGet, "/payments/verify?reference=ghost", nil, customerIdentity("user-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
