package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/plateful/api/internal/platform/auth"
	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/services"
)

// PaymentHandlers exposes the synchronous payment verification endpoint used
// by clients returning from the provider checkout page.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{
		authn:    authn,
		payments: payments,
	}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/verify", h.verifyPayment)
}

type verifyPaymentResponse struct {
	Order          orderPayload `json:"order"`
	ProviderStatus string       `json:"provider_status"`
	Settled        bool         `json:"settled"`
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "reference is required", http.StatusBadRequest))
		return
	}

	result, err := h.payments.VerifyPayment(ctx, services.VerifyPaymentCommand{
		Reference: reference,
		Actor:     actorFromIdentity(identity),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, verifyPaymentResponse{
		Order:          buildOrderPayload(result.Order),
		ProviderStatus: result.ProviderStatus,
		Settled:        result.Settled,
	})
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentReferenceUnknown):
		httpx.WriteError(ctx, w, httpx.NewError("payment_reference_unknown", "no order for this reference", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "not allowed for this payment", http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to verify payment", http.StatusInternalServerError))
	}
}
