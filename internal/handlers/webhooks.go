package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plateful/api/internal/payments"
	"github.com/plateful/api/internal/platform/httpx"
	"github.com/plateful/api/internal/services"
)

const maxWebhookBodySize = 1 << 20

// WebhookHandlers receives provider webhook deliveries. The raw body is
// handed to the payment service untouched so signature verification runs
// against the exact bytes received.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(paymentService services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{
		payments: paymentService,
	}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/paystack", h.paystackWebhook)
}

type webhookResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
}

func (h *WebhookHandlers) paystackWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.payments.ProcessWebhook(ctx, services.PaymentWebhookCommand{
		Body:      body,
		Signature: r.Header.Get(payments.SignatureHeader),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentInvalidSignature):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		case errors.Is(err, services.ErrPaymentMalformedPayload):
			httpx.WriteError(ctx, w, httpx.NewError("malformed_payload", "webhook payload could not be parsed", http.StatusBadRequest))
		default:
			// Returning 5xx makes the provider retry the delivery; the apply
			// path is idempotent so a retry is safe.
			httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookResponse{
		Status:  string(result.Outcome),
		OrderID: result.OrderID,
	})
}
