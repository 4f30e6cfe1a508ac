package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/plateful/api/internal/payments"
	"github.com/plateful/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentInvalidSignature indicates the webhook body failed signature verification.
	ErrPaymentInvalidSignature = errors.New("payment: invalid signature")
	// ErrPaymentMalformedPayload indicates the webhook body could not be decoded.
	ErrPaymentMalformedPayload = errors.New("payment: malformed payload")
	// ErrPaymentReferenceUnknown indicates no transaction exists for the reference.
	ErrPaymentReferenceUnknown = errors.New("payment: unknown reference")
)

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders        repositories.OrderRepository
	Provider      payments.Provider
	WebhookSecret []byte
	Clock         func() time.Time
	Events        OrderEventPublisher
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders        repositories.OrderRepository
	provider      payments.Provider
	webhookSecret []byte
	clock         func() time.Time
	events        OrderEventPublisher
	logger        func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if len(deps.WebhookSecret) == 0 {
		return nil, errors.New("payment service: webhook secret is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:        deps.Orders,
		provider:      deps.Provider,
		webhookSecret: deps.WebhookSecret,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

// ProcessWebhook verifies, decodes, and applies one webhook delivery. The
// signature is checked over the raw body before any parsing. Applying a
// settled charge is idempotent: replays of the same reference are reported as
// duplicates without mutating the order.
func (s *paymentService) ProcessWebhook(ctx context.Context, cmd PaymentWebhookCommand) (PaymentWebhookResult, error) {
	if len(cmd.Body) == 0 {
		return PaymentWebhookResult{}, fmt.Errorf("%w: empty body", ErrPaymentMalformedPayload)
	}
	if !payments.VerifySignature(s.webhookSecret, cmd.Body, cmd.Signature) {
		return PaymentWebhookResult{}, ErrPaymentInvalidSignature
	}

	event, err := payments.DecodeEvent(cmd.Body)
	if err != nil {
		return PaymentWebhookResult{}, fmt.Errorf("%w: %v", ErrPaymentMalformedPayload, err)
	}

	if event.Kind != payments.EventChargeSuccess {
		s.logger(ctx, "payment.webhook.ignored", map[string]any{
			"eventType": event.RawType,
		})
		return PaymentWebhookResult{Outcome: WebhookIgnored}, nil
	}

	charge := event.Charge
	if charge == nil || charge.Reference == "" {
		s.logger(ctx, "payment.webhook.unmatched", map[string]any{
			"eventType": event.RawType,
			"detail":    "missing transaction reference",
		})
		return PaymentWebhookResult{Outcome: WebhookUnmatched}, nil
	}

	paidAt := s.clock()
	if charge.PaidAt != nil {
		paidAt = charge.PaidAt.UTC()
	}

	return s.applySettlement(ctx, charge.Reference, paidAt)
}

// VerifyPayment asks the PSP for the authoritative transaction state and, on
// a settled charge, funnels into the same apply-once path as the webhook.
func (s *paymentService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error) {
	reference := strings.TrimSpace(cmd.Reference)
	if reference == "" {
		return VerifyPaymentResult{}, fmt.Errorf("%w: reference is required", ErrPaymentInvalidInput)
	}
	if s.provider == nil {
		return VerifyPaymentResult{}, errors.New("payment service: provider not configured")
	}

	details, err := s.provider.VerifyTransaction(ctx, reference)
	if err != nil {
		if errors.Is(err, payments.ErrTransactionNotFound) {
			return VerifyPaymentResult{}, fmt.Errorf("%w: %s", ErrPaymentReferenceUnknown, reference)
		}
		return VerifyPaymentResult{}, err
	}

	// The actor must own the order before the settlement is applied.
	order, err := s.orders.FindByPaymentReference(ctx, reference)
	if err != nil {
		return VerifyPaymentResult{}, mapPaymentRepositoryError(err)
	}
	if !cmd.Actor.Admin && order.UserID != cmd.Actor.ID {
		return VerifyPaymentResult{}, fmt.Errorf("%w: %s", ErrOrderForbidden, order.ID)
	}

	settled := details.Status == payments.StatusSuccess
	if settled {
		paidAt := s.clock()
		if details.PaidAt != nil {
			paidAt = details.PaidAt.UTC()
		}
		if _, err := s.applySettlement(ctx, reference, paidAt); err != nil {
			return VerifyPaymentResult{}, err
		}
		order, err = s.orders.FindByPaymentReference(ctx, reference)
		if err != nil {
			return VerifyPaymentResult{}, mapPaymentRepositoryError(err)
		}
	}

	return VerifyPaymentResult{
		Order:          order,
		ProviderStatus: string(details.Status),
		Settled:        settled,
	}, nil
}

func (s *paymentService) applySettlement(ctx context.Context, reference string, paidAt time.Time) (PaymentWebhookResult, error) {
	result, err := s.orders.ApplyPayment(ctx, reference, paidAt)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			s.logger(ctx, "payment.webhook.unmatched", map[string]any{
				"reference": reference,
				"detail":    "no order for reference",
			})
			return PaymentWebhookResult{Outcome: WebhookUnmatched}, nil
		}
		return PaymentWebhookResult{}, mapPaymentRepositoryError(err)
	}

	if !result.Applied {
		s.logger(ctx, "payment.webhook.duplicate", map[string]any{
			"reference": reference,
			"orderId":   result.Order.ID,
		})
		return PaymentWebhookResult{Outcome: WebhookDuplicate, OrderID: result.Order.ID}, nil
	}

	publishOrderEvent(ctx, s.events, s.logger, OrderEvent{
		Type:          orderEventPaymentConfirmed,
		OrderID:       result.Order.ID,
		OrderNumber:   result.Order.OrderNumber,
		CurrentStatus: string(result.Order.Status),
		OccurredAt:    paidAt,
		Metadata: map[string]any{
			"reference": reference,
		},
	})

	return PaymentWebhookResult{Outcome: WebhookApplied, OrderID: result.Order.ID}, nil
}

func mapPaymentRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentReferenceUnknown, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}

	return err
}
