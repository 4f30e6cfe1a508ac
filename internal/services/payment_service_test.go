package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/payments"
	"github.com/plateful/api/internal/repositories"
)

var webhookTestSecret = []byte("sk_test_webhook")

func signWebhookBody(body []byte) string {
	mac := hmac.New(sha512.New, webhookTestSecret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestPaymentService(t *testing.T, deps PaymentServiceDeps) PaymentService {
	t.Helper()
	if deps.WebhookSecret == nil {
		deps.WebhookSecret = webhookTestSecret
	}
	svc, err := NewPaymentService(deps)
	if err != nil {
		t.Fatalf("new payment service: %v", err)
	}
	return svc
}

func TestPaymentServiceProcessWebhookApplied(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"event":"charge.success","data":{"reference":"ord_1","amount":300000,"currency":"NGN","paid_at":"2026-08-30T11:59:00Z"}}`)

	var appliedRef string
	var appliedAt time.Time
	repo := &stubOrderRepo{
		applyFn: func(_ context.Context, reference string, paidAt time.Time) (repositories.PaymentApplyResult, error) {
			appliedRef = reference
			appliedAt = paidAt
			return repositories.PaymentApplyResult{
				Order:   domain.Order{ID: "ord_1", OrderNumber: "PF-2026-000042", Status: domain.OrderStatusReceived},
				Applied: true,
			}, nil
		},
	}
	events := &captureOrderEvents{}
	svc := newTestPaymentService(t, PaymentServiceDeps{
		Orders: repo,
		Clock:  func() time.Time { return now },
		Events: events,
	})

	result, err := svc.ProcessWebhook(context.Background(), PaymentWebhookCommand{
		Body:      body,
		Signature: signWebhookBody(body),
	})
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if result.Outcome != WebhookApplied {
		t.Fatalf("expected applied, got %s", result.Outcome)
	}
	if result.OrderID != "ord_1" {
		t.Fatalf("unexpected order id %q", result.OrderID)
	}
	if appliedRef != "ord_1" {
		t.Fatalf("unexpected reference %q", appliedRef)
	}
	want := time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC)
	if !appliedAt.Equal(want) {
		t.Fatalf("expected paidAt from the charge payload, got %v", appliedAt)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventPaymentConfirmed {
		t.Fatalf("expected payment confirmed event, got %+v", events.events)
	}
}

func TestPaymentServiceProcessWebhookDuplicate(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"ord_1"}}`)
	repo := &stubOrderRepo{
		applyFn: func(context.Context, string, time.Time) (repositories.PaymentApplyResult, error) {
			return repositories.PaymentApplyResult{
				Order:   domain.Order{ID: "ord_1", Status: domain.OrderStatusPreparing},
				Applied: false,
			}, nil
		},
	}
	events := &captureOrderEvents{}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: repo, Events: events})

	result, err := svc.ProcessWebhook(context.Background(), PaymentWebhookCommand{
		Body:      body,
		Signature: signWebhookBody(body),
	})
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if result.Outcome != WebhookDuplicate {
		t.Fatalf("expected duplicate, got %s", result.Outcome)
	}
	if len(events.events) != 0 {
		t.Fatalf("replays must not publish events, got %+v", events.events)
	}
}

func TestPaymentServiceProcessWebhookRejectsBadSignature(t *testing.T) {
	applied := false
	repo := &stubOrderRepo{
		applyFn: func(context.Context, string, time.Time) (repositories.PaymentApplyResult, error) {
			applied = true
			return repositories.PaymentApplyResult{}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: repo})

	body := []byte(`{"event":"charge.success","data":{"reference":"ord_1"}}`)
	other := hmac.New(sha512.New, []byte("wrong-secret"))
	other.Write(body)

	_, err := svc.ProcessWebhook(context.Background(), PaymentWebhookCommand{
		Body:      body,
		Signature: hex.EncodeToString(other.Sum(nil)),
	})
	if !errors.Is(err, ErrPaymentInvalidSignature) {
		t.Fatalf("expected ErrPaymentInvalidSignature, got %v", err)
	}
	if applied {
		t.Fatal("unverified payloads must never reach the store")
	}
}

func TestPaymentServiceProcessWebhookIgnoresOtherEvents(t *testing.T) {
	body := []byte(`{"event":"transfer.success","data":{"reference":"tr_1"}}`)
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: &stubOrderRepo{}})

	result, err := svc.ProcessWebhook(context.Background(), PaymentWebhookCommand{
		Body:      body,
		Signature: signWebhookBody(body),
	})
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if result.Outcome != WebhookIgnored {
		t.Fatalf("expected ignored, got %s", result.Outcome)
	}
}

func TestPaymentServiceProcessWebhookUnknownReference(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"ord_missing"}}`)
	repo := &stubOrderRepo{
		applyFn: func(context.Context, string, time.Time) (repositories.PaymentApplyResult, error) {
			return repositories.PaymentApplyResult{}, repoError{notFound: true}
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: repo})

	result, err := svc.ProcessWebhook(context.Background(), PaymentWebhookCommand{
		Body:      body,
		Signature: signWebhookBody(body),
	})
	if err != nil {
		t.Fatalf("unmatched references are acknowledged, got %v", err)
	}
	if result.Outcome != WebhookUnmatched {
		t.Fatalf("expected unmatched, got %s", result.Outcome)
	}
}

func TestPaymentServiceProcessWebhookMalformedBody(t *testing.T) {
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: &stubOrderRepo{}})

	body := []byte(`{"event":`)
	_, err := svc.ProcessWebhook(context.Background(), PaymentWebhookCommand{
		Body:      body,
		Signature: signWebhookBody(body),
	})
	if !errors.Is(err, ErrPaymentMalformedPayload) {
		t.Fatalf("expected ErrPaymentMalformedPayload, got %v", err)
	}

	if _, err := svc.ProcessWebhook(context.Background(), PaymentWebhookCommand{}); !errors.Is(err, ErrPaymentMalformedPayload) {
		t.Fatalf("expected ErrPaymentMalformedPayload for empty body, got %v", err)
	}
}

func TestPaymentServiceProcessWebhookStoreErrorPropagates(t *testing.T) {
	body := []byte(`{"event":"charge.success","data":{"reference":"ord_1"}}`)
	repo := &stubOrderRepo{
		applyFn: func(context.Context, string, time.Time) (repositories.PaymentApplyResult, error) {
			return repositories.PaymentApplyResult{}, repoError{unavailable: true}
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: repo})

	_, err := svc.ProcessWebhook(context.Background(), PaymentWebhookCommand{
		Body:      body,
		Signature: signWebhookBody(body),
	})
	if err == nil {
		t.Fatal("store failures must surface so the delivery is retried")
	}
}

func TestPaymentServiceVerifySettlesPendingOrder(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	applied := false
	repo := &stubOrderRepo{
		applyFn: func(context.Context, string, time.Time) (repositories.PaymentApplyResult, error) {
			applied = true
			return repositories.PaymentApplyResult{
				Order:   domain.Order{ID: "ord_1", UserID: "user-1", Status: domain.OrderStatusReceived},
				Applied: true,
			}, nil
		},
		findByRefFn: func(_ context.Context, reference string) (domain.Order, error) {
			return domain.Order{ID: "ord_1", UserID: "user-1", Status: domain.OrderStatusReceived, PaystackReference: reference}, nil
		},
	}
	provider := &stubProvider{
		verifyFn: func(_ context.Context, reference string) (payments.TransactionDetails, error) {
			return payments.TransactionDetails{Reference: reference, Status: payments.StatusSuccess, Amount: 300000}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{
		Orders:   repo,
		Provider: provider,
		Clock:    func() time.Time { return now },
	})

	result, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		Reference: "ord_1",
		Actor:     Actor{ID: "user-1"},
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if !result.Settled {
		t.Fatal("expected settled result")
	}
	if !applied {
		t.Fatal("settled verification must apply the payment")
	}
	if result.Order.ID != "ord_1" {
		t.Fatalf("unexpected order %q", result.Order.ID)
	}
}

func TestPaymentServiceVerifyPendingDoesNotApply(t *testing.T) {
	applied := false
	repo := &stubOrderRepo{
		applyFn: func(context.Context, string, time.Time) (repositories.PaymentApplyResult, error) {
			applied = true
			return repositories.PaymentApplyResult{}, nil
		},
		findByRefFn: func(_ context.Context, reference string) (domain.Order, error) {
			return domain.Order{ID: "ord_1", UserID: "user-1", PaystackReference: reference}, nil
		},
	}
	provider := &stubProvider{
		verifyFn: func(_ context.Context, reference string) (payments.TransactionDetails, error) {
			return payments.TransactionDetails{Reference: reference, Status: payments.StatusPending}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: repo, Provider: provider})

	result, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		Reference: "ord_1",
		Actor:     Actor{ID: "user-1"},
	})
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if result.Settled {
		t.Fatal("pending transactions must not report settled")
	}
	if applied {
		t.Fatal("pending transactions must not touch the order")
	}
}

func TestPaymentServiceVerifyForeignActorRejectedBeforeApply(t *testing.T) {
	applied := false
	repo := &stubOrderRepo{
		applyFn: func(context.Context, string, time.Time) (repositories.PaymentApplyResult, error) {
			applied = true
			return repositories.PaymentApplyResult{}, nil
		},
		findByRefFn: func(_ context.Context, reference string) (domain.Order, error) {
			return domain.Order{ID: "ord_1", UserID: "user-1", PaystackReference: reference}, nil
		},
	}
	provider := &stubProvider{
		verifyFn: func(_ context.Context, reference string) (payments.TransactionDetails, error) {
			return payments.TransactionDetails{Reference: reference, Status: payments.StatusSuccess}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: repo, Provider: provider})

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		Reference: "ord_1",
		Actor:     Actor{ID: "user-2"},
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
	if applied {
		t.Fatal("another user's reference must not trigger the settlement apply")
	}
}

func TestPaymentServiceVerifyUnknownReference(t *testing.T) {
	provider := &stubProvider{
		verifyFn: func(context.Context, string) (payments.TransactionDetails, error) {
			return payments.TransactionDetails{}, payments.ErrTransactionNotFound
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: &stubOrderRepo{}, Provider: provider})

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		Reference: "ord_missing",
		Actor:     Actor{ID: "user-1"},
	})
	if !errors.Is(err, ErrPaymentReferenceUnknown) {
		t.Fatalf("expected ErrPaymentReferenceUnknown, got %v", err)
	}
}

func TestPaymentServiceVerifyForbiddenForOtherCustomers(t *testing.T) {
	repo := &stubOrderRepo{
		findByRefFn: func(_ context.Context, reference string) (domain.Order, error) {
			return domain.Order{ID: "ord_1", UserID: "user-1", PaystackReference: reference}, nil
		},
	}
	provider := &stubProvider{
		verifyFn: func(_ context.Context, reference string) (payments.TransactionDetails, error) {
			return payments.TransactionDetails{Reference: reference, Status: payments.StatusFailed}, nil
		},
	}
	svc := newTestPaymentService(t, PaymentServiceDeps{Orders: repo, Provider: provider})

	_, err := svc.VerifyPayment(context.Background(), VerifyPaymentCommand{
		Reference: "ord_1",
		Actor:     Actor{ID: "user-2"},
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden, got %v", err)
	}
}
