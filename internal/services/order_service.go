package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/payments"
	"github.com/plateful/api/internal/repositories"
)

const (
	orderEventCreated          = "order.created"
	orderEventStatusChanged    = "order.status.changed"
	orderEventPaymentConfirmed = "order.payment.confirmed"

	orderIDPrefix = "ord_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates an invalid status transition was attempted.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderForbidden indicates the actor does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderRefundUnavailable indicates a refund was required but cannot be issued.
	ErrOrderRefundUnavailable = errors.New("order: refund unavailable")
)

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPendingConfirmation: {domain.OrderStatusReceived, domain.OrderStatusCancelled},
	domain.OrderStatusReceived:            {domain.OrderStatusPreparing, domain.OrderStatusCancelled},
	domain.OrderStatusPreparing:           {domain.OrderStatusReadyForPickup, domain.OrderStatusOutForDelivery, domain.OrderStatusCancelled},
	domain.OrderStatusReadyForPickup:      {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
	domain.OrderStatusOutForDelivery:      {domain.OrderStatusCompleted, domain.OrderStatusCancelled},
}

var terminalStatuses = []OrderStatus{
	domain.OrderStatusCompleted,
	domain.OrderStatusCancelled,
}

// refundableStatuses are the states in which money has settled and a
// cancellation must return it.
var refundableStatuses = []OrderStatus{
	domain.OrderStatusReceived,
	domain.OrderStatusPreparing,
	domain.OrderStatusReadyForPickup,
	domain.OrderStatusOutForDelivery,
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders   repositories.OrderRepository
	Provider payments.Provider
	Clock    func() time.Time
	Events   OrderEventPublisher
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	provider payments.Provider
	clock    func() time.Time
	events   OrderEventPublisher
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		provider: deps.Provider,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) ListOrders(ctx context.Context, actor Actor, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if !actor.Admin {
		// Customers only ever see their own orders.
		filter.UserID = actor.ID
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, mapOrderRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if !actor.Admin && order.UserID != actor.ID {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderForbidden, orderID)
	}
	return order, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if !validOrderStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}
	if target == domain.OrderStatusCancelled {
		return Order{}, fmt.Errorf("%w: use the cancel operation to cancel orders", ErrOrderInvalidInput)
	}
	if cmd.Force && !cmd.Actor.Admin {
		return Order{}, fmt.Errorf("%w: forced transitions require admin", ErrOrderForbidden)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	if order.Status == target {
		return order, nil
	}
	if slices.Contains(terminalStatuses, order.Status) {
		return Order{}, fmt.Errorf("%w: %s is terminal", ErrOrderInvalidTransition, order.Status)
	}
	if !cmd.Force && !canTransition(order.Status, target) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidTransition, order.Status, target)
	}

	now := s.clock()
	prev := order.Status
	patch := buildStatusPatch(order, target, now)

	updated, err := s.orders.PatchStatus(ctx, orderID, prev, patch)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(prev),
		CurrentStatus:  string(updated.Status),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     now,
		Metadata:       transitionMetadata(cmd.Reason, cmd.Force),
	})

	return updated, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.SkipRefund && !cmd.Actor.Admin {
		return Order{}, fmt.Errorf("%w: skipping refunds requires admin", ErrOrderForbidden)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if !cmd.Actor.Admin && order.UserID != cmd.Actor.ID {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderForbidden, orderID)
	}
	if slices.Contains(terminalStatuses, order.Status) {
		return Order{}, fmt.Errorf("%w: %s is terminal", ErrOrderInvalidTransition, order.Status)
	}

	now := s.clock()
	prev := order.Status
	reason := strings.TrimSpace(cmd.Reason)

	var refundedAt *time.Time
	if slices.Contains(refundableStatuses, order.Status) && !cmd.SkipRefund {
		if strings.TrimSpace(order.PaystackReference) == "" {
			return Order{}, fmt.Errorf("%w: order %s has no payment reference", ErrOrderRefundUnavailable, orderID)
		}
		if s.provider == nil {
			return Order{}, fmt.Errorf("%w: payment provider not configured", ErrOrderRefundUnavailable)
		}
		// Refund before mutating the order; the merchant reference keeps a
		// retried cancel from refunding twice.
		if _, err := s.provider.Refund(ctx, payments.RefundRequest{
			Reference:         order.PaystackReference,
			MerchantReference: "refund:" + order.ID,
			Reason:            reason,
		}); err != nil {
			return Order{}, fmt.Errorf("%w: %v", ErrOrderRefundUnavailable, err)
		}
		refundedAt = &now
	}

	patch := repositories.OrderPatch{
		Status:       domain.OrderStatusCancelled,
		CancelReason: optionalString(reason),
		UpdatedAt:    now,
		CancelledAt:  &now,
		RefundedAt:   refundedAt,
	}

	updated, err := s.orders.PatchStatus(ctx, orderID, prev, patch)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	metadata := transitionMetadata(reason, cmd.SkipRefund)
	if refundedAt != nil {
		metadata = ensureMap(metadata)
		metadata["refunded"] = true
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        updated.ID,
		OrderNumber:    updated.OrderNumber,
		PreviousStatus: string(prev),
		CurrentStatus:  string(updated.Status),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     now,
		Metadata:       metadata,
	})

	return updated, nil
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	publishOrderEvent(ctx, s.events, s.logger, event)
}

// buildStatusPatch assembles the single document patch a transition writes,
// including per-status timestamp bookkeeping.
func buildStatusPatch(order Order, target OrderStatus, now time.Time) repositories.OrderPatch {
	patch := repositories.OrderPatch{
		Status:    target,
		UpdatedAt: now,
	}
	switch target {
	case domain.OrderStatusReceived:
		if order.Payment != domain.PaymentStatusPaid {
			paid := domain.PaymentStatusPaid
			patch.Payment = &paid
			patch.PaidAt = &now
		}
	case domain.OrderStatusCompleted:
		patch.CompletedAt = &now
	case domain.OrderStatusCancelled:
		patch.CancelledAt = &now
	}
	return patch
}

func canTransition(current, target OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func validOrderStatus(status OrderStatus) bool {
	switch status {
	case domain.OrderStatusPendingConfirmation,
		domain.OrderStatusReceived,
		domain.OrderStatusPreparing,
		domain.OrderStatusReadyForPickup,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled:
		return true
	}
	return false
}

func transitionMetadata(reason string, forced bool) map[string]any {
	metadata := map[string]any{}
	if reason != "" {
		metadata["reason"] = reason
	}
	if forced {
		metadata["forced"] = true
	}
	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func publishOrderEvent(ctx context.Context, events OrderEventPublisher, logger func(context.Context, string, map[string]any), event OrderEvent) {
	if events == nil {
		return
	}
	if err := events.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

func ensureMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	return src
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}

func valuePtr[T any](v T) *T {
	return &v
}
