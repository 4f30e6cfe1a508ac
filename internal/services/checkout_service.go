package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/payments"
	"github.com/plateful/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput signals the caller provided invalid data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutPaymentInit indicates the PSP could not open an authorization.
	ErrCheckoutPaymentInit = errors.New("checkout: payment initialization failed")
)

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Pricing     *PricingEngine
	Promotions  PromotionService
	Provider    payments.Provider
	UnitOfWork  repositories.UnitOfWork
	Currency    string
	CallbackURL string
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	orders      repositories.OrderRepository
	counters    repositories.CounterRepository
	pricing     *PricingEngine
	promotions  PromotionService
	provider    payments.Provider
	unitOfWork  repositories.UnitOfWork
	currency    string
	callbackURL string
	clock       func() time.Time
	newID       func() string
	events      OrderEventPublisher
	logger      func(context.Context, string, map[string]any)
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "NGN"
	}

	return &checkoutService{
		orders:      deps.Orders,
		counters:    deps.Counters,
		pricing:     deps.Pricing,
		promotions:  deps.Promotions,
		provider:    deps.Provider,
		unitOfWork:  unit,
		currency:    currency,
		callbackURL: strings.TrimSpace(deps.CallbackURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	if err := validateCheckoutCommand(cmd); err != nil {
		return CheckoutResult{}, err
	}

	now := s.clock()
	result := CheckoutResult{}

	var promo *Promotion
	var subtotal int64
	for _, item := range cmd.Items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}

	if cmd.PromoCode != nil && strings.TrimSpace(*cmd.PromoCode) != "" {
		applied, skippedReason, err := s.resolvePromotion(ctx, *cmd.PromoCode, subtotal)
		if err != nil {
			return CheckoutResult{}, err
		}
		if applied != nil {
			promo = applied
		} else {
			result.PromotionSkipped = true
			result.PromotionSkippedReason = skippedReason
		}
	}

	zoneID := ""
	if cmd.DeliveryAddress != nil {
		zoneID = cmd.DeliveryAddress.ZoneID
	}

	lines := make([]PricingLine, 0, len(cmd.Items))
	for _, item := range cmd.Items {
		lines = append(lines, PricingLine{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}

	breakdown, err := s.pricing.Calculate(ctx, PriceOrderCommand{
		Lines:     lines,
		OrderType: cmd.OrderType,
		ZoneID:    zoneID,
		Promotion: promo,
		At:        now,
	})
	if err != nil {
		s.releasePromotion(ctx, promo)
		return CheckoutResult{}, err
	}

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		s.releasePromotion(ctx, promo)
		return CheckoutResult{}, err
	}

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		OrderNumber:     number,
		BranchID:        strings.TrimSpace(cmd.BranchID),
		UserID:          strings.TrimSpace(cmd.PayerID),
		CartRef:         cmd.CartRef,
		Status:          domain.OrderStatusPendingConfirmation,
		Payment:         domain.PaymentStatusPending,
		OrderType:       cmd.OrderType,
		DeliveryAddress: cloneAddress(cmd.DeliveryAddress),
		PickupTime:      cmd.PickupTime,
		DineIn:          cloneDineIn(cmd.DineIn),
		Items:           buildOrderItems(cmd.Items),
		TotalAmount:     breakdown.Total,
		DiscountAmount:  breakdown.Discount,
		DeliveryFee:     breakdown.DeliveryFee,
		AppliedPromoID:  breakdown.PromoID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	// The order id doubles as the PSP transaction reference; the webhook
	// joins deliveries back to the order through it.
	order.PaystackReference = order.ID

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapOrderRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		s.releasePromotion(ctx, promo)
		return CheckoutResult{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       cmd.PayerID,
		OccurredAt:    now,
	})

	authorization, err := s.provider.InitializeTransaction(ctx, payments.InitializeRequest{
		Email:       cmd.Email,
		Amount:      breakdown.Total,
		Currency:    s.currency,
		Reference:   order.PaystackReference,
		CallbackURL: s.callbackURL,
		Metadata: payments.ChargeMetadata{
			OrderID: order.ID,
			UserID:  order.UserID,
			CartID:  derefString(cmd.CartRef),
		},
	})
	if err != nil {
		s.compensateFailedInit(ctx, order, promo, err)
		return CheckoutResult{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentInit, err)
	}

	result.Order = order
	result.AuthorizationURL = authorization.AuthorizationURL
	result.AccessCode = authorization.AccessCode
	return result, nil
}

// resolvePromotion validates and reserves a usage. A missing, ineligible, or
// exhausted promotion never fails the checkout; the order proceeds at full
// price with the skip reason reported to the caller.
func (s *checkoutService) resolvePromotion(ctx context.Context, code string, subtotal int64) (*Promotion, string, error) {
	if s.promotions == nil {
		return nil, "promotions disabled", nil
	}

	validation, err := s.promotions.Validate(ctx, ValidatePromotionCommand{Code: code, Subtotal: subtotal})
	if err != nil {
		return nil, "", err
	}
	if !validation.Eligible {
		return nil, validation.Reason, nil
	}

	reserved, err := s.promotions.ReserveUsage(ctx, validation.Promotion.ID)
	if err != nil {
		if errors.Is(err, ErrPromotionLimitExceeded) || errors.Is(err, ErrPromotionNotFound) {
			return nil, "usage limit exhausted", nil
		}
		return nil, "", err
	}
	return &reserved, "", nil
}

func (s *checkoutService) releasePromotion(ctx context.Context, promo *Promotion) {
	if promo == nil || s.promotions == nil {
		return
	}
	s.promotions.ReleaseUsage(ctx, promo.ID)
}

// compensateFailedInit unwinds an order whose payment authorization could not
// be opened: the reserved promotion usage is returned and the order cancelled.
func (s *checkoutService) compensateFailedInit(ctx context.Context, order Order, promo *Promotion, cause error) {
	s.releasePromotion(ctx, promo)

	now := s.clock()
	reason := "payment initialization failed"
	if _, err := s.orders.PatchStatus(ctx, order.ID, order.Status, repositories.OrderPatch{
		Status:       domain.OrderStatusCancelled,
		CancelReason: &reason,
		UpdatedAt:    now,
		CancelledAt:  &now,
	}); err != nil {
		s.logger(ctx, "checkout.compensation.failed", map[string]any{
			"orderId": order.ID,
			"cause":   cause.Error(),
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PF-%04d-%06d", now.Year(), seq), nil
}

func (s *checkoutService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *checkoutService) publishEvent(ctx context.Context, event OrderEvent) {
	publishOrderEvent(ctx, s.events, s.logger, event)
}

func validateCheckoutCommand(cmd CheckoutCommand) error {
	if strings.TrimSpace(cmd.PayerID) == "" {
		return fmt.Errorf("%w: payer id is required", ErrCheckoutInvalidInput)
	}
	if strings.TrimSpace(cmd.BranchID) == "" {
		return fmt.Errorf("%w: branch id is required", ErrCheckoutInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrCheckoutInvalidInput)
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.MenuItemID) == "" {
			return fmt.Errorf("%w: item menu id is required", ErrCheckoutInvalidInput)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %s quantity must be positive", ErrCheckoutInvalidInput, item.MenuItemID)
		}
		if item.UnitPrice < 0 {
			return fmt.Errorf("%w: item %s unit price cannot be negative", ErrCheckoutInvalidInput, item.MenuItemID)
		}
	}

	switch cmd.OrderType {
	case domain.OrderTypeDelivery:
		if cmd.DeliveryAddress == nil {
			return fmt.Errorf("%w: delivery orders require an address", ErrCheckoutInvalidInput)
		}
		if strings.TrimSpace(cmd.DeliveryAddress.ZoneID) == "" {
			return fmt.Errorf("%w: delivery address requires a zone id", ErrCheckoutInvalidInput)
		}
		if cmd.PickupTime != nil || cmd.DineIn != nil {
			return fmt.Errorf("%w: delivery orders carry only a delivery address", ErrCheckoutInvalidInput)
		}
	case domain.OrderTypeTakeOut:
		if cmd.PickupTime == nil {
			return fmt.Errorf("%w: take-out orders require a pickup time", ErrCheckoutInvalidInput)
		}
		if cmd.DeliveryAddress != nil || cmd.DineIn != nil {
			return fmt.Errorf("%w: take-out orders carry only a pickup time", ErrCheckoutInvalidInput)
		}
	case domain.OrderTypeDineIn:
		if cmd.DineIn == nil {
			return fmt.Errorf("%w: dine-in orders require reservation details", ErrCheckoutInvalidInput)
		}
		if cmd.DineIn.Guests <= 0 {
			return fmt.Errorf("%w: dine-in guest count must be positive", ErrCheckoutInvalidInput)
		}
		if cmd.DeliveryAddress != nil || cmd.PickupTime != nil {
			return fmt.Errorf("%w: dine-in orders carry only reservation details", ErrCheckoutInvalidInput)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrCheckoutInvalidInput, cmd.OrderType)
	}

	return nil
}

func buildOrderItems(items []CheckoutItem) []OrderItem {
	lines := make([]OrderItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, OrderItem{
			MenuItemID: strings.TrimSpace(item.MenuItemID),
			Name:       strings.TrimSpace(item.Name),
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return lines
}

func cloneAddress(addr *Address) *Address {
	if addr == nil {
		return nil
	}
	cloned := *addr
	return &cloned
}

func cloneDineIn(detail *DineInDetail) *DineInDetail {
	if detail == nil {
		return nil
	}
	cloned := *detail
	return &cloned
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
