package services

import (
	"context"
	"time"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	OrderType          = domain.OrderType
	PaymentStatus      = domain.PaymentStatus
	PaymentMode        = domain.PaymentMode
	Address            = domain.Address
	DineInDetail       = domain.DineInDetail
	SharedCart         = domain.SharedCart
	SharedCartItem     = domain.SharedCartItem
	SharedCartStatus   = domain.SharedCartStatus
	Promotion          = domain.Promotion
	DeliveryZone       = domain.DeliveryZone
	PricingBreakdown   = domain.PricingBreakdown
	LinePricing        = domain.LinePricing
	SystemHealthReport = domain.SystemHealthReport
)

// OrderListFilter re-exports the repository filter for handler use.
type OrderListFilter = repositories.OrderListFilter

// Actor identifies the authenticated caller for authorisation checks.
type Actor struct {
	ID    string
	Admin bool
}

// CheckoutService prices submitted items, creates the order, and opens a
// payment authorization with the PSP.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// OrderService encapsulates order read flows and lifecycle transitions.
type OrderService interface {
	ListOrders(ctx context.Context, actor Actor, filter OrderListFilter) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// PaymentService handles idempotent PSP webhook processing and synchronous verification.
type PaymentService interface {
	ProcessWebhook(ctx context.Context, cmd PaymentWebhookCommand) (PaymentWebhookResult, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error)
}

// SharedCartService coordinates multi-participant carts from creation to checkout.
type SharedCartService interface {
	Create(ctx context.Context, cmd CreateSharedCartCommand) (SharedCart, error)
	Join(ctx context.Context, cmd JoinSharedCartCommand) (SharedCart, error)
	Get(ctx context.Context, actor Actor, cartID string) (SharedCart, error)
	AddItem(ctx context.Context, cmd SharedCartItemCommand) (SharedCart, error)
	UpdateItem(ctx context.Context, cmd SharedCartItemCommand) (SharedCart, error)
	Checkout(ctx context.Context, cmd SharedCartCheckoutCommand) (CheckoutResult, error)
	ReapExpired(ctx context.Context) (int, error)
}

// PromotionService validates promo codes and guards usage budgets.
type PromotionService interface {
	Validate(ctx context.Context, cmd ValidatePromotionCommand) (PromotionValidationResult, error)
	ReserveUsage(ctx context.Context, promoID string) (Promotion, error)
	ReleaseUsage(ctx context.Context, promoID string)
}

// SystemService aggregates utility endpoints (health checks).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

// CheckoutItem is a submitted order line with the menu price snapshot.
type CheckoutItem struct {
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  int64
}

// CheckoutCommand carries everything needed to create and authorise an order.
type CheckoutCommand struct {
	PayerID         string
	Email           string
	BranchID        string
	OrderType       OrderType
	Items           []CheckoutItem
	DeliveryAddress *Address
	PickupTime      *time.Time
	DineIn          *DineInDetail
	PromoCode       *string
	CartRef         *string
}

// CheckoutResult bundles the created order with the PSP authorization handle.
type CheckoutResult struct {
	Order            Order
	AuthorizationURL string
	AccessCode       string
	// PromotionSkipped is set when a promo code was supplied but could not be
	// applied; the order proceeds at full price.
	PromotionSkipped       bool
	PromotionSkippedReason string
	// AlreadyCheckedOut indicates a shared-cart checkout race was lost and the
	// returned order belongs to the winning checkout.
	AlreadyCheckedOut bool
}

// OrderStatusTransitionCommand moves an order along its lifecycle. Force
// allows admins to bypass the forward graph for non-terminal orders.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	Actor        Actor
	Force        bool
	Reason       string
}

// CancelOrderCommand cancels an order, refunding settled payments. SkipRefund
// lets admins force-cancel without touching the PSP.
type CancelOrderCommand struct {
	OrderID    string
	Actor      Actor
	Reason     string
	SkipRefund bool
}

// PaymentWebhookCommand carries the raw webhook delivery. Body must be the
// exact bytes received so signature verification is meaningful.
type PaymentWebhookCommand struct {
	Body      []byte
	Signature string
}

// PaymentWebhookOutcome classifies how a webhook delivery was handled.
type PaymentWebhookOutcome string

const (
	// WebhookApplied means the payment was recorded and the order advanced.
	WebhookApplied PaymentWebhookOutcome = "applied"
	// WebhookDuplicate means the payment had already been recorded.
	WebhookDuplicate PaymentWebhookOutcome = "duplicate"
	// WebhookIgnored means the event type is not consumed by this service.
	WebhookIgnored PaymentWebhookOutcome = "ignored"
	// WebhookUnmatched means no order corresponds to the delivery.
	WebhookUnmatched PaymentWebhookOutcome = "unmatched"
)

// PaymentWebhookResult reports the webhook processing outcome.
type PaymentWebhookResult struct {
	Outcome PaymentWebhookOutcome
	OrderID string
}

// VerifyPaymentCommand requests a synchronous settlement check with the PSP.
type VerifyPaymentCommand struct {
	Reference string
	Actor     Actor
}

// VerifyPaymentResult reports the provider status alongside the local order.
type VerifyPaymentResult struct {
	Order          Order
	ProviderStatus string
	Settled        bool
}

// CreateSharedCartCommand opens a shared cart.
type CreateSharedCartCommand struct {
	InitiatorID string
	BranchID    string
	OrderType   OrderType
	PaymentMode PaymentMode
}

// JoinSharedCartCommand joins the caller to the cart behind the invite code.
type JoinSharedCartCommand struct {
	InviteCode string
	UserID     string
}

// SharedCartItemCommand mutates one participant-owned line. Quantity is a
// signed delta merged into the existing line; a result at or below zero
// removes the line. AddItem additionally requires the delta to be positive.
type SharedCartItemCommand struct {
	CartID     string
	UserID     string
	MenuItemID string
	Name       string
	UnitPrice  int64
	Quantity   int
}

// SharedCartCheckoutCommand converts the cart into an order.
type SharedCartCheckoutCommand struct {
	CartID          string
	Actor           Actor
	Email           string
	DeliveryAddress *Address
	PickupTime      *time.Time
	DineIn          *DineInDetail
	PromoCode       *string
}

// ValidatePromotionCommand checks a code against an order subtotal.
type ValidatePromotionCommand struct {
	Code     string
	Subtotal int64
}

// PromotionValidationResult reports eligibility and the computed discount.
type PromotionValidationResult struct {
	Eligible       bool
	Reason         string
	Promotion      Promotion
	DiscountAmount int64
}
