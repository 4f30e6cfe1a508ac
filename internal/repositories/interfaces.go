package repositories

import (
	"context"
	"time"

	domain "github.com/plateful/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	SharedCarts() SharedCartRepository
	Promotions() PromotionRepository
	DeliveryZones() DeliveryZoneRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows order listings for user and admin surfaces.
type OrderListFilter struct {
	UserID     string
	BranchID   string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// OrderPatch carries the mutable order fields written by a status transition.
// Every transition is a single atomic patch of the order document.
type OrderPatch struct {
	Status            domain.OrderStatus
	Payment           *domain.PaymentStatus
	PaystackReference *string
	CancelReason      *string
	UpdatedAt         time.Time
	PaidAt            *time.Time
	CompletedAt       *time.Time
	CancelledAt       *time.Time
	RefundedAt        *time.Time
}

// PaymentApplyResult reports the outcome of an idempotent payment apply.
type PaymentApplyResult struct {
	Order   domain.Order
	Applied bool
}

// OrderRepository persists order aggregates and provides the indexed lookups
// the webhook processor depends on.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// FindByPaymentReference resolves the unique order carrying the provider
	// reference. At most one order may hold a given non-empty reference.
	FindByPaymentReference(ctx context.Context, reference string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// PatchStatus applies the patch inside a transaction, gated on the order
	// still being in expectedStatus. A stale precondition surfaces as a
	// conflict and leaves the document unchanged.
	PatchStatus(ctx context.Context, orderID string, expectedStatus domain.OrderStatus, patch OrderPatch) (domain.Order, error)
	// ApplyPayment marks the order paid and advances it to received as one
	// transactional read-check-write keyed by the provider reference. When the
	// order is already paid the call is a no-op with Applied=false, making
	// duplicate webhook deliveries safe.
	ApplyPayment(ctx context.Context, reference string, paidAt time.Time) (PaymentApplyResult, error)
}

// ItemMutation adjusts one participant-owned line inside a shared cart.
type ItemMutation struct {
	UserID     string
	MenuItemID string
	Name       string
	UnitPrice  int64
	// DeltaQuantity is added to the existing line quantity and may be
	// negative; results of zero or below remove the line.
	DeltaQuantity int
}

// CheckoutCompletion links the cart to its resulting order while flipping it
// from open to checked out with an is-still-open precondition.
type CheckoutCompletion struct {
	OrderID     string
	CompletedAt time.Time
}

// SharedCartRepository persists shared carts with per-document transactional
// guarantees; concurrent line edits must not lose updates.
type SharedCartRepository interface {
	Insert(ctx context.Context, cart domain.SharedCart) error
	FindByID(ctx context.Context, cartID string) (domain.SharedCart, error)
	// FindByInviteCode resolves a cart by its normalised invite code.
	FindByInviteCode(ctx context.Context, code string) (domain.SharedCart, error)
	// AddMember appends the user to the member set if the cart is still open.
	// Joining twice is a no-op.
	AddMember(ctx context.Context, cartID string, userID string, now time.Time) (domain.SharedCart, error)
	// MutateItem applies a single line mutation as a transactional
	// read-modify-write on the cart document, merging by (userID, menuItemID).
	MutateItem(ctx context.Context, cartID string, mut ItemMutation, now time.Time) (domain.SharedCart, error)
	// CompleteCheckout flips open -> checked_out and records the resulting
	// order id, failing with a conflict if the cart is no longer open.
	CompleteCheckout(ctx context.Context, cartID string, completion CheckoutCompletion) (domain.SharedCart, error)
	// ExpireOpenCartsBefore transitions open carts whose ExpiresAt has passed
	// to expired and returns how many were reaped.
	ExpireOpenCartsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// PromotionRepository maintains promotion definitions and the atomic usage
// counter that enforces usage limits under concurrent checkouts.
type PromotionRepository interface {
	Insert(ctx context.Context, promotion domain.Promotion) error
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	// ReserveUsage atomically checks usageCount < usageLimit and increments.
	// Exhausted budgets surface as a conflict without mutating the counter.
	ReserveUsage(ctx context.Context, promoID string, now time.Time) (domain.Promotion, error)
	// ReleaseUsage decrements the counter after a checkout that reserved a
	// usage failed to persist its order.
	ReleaseUsage(ctx context.Context, promoID string, now time.Time) error
}

// DeliveryZoneRepository reads the fee table used by the pricing engine.
type DeliveryZoneRepository interface {
	FindByID(ctx context.Context, zoneID string) (domain.DeliveryZone, error)
	List(ctx context.Context) ([]domain.DeliveryZone, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
