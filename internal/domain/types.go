package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPendingConfirmation indicates the order awaits payment confirmation.
	OrderStatusPendingConfirmation OrderStatus = "pending_confirmation"
	// OrderStatusReceived indicates payment settled and the branch accepted the order.
	OrderStatusReceived OrderStatus = "received"
	// OrderStatusPreparing indicates the kitchen is actively preparing the order.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReadyForPickup indicates preparation finished for a take-out order.
	OrderStatusReadyForPickup OrderStatus = "ready_for_pickup"
	// OrderStatusOutForDelivery indicates a rider has collected a delivery order.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusCompleted indicates the order has been handed over to the customer.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled before completion.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus tracks provider-side settlement independently of the order
// status. A payment can succeed after an order was cancelled by a timeout, or
// fail after the order was marked received optimistically.
type PaymentStatus string

const (
	// PaymentStatusPending indicates no settlement has been confirmed yet.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusPaid indicates the provider confirmed a successful charge.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusFailed indicates the provider reported a failed charge.
	PaymentStatusFailed PaymentStatus = "failed"
)

// OrderType distinguishes how the order is fulfilled.
type OrderType string

const (
	// OrderTypeDelivery fulfils the order by courier to a delivery address.
	OrderTypeDelivery OrderType = "delivery"
	// OrderTypeDineIn reserves a table for the given date and guest count.
	OrderTypeDineIn OrderType = "dine_in"
	// OrderTypeTakeOut has the customer collect at the branch at a pickup time.
	OrderTypeTakeOut OrderType = "take_out"
)

// Address captures the delivery destination for delivery orders.
type Address struct {
	Line1  string
	Line2  *string
	City   string
	ZoneID string
	Phone  *string
}

// DineInDetail stores the reservation payload for dine-in orders.
type DineInDetail struct {
	At     time.Time
	Guests int
}

// OrderItem stores a menu line with the unit price snapshotted at order
// creation time, immune to later menu price changes. All money is in minor
// currency units.
type OrderItem struct {
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  int64
}

// Order is the aggregate patched through its lifecycle; it is created exactly
// once (direct checkout or shared-cart conversion) and only patched afterwards.
type Order struct {
	ID          string
	OrderNumber string
	BranchID    string
	UserID      string
	CartRef     *string
	Status      OrderStatus
	Payment     PaymentStatus
	// PaystackReference is the provider transaction reference, set once at
	// payment initialization. At most one order carries a given non-empty
	// reference; it is the join key for webhook deliveries.
	PaystackReference string
	OrderType         OrderType
	DeliveryAddress   *Address
	PickupTime        *time.Time
	DineIn            *DineInDetail
	Items             []OrderItem
	TotalAmount       int64
	DiscountAmount    int64
	DeliveryFee       int64
	AppliedPromoID    *string
	CancelReason      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	PaidAt            *time.Time
	CompletedAt       *time.Time
	CancelledAt       *time.Time
	RefundedAt        *time.Time
}

// SharedCartStatus enumerates lifecycle states for shared carts.
type SharedCartStatus string

const (
	// SharedCartStatusOpen accepts joins and item mutations.
	SharedCartStatusOpen SharedCartStatus = "open"
	// SharedCartStatusCheckedOut means the cart was converted into an order.
	SharedCartStatusCheckedOut SharedCartStatus = "checked_out"
	// SharedCartStatusExpired means the reaper closed an idle cart.
	SharedCartStatusExpired SharedCartStatus = "expired"
	// SharedCartStatusCancelled means a participant abandoned the cart.
	SharedCartStatusCancelled SharedCartStatus = "cancelled"
)

// PaymentMode records who settles a shared cart at checkout.
type PaymentMode string

const (
	// PaymentModeInitiatorPays bills the cart initiator for the full order.
	PaymentModeInitiatorPays PaymentMode = "initiator_pays"
	// PaymentModeSplit records intent to split settlement between members.
	PaymentModeSplit PaymentMode = "split"
)

// SharedCartItem is a line owned by one participant. Two lines with the same
// (UserID, MenuItemID) pair are illegal; mutations merge into one line.
type SharedCartItem struct {
	UserID     string
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  int64
}

// SharedCart aggregates a multi-participant cart joined via invite code.
type SharedCart struct {
	ID          string
	BranchID    string
	OrderType   OrderType
	PaymentMode PaymentMode
	// InviteCode is a short unique case-insensitive token. Anyone holding the
	// code can join; cart contents are visible to any holder of the link.
	InviteCode       string
	InitiatorID      string
	Members          []string
	Items            []SharedCartItem
	Status           SharedCartStatus
	ResultingOrderID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ExpiresAt        time.Time
}

// HasMember reports whether the user already joined the cart.
func (c SharedCart) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// DiscountType selects how a promotion value is applied.
type DiscountType string

const (
	// DiscountTypePercentage applies DiscountValue as a percentage of the subtotal.
	DiscountTypePercentage DiscountType = "percentage"
	// DiscountTypeFixed subtracts DiscountValue minor units, capped at the subtotal.
	DiscountTypeFixed DiscountType = "fixed"
)

// Promotion describes a discount code with an optional usage budget.
// Invariant: UsageCount never exceeds UsageLimit when a limit is set.
type Promotion struct {
	ID             string
	Code           string
	DiscountType   DiscountType
	DiscountValue  int64
	IsActive       bool
	StartsAt       *time.Time
	EndsAt         *time.Time
	UsageLimit     *int
	UsageCount     int
	MinOrderAmount int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeliveryZone stores per-zone delivery fees; the pricing engine selects the
// peak fee when the order timestamp falls inside a configured peak window.
type DeliveryZone struct {
	ID        string
	Name      string
	BaseFee   int64
	PeakFee   int64
	IsActive  bool
	UpdatedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
