package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

const (
	sharedCartIDPrefix = "gc_"

	// inviteCodeAlphabet avoids characters that read ambiguously (0/O, 1/I/L).
	inviteCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	inviteCodeLength   = 6

	inviteCodeInsertAttempts = 5
)

var (
	// ErrCartInvalidInput signals the caller provided invalid data.
	ErrCartInvalidInput = errors.New("shared cart: invalid input")
	// ErrCartNotFound indicates the cart could not be located.
	ErrCartNotFound = errors.New("shared cart: not found")
	// ErrCartClosed indicates the cart no longer accepts joins or mutations.
	ErrCartClosed = errors.New("shared cart: closed")
	// ErrCartForbidden indicates the actor is not a member of the cart.
	ErrCartForbidden = errors.New("shared cart: forbidden")
)

// SharedCartServiceDeps bundles collaborators required to construct the shared cart service.
type SharedCartServiceDeps struct {
	Carts       repositories.SharedCartRepository
	Orders      repositories.OrderRepository
	Checkout    CheckoutService
	Promotions  PromotionService
	TTL         time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type sharedCartService struct {
	carts      repositories.SharedCartRepository
	orders     repositories.OrderRepository
	checkout   CheckoutService
	promotions PromotionService
	ttl        time.Duration
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewSharedCartService wires dependencies into a concrete SharedCartService implementation.
func NewSharedCartService(deps SharedCartServiceDeps) (SharedCartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("shared cart service: cart repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("shared cart service: order repository is required")
	}
	if deps.Checkout == nil {
		return nil, errors.New("shared cart service: checkout service is required")
	}

	ttl := deps.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
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

	return &sharedCartService{
		carts:      deps.Carts,
		orders:     deps.Orders,
		checkout:   deps.Checkout,
		promotions: deps.Promotions,
		ttl:        ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *sharedCartService) Create(ctx context.Context, cmd CreateSharedCartCommand) (SharedCart, error) {
	initiator := strings.TrimSpace(cmd.InitiatorID)
	if initiator == "" {
		return SharedCart{}, fmt.Errorf("%w: initiator id is required", ErrCartInvalidInput)
	}
	branch := strings.TrimSpace(cmd.BranchID)
	if branch == "" {
		return SharedCart{}, fmt.Errorf("%w: branch id is required", ErrCartInvalidInput)
	}
	switch cmd.OrderType {
	case domain.OrderTypeDelivery, domain.OrderTypeDineIn, domain.OrderTypeTakeOut:
	default:
		return SharedCart{}, fmt.Errorf("%w: unknown order type %q", ErrCartInvalidInput, cmd.OrderType)
	}
	mode := cmd.PaymentMode
	if mode == "" {
		mode = domain.PaymentModeInitiatorPays
	}
	if mode != domain.PaymentModeInitiatorPays && mode != domain.PaymentModeSplit {
		return SharedCart{}, fmt.Errorf("%w: unknown payment mode %q", ErrCartInvalidInput, mode)
	}

	now := s.clock()
	cart := SharedCart{
		ID:          sharedCartIDPrefix + s.newID(),
		BranchID:    branch,
		OrderType:   cmd.OrderType,
		PaymentMode: mode,
		InitiatorID: initiator,
		Members:     []string{initiator},
		Status:      domain.SharedCartStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	// Invite codes are unique; regenerate and retry when a collision surfaces.
	var lastErr error
	for attempt := 0; attempt < inviteCodeInsertAttempts; attempt++ {
		cart.InviteCode = newInviteCode()
		err := s.carts.Insert(ctx, cart)
		if err == nil {
			return cart, nil
		}
		lastErr = err
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			return SharedCart{}, mapCartRepositoryError(err)
		}
	}
	return SharedCart{}, mapCartRepositoryError(lastErr)
}

func (s *sharedCartService) Join(ctx context.Context, cmd JoinSharedCartCommand) (SharedCart, error) {
	code := NormalizeInviteCode(cmd.InviteCode)
	if code == "" {
		return SharedCart{}, fmt.Errorf("%w: invite code is required", ErrCartInvalidInput)
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return SharedCart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.FindByInviteCode(ctx, code)
	if err != nil {
		return SharedCart{}, mapCartRepositoryError(err)
	}

	// Joining twice is a no-op, regardless of cart state.
	if cart.HasMember(userID) {
		return cart, nil
	}
	if cart.Status != domain.SharedCartStatusOpen {
		return SharedCart{}, fmt.Errorf("%w: %s", ErrCartClosed, cart.ID)
	}

	updated, err := s.carts.AddMember(ctx, cart.ID, userID, s.clock())
	if err != nil {
		return SharedCart{}, mapCartRepositoryError(err)
	}
	return updated, nil
}

func (s *sharedCartService) Get(ctx context.Context, actor Actor, cartID string) (SharedCart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return SharedCart{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return SharedCart{}, mapCartRepositoryError(err)
	}
	if !actor.Admin && !cart.HasMember(actor.ID) {
		return SharedCart{}, fmt.Errorf("%w: %s", ErrCartForbidden, cartID)
	}
	return cart, nil
}

func (s *sharedCartService) AddItem(ctx context.Context, cmd SharedCartItemCommand) (SharedCart, error) {
	if err := validateItemCommand(cmd, true); err != nil {
		return SharedCart{}, err
	}
	return s.mutateItem(ctx, cmd, repositories.ItemMutation{
		UserID:        cmd.UserID,
		MenuItemID:    cmd.MenuItemID,
		Name:          cmd.Name,
		UnitPrice:     cmd.UnitPrice,
		DeltaQuantity: cmd.Quantity,
	})
}

func (s *sharedCartService) UpdateItem(ctx context.Context, cmd SharedCartItemCommand) (SharedCart, error) {
	if err := validateItemCommand(cmd, false); err != nil {
		return SharedCart{}, err
	}
	return s.mutateItem(ctx, cmd, repositories.ItemMutation{
		UserID:        cmd.UserID,
		MenuItemID:    cmd.MenuItemID,
		Name:          cmd.Name,
		UnitPrice:     cmd.UnitPrice,
		DeltaQuantity: cmd.Quantity,
	})
}

func (s *sharedCartService) mutateItem(ctx context.Context, cmd SharedCartItemCommand, mut repositories.ItemMutation) (SharedCart, error) {
	cart, err := s.carts.FindByID(ctx, cmd.CartID)
	if err != nil {
		return SharedCart{}, mapCartRepositoryError(err)
	}
	if !cart.HasMember(cmd.UserID) {
		return SharedCart{}, fmt.Errorf("%w: %s", ErrCartForbidden, cmd.CartID)
	}
	if cart.Status != domain.SharedCartStatusOpen {
		return SharedCart{}, fmt.Errorf("%w: %s", ErrCartClosed, cmd.CartID)
	}

	updated, err := s.carts.MutateItem(ctx, cart.ID, mut, s.clock())
	if err != nil {
		return SharedCart{}, mapCartRepositoryError(err)
	}
	return updated, nil
}

func (s *sharedCartService) Checkout(ctx context.Context, cmd SharedCartCheckoutCommand) (CheckoutResult, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	if cartID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return CheckoutResult{}, mapCartRepositoryError(err)
	}
	if !cart.HasMember(cmd.Actor.ID) {
		return CheckoutResult{}, fmt.Errorf("%w: %s", ErrCartForbidden, cartID)
	}

	if cart.Status == domain.SharedCartStatusCheckedOut && cart.ResultingOrderID != nil {
		return s.resultForWinner(ctx, *cart.ResultingOrderID)
	}
	if cart.Status != domain.SharedCartStatusOpen {
		return CheckoutResult{}, fmt.Errorf("%w: %s", ErrCartClosed, cartID)
	}
	if len(cart.Items) == 0 {
		return CheckoutResult{}, fmt.Errorf("%w: cart has no items", ErrCartInvalidInput)
	}

	payer := cart.InitiatorID
	if cart.PaymentMode == domain.PaymentModeSplit {
		payer = cmd.Actor.ID
	}

	result, err := s.checkout.Checkout(ctx, CheckoutCommand{
		PayerID:         payer,
		Email:           cmd.Email,
		BranchID:        cart.BranchID,
		OrderType:       cart.OrderType,
		Items:           aggregateCartItems(cart.Items),
		DeliveryAddress: cmd.DeliveryAddress,
		PickupTime:      cmd.PickupTime,
		DineIn:          cmd.DineIn,
		PromoCode:       cmd.PromoCode,
		CartRef:         valuePtr(cart.ID),
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	now := s.clock()
	if _, err := s.carts.CompleteCheckout(ctx, cart.ID, repositories.CheckoutCompletion{
		OrderID:     result.Order.ID,
		CompletedAt: now,
	}); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return s.resolveLostCheckoutRace(ctx, cart.ID, result.Order)
		}
		return CheckoutResult{}, mapCartRepositoryError(err)
	}

	return result, nil
}

// resolveLostCheckoutRace unwinds the losing side of a concurrent checkout:
// the promotion usage reserved for the losing order is returned, the order is
// cancelled, and the winner's order returned.
func (s *sharedCartService) resolveLostCheckoutRace(ctx context.Context, cartID string, loser Order) (CheckoutResult, error) {
	if s.promotions != nil && loser.AppliedPromoID != nil {
		s.promotions.ReleaseUsage(ctx, *loser.AppliedPromoID)
	}

	now := s.clock()
	reason := "concurrent shared cart checkout"
	if _, err := s.orders.PatchStatus(ctx, loser.ID, loser.Status, repositories.OrderPatch{
		Status:       domain.OrderStatusCancelled,
		CancelReason: &reason,
		UpdatedAt:    now,
		CancelledAt:  &now,
	}); err != nil {
		s.logger(ctx, "shared_cart.checkout.compensation.failed", map[string]any{
			"cartId":  cartID,
			"orderId": loser.ID,
			"error":   err.Error(),
		})
	}

	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return CheckoutResult{}, mapCartRepositoryError(err)
	}
	if cart.ResultingOrderID == nil {
		return CheckoutResult{}, fmt.Errorf("%w: %s", ErrCartClosed, cartID)
	}
	return s.resultForWinner(ctx, *cart.ResultingOrderID)
}

func (s *sharedCartService) resultForWinner(ctx context.Context, orderID string) (CheckoutResult, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return CheckoutResult{}, mapOrderRepositoryError(err)
	}
	return CheckoutResult{Order: order, AlreadyCheckedOut: true}, nil
}

// ReapExpired transitions open carts past their expiry to expired.
func (s *sharedCartService) ReapExpired(ctx context.Context) (int, error) {
	now := s.clock()
	count, err := s.carts.ExpireOpenCartsBefore(ctx, now)
	if err != nil {
		return 0, mapCartRepositoryError(err)
	}
	if count > 0 {
		s.logger(ctx, "shared_cart.reaped", map[string]any{
			"count":  count,
			"cutoff": now.Format(time.RFC3339),
		})
	}
	return count, nil
}

func validateItemCommand(cmd SharedCartItemCommand, additive bool) error {
	if strings.TrimSpace(cmd.CartID) == "" {
		return fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if strings.TrimSpace(cmd.MenuItemID) == "" {
		return fmt.Errorf("%w: menu item id is required", ErrCartInvalidInput)
	}
	if cmd.UnitPrice < 0 {
		return fmt.Errorf("%w: unit price cannot be negative", ErrCartInvalidInput)
	}
	if additive && cmd.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrCartInvalidInput)
	}
	if !additive && cmd.Quantity == 0 {
		return fmt.Errorf("%w: quantity delta cannot be zero", ErrCartInvalidInput)
	}
	return nil
}

// aggregateCartItems collapses participant lines into order lines keyed by
// menu item, preserving first-seen ordering.
func aggregateCartItems(items []SharedCartItem) []CheckoutItem {
	index := make(map[string]int, len(items))
	out := make([]CheckoutItem, 0, len(items))
	for _, item := range items {
		if pos, ok := index[item.MenuItemID]; ok {
			out[pos].Quantity += item.Quantity
			continue
		}
		index[item.MenuItemID] = len(out)
		out = append(out, CheckoutItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return out
}

// NormalizeInviteCode uppercases and trims an invite code; lookups are
// case-insensitive.
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newInviteCode() string {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		id := ulid.Make().String()
		return NormalizeInviteCode(id[len(id)-inviteCodeLength:])
	}
	for i, b := range buf {
		buf[i] = inviteCodeAlphabet[int(b)%len(inviteCodeAlphabet)]
	}
	return string(buf)
}

func mapCartRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCartClosed, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("shared cart: repository unavailable: %w", err)
		}
	}

	return err
}
