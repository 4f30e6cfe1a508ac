package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	domain "github.com/plateful/api/internal/domain"
	"github.com/plateful/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals bad request data such as missing items or negative prices.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingZoneNotFound indicates the delivery zone does not exist or is inactive.
	ErrPricingZoneNotFound = errors.New("pricing: delivery zone not found")
)

// PeakWindow is a daily window, local clock time, during which the peak
// delivery fee applies. End before Start wraps past midnight.
type PeakWindow struct {
	Start string // "HH:MM"
	End   string // "HH:MM"
}

type peakWindow struct {
	startMinute int
	endMinute   int
}

// PricingEngineDeps bundles collaborators required to construct the pricing engine.
type PricingEngineDeps struct {
	Zones       repositories.DeliveryZoneRepository
	PeakWindows []PeakWindow
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// PricingEngine computes order totals in integer minor currency units.
type PricingEngine struct {
	zones   repositories.DeliveryZoneRepository
	windows []peakWindow
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewPricingEngine wires dependencies into a PricingEngine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	windows := make([]peakWindow, 0, len(deps.PeakWindows))
	for _, w := range deps.PeakWindows {
		start, err := parseClockMinute(w.Start)
		if err != nil {
			return nil, fmt.Errorf("pricing engine: invalid peak window start %q: %w", w.Start, err)
		}
		end, err := parseClockMinute(w.End)
		if err != nil {
			return nil, fmt.Errorf("pricing engine: invalid peak window end %q: %w", w.End, err)
		}
		windows = append(windows, peakWindow{startMinute: start, endMinute: end})
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PricingEngine{
		zones:   deps.Zones,
		windows: windows,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// PricingLine is one order line submitted for pricing.
type PricingLine struct {
	MenuItemID string
	Quantity   int
	UnitPrice  int64
}

// PriceOrderCommand describes the order being priced. Promotion, when set, is
// assumed validated; the engine still enforces the minimum order amount and
// caps the discount at the subtotal. At defaults to the engine clock.
type PriceOrderCommand struct {
	Lines     []PricingLine
	OrderType OrderType
	ZoneID    string
	Promotion *Promotion
	At        time.Time
}

// Calculate prices the order: line totals, promotion discount, delivery fee,
// grand total.
func (e *PricingEngine) Calculate(ctx context.Context, cmd PriceOrderCommand) (PricingBreakdown, error) {
	if len(cmd.Lines) == 0 {
		return PricingBreakdown{}, fmt.Errorf("%w: at least one line is required", ErrPricingInvalidInput)
	}

	var subtotal int64
	lines := make([]LinePricing, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		if line.Quantity <= 0 {
			return PricingBreakdown{}, fmt.Errorf("%w: line %s quantity must be positive", ErrPricingInvalidInput, line.MenuItemID)
		}
		if line.UnitPrice < 0 {
			return PricingBreakdown{}, fmt.Errorf("%w: line %s unit price cannot be negative", ErrPricingInvalidInput, line.MenuItemID)
		}
		quantity := int64(line.Quantity)
		if line.UnitPrice > 0 && line.UnitPrice > math.MaxInt64/quantity {
			return PricingBreakdown{}, fmt.Errorf("%w: line %s subtotal overflow", ErrPricingInvalidInput, line.MenuItemID)
		}
		lineTotal := line.UnitPrice * quantity
		if subtotal > math.MaxInt64-lineTotal {
			return PricingBreakdown{}, fmt.Errorf("%w: subtotal overflow", ErrPricingInvalidInput)
		}
		subtotal += lineTotal
		lines = append(lines, LinePricing{
			MenuItemID: line.MenuItemID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Total:      lineTotal,
		})
	}

	var discount int64
	var promoID *string
	if cmd.Promotion != nil {
		discount = PromotionDiscount(*cmd.Promotion, subtotal)
		if discount > 0 {
			id := cmd.Promotion.ID
			promoID = &id
		}
	}

	at := cmd.At
	if at.IsZero() {
		at = e.clock()
	}

	var deliveryFee int64
	if cmd.OrderType == domain.OrderTypeDelivery {
		fee, err := e.deliveryFee(ctx, cmd.ZoneID, at)
		if err != nil {
			return PricingBreakdown{}, err
		}
		deliveryFee = fee
	}

	total := subtotal - discount + deliveryFee
	if total < 0 {
		total = 0
	}

	return PricingBreakdown{
		Subtotal:    subtotal,
		Discount:    discount,
		DeliveryFee: deliveryFee,
		Total:       total,
		PromoID:     promoID,
		Lines:       lines,
	}, nil
}

func (e *PricingEngine) deliveryFee(ctx context.Context, zoneID string, at time.Time) (int64, error) {
	zoneID = strings.TrimSpace(zoneID)
	if zoneID == "" {
		return 0, fmt.Errorf("%w: delivery orders require a zone id", ErrPricingInvalidInput)
	}
	if e.zones == nil {
		return 0, errors.New("pricing engine: zone repository not configured")
	}

	zone, err := e.zones.FindByID(ctx, zoneID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return 0, fmt.Errorf("%w: %s", ErrPricingZoneNotFound, zoneID)
		}
		return 0, err
	}
	if !zone.IsActive {
		return 0, fmt.Errorf("%w: %s is inactive", ErrPricingZoneNotFound, zoneID)
	}

	if e.inPeakWindow(at) {
		return zone.PeakFee, nil
	}
	return zone.BaseFee, nil
}

func (e *PricingEngine) inPeakWindow(at time.Time) bool {
	minute := at.Hour()*60 + at.Minute()
	for _, w := range e.windows {
		if w.startMinute <= w.endMinute {
			if minute >= w.startMinute && minute < w.endMinute {
				return true
			}
		} else if minute >= w.startMinute || minute < w.endMinute {
			return true
		}
	}
	return false
}

// PromotionDiscount computes the discount a promotion yields on a subtotal.
// Percentage values round down; fixed values are capped at the subtotal. A
// subtotal below the promotion's minimum order amount yields zero.
func PromotionDiscount(promo Promotion, subtotal int64) int64 {
	if subtotal <= 0 || subtotal < promo.MinOrderAmount {
		return 0
	}
	var discount int64
	switch promo.DiscountType {
	case domain.DiscountTypePercentage:
		if promo.DiscountValue <= 0 {
			return 0
		}
		value := promo.DiscountValue
		if value > 100 {
			value = 100
		}
		discount = subtotal * value / 100
	case domain.DiscountTypeFixed:
		discount = promo.DiscountValue
	default:
		return 0
	}
	if discount < 0 {
		return 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount
}

func parseClockMinute(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour*60 + minute, nil
}
