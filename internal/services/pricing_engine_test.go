package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/plateful/api/internal/domain"
)

func TestPricingEngineLineTotals(t *testing.T) {
	engine := newTestPricingEngine(t, PricingEngineDeps{})

	breakdown, err := engine.Calculate(context.Background(), PriceOrderCommand{
		OrderType: domain.OrderTypeTakeOut,
		Lines: []PricingLine{
			{MenuItemID: "item-jollof", Quantity: 2, UnitPrice: 150000},
			{MenuItemID: "item-suya", Quantity: 1, UnitPrice: 80000},
		},
	})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if breakdown.Subtotal != 380000 {
		t.Fatalf("expected subtotal 380000, got %d", breakdown.Subtotal)
	}
	if breakdown.Total != 380000 {
		t.Fatalf("expected total 380000, got %d", breakdown.Total)
	}
	if len(breakdown.Lines) != 2 || breakdown.Lines[0].Total != 300000 {
		t.Fatalf("unexpected line breakdown %+v", breakdown.Lines)
	}
	if breakdown.DeliveryFee != 0 {
		t.Fatalf("take-out orders carry no delivery fee, got %d", breakdown.DeliveryFee)
	}
}

func TestPricingEngineValidation(t *testing.T) {
	engine := newTestPricingEngine(t, PricingEngineDeps{})

	cases := []struct {
		name  string
		lines []PricingLine
	}{
		{name: "no lines", lines: nil},
		{name: "zero quantity", lines: []PricingLine{{MenuItemID: "m", Quantity: 0, UnitPrice: 100}}},
		{name: "negative price", lines: []PricingLine{{MenuItemID: "m", Quantity: 1, UnitPrice: -1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Calculate(context.Background(), PriceOrderCommand{
				OrderType: domain.OrderTypeTakeOut,
				Lines:     tc.lines,
			})
			if !errors.Is(err, ErrPricingInvalidInput) {
				t.Fatalf("expected ErrPricingInvalidInput, got %v", err)
			}
		})
	}
}

func TestPricingEngineDeliveryFeeSelection(t *testing.T) {
	zones := &stubZoneRepo{
		findFn: func(_ context.Context, zoneID string) (domain.DeliveryZone, error) {
			return domain.DeliveryZone{ID: zoneID, BaseFee: 50000, PeakFee: 90000, IsActive: true}, nil
		},
	}
	engine := newTestPricingEngine(t, PricingEngineDeps{
		Zones:       zones,
		PeakWindows: []PeakWindow{{Start: "17:00", End: "21:00"}},
	})

	cases := []struct {
		name string
		at   time.Time
		fee  int64
	}{
		{name: "off peak", at: time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC), fee: 50000},
		{name: "inside window", at: time.Date(2026, 8, 30, 18, 30, 0, 0, time.UTC), fee: 90000},
		{name: "window start inclusive", at: time.Date(2026, 8, 30, 17, 0, 0, 0, time.UTC), fee: 90000},
		{name: "window end exclusive", at: time.Date(2026, 8, 30, 21, 0, 0, 0, time.UTC), fee: 50000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			breakdown, err := engine.Calculate(context.Background(), PriceOrderCommand{
				OrderType: domain.OrderTypeDelivery,
				ZoneID:    "zone-1",
				Lines:     []PricingLine{{MenuItemID: "m", Quantity: 1, UnitPrice: 100000}},
				At:        tc.at,
			})
			if err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			if breakdown.DeliveryFee != tc.fee {
				t.Fatalf("expected fee %d, got %d", tc.fee, breakdown.DeliveryFee)
			}
			if breakdown.Total != 100000+tc.fee {
				t.Fatalf("expected total %d, got %d", 100000+tc.fee, breakdown.Total)
			}
		})
	}
}

func TestPricingEnginePeakWindowWrapsMidnight(t *testing.T) {
	zones := &stubZoneRepo{
		findFn: func(_ context.Context, zoneID string) (domain.DeliveryZone, error) {
			return domain.DeliveryZone{ID: zoneID, BaseFee: 500, PeakFee: 900, IsActive: true}, nil
		},
	}
	engine := newTestPricingEngine(t, PricingEngineDeps{
		Zones:       zones,
		PeakWindows: []PeakWindow{{Start: "22:00", End: "02:00"}},
	})

	cases := []struct {
		name string
		at   time.Time
		fee  int64
	}{
		{name: "before wrap", at: time.Date(2026, 8, 30, 23, 30, 0, 0, time.UTC), fee: 900},
		{name: "after midnight", at: time.Date(2026, 8, 30, 1, 0, 0, 0, time.UTC), fee: 900},
		{name: "outside", at: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), fee: 500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			breakdown, err := engine.Calculate(context.Background(), PriceOrderCommand{
				OrderType: domain.OrderTypeDelivery,
				ZoneID:    "zone-1",
				Lines:     []PricingLine{{MenuItemID: "m", Quantity: 1, UnitPrice: 1000}},
				At:        tc.at,
			})
			if err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			if breakdown.DeliveryFee != tc.fee {
				t.Fatalf("expected fee %d, got %d", tc.fee, breakdown.DeliveryFee)
			}
		})
	}
}

func TestPricingEngineInactiveZone(t *testing.T) {
	zones := &stubZoneRepo{
		findFn: func(_ context.Context, zoneID string) (domain.DeliveryZone, error) {
			return domain.DeliveryZone{ID: zoneID, BaseFee: 500, IsActive: false}, nil
		},
	}
	engine := newTestPricingEngine(t, PricingEngineDeps{Zones: zones})

	_, err := engine.Calculate(context.Background(), PriceOrderCommand{
		OrderType: domain.OrderTypeDelivery,
		ZoneID:    "zone-1",
		Lines:     []PricingLine{{MenuItemID: "m", Quantity: 1, UnitPrice: 1000}},
	})
	if !errors.Is(err, ErrPricingZoneNotFound) {
		t.Fatalf("expected ErrPricingZoneNotFound, got %v", err)
	}
}

func TestPricingEngineUnknownZone(t *testing.T) {
	zones := &stubZoneRepo{
		findFn: func(context.Context, string) (domain.DeliveryZone, error) {
			return domain.DeliveryZone{}, repoError{notFound: true}
		},
	}
	engine := newTestPricingEngine(t, PricingEngineDeps{Zones: zones})

	_, err := engine.Calculate(context.Background(), PriceOrderCommand{
		OrderType: domain.OrderTypeDelivery,
		ZoneID:    "zone-missing",
		Lines:     []PricingLine{{MenuItemID: "m", Quantity: 1, UnitPrice: 1000}},
	})
	if !errors.Is(err, ErrPricingZoneNotFound) {
		t.Fatalf("expected ErrPricingZoneNotFound, got %v", err)
	}
}

func TestNewPricingEngineRejectsMalformedWindows(t *testing.T) {
	_, err := NewPricingEngine(PricingEngineDeps{
		PeakWindows: []PeakWindow{{Start: "25:00", End: "26:00"}},
	})
	if err == nil {
		t.Fatal("expected an error for a malformed window")
	}
}

func TestPromotionDiscount(t *testing.T) {
	usageLimit := 100
	cases := []struct {
		name     string
		promo    Promotion
		subtotal int64
		want     int64
	}{
		{
			name:     "percentage",
			promo:    Promotion{DiscountType: domain.DiscountTypePercentage, DiscountValue: 10},
			subtotal: 300000,
			want:     30000,
		},
		{
			name:     "percentage rounds down",
			promo:    Promotion{DiscountType: domain.DiscountTypePercentage, DiscountValue: 10},
			subtotal: 2995,
			want:     299,
		},
		{
			name:     "percentage capped at 100",
			promo:    Promotion{DiscountType: domain.DiscountTypePercentage, DiscountValue: 150},
			subtotal: 1000,
			want:     1000,
		},
		{
			name:     "fixed",
			promo:    Promotion{DiscountType: domain.DiscountTypeFixed, DiscountValue: 50000},
			subtotal: 300000,
			want:     50000,
		},
		{
			name:     "fixed capped at subtotal",
			promo:    Promotion{DiscountType: domain.DiscountTypeFixed, DiscountValue: 500000},
			subtotal: 300000,
			want:     300000,
		},
		{
			name:     "below minimum order",
			promo:    Promotion{DiscountType: domain.DiscountTypePercentage, DiscountValue: 10, MinOrderAmount: 500000, UsageLimit: &usageLimit},
			subtotal: 300000,
			want:     0,
		},
		{
			name:     "unknown type",
			promo:    Promotion{DiscountType: "mystery", DiscountValue: 10},
			subtotal: 300000,
			want:     0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PromotionDiscount(tc.promo, tc.subtotal); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}
