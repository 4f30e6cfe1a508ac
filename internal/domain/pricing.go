package domain

// PricingBreakdown captures the aggregated monetary results of pricing an
// item list. All amounts are integer minor currency units.
type PricingBreakdown struct {
	Subtotal    int64
	Discount    int64
	DeliveryFee int64
	Total       int64
	PromoID     *string
	Lines       []LinePricing
}

// LinePricing stores the per-line pricing outputs after running the engine.
type LinePricing struct {
	MenuItemID string
	Quantity   int
	UnitPrice  int64
	Total      int64
}
