package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/plateful/api/internal/payments"
	"github.com/plateful/api/internal/platform/config"
	"github.com/plateful/api/internal/repositories"
	"github.com/plateful/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Checkout    services.CheckoutService
	Orders      services.OrderService
	Payments    services.PaymentService
	SharedCarts services.SharedCartService
	Promotions  services.PromotionService
	Pricing     *services.PricingEngine
	System      services.SystemService
}

// ContainerDeps carries the externally constructed collaborators the services need.
type ContainerDeps struct {
	PaymentProvider payments.Provider
	Events          services.OrderEventPublisher
	Build           services.BuildInfo
	Logger          *zap.Logger
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides Firestore-backed
// repositories, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps ContainerDeps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.PaymentProvider == nil {
		return nil, errors.New("payment provider is required")
	}

	svc, err := buildServices(ctx, cfg, reg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, reg repositories.Registry, deps ContainerDeps) (Services, error) {
	var svc Services

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions(),
		Clock:      time.Now,
		Logger:     serviceLogger(logger.Named("promotions")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Zones:       reg.DeliveryZones(),
		PeakWindows: peakWindows(cfg.Pricing.PeakWindows),
		Clock:       time.Now,
		Logger:      serviceLogger(logger.Named("pricing")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	checkoutPromotions := promotionSvc
	if !cfg.Features.EnablePromotions {
		checkoutPromotions = nil
	}
	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:      reg.Orders(),
		Counters:    reg.Counters(),
		Pricing:     pricing,
		Promotions:  checkoutPromotions,
		Provider:    deps.PaymentProvider,
		UnitOfWork:  reg,
		Currency:    cfg.Pricing.Currency,
		CallbackURL: cfg.Paystack.CallbackURL,
		Clock:       time.Now,
		Events:      deps.Events,
		Logger:      serviceLogger(logger.Named("checkout")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Provider: deps.PaymentProvider,
		Clock:    time.Now,
		Events:   deps.Events,
		Logger:   serviceLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:        reg.Orders(),
		Provider:      deps.PaymentProvider,
		WebhookSecret: []byte(cfg.Paystack.WebhookSecret),
		Clock:         time.Now,
		Events:        deps.Events,
		Logger:        serviceLogger(logger.Named("payments")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	sharedCartSvc, err := services.NewSharedCartService(services.SharedCartServiceDeps{
		Carts:      reg.SharedCarts(),
		Orders:     reg.Orders(),
		Checkout:   checkoutSvc,
		Promotions: checkoutPromotions,
		TTL:        cfg.SharedCarts.TTL,
		Clock:      time.Now,
		Logger:     serviceLogger(logger.Named("group_carts")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shared cart service: %w", err)
	}
	svc.SharedCarts = sharedCartSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			Health:      healthRepo,
			Version:     deps.Build.Version,
			Environment: deps.Build.Environment,
			StartedAt:   deps.Build.StartedAt,
			Clock:       time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func peakWindows(windows []config.PeakWindow) []services.PeakWindow {
	if len(windows) == 0 {
		return nil
	}
	out := make([]services.PeakWindow, 0, len(windows))
	for _, w := range windows {
		out = append(out, services.PeakWindow{Start: w.Start, End: w.End})
	}
	return out
}

func serviceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}
