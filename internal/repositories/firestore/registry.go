package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/plateful/api/internal/platform/firestore"
	"github.com/plateful/api/internal/repositories"
)

// RegistryDeps carries the constructed repositories exposed through the registry.
type RegistryDeps struct {
	Orders        *OrderRepository
	SharedCarts   *SharedCartRepository
	Promotions    *PromotionRepository
	DeliveryZones *DeliveryZoneRepository
	Counters      *CounterRepository
	Health        repositories.HealthRepository
}

// Registry bundles the Firestore-backed repositories behind the repositories.Registry
// contract so services and tests can swap implementations wholesale.
type Registry struct {
	provider *pfirestore.Provider

	orders     *OrderRepository
	carts      *SharedCartRepository
	promotions *PromotionRepository
	zones      *DeliveryZoneRepository
	counters   *CounterRepository
	health     repositories.HealthRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires the supplied repositories into a Registry.
func NewRegistry(provider *pfirestore.Provider, deps RegistryDeps) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("firestore registry: order repository is required")
	}
	if deps.SharedCarts == nil {
		return nil, errors.New("firestore registry: shared cart repository is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("firestore registry: promotion repository is required")
	}
	if deps.DeliveryZones == nil {
		return nil, errors.New("firestore registry: delivery zone repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("firestore registry: counter repository is required")
	}

	return &Registry{
		provider:   provider,
		orders:     deps.Orders,
		carts:      deps.SharedCarts,
		promotions: deps.Promotions,
		zones:      deps.DeliveryZones,
		counters:   deps.Counters,
		health:     deps.Health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

func (r *Registry) SharedCarts() repositories.SharedCartRepository { return r.carts }

func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }

func (r *Registry) DeliveryZones() repositories.DeliveryZoneRepository { return r.zones }

func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn inside a Firestore transaction boundary.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if r == nil || r.provider == nil {
		return errors.New("firestore registry: provider is required")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}
