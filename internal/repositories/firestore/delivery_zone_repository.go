package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/plateful/api/internal/domain"
	pfirestore "github.com/plateful/api/internal/platform/firestore"
	"github.com/plateful/api/internal/repositories"
)

const deliveryZonesCollection = "deliveryZones"

type deliveryZoneDocument struct {
	Name      string    `firestore:"name"`
	BaseFee   int64     `firestore:"baseFee"`
	PeakFee   int64     `firestore:"peakFee"`
	IsActive  bool      `firestore:"isActive"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// DeliveryZoneRepository reads the zone fee table used by the pricing engine.
type DeliveryZoneRepository struct {
	base *pfirestore.BaseRepository[deliveryZoneDocument]
}

var _ repositories.DeliveryZoneRepository = (*DeliveryZoneRepository)(nil)

// NewDeliveryZoneRepository constructs a Firestore-backed delivery zone repository.
func NewDeliveryZoneRepository(provider *pfirestore.Provider) (*DeliveryZoneRepository, error) {
	if provider == nil {
		return nil, errors.New("delivery zone repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[deliveryZoneDocument](provider, deliveryZonesCollection)
	return &DeliveryZoneRepository{base: base}, nil
}

func (r *DeliveryZoneRepository) FindByID(ctx context.Context, zoneID string) (domain.DeliveryZone, error) {
	if r == nil || r.base == nil {
		return domain.DeliveryZone{}, errors.New("delivery zone repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(zoneID))
	if err != nil {
		return domain.DeliveryZone{}, err
	}
	return decodeDeliveryZone(doc.ID, doc.Data), nil
}

func (r *DeliveryZoneRepository) List(ctx context.Context) ([]domain.DeliveryZone, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("delivery zone repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	zones := make([]domain.DeliveryZone, 0, len(docs))
	for _, doc := range docs {
		zones = append(zones, decodeDeliveryZone(doc.ID, doc.Data))
	}
	return zones, nil
}

func decodeDeliveryZone(id string, doc deliveryZoneDocument) domain.DeliveryZone {
	return domain.DeliveryZone{
		ID:        id,
		Name:      doc.Name,
		BaseFee:   doc.BaseFee,
		PeakFee:   doc.PeakFee,
		IsActive:  doc.IsActive,
		UpdatedAt: doc.UpdatedAt,
	}
}
