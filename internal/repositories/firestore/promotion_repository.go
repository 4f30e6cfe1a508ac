package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/plateful/api/internal/domain"
	pfirestore "github.com/plateful/api/internal/platform/firestore"
	"github.com/plateful/api/internal/repositories"
)

const promotionsCollection = "promotions"

type promotionDocument struct {
	Code           string     `firestore:"code"`
	DiscountType   string     `firestore:"discountType"`
	DiscountValue  int64      `firestore:"discountValue"`
	IsActive       bool       `firestore:"isActive"`
	StartsAt       *time.Time `firestore:"startsAt,omitempty"`
	EndsAt         *time.Time `firestore:"endsAt,omitempty"`
	UsageLimit     *int       `firestore:"usageLimit,omitempty"`
	UsageCount     int        `firestore:"usageCount"`
	MinOrderAmount int64      `firestore:"minOrderAmount"`
	CreatedAt      time.Time  `firestore:"createdAt"`
	UpdatedAt      time.Time  `firestore:"updatedAt"`
}

// PromotionRepository implements repositories.PromotionRepository. The usage
// counter is guarded by a transactional check-and-increment so the limit holds
// under concurrent checkouts.
type PromotionRepository struct {
	base     *pfirestore.BaseRepository[promotionDocument]
	provider *pfirestore.Provider
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[promotionDocument](provider, promotionsCollection)
	return &PromotionRepository{
		base:     base,
		provider: provider,
	}, nil
}

func (r *PromotionRepository) Insert(ctx context.Context, promotion domain.Promotion) error {
	if r == nil || r.base == nil {
		return errors.New("promotion repository not initialised")
	}
	id := strings.TrimSpace(promotion.ID)
	if id == "" {
		return errors.New("promotion repository: promotion id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodePromotion(promotion)); err != nil {
		return pfirestore.WrapError("promotions.insert", err)
	}
	return nil
}

func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	if r == nil || r.base == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Promotion{}, pfirestore.NewNotFound("promotions.findByCode", errors.New("code is required"))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(1)
	})
	if err != nil {
		return domain.Promotion{}, err
	}
	if len(docs) == 0 {
		return domain.Promotion{}, pfirestore.NewNotFound("promotions.findByCode", fmt.Errorf("no promotion for code %s", code))
	}
	return decodePromotion(docs[0].ID, docs[0].Data), nil
}

func (r *PromotionRepository) ReserveUsage(ctx context.Context, promoID string, now time.Time) (domain.Promotion, error) {
	return r.adjustUsage(ctx, "promotions.reserveUsage", promoID, now, func(doc *promotionDocument) error {
		if doc.UsageLimit != nil && doc.UsageCount >= *doc.UsageLimit {
			return pfirestore.NewConflict("promotions.reserveUsage",
				fmt.Errorf("promotion %s usage limit %d reached", promoID, *doc.UsageLimit))
		}
		doc.UsageCount++
		return nil
	})
}

func (r *PromotionRepository) ReleaseUsage(ctx context.Context, promoID string, now time.Time) error {
	_, err := r.adjustUsage(ctx, "promotions.releaseUsage", promoID, now, func(doc *promotionDocument) error {
		if doc.UsageCount > 0 {
			doc.UsageCount--
		}
		return nil
	})
	return err
}

func (r *PromotionRepository) adjustUsage(ctx context.Context, op, promoID string, now time.Time, apply func(*promotionDocument) error) (domain.Promotion, error) {
	if r == nil || r.provider == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	id := strings.TrimSpace(promoID)
	if id == "" {
		return domain.Promotion{}, errors.New("promotion repository: promotion id is required")
	}

	var updated domain.Promotion
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc promotionDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore promotions decode %s: %w", id, err)
		}
		if err := apply(&doc); err != nil {
			return err
		}
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = decodePromotion(id, doc)
		return nil
	})
	if err != nil {
		return domain.Promotion{}, pfirestore.WrapError(op, err)
	}
	return updated, nil
}

func encodePromotion(promotion domain.Promotion) promotionDocument {
	return promotionDocument{
		Code:           strings.ToUpper(strings.TrimSpace(promotion.Code)),
		DiscountType:   string(promotion.DiscountType),
		DiscountValue:  promotion.DiscountValue,
		IsActive:       promotion.IsActive,
		StartsAt:       promotion.StartsAt,
		EndsAt:         promotion.EndsAt,
		UsageLimit:     promotion.UsageLimit,
		UsageCount:     promotion.UsageCount,
		MinOrderAmount: promotion.MinOrderAmount,
		CreatedAt:      promotion.CreatedAt.UTC(),
		UpdatedAt:      promotion.UpdatedAt.UTC(),
	}
}

func decodePromotion(id string, doc promotionDocument) domain.Promotion {
	return domain.Promotion{
		ID:             id,
		Code:           doc.Code,
		DiscountType:   domain.DiscountType(doc.DiscountType),
		DiscountValue:  doc.DiscountValue,
		IsActive:       doc.IsActive,
		StartsAt:       doc.StartsAt,
		EndsAt:         doc.EndsAt,
		UsageLimit:     doc.UsageLimit,
		UsageCount:     doc.UsageCount,
		MinOrderAmount: doc.MinOrderAmount,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}
