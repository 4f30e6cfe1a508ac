package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/plateful/api/internal/repositories"
)

// PromotionServiceDeps bundles collaborators required to construct the promotion service.
type PromotionServiceDeps struct {
	Promotions repositories.PromotionRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type promotionService struct {
	promotions repositories.PromotionRepository
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewPromotionService wires dependencies into a concrete PromotionService implementation.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion service: promotion repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &promotionService{
		promotions: deps.Promotions,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *promotionService) Validate(ctx context.Context, cmd ValidatePromotionCommand) (PromotionValidationResult, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return PromotionValidationResult{}, fmt.Errorf("%w: code is required", ErrPromotionInvalidInput)
	}

	promo, err := s.promotions.FindByCode(ctx, code)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return PromotionValidationResult{Eligible: false, Reason: "unknown code"}, nil
		}
		return PromotionValidationResult{}, err
	}

	now := s.clock()
	if reason, ok := eligibilityReason(promo, cmd.Subtotal, now); !ok {
		return PromotionValidationResult{Eligible: false, Reason: reason, Promotion: promo}, nil
	}

	discount := PromotionDiscount(promo, cmd.Subtotal)
	if discount <= 0 {
		return PromotionValidationResult{Eligible: false, Reason: "no discount for this subtotal", Promotion: promo}, nil
	}

	return PromotionValidationResult{
		Eligible:       true,
		Promotion:      promo,
		DiscountAmount: discount,
	}, nil
}

func (s *promotionService) ReserveUsage(ctx context.Context, promoID string) (Promotion, error) {
	promoID = strings.TrimSpace(promoID)
	if promoID == "" {
		return Promotion{}, fmt.Errorf("%w: promotion id is required", ErrPromotionInvalidInput)
	}

	promo, err := s.promotions.ReserveUsage(ctx, promoID, s.clock())
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) {
			switch {
			case repoErr.IsNotFound():
				return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionNotFound, promoID)
			case repoErr.IsConflict():
				return Promotion{}, fmt.Errorf("%w: %s", ErrPromotionLimitExceeded, promoID)
			}
		}
		return Promotion{}, err
	}
	return promo, nil
}

// ReleaseUsage returns a previously reserved usage after a failed checkout.
// Failures are logged, not surfaced: the caller is already on an error path.
func (s *promotionService) ReleaseUsage(ctx context.Context, promoID string) {
	promoID = strings.TrimSpace(promoID)
	if promoID == "" {
		return
	}
	if err := s.promotions.ReleaseUsage(ctx, promoID, s.clock()); err != nil {
		s.logger(ctx, "promotion.usage.release.failed", map[string]any{
			"promotionId": promoID,
			"error":       err.Error(),
		})
	}
}

func eligibilityReason(promo Promotion, subtotal int64, now time.Time) (string, bool) {
	if !promo.IsActive {
		return "promotion inactive", false
	}
	if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
		return "promotion not started", false
	}
	if promo.EndsAt != nil && now.After(*promo.EndsAt) {
		return "promotion expired", false
	}
	if subtotal < promo.MinOrderAmount {
		return "subtotal below minimum", false
	}
	if promo.UsageLimit != nil && promo.UsageCount >= *promo.UsageLimit {
		return "usage limit exhausted", false
	}
	return "", true
}
