package services

import "errors"

var (
	// ErrPromotionInvalidInput signals the caller provided invalid data.
	ErrPromotionInvalidInput = errors.New("promotion: invalid input")
	// ErrPromotionNotFound indicates the code does not match any promotion.
	ErrPromotionNotFound = errors.New("promotion: not found")
	// ErrPromotionLimitExceeded indicates the usage budget is exhausted.
	ErrPromotionLimitExceeded = errors.New("promotion: usage limit exceeded")
)
