package entity

import (
	"errors"
	"fmt"
)

// Ошибки входных данных. Отклоняются синхронно, состояние не меняется
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidPrice     = fmt.Errorf("invalid price: %w", ErrInvalidInput)
	ErrInvalidQuantity  = fmt.Errorf("invalid quantity: %w", ErrInvalidInput)
	ErrOutOfOrder       = fmt.Errorf("observation precedes last recorded timestamp: %w", ErrInvalidPrice)
	ErrMissingTimestamp = fmt.Errorf("observation timestamp is required: %w", ErrInvalidPrice)
	ErrMissingProduct   = fmt.Errorf("product id is required: %w", ErrInvalidInput)
	ErrInvalidCategory  = fmt.Errorf("unknown category: %w", ErrInvalidInput)
	ErrInvalidTarget    = fmt.Errorf("target price must be positive: %w", ErrInvalidInput)
	ErrInvalidBudget    = fmt.Errorf("invalid budget: %w", ErrInvalidInput)
)

var (
	ErrNotFound         = errors.New("not found")
	ErrProductNotFound  = fmt.Errorf("product: %w", ErrNotFound)
	ErrTrackingNotFound = fmt.Errorf("tracking item: %w", ErrNotFound)
	ErrInventoryMissing = fmt.Errorf("inventory item: %w", ErrNotFound)
	ErrBudgetNotSet     = fmt.Errorf("budget: %w", ErrNotFound)
)

// Ошибки генерации рекомендаций. Наружу не пробрасываются, только в статус
var (
	ErrGenerationFailure  = errors.New("recommendation generation failed")
	ErrNetwork            = fmt.Errorf("ai provider network error: %w", ErrGenerationFailure)
	ErrRateLimited        = fmt.Errorf("ai provider rate limited: %w", ErrGenerationFailure)
	ErrInvalidResponse    = fmt.Errorf("ai provider invalid response: %w", ErrGenerationFailure)
	ErrConcurrencyTimeout = errors.New("recommendation generation timed out")
	ErrRefreshCancelled   = errors.New("recommendation refresh cancelled")
	ErrNotEntitled        = errors.New("recommendations are not available for this account")
)
