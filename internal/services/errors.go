package services

import (
	"errors"
	"fmt"

	"reftrack/internal/repository"
)

var (
	ErrNotFound            = repository.ErrNotFound
	ErrStoreUnavailable    = repository.ErrStoreUnavailable
	ErrUnknownAffiliate    = fmt.Errorf("unknown affiliate: %w", ErrNotFound)
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrAlreadyConverted    = fmt.Errorf("referral already converted: %w", ErrInvalidTransition)
	ErrAlreadyPaid         = fmt.Errorf("commission already paid: %w", ErrInvalidTransition)
	ErrDuplicateActiveCode = errors.New("referral code already held by an active referral")
	ErrValidation          = errors.New("validation failed")
)

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
