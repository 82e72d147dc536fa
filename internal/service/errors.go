package service

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("invalid request")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrAlreadyPurchased    = errors.New("report already purchased")
	ErrDuplicateInProgress = errors.New("report generation already in progress")
	ErrGenerationFailed    = errors.New("report generation failed")
	ErrOrderNotFound       = errors.New("order not found")
	ErrReportNotFound      = errors.New("report not found")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrSettlementFailed    = errors.New("order settlement failed")
	ErrDebitAfterSave      = errors.New("report saved but credits could not be deducted")
)

// ValidationError carries a message that is safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
