package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers both absent rows and rows outside the caller's tenant.
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAlreadyExists       = errors.New("already exists")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNoValidSubscription = errors.New("no valid subscription")
	ErrConflict            = errors.New("conflict")
)

var (
	ErrAccountInactive = fmt.Errorf("%w: account is inactive", ErrInvalidState)
	ErrLocked          = fmt.Errorf("%w: summary is locked", ErrInvalidState)
	ErrAlreadyLocked   = fmt.Errorf("%w: summary is already locked", ErrInvalidState)
	ErrNotLocked       = fmt.Errorf("%w: summary is not locked", ErrInvalidState)
	ErrBranchAmbiguous = fmt.Errorf("%w: agent is assigned to multiple branches, branchId is required", ErrInvalidState)
	ErrNotAssigned     = fmt.Errorf("%w: agent is not assigned to an active branch", ErrForbidden)

	ErrReferenceCollision = fmt.Errorf("%w: ledger reference already used", ErrConflict)
	ErrOptimisticLock     = fmt.Errorf("%w: account was modified concurrently", ErrConflict)
)

// Invalid wraps ErrInvalidState with a business-rule message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
