package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
)

// Error is the failure returned by ledger operations. Kind is one of the
// sentinel errors above and Message is safe to show to a caller.
type Error struct {
	Kind             error
	Message          string
	PlanID           uuid.UUID
	InstallmentIndex *int
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func validationError(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(planID uuid.UUID) *Error {
	return &Error{Kind: ErrNotFound, Message: "installment plan not found", PlanID: planID}
}

func stateError(planID uuid.UUID, format string, args ...interface{}) *Error {
	return &Error{Kind: ErrInvalidState, Message: fmt.Sprintf(format, args...), PlanID: planID}
}

func (e *Error) atInstallment(index int) *Error {
	e.InstallmentIndex = &index
	return e
}

func (e *Error) forPlan(planID uuid.UUID) *Error {
	e.PlanID = planID
	return e
}
