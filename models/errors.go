package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)

// Error carries one of the sentinel kinds above, so callers can use errors.Is.
type Error struct {
	Kind    error
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func NewValidationError(message string, fields map[string]string) *Error {
	return &Error{Kind: ErrValidation, Message: message, Fields: fields}
}

func NewNotFoundError(entity string, id int) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf("%s %d not found", entity, id)}
}

func NewConflictError(message string) *Error {
	return &Error{Kind: ErrConflict, Message: message}
}

func NewInvalidStateError(issueId int, status IssueStatus) *Error {
	return &Error{
		Kind:    ErrInvalidState,
		Message: fmt.Sprintf("issue %d is %s, only pending issues can be resolved", issueId, status),
	}
}

func NewInsufficientStockError(itemId, locationId, available, requested int) *Error {
	return &Error{
		Kind: ErrInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for item %d at location %d: available %d, requested %d",
			itemId, locationId, available, requested),
	}
}

func NewUnauthorizedError(message string) *Error {
	return &Error{Kind: ErrUnauthorized, Message: message}
}

func NewForbiddenError(message string) *Error {
	return &Error{Kind: ErrForbidden, Message: message}
}
