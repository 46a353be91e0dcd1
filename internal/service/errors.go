package service

import (
	"fmt"

	"github.com/google/uuid"

	"example.com/fieldtrack/services/ledger/internal/models"
)

// ValidationError indicates a request was rejected before any write
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// CapacityExceededError indicates a proposed area exceeds the remaining
// capacity of a block allocation
type CapacityExceededError struct {
	BlockActivityID uuid.UUID
	BlockName       string
	Requested       float64
	Available       float64
}

// Error implements the error interface
func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf(
		"block %s: requested area %.2f exceeds remaining capacity %.2f",
		e.BlockName, e.Requested, e.Available,
	)
}

// InvalidStateTransitionError indicates an operation is illegal for the
// plan's current status
type InvalidStateTransitionError struct {
	PlanID    uuid.UUID
	Status    models.PlanStatus
	Operation string
}

// Error implements the error interface
func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s plan %s in status %q", e.Operation, e.PlanID, e.Status)
}

// DependencyWriteFailureError indicates a downstream insert failed after an
// upstream insert succeeded; the surrounding transaction rolls everything back
type DependencyWriteFailureError struct {
	Step string
	Err  error
}

// Error implements the error interface
func (e *DependencyWriteFailureError) Error() string {
	return fmt.Sprintf("write failed at %s: %v", e.Step, e.Err)
}

// Unwrap exposes the underlying cause
func (e *DependencyWriteFailureError) Unwrap() error {
	return e.Err
}

// NotFoundError indicates a referenced record does not exist
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
