package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported by the lead store
type ErrorKind string

const (
	// ErrorKindStoreUnavailable indicates a network or service failure
	ErrorKindStoreUnavailable ErrorKind = "STORE_UNAVAILABLE"

	// ErrorKindNotFound indicates the lead id is unknown to the store
	ErrorKindNotFound ErrorKind = "NOT_FOUND"

	// ErrorKindValidation indicates the store rejected a field value
	ErrorKindValidation ErrorKind = "VALIDATION_ERROR"
)

// StoreError represents a failed lead store operation
type StoreError struct {
	Kind    ErrorKind
	Op      string // e.g., "get_all_leads", "update_lead"
	LeadID  string
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	target := ""
	if e.LeadID != "" {
		target = fmt.Sprintf(" for lead %s", e.LeadID)
	}
	if e.Err != nil {
		return fmt.Sprintf("lead store %s failed%s (%s): %s (caused by: %v)",
			e.Op, target, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("lead store %s failed%s (%s): %s", e.Op, target, e.Kind, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError
func NewStoreError(kind ErrorKind, op, leadID, message string, err error) *StoreError {
	return &StoreError{
		Kind:    kind,
		Op:      op,
		LeadID:  leadID,
		Message: message,
		Err:     err,
	}
}

// ErrorKindOf returns the store error kind carried by err, or "" when err is not a store error
func ErrorKindOf(err error) ErrorKind {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}
	return ""
}

// IsNotFound checks if err reports an unknown lead
func IsNotFound(err error) bool {
	return ErrorKindOf(err) == ErrorKindNotFound
}

// IsStoreUnavailable checks if err reports an unreachable store
func IsStoreUnavailable(err error) bool {
	return ErrorKindOf(err) == ErrorKindStoreUnavailable
}

// IsValidationError checks if err reports a rejected field
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return ErrorKindOf(err) == ErrorKindValidation || errors.As(err, &validationErr)
}

// ValidationError represents a rejected field on lead intake or update
type ValidationError struct {
	Field  string
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("validation error on field '%s': %s (%s)", e.Field, e.Reason, e.Detail)
	}
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Reason)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, reason, detail string) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: reason,
		Detail: detail,
	}
}

// InvalidEnumerationError reports a lead whose enumerated field holds an unknown value.
// Such leads are quarantined instead of being placed on the board.
type InvalidEnumerationError struct {
	LeadID string
	Field  string
	Value  string
}

func (e *InvalidEnumerationError) Error() string {
	return fmt.Sprintf("lead %s has unrecognized %s value %q", e.LeadID, e.Field, e.Value)
}

// NewInvalidEnumerationError creates a new InvalidEnumerationError
func NewInvalidEnumerationError(leadID, field, value string) *InvalidEnumerationError {
	return &InvalidEnumerationError{
		LeadID: leadID,
		Field:  field,
		Value:  value,
	}
}

// LoadError reports that the pipeline could not refresh its lead list.
// The previous list stays visible.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load leads: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// TransitionError reports that the store rejected a stage change
type TransitionError struct {
	LeadID string
	From   LeadStatus
	To     LeadStatus
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("failed to move lead %s from %s to %s: %v", e.LeadID, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// DeliveryError represents an error that occurred while delivering a notification
type DeliveryError struct {
	StatusCode int
	Message    string
	Retriable  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	retriableStr := "non-retriable"
	if e.Retriable {
		retriableStr = "retriable"
	}

	if e.StatusCode > 0 {
		if e.Err != nil {
			return fmt.Sprintf("delivery error (%s): HTTP %d - %s (caused by: %v)",
				retriableStr, e.StatusCode, e.Message, e.Err)
		}
		return fmt.Sprintf("delivery error (%s): HTTP %d - %s",
			retriableStr, e.StatusCode, e.Message)
	}

	if e.Err != nil {
		return fmt.Sprintf("delivery error (%s): %s (caused by: %v)",
			retriableStr, e.Message, e.Err)
	}
	return fmt.Sprintf("delivery error (%s): %s", retriableStr, e.Message)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsRetriable returns true if the delivery error should trigger a retry
func (e *DeliveryError) IsRetriable() bool {
	return e.Retriable
}

// NewDeliveryError creates a new DeliveryError
func NewDeliveryError(statusCode int, message string, retriable bool, err error) *DeliveryError {
	return &DeliveryError{
		StatusCode: statusCode,
		Message:    message,
		Retriable:  retriable,
		Err:        err,
	}
}
