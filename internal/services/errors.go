package services

import (
	"errors"
	"fmt"
)

// Sentinel errors for lifecycle and ownership violations. Handlers translate
// these into HTTP statuses; services never inspect HTTP concerns.
var (
	ErrLinkNotFound     = errors.New("payment link not found")
	ErrMerchantNotFound = errors.New("merchant not found")
	ErrPermission       = errors.New("merchant does not own this link")
	ErrInvalidState     = errors.New("operation not allowed in the current link status")
	ErrAlreadyPaid      = errors.New("this link has already been paid")
	ErrAmountMismatch   = errors.New("payment amount does not match the link amount")
)

// ValidationError reports a user-correctable input problem.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// GatewayError wraps an upstream gateway failure. It is distinct from a
// rejected payment, which is a valid business outcome and not an error.
type GatewayError struct {
	Err error
}

func (e *GatewayError) Error() string {
	return "gateway failure: " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// StorageError wraps a persistence failure. Fatal for the request; the core
// does not retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
