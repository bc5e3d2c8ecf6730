package model

import (
	"errors"
	"fmt"
)

var (
	// ErrSelfFollow is returned when an edge would connect a user to itself
	ErrSelfFollow = errors.New("user cannot follow itself")

	// ErrInvalidEdge is returned when an edge is missing an endpoint
	ErrInvalidEdge = errors.New("edge endpoint is empty")

	// ErrEntityNotFound is returned when an edge endpoint does not exist
	ErrEntityNotFound = errors.New("entity not found")

	// ErrInvalidLevel is returned for hop bounds outside the supported range
	ErrInvalidLevel = errors.New("invalid traversal level")
)

// BackendError attributes a failure to one backend and operation.
type BackendError struct {
	Backend Backend
	Op      string
	Cause   error
}

// Error implements the error interface
func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Cause)
}

// Unwrap returns the underlying cause
func (e *BackendError) Unwrap() error {
	return e.Cause
}

// WrapBackend annotates err with backend and operation. Nil stays nil.
func WrapBackend(b Backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: b, Op: op, Cause: err}
}

// BackendOf reports which backend produced err, if any.
func BackendOf(err error) (Backend, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Backend, true
	}
	return "", false
}
