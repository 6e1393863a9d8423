package main

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy. Validation and NotFound surface to the caller before any
// state mutation; Conflict means a concurrent write lost; ExternalService
// wraps persistence or narration failures and never crashes the simulation.

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	What string
}

func (e *NotFoundError) Error() string { return e.What + " not found" }

type ConflictError struct {
	What string
}

func (e *ConflictError) Error() string { return "conflict: " + e.What }

type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return e.Service + " unavailable: " + e.Err.Error()
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func httpStatus(err error) int {
	var ve *ValidationError
	var nf *NotFoundError
	var ce *ConflictError
	var xe *ExternalServiceError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &xe):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
