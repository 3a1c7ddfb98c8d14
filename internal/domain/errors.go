package domain

import (
	"errors"
	"net/http"
)

// HTTPError defines errors that map to an HTTP status code. Handlers use
// it to translate domain failures without enumerating every error type.
type HTTPError interface {
	error
	StatusCode() int
}

type (
	// NotFoundError indicates a conversation, message or leaf was not found
	NotFoundError struct {
		Message string
	}

	// ValidationError indicates invalid input
	ValidationError struct {
		Message string
	}

	// UnauthorizedError indicates a missing session or user
	UnauthorizedError struct {
		Message string
	}

	// ForbiddenError indicates the caller is authenticated but not the owner
	ForbiddenError struct {
		Message string
	}

	// UpstreamError indicates a model, tool or search backend failure.
	// During streaming these are recorded as status updates rather than
	// surfaced through the HTTP response.
	UpstreamError struct {
		Message string
	}

	// PersistenceError indicates a database write failed. Fatal to the
	// turn; never silently swallowed.
	PersistenceError struct {
		Message string
	}
)

func (e *NotFoundError) Error() string     { return e.Message }
func (e *ValidationError) Error() string   { return e.Message }
func (e *UnauthorizedError) Error() string { return e.Message }
func (e *ForbiddenError) Error() string    { return e.Message }
func (e *UpstreamError) Error() string     { return e.Message }
func (e *PersistenceError) Error() string  { return e.Message }

func (e *NotFoundError) StatusCode() int     { return http.StatusNotFound }
func (e *ValidationError) StatusCode() int   { return http.StatusBadRequest }
func (e *UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }
func (e *ForbiddenError) StatusCode() int    { return http.StatusForbidden }
func (e *UpstreamError) StatusCode() int     { return http.StatusBadGateway }
func (e *PersistenceError) StatusCode() int  { return http.StatusInternalServerError }

// Sentinel errors for errors.Is matching.
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrUpstream     = errors.New("upstream failure")
	ErrPersistence  = errors.New("persistence failure")
)

func (e *NotFoundError) Is(target error) bool     { return target == ErrNotFound }
func (e *ValidationError) Is(target error) bool   { return target == ErrValidation }
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }
func (e *ForbiddenError) Is(target error) bool    { return target == ErrForbidden }
func (e *UpstreamError) Is(target error) bool     { return target == ErrUpstream }
func (e *PersistenceError) Is(target error) bool  { return target == ErrPersistence }
