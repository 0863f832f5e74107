package kelpie

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoInventory is returned by inventory operations on a controller created
// without a kv store
var ErrNoInventory = errors.New("no compute inventory configured")

type (
	// NotFoundError is returned for an unknown project, vm or compute id
	NotFoundError struct {
		Kind string
		ID   string
	}

	// DuplicateError is returned when an explicitly supplied id is taken
	DuplicateError struct {
		Kind string
		ID   string
	}

	// ValidationError is returned for malformed input
	ValidationError struct {
		Field   string
		Message string
	}

	// ComputeError is a failed request to a compute. StatusCode is the remote
	// status, or 0 when the compute could not be reached or its response could
	// not be read.
	ComputeError struct {
		ComputeID  string
		Method     string
		Path       string
		StatusCode int
		Message    string
		Err        error
	}
)

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.ID)
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ComputeError) Error() string {
	if e.Unreachable() {
		if e.Err != nil {
			return fmt.Sprintf("compute %s unreachable: %s %s: %v", e.ComputeID, e.Method, e.Path, e.Err)
		}
		return fmt.Sprintf("compute %s unreachable: %s %s: %s", e.ComputeID, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("compute %s: %s %s: %d %s", e.ComputeID, e.Method, e.Path, e.StatusCode, e.Message)
}

// Unwrap returns the underlying transport error, if any
func (e *ComputeError) Unwrap() error {
	return e.Err
}

// Unreachable reports whether the request failed without a remote status
func (e *ComputeError) Unreachable() bool {
	return e.StatusCode == 0
}

// HTTPStatus is the status the error surfaces as. Remote client errors keep
// their code, unreachable computes are a bad gateway and remote server errors
// are internal errors.
func (e *ComputeError) HTTPStatus() int {
	switch {
	case e.Unreachable():
		return http.StatusBadGateway
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return e.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound is a helper to determine if an error is a NotFoundError
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsDuplicate is a helper to determine if an error is a DuplicateError
func IsDuplicate(err error) bool {
	var e *DuplicateError
	return errors.As(err, &e)
}

// IsValidation is a helper to determine if an error is a ValidationError
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// IsComputeError is a helper to determine if an error is a ComputeError
func IsComputeError(err error) bool {
	var e *ComputeError
	return errors.As(err, &e)
}

// HTTPStatus maps an error to the status code it should be reported with
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var ce *ComputeError
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsDuplicate(err):
		return http.StatusConflict
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.As(err, &ce):
		return ce.HTTPStatus()
	default:
		return http.StatusInternalServerError
	}
}

// ErrorMessage is the message an error is reported with. Remote client errors
// carry the compute's own message unchanged; unreachable computes get a
// generic one.
func ErrorMessage(err error) string {
	var ce *ComputeError
	if errors.As(err, &ce) {
		switch {
		case ce.Unreachable():
			return fmt.Sprintf("compute %s unreachable", ce.ComputeID)
		case ce.StatusCode >= 400 && ce.StatusCode < 500 && ce.Message != "":
			return ce.Message
		}
	}
	return err.Error()
}
