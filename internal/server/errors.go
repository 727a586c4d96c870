// Package server exposes the dashboard over HTTP: JSON routes for every
// view and an event stream of store changes.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/okamoto/hr-dashboard/internal/loader"
	"github.com/okamoto/hr-dashboard/internal/store"
)

// MsgEmployeeNotFound is the body text for an unknown employee id
const MsgEmployeeNotFound = "Employee not found"

// ValidationError indicates a malformed request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// fromValidator converts the first validator failure into a ValidationError
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	msg := fe.Tag()
	if fe.Param() != "" {
		msg = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
	}
	return &ValidationError{Field: strings.ToLower(fe.Field()), Message: "failed " + msg}
}

// HTTPStatus returns the status code for an error
func HTTPStatus(err error) int {
	var verr *ValidationError
	var vErrs validator.ValidationErrors

	switch {
	case errors.As(err, &verr), errors.As(err, &vErrs):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrEmployeeNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTooManySubscribers), errors.Is(err, ErrManagerClosed), errors.Is(err, loader.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage is the user-facing text for err
func errorMessage(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, store.ErrEmployeeNotFound):
		return MsgEmployeeNotFound
	case HTTPStatus(err) == http.StatusInternalServerError:
		return "internal server error"
	default:
		return err.Error()
	}
}
