package scraper

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/edgecomet/distill/pkg/types"
)

// Kind classifies scrape failures
type Kind int

const (
	ErrTimeout  Kind = iota + 1 // Overall budget exceeded
	ErrBrowser                  // Navigation, wait, evaluation or tab creation failed
	ErrInternal                 // Conversion failure or worker crash
)

// String returns the metric label of the kind
func (k Kind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrBrowser:
		return "browser_error"
	case ErrInternal:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Error is a typed scrape failure
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the machine-readable error code
func (e *Error) Code() string {
	switch e.Kind {
	case ErrTimeout:
		return types.ErrorCodeTimeout
	case ErrBrowser:
		return types.ErrorCodeBrowser
	default:
		return types.ErrorCodeInternal
	}
}

// HTTPStatus returns the status code the error is reported with
func (e *Error) HTTPStatus() int {
	if e.Kind == ErrTimeout {
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// KindOf returns the kind of err, or ErrInternal for untyped errors
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrInternal
}
