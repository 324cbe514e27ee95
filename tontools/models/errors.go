package models

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrNotAnAddress   = errors.New("not an address")

	ErrMalformedBoc  = errors.New("malformed boc")
	ErrCellUnderflow = errors.New("cell underflow")
	ErrNoSuchRef     = errors.New("no such ref")

	ErrUnexpectedStack     = errors.New("unexpected stack entry")
	ErrUnknownSaleShape    = errors.New("unknown sale shape")
	ErrMetadataUnavailable = errors.New("metadata unavailable")

	ErrBackendUnavailable   = errors.New("backend unavailable")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrNoAccess             = errors.New("wallet has no signing key")
)

// ReadMethodError is returned when a get-method finishes with a non-zero exit code.
type ReadMethodError struct {
	Method   string
	ExitCode int64
}

func (e *ReadMethodError) Error() string {
	return fmt.Sprintf("get method %s failed with exit code %d", e.Method, e.ExitCode)
}

type IndexError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e IndexError) Error() string {
	return e.Message
}

// AsIndexError maps an error to the http-facing representation.
func AsIndexError(err error) IndexError {
	var idx IndexError
	if errors.As(err, &idx) {
		return idx
	}
	var readErr *ReadMethodError
	switch {
	case errors.As(err, &readErr):
		return IndexError{Code: 409, Message: err.Error()}
	case errors.Is(err, ErrInvalidAddress):
		return IndexError{Code: 422, Message: err.Error()}
	case errors.Is(err, ErrNoAccess):
		return IndexError{Code: 403, Message: err.Error()}
	case errors.Is(err, ErrUnsupportedOperation):
		return IndexError{Code: 501, Message: err.Error()}
	case errors.Is(err, ErrBackendUnavailable):
		return IndexError{Code: 503, Message: err.Error()}
	case errors.Is(err, ErrUnknownSaleShape), errors.Is(err, ErrNotAnAddress):
		return IndexError{Code: 404, Message: err.Error()}
	}
	return IndexError{Code: 500, Message: err.Error()}
}
