package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
)

// FieldError describes one invalid field of an incoming payload
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated field
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a single-field ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// TransientDeliveryError is a delivery failure worth retrying later
type TransientDeliveryError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransientDeliveryError) Error() string {
	switch {
	case e.Err != nil && e.Status == 0:
		return "delivery failed: " + e.Err.Error()
	case e.Body != "":
		return fmt.Sprintf("delivery failed: HTTP %d: %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("delivery failed: HTTP %d", e.Status)
	}
}

func (e *TransientDeliveryError) Unwrap() error { return e.Err }

// ProviderError is a failure of the AI rewrite provider
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return e.Provider + " provider: " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MediaFetchError is a failure to materialize one media item
type MediaFetchError struct {
	ID  int64
	URL string
	Err error
}

func (e *MediaFetchError) Error() string {
	return fmt.Sprintf("media %d (%s): %v", e.ID, e.URL, e.Err)
}

func (e *MediaFetchError) Unwrap() error { return e.Err }

// FatalConfigurationError means a referenced destination does not exist
type FatalConfigurationError struct {
	DestinationID string
}

func (e *FatalConfigurationError) Error() string {
	return "destination " + e.DestinationID + " is not registered"
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
