// Package event defines the closed set of domain events shared by every
// platform module, the structural validation rules they must pass before
// entering the pipeline, and the envelope that carries them.
package event

import (
	"fmt"
)

// DomainEvent is the contract every event variant implements. Variants
// carry only primitive and identifier fields; no live domain objects.
type DomainEvent interface {
	EventType() string
	Validate() error
}

const (
	CodeMissingField    = "MISSING_FIELD"
	CodeInvalidFormat   = "INVALID_FORMAT"
	CodeOutOfRange      = "OUT_OF_RANGE"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeUnknownVariant  = "UNKNOWN_VARIANT"
)

type ValidationError struct {
	Code    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field '%s': %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func missingField(field string) *ValidationError {
	return &ValidationError{Code: CodeMissingField, Field: field, Message: "required field is empty"}
}

func invalidFormat(field, message string) *ValidationError {
	return &ValidationError{Code: CodeInvalidFormat, Field: field, Message: message}
}

func outOfRange(field, message string) *ValidationError {
	return &ValidationError{Code: CodeOutOfRange, Field: field, Message: message}
}
