package record

import (
	"errors"
	"fmt"

	"github.com/coderxlab/featurestream/errorhandler"
)

type Reason int

const (
	ReasonMalformedPayload Reason = iota
	ReasonMissingField
)

func (r Reason) String() string {
	switch r {
	case ReasonMissingField:
		return "MissingField"
	default:
		return "MalformedPayload"
	}
}

// ValidationError is returned by Decode. It is never retried.
type ValidationError struct {
	Reason Reason
	// Field is set for ReasonMissingField.
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Reason == ReasonMissingField {
		return fmt.Sprintf("missing required field %q", e.Field)
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed payload: %v", e.Err)
	}
	return "malformed payload"
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Kind() errorhandler.Kind {
	if e.Reason == ReasonMissingField {
		return errorhandler.KindMissingField
	}
	return errorhandler.KindMalformedPayload
}

func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func missing(field string) *ValidationError {
	return &ValidationError{Reason: ReasonMissingField, Field: field}
}

func malformed(err error) *ValidationError {
	return &ValidationError{Reason: ReasonMalformedPayload, Err: err}
}
