package sink

import (
	"errors"
	"fmt"

	"github.com/coderxlab/featurestream/errorhandler"
)

// Error is a classified store failure. Store implementations wrap their
// client errors in one of the constructors below.
type Error struct {
	kind errorhandler.Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sink %s: %v", e.kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Kind() errorhandler.Kind {
	return e.kind
}

func Throttled(err error) error {
	return &Error{kind: errorhandler.KindThrottled, Err: err}
}

func Transient(err error) error {
	return &Error{kind: errorhandler.KindTransient, Err: err}
}

func SchemaRejected(err error) error {
	return &Error{kind: errorhandler.KindSchemaRejected, Err: err}
}

func Unauthorized(err error) error {
	return &Error{kind: errorhandler.KindUnauthorized, Err: err}
}

func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// DeliveryError is returned by Client.Put when a record was not delivered.
// Action is the policy decision that ended the attempts.
type DeliveryError struct {
	DedupKey string
	Attempts int
	Action   errorhandler.ActionType
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf(
		"deliver %s after %d attempt(s), action %s: %v",
		e.DedupKey, e.Attempts, e.Action, e.Err,
	)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func AsDeliveryError(err error) (*DeliveryError, bool) {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
