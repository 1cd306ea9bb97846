package errorhandler

import (
	"context"
	"errors"
)

// Kind is the shared classification of every failure the pipeline can see.
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformedPayload
	KindMissingField
	KindThrottled
	KindTransient
	KindSchemaRejected
	KindUnauthorized
	KindContractViolation
)

func (k Kind) String() string {
	switch k {
	case KindMalformedPayload:
		return "malformed_payload"
	case KindMissingField:
		return "missing_field"
	case KindThrottled:
		return "throttled"
	case KindTransient:
		return "transient"
	case KindSchemaRejected:
		return "schema_rejected"
	case KindUnauthorized:
		return "unauthorized"
	case KindContractViolation:
		return "contract_violation"
	default:
		return "unknown"
	}
}

// Retryable reports whether another attempt may succeed.
func (k Kind) Retryable() bool {
	return k == KindThrottled || k == KindTransient
}

// Classified is implemented by errors that know their Kind.
type Classified interface {
	error
	Kind() Kind
}

// Classify returns the Kind of err. Errors that carry no classification,
// including deadline expiry, are treated as transient. Cancellation is not
// a failure of the record and classifies as KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}

	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}

	return KindTransient
}

var _ Handler = (*KindRouter)(nil)

// KindRouter dispatches to a handler registered for the error's Kind,
// falling back to the default handler.
type KindRouter struct {
	fallback Handler
	handlers map[Kind]Handler
}

// NewKindRouter creates a router. A nil fallback defaults to SilentFail.
func NewKindRouter(fallback Handler) *KindRouter {
	if fallback == nil {
		fallback = SilentFail()
	}
	return &KindRouter{
		fallback: fallback,
		handlers: make(map[Kind]Handler),
	}
}

// On registers h for each of kinds and returns the router for chaining.
func (r *KindRouter) On(h Handler, kinds ...Kind) *KindRouter {
	for _, k := range kinds {
		r.handlers[k] = h
	}
	return r
}

func (r *KindRouter) Handle(ctx context.Context, ec ErrorContext) Action {
	if h, ok := r.handlers[ec.Kind]; ok && h != nil {
		return h.Handle(ctx, ec)
	}
	return r.fallback.Handle(ctx, ec)
}
