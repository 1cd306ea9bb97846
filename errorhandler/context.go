package errorhandler

import (
	"github.com/coderxlab/featurestream/kafka"
)

// ErrorContext provides context about an error that occurred during processing.
// It contains all the information a handler needs to make a decision about
// how to handle the error, and is what the dead-letter sink receives.
type ErrorContext struct {
	// Record is the raw record that caused the error.
	Record kafka.ConsumerRecord

	// Error is the error that occurred during processing.
	Error error

	// Kind is the classification of Error.
	Kind Kind

	// Attempt is current attempt number, 1 indexed.
	Attempt int

	// Phase indicates where in the pipeline the error occurred
	Phase ErrorPhase
}

func NewErrorContext(record kafka.ConsumerRecord, err error) ErrorContext {
	return ErrorContext{
		Record:  record.Copy(),
		Error:   err,
		Kind:    Classify(err),
		Attempt: 1,
	}
}

// WithError sets the error and reclassifies it.
func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	ec.Kind = Classify(err)
	return ec
}

func (ec ErrorContext) WithAttempt(attempt int) ErrorContext {
	ec.Attempt = attempt
	return ec
}

func (ec ErrorContext) WithPhase(phase ErrorPhase) ErrorContext {
	ec.Phase = phase
	return ec
}

func (ec ErrorContext) IncrementAttempt() ErrorContext {
	ec.Attempt++
	return ec
}
