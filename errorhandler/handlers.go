package errorhandler

import (
	"context"
	"time"

	"github.com/coderxlab/featurestream/logger"
	"github.com/hugolhafner/dskit/backoff"
)

// LogAndContinue logs error and continues processing
func LogAndContinue(logger logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			logger.Warn(
				"error processing record, skipping",
				"error", ec.Error,
				"kind", ec.Kind.String(),
				"topic", ec.Record.Topic,
				"offset", ec.Record.Offset,
				"partition", ec.Record.Partition,
				"attempt", ec.Attempt,
				"phase", ec.Phase.String(),
			)
			return ActionContinue{}
		},
	)
}

// LogAndFail logs error and stops processing
func LogAndFail(logger logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			logger.Error(
				"error processing record, failing",
				"error", ec.Error,
				"kind", ec.Kind.String(),
				"topic", ec.Record.Topic,
				"offset", ec.Record.Offset,
				"partition", ec.Record.Partition,
				"attempt", ec.Attempt,
				"phase", ec.Phase.String(),
			)
			return ActionFail{}
		},
	)
}

// SilentFail fails without logging.
func SilentFail() Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			return ActionFail{}
		},
	)
}

// WithMaxAttempts wraps a handler with retry logic.
// While ec.Attempt is below maxAttempts it waits b.Next(attempt) and asks for
// a retry. Once attempts are exhausted the fallback handler decides.
func WithMaxAttempts(maxAttempts int, b backoff.Backoff, fallback Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			if ec.Attempt >= maxAttempts {
				return fallback.Handle(ctx, ec)
			}

			t := time.NewTimer(b.Next(uint(ec.Attempt)))
			defer t.Stop()

			select {
			case <-ctx.Done():
				return ActionFail{}
			case <-t.C:
			}

			return ActionRetry{}
		},
	)
}

// WithDLQ returns SendToDLQ action when inner would Continue
// Useful for: WithMaxAttempts(3, backoff, WithDLQ(nil))
func WithDLQ(inner Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			var action Action = ActionContinue{}
			if inner != nil {
				action = inner.Handle(ctx, ec)
			}

			if action.Type() == ActionTypeContinue {
				return ActionSendToDLQ{}
			}

			return action
		},
	)
}

// ActionLogger logs the action decided by the next handler
func ActionLogger(l logger.Logger, level logger.LogLevel, next Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			action := next.Handle(ctx, ec)

			l.Log(
				level,
				"Error handler decision",
				"action", action.Type().String(),
				"error", ec.Error,
				"kind", ec.Kind.String(),
				"topic", ec.Record.Topic,
				"offset", ec.Record.Offset,
				"partition", ec.Record.Partition,
				"attempt", ec.Attempt,
			)
			return action
		},
	)
}
