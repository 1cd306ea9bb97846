package deadletter

import (
	"context"

	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/logger"
)

// Sink receives records that will not be delivered. Emit is best effort:
// failures are logged and never stop the pipeline.
type Sink interface {
	Emit(ctx context.Context, ec errorhandler.ErrorContext)
}

type noop struct{}

func (noop) Emit(context.Context, errorhandler.ErrorContext) {}

// Noop discards everything.
func Noop() Sink {
	return noop{}
}

type logSink struct {
	logger logger.Logger
}

// Log writes dead letters to l instead of a topic.
func Log(l logger.Logger) Sink {
	return logSink{logger: l.With("component", "dead-letter")}
}

func (s logSink) Emit(_ context.Context, ec errorhandler.ErrorContext) {
	s.logger.Error(
		"Dead-lettered record",
		"error", ec.Error,
		"kind", ec.Kind.String(),
		"phase", ec.Phase.String(),
		"attempt", ec.Attempt,
		"topic", ec.Record.Topic,
		"partition", ec.Record.Partition,
		"offset", ec.Record.Offset,
		"value", string(ec.Record.Value),
	)
}
