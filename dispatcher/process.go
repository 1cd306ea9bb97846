package dispatcher

import (
	"context"
	"errors"
	"strconv"

	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/kafka"
	"github.com/coderxlab/featurestream/metrics"
	"github.com/coderxlab/featurestream/offset"
	streamsotel "github.com/coderxlab/featurestream/otel"
	"github.com/coderxlab/featurestream/record"
	"github.com/coderxlab/featurestream/sink"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// Decoder turns a raw record into a FeatureRecord. *record.Decoder
// satisfies it.
type Decoder interface {
	Decode(msg kafka.ConsumerRecord) (record.FeatureRecord, error)
}

// Deliverer writes a FeatureRecord to the feature store. *sink.Client
// satisfies it.
type Deliverer interface {
	Put(ctx context.Context, r record.FeatureRecord) (sink.Ack, error)
}

// CapacityReporter is implemented by deliverers with a process-wide
// in-flight cap. Fetching pauses while it reports saturation.
type CapacityReporter interface {
	Saturated() bool
}

// process drives one record to a terminal outcome: decode, deliver, and on
// failure apply the action chosen by the policy.
func (w *partitionWorker) process(ctx context.Context, rec kafka.ConsumerRecord, resolve offset.Resolver) result {
	res := result{offset: rec.Offset, resolve: resolve}

	ctx = w.tel.Extract(ctx, rec.Headers)

	ctx, span := w.tel.Tracer.Start(
		ctx, rec.Topic+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypeProcess,
			semconv.MessagingDestinationName(rec.Topic),
			semconv.MessagingDestinationPartitionID(strconv.FormatInt(int64(rec.Partition), 10)),
			semconv.MessagingKafkaOffsetKey.Int64(rec.Offset),
			semconv.MessagingConsumerGroupName(w.groupID),
			semconv.MessagingMessageBodySize(rec.Size()),
		),
	)
	defer span.End()

	fr, err := w.decoder.Decode(rec)
	if err != nil {
		ec := errorhandler.NewErrorContext(rec, err).WithPhase(errorhandler.PhaseDecode)
		action := w.policy.Handle(ctx, ec)
		return w.settle(ctx, span, ec, action.Type(), res)
	}

	ack, err := w.deliverer.Put(ctx, fr)
	if err == nil {
		res.outcome = metrics.OutcomeDelivered
		res.successes = 1
		res.failures = ack.Attempts - 1
		span.SetAttributes(
			streamsotel.AttrProcessStatus.String(streamsotel.StatusSuccess),
			streamsotel.AttrSinkAttempt.Int(ack.Attempts),
		)
		w.logger.Debug("Record delivered", "offset", rec.Offset, "dedup_key", ack.DedupKey, "attempts", ack.Attempts)
		return res
	}

	if errors.Is(err, sink.ErrAbandoned) {
		span.SetStatus(codes.Error, "abandoned")
		return res
	}

	de, ok := sink.AsDeliveryError(err)
	if !ok {
		de = &sink.DeliveryError{Attempts: 1, Action: errorhandler.ActionTypeFail, Err: err}
	}
	res.failures = de.Attempts

	ec := errorhandler.NewErrorContext(rec, de.Err).
		WithPhase(errorhandler.PhaseDelivery).
		WithAttempt(de.Attempts)
	return w.settle(ctx, span, ec, de.Action, res)
}

func (w *partitionWorker) settle(
	ctx context.Context, span trace.Span, ec errorhandler.ErrorContext, action errorhandler.ActionType, res result,
) result {
	span.RecordError(ec.Error)
	span.SetAttributes(
		streamsotel.AttrErrorKind.String(ec.Kind.String()),
		streamsotel.AttrErrorPhase.String(ec.Phase.String()),
		streamsotel.AttrErrorAction.String(action.String()),
	)

	switch action {
	case errorhandler.ActionTypeContinue:
		res.outcome = metrics.OutcomeDropped
		span.SetAttributes(streamsotel.AttrProcessStatus.String(streamsotel.StatusDropped))

	case errorhandler.ActionTypeSendToDLQ:
		w.deadLetter.Emit(ctx, ec)
		res.outcome = metrics.OutcomeDeadLettered
		span.SetAttributes(streamsotel.AttrProcessStatus.String(streamsotel.StatusDLQ))

	case errorhandler.ActionTypeRetry:
		// decoding is deterministic, another attempt cannot succeed
		w.logger.Warn(
			"Retry requested for a record that cannot be decoded, skipping",
			"offset", ec.Record.Offset,
			"kind", ec.Kind.String(),
		)
		res.outcome = metrics.OutcomeDropped
		span.SetAttributes(streamsotel.AttrProcessStatus.String(streamsotel.StatusDropped))

	default:
		res.outcome = metrics.OutcomeFailed
		res.err = ec.Error
		span.SetAttributes(streamsotel.AttrProcessStatus.String(streamsotel.StatusFailed))
		span.SetStatus(codes.Error, ec.Error.Error())
	}

	return res
}
