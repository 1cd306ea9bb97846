package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrProcessStatus = attribute.Key("featurestream.process.status")
	AttrPollStatus    = attribute.Key("featurestream.poll.status")
	AttrErrorAction   = attribute.Key("featurestream.error.action")
	AttrErrorKind     = attribute.Key("featurestream.error.kind")
	AttrErrorPhase    = attribute.Key("featurestream.error.phase")
	AttrSinkTarget    = attribute.Key("featurestream.sink.target")
	AttrSinkAttempt   = attribute.Key("featurestream.sink.attempt")
	AttrDedupKey      = attribute.Key("featurestream.sink.dedup_key")
)

// Process status values
const (
	StatusSuccess = "success"
	StatusDropped = "dropped"
	StatusDLQ     = "dlq"
	StatusFailed  = "failed"
	StatusError   = "error"
)
