package otel

import (
	"context"
	"slices"

	"github.com/coderxlab/featurestream/kafka"
)

// KafkaHeadersCarrier exposes record headers as a propagation.TextMapCarrier.
// Get reads the first header with a key; Set leaves exactly one.
type KafkaHeadersCarrier struct {
	Headers *[]kafka.Header
}

func NewKafkaHeadersCarrier(headers *[]kafka.Header) KafkaHeadersCarrier {
	return KafkaHeadersCarrier{Headers: headers}
}

func (c KafkaHeadersCarrier) Get(key string) string {
	v, _ := kafka.HeaderValue(*c.Headers, key)
	return string(v)
}

func (c KafkaHeadersCarrier) Set(key, value string) {
	i := slices.IndexFunc(*c.Headers, func(h kafka.Header) bool { return h.Key == key })
	if i < 0 {
		*c.Headers = append(*c.Headers, kafka.Header{Key: key, Value: []byte(value)})
		return
	}

	(*c.Headers)[i].Value = []byte(value)
	tail := slices.DeleteFunc((*c.Headers)[i+1:], func(h kafka.Header) bool { return h.Key == key })
	*c.Headers = (*c.Headers)[:i+1+len(tail)]
}

func (c KafkaHeadersCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.Headers))
	for _, h := range *c.Headers {
		if !slices.Contains(keys, h.Key) {
			keys = append(keys, h.Key)
		}
	}
	return keys
}

// Extract returns ctx with the trace context carried by headers.
func (t *Telemetry) Extract(ctx context.Context, headers []kafka.Header) context.Context {
	if t == nil {
		return ctx
	}
	return t.Propagator.Extract(ctx, NewKafkaHeadersCarrier(&headers))
}

// Inject returns a copy of headers carrying the trace context of ctx. The
// input slice is left untouched.
func (t *Telemetry) Inject(ctx context.Context, headers []kafka.Header) []kafka.Header {
	out := slices.Clone(headers)
	if t == nil {
		return out
	}
	t.Propagator.Inject(ctx, NewKafkaHeadersCarrier(&out))
	return out
}
