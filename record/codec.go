package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/coderxlab/featurestream/kafka"
)

var errNotObject = errors.New("payload is not a JSON object")

type DecoderConfig struct {
	RequiredFields []string
	EventTimeField string
}

func defaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		RequiredFields: DefaultRequiredFields,
		EventTimeField: FieldEventTime,
	}
}

type DecoderOption func(*DecoderConfig)

// WithRequiredFields replaces the required field set. Order matters: the
// first missing field in this order is the one reported.
func WithRequiredFields(fields ...string) DecoderOption {
	return func(c *DecoderConfig) {
		if len(fields) > 0 {
			c.RequiredFields = append([]string(nil), fields...)
		}
	}
}

// WithEventTimeField names the field normalised to UTC RFC 3339. An empty
// name disables normalisation.
func WithEventTimeField(name string) DecoderOption {
	return func(c *DecoderConfig) {
		c.EventTimeField = name
	}
}

// Decoder turns raw messages into FeatureRecords. It holds no mutable state
// and is safe for concurrent use.
type Decoder struct {
	required  []string
	eventTime string
}

func NewDecoder(opts ...DecoderOption) *Decoder {
	cfg := defaultDecoderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Decoder{
		required:  append([]string(nil), cfg.RequiredFields...),
		eventTime: cfg.EventTimeField,
	}
}

func (d *Decoder) RequiredFields() []string {
	return append([]string(nil), d.required...)
}

// Decode parses msg.Value. Errors are always *ValidationError.
func (d *Decoder) Decode(msg kafka.ConsumerRecord) (FeatureRecord, error) {
	fields, err := d.DecodeBytes(msg.Value)
	if err != nil {
		return FeatureRecord{}, err
	}

	return FeatureRecord{
		Names:  d.RequiredFields(),
		Fields: fields,
		Origin: Origin{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Timestamp: msg.Timestamp,
		},
	}, nil
}

// DecodeBytes validates payload and returns the normalised required fields.
func (d *Decoder) DecodeBytes(payload []byte) (map[string]string, error) {
	if !utf8.Valid(payload) {
		return nil, malformed(errors.New("payload is not valid UTF-8"))
	}

	obj, err := parseObject(payload)
	if err != nil {
		return nil, malformed(err)
	}

	fields := make(map[string]string, len(d.required))
	for _, name := range d.required {
		raw, ok := obj[name]
		if !ok {
			return nil, missing(name)
		}

		v, present, err := stringify(raw)
		if err != nil {
			return nil, malformed(fmt.Errorf("field %q: %w", name, err))
		}
		if !present {
			return nil, missing(name)
		}

		if name == d.eventTime {
			v = normaliseTime(v)
		}
		fields[name] = v
	}

	return fields, nil
}

func parseObject(payload []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}

	return obj, nil
}

// stringify renders a JSON value as a string without reinterpreting it.
// Numbers keep their literal text. null and "" report present=false.
func stringify(raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false, nil
	}

	switch raw[0] {
	case 'n':
		return "", false, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, err
		}
		return s, s != "", nil
	case 't', 'f':
		b, err := strconv.ParseBool(string(raw))
		if err != nil {
			return "", false, err
		}
		return strconv.FormatBool(b), true, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", false, err
		}
		return buf.String(), true, nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false, err
		}
		return n.String(), true, nil
	}
}

// normaliseTime re-renders RFC 3339 timestamps in UTC with a Z suffix.
// Anything else passes through unchanged.
func normaliseTime(v string) string {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return v
	}
	return t.UTC().Format(time.RFC3339Nano)
}
