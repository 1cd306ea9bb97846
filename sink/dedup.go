package sink

import (
	"strconv"
	"strings"

	"github.com/coderxlab/featurestream/record"
	"github.com/google/uuid"
)

// Namespace seeds every dedup key. Changing it changes every key.
var Namespace = uuid.MustParse("5b1f6a8e-3c1d-4f0a-9c57-2f7c3e0d8a41")

type DedupStrategy string

const (
	DedupByFields DedupStrategy = "fields"
	DedupByOffset DedupStrategy = "offset"
)

// KeyFunc derives the dedup key of a record. It must be deterministic.
type KeyFunc func(record.FeatureRecord) string

// FieldsKey keys a record by the values of fields, joined with NUL.
func FieldsKey(fields ...string) KeyFunc {
	if len(fields) == 0 {
		fields = []string{record.FieldCustomerID, record.FieldEventTime}
	}
	return func(r record.FeatureRecord) string {
		parts := make([]string, len(fields))
		for i, f := range fields {
			parts[i] = r.Get(f)
		}
		return uuid.NewSHA1(Namespace, []byte(strings.Join(parts, "\x00"))).String()
	}
}

// OffsetKey keys a record by where it was read from.
func OffsetKey() KeyFunc {
	return func(r record.FeatureRecord) string {
		src := r.Origin.Topic + "/" +
			strconv.FormatInt(int64(r.Origin.Partition), 10) + "/" +
			strconv.FormatInt(r.Origin.Offset, 10)
		return uuid.NewSHA1(Namespace, []byte(src)).String()
	}
}

// KeyFuncFor returns the KeyFunc of a named strategy, defaulting to fields.
func KeyFuncFor(s DedupStrategy, fields ...string) KeyFunc {
	if s == DedupByOffset {
		return OffsetKey()
	}
	return FieldsKey(fields...)
}
