package record

import (
	"time"
)

const (
	FieldCustomerID  = "customer_id"
	FieldProductID   = "product_id"
	FieldOrderAmount = "order_amount"
	FieldOrderStatus = "order_status"
	FieldEventTime   = "event_time"
)

// DefaultRequiredFields is the order event schema, in validation order.
var DefaultRequiredFields = []string{
	FieldCustomerID,
	FieldProductID,
	FieldOrderAmount,
	FieldOrderStatus,
	FieldEventTime,
}

// Origin is where a record was read from.
type Origin struct {
	Topic     string
	Partition int32
	Offset    int64
	Timestamp time.Time
}

// FeatureRecord is a validated record. Every required field is present and
// non-empty, and every value is a string.
type FeatureRecord struct {
	// Names lists the fields in schema order.
	Names  []string
	Fields map[string]string
	Origin Origin
}

func (r FeatureRecord) Get(name string) string {
	return r.Fields[name]
}

func (r FeatureRecord) CustomerID() string  { return r.Fields[FieldCustomerID] }
func (r FeatureRecord) ProductID() string   { return r.Fields[FieldProductID] }
func (r FeatureRecord) OrderAmount() string { return r.Fields[FieldOrderAmount] }
func (r FeatureRecord) OrderStatus() string { return r.Fields[FieldOrderStatus] }
func (r FeatureRecord) EventTime() string   { return r.Fields[FieldEventTime] }

// Feature is one name/value pair in the shape the feature store expects.
type Feature struct {
	Name  string
	Value string
}

// Features returns the fields in schema order.
func (r FeatureRecord) Features() []Feature {
	out := make([]Feature, 0, len(r.Names))
	for _, n := range r.Names {
		out = append(out, Feature{Name: n, Value: r.Fields[n]})
	}
	return out
}
