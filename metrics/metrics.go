package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "featurestream"

// Outcome values for RecordsProcessed.
const (
	OutcomeDelivered    = "delivered"
	OutcomeDropped      = "dropped"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeFailed       = "failed"
	OutcomeDuplicate    = "duplicate"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RecordsConsumed    *prometheus.CounterVec
	RecordsProcessed   *prometheus.CounterVec
	SinkAttempts       *prometheus.CounterVec
	SinkErrors         *prometheus.CounterVec
	SinkInFlight       prometheus.Gauge
	SinkPutDuration    *prometheus.HistogramVec
	BackpressurePauses *prometheus.CounterVec
	PausedPartitions   prometheus.Gauge
	CommittedOffset    *prometheus.GaugeVec
	CommitErrors       *prometheus.CounterVec
	ConsumerLag        *prometheus.GaugeVec
	AssignedPartitions prometheus.Gauge
	DeadLetterFailures *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecordsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_consumed_total",
			Help:      "Records pulled from the broker.",
		}, []string{"topic", "partition"}),

		RecordsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_processed_total",
			Help:      "Records that reached a terminal outcome.",
		}, []string{"topic", "outcome"}),

		SinkAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_attempts_total",
			Help:      "Feature store put attempts.",
		}, []string{"target"}),

		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed feature store put attempts by error kind.",
		}, []string{"target", "kind"}),

		SinkInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sink_in_flight",
			Help:      "Feature store puts currently holding a concurrency slot.",
		}),

		SinkPutDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_put_duration_seconds",
			Help:      "Time per feature store put attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),

		BackpressurePauses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_pauses_total",
			Help:      "Partition fetch pauses by reason.",
		}, []string{"topic", "reason"}),

		PausedPartitions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused_partitions",
			Help:      "Partitions with fetching currently paused.",
		}),

		CommittedOffset: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "committed_offset",
			Help:      "Last committed position per partition.",
		}, []string{"topic", "partition"}),

		CommitErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_errors_total",
			Help:      "Failed offset commits.",
		}, []string{"topic"}),

		ConsumerLag: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumer_lag",
			Help:      "Consumer group lag per partition.",
		}, []string{"topic", "partition"}),

		AssignedPartitions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "assigned_partitions",
			Help:      "Partitions currently owned by this member.",
		}),

		DeadLetterFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letter_failures_total",
			Help:      "Dead-letter emits that could not be delivered.",
		}, []string{"topic"}),
	}
}

func partitionLabel(p int32) string {
	return strconv.FormatInt(int64(p), 10)
}

func (m *Metrics) Consumed(topic string, partition int32, n int) {
	if m == nil {
		return
	}
	m.RecordsConsumed.WithLabelValues(topic, partitionLabel(partition)).Add(float64(n))
}

func (m *Metrics) Processed(topic, outcome string) {
	if m == nil {
		return
	}
	m.RecordsProcessed.WithLabelValues(topic, outcome).Inc()
}

func (m *Metrics) SinkAttempt(target string, d time.Duration) {
	if m == nil {
		return
	}
	m.SinkAttempts.WithLabelValues(target).Inc()
	m.SinkPutDuration.WithLabelValues(target).Observe(d.Seconds())
}

func (m *Metrics) SinkError(target, kind string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(target, kind).Inc()
}

func (m *Metrics) InFlight(delta int) {
	if m == nil {
		return
	}
	m.SinkInFlight.Add(float64(delta))
}

func (m *Metrics) Paused(topic, reason string) {
	if m == nil {
		return
	}
	m.BackpressurePauses.WithLabelValues(topic, reason).Inc()
	m.PausedPartitions.Inc()
}

func (m *Metrics) Resumed() {
	if m == nil {
		return
	}
	m.PausedPartitions.Dec()
}

func (m *Metrics) Committed(topic string, partition int32, position int64) {
	if m == nil {
		return
	}
	m.CommittedOffset.WithLabelValues(topic, partitionLabel(partition)).Set(float64(position))
}

func (m *Metrics) CommitFailed(topic string) {
	if m == nil {
		return
	}
	m.CommitErrors.WithLabelValues(topic).Inc()
}

func (m *Metrics) Lag(topic string, partition int32, lag int64) {
	if m == nil {
		return
	}
	m.ConsumerLag.WithLabelValues(topic, partitionLabel(partition)).Set(float64(lag))
}

func (m *Metrics) Assigned(delta int) {
	if m == nil {
		return
	}
	m.AssignedPartitions.Add(float64(delta))
}

func (m *Metrics) DeadLetterFailed(topic string) {
	if m == nil {
		return
	}
	m.DeadLetterFailures.WithLabelValues(topic).Inc()
}
