package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coderxlab/featurestream/coordinator"
	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/kafka"
	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/metrics"
	"github.com/coderxlab/featurestream/offset"
	streamsotel "github.com/coderxlab/featurestream/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Handler = (*Dispatcher)(nil)

var ErrAlreadyRunning = errors.New("dispatcher already running")

// Dispatcher pulls records from the consumer and routes them to one worker
// per owned partition. It pauses fetching for a partition whose queue is
// full or whose sink error rate is above the threshold.
type Dispatcher struct {
	consumer  kafka.Consumer
	decoder   Decoder
	deliverer Deliverer
	policy    errorhandler.Handler
	coord     *coordinator.Coordinator
	config    Config
	pauses    pauseSchedule

	workers map[kafka.TopicPartition]*partitionWorker
	mu      sync.RWMutex

	flows  map[kafka.TopicPartition]*flowState
	flowMu sync.Mutex

	halted   map[kafka.TopicPartition]*PartitionHaltedError
	haltedMu sync.RWMutex

	errCh   chan error
	runCtx  context.Context
	running atomic.Bool
	now     func() time.Time

	logger  logger.Logger
	metrics *metrics.Metrics
	tel     *streamsotel.Telemetry
}

func New(consumer kafka.Consumer, decoder Decoder, deliverer Deliverer, opts ...Option) *Dispatcher {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	l := cfg.Logger.With("component", "dispatcher")

	policy := cfg.Policy
	if policy == nil {
		policy = errorhandler.NewPolicy(errorhandler.DefaultPolicyConfig(), cfg.Logger)
	}

	d := &Dispatcher{
		consumer:  consumer,
		decoder:   decoder,
		deliverer: deliverer,
		policy:    policy,
		config:    cfg,
		pauses:    newPauseSchedule(cfg.Backpressure),
		workers:   make(map[kafka.TopicPartition]*partitionWorker),
		flows:     make(map[kafka.TopicPartition]*flowState),
		halted:    make(map[kafka.TopicPartition]*PartitionHaltedError),
		errCh:     make(chan error, 16),
		runCtx:    context.Background(),
		now:       time.Now,
		logger:    l,
		metrics:   cfg.Metrics,
		tel:       cfg.Telemetry,
	}

	d.coord = coordinator.New(
		d, consumer,
		coordinator.WithLogger(cfg.Logger),
		coordinator.WithMetrics(cfg.Metrics),
		coordinator.WithOnChange(cfg.OnAssignmentChange),
	)

	return d
}

// Coordinator returns the rebalance callback registered with the consumer.
func (d *Dispatcher) Coordinator() *coordinator.Coordinator {
	return d.coord
}

// Run subscribes to topics and blocks until ctx is cancelled or, with
// FailFast, a partition halts.
func (d *Dispatcher) Run(ctx context.Context, topics []string) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.running.Store(false)
	defer d.shutdown()

	var cancel context.CancelFunc
	d.runCtx, cancel = context.WithCancel(ctx)
	defer cancel()

	if err := d.consumer.Subscribe(topics, d.coord); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	d.logger.Info("Dispatcher started", "topics", topics)

	var errAttempts uint = 0
	for {
		select {
		case err := <-d.errCh:
			d.recordHalt(err)
			if d.config.FailFast {
				d.logger.Error("Fatal error received in Run()", "error", err)
				return err
			}

		case <-ctx.Done():
			d.logger.Info("Context cancelled, shutting down")
			return nil

		default:
			if err := d.doPoll(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, kafka.ErrClientClosed) {
					return err
				}

				d.logger.Warn("Poll error", "error", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(d.config.PollErrorBackoff.Next(errAttempts)):
				}
				errAttempts++
			} else {
				errAttempts = 0
			}
		}
	}
}

func (d *Dispatcher) recordHalt(err error) {
	he, ok := AsPartitionHalted(err)
	if !ok {
		d.logger.Error("Unexpected worker error", "error", err)
		return
	}

	d.haltedMu.Lock()
	d.halted[he.Partition] = he
	d.haltedMu.Unlock()

	d.logger.Error(
		"Partition halted, operator action required",
		"topic", he.Partition.Topic,
		"partition", he.Partition.Partition,
		"offset", he.Offset,
		"error", he.Err,
	)
}

func (d *Dispatcher) doPoll(ctx context.Context) error {
	// process pending before new Poll
	d.dispatchPending()
	d.applyBackpressure(d.now())

	ctx, receiveSpan := d.tel.Tracer.Start(
		ctx, "receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationTypeReceive,
		),
	)
	records, err := d.consumer.Poll(ctx)
	if err != nil {
		receiveSpan.RecordError(err)
		receiveSpan.End()
		return fmt.Errorf("failed to poll: %w", err)
	}

	receiveSpan.SetAttributes(semconv.MessagingBatchMessageCount(len(records)))
	receiveSpan.End()

	if len(records) == 0 {
		return nil
	}

	d.logger.Debug("Polled records", "count", len(records))

	for _, rec := range records {
		d.metrics.Consumed(rec.Topic, rec.Partition, 1)
		d.route(rec)
	}

	return nil
}

func (d *Dispatcher) route(rec kafka.ConsumerRecord) {
	tp := rec.TopicPartition()

	if !d.coord.Pullable(tp) {
		d.logger.Debug("Dropping record for partition not owned", "topic", tp.Topic, "partition", tp.Partition)
		return
	}

	worker, ok := d.getWorker(tp)
	if !ok {
		d.logger.Warn(
			"No worker for partition, may have been rebalanced",
			"topic", tp.Topic,
			"partition", tp.Partition,
		)
		return
	}
	if worker.Halted() {
		return
	}

	d.flowMu.Lock()
	defer d.flowMu.Unlock()

	// add to pending before dispatching to make sure ordering stays guaranteed
	f := d.flowFor(tp)
	if f.saturated {
		f.pending = append(f.pending, rec)
		return
	}

	if worker.TrySubmit(rec) {
		return
	}

	wasPaused := f.paused()
	f.pending = append(f.pending, rec)
	f.saturated = true

	if !wasPaused {
		d.consumer.PausePartitions(tp)
		d.metrics.Paused(tp.Topic, ReasonSaturated)
	}
	d.logger.Debug(
		"Paused partition due to backpressure",
		"topic", tp.Topic,
		"partition", tp.Partition,
		"reason", ReasonSaturated,
	)
}

// flowFor must be called with flowMu held.
func (d *Dispatcher) flowFor(tp kafka.TopicPartition) *flowState {
	f, ok := d.flows[tp]
	if !ok {
		f = &flowState{}
		d.flows[tp] = f
	}
	return f
}

// dispatchPending flushes buffered records for saturated partitions via
// TrySubmit. Partitions that are fully drained and not throttled are resumed.
func (d *Dispatcher) dispatchPending() {
	d.flowMu.Lock()
	defer d.flowMu.Unlock()

	var toResume []kafka.TopicPartition

	for tp, f := range d.flows {
		if !f.saturated {
			continue
		}

		worker, ok := d.getWorker(tp)
		if !ok || worker.Halted() {
			// partition removed or halted, drop pending records
			f.pending = nil
			f.saturated = false
			if !f.paused() {
				d.metrics.Resumed()
			}
			continue
		}

		dispatched := 0
		for _, rec := range f.pending {
			if !worker.TrySubmit(rec) {
				break
			}
			dispatched++
		}

		if dispatched < len(f.pending) {
			f.pending = f.pending[dispatched:]
			continue
		}

		f.pending = nil
		f.saturated = false
		if !f.paused() {
			toResume = append(toResume, tp)
		}
	}

	if len(toResume) > 0 {
		d.consumer.ResumePartitions(toResume...)
		for _, tp := range toResume {
			d.metrics.Resumed()
			d.logger.Debug(
				"Resumed partition after backpressure drain",
				"topic", tp.Topic,
				"partition", tp.Partition,
			)
		}
	}
}

// applyBackpressure pauses every partition while the sink in-flight cap is
// saturated, and partitions whose sink error rate is above the threshold.
// An error rate pause lasts a bounded exponential time; when it elapses the
// partition is resumed if the rate recovered, otherwise paused for longer.
func (d *Dispatcher) applyBackpressure(now time.Time) {
	capacity, _ := d.deliverer.(CapacityReporter)
	full := capacity != nil && capacity.Saturated()

	d.mu.RLock()
	workers := make(map[kafka.TopicPartition]*partitionWorker, len(d.workers))
	for tp, w := range d.workers {
		workers[tp] = w
	}
	d.mu.RUnlock()

	var toCap, toPause, toResume []kafka.TopicPartition

	d.flowMu.Lock()
	for tp, w := range workers {
		if w.Halted() {
			continue
		}

		f := d.flowFor(tp)
		switch {
		case full && !f.capped:
			if !f.paused() {
				toCap = append(toCap, tp)
			}
			f.capped = true

		case !full && f.capped:
			f.capped = false
			if !f.paused() {
				toResume = append(toResume, tp)
			}
		}

		throttled := !f.throttledUntil.IsZero()

		switch {
		case throttled && now.Before(f.throttledUntil):

		case throttled && w.errors.Exceeded():
			pause := d.pauses.escalate(f)
			f.throttledUntil = now.Add(pause)
			rate, samples := w.errors.Rate()
			d.logger.Warn(
				"Sink error rate still above threshold, extending pause",
				"topic", tp.Topic, "partition", tp.Partition,
				"error_rate", rate, "samples", samples, "pause", pause,
			)

		case throttled:
			f.throttledUntil = time.Time{}
			if !f.paused() {
				toResume = append(toResume, tp)
			}
			d.logger.Info("Resuming partition after error rate pause", "topic", tp.Topic, "partition", tp.Partition)

		case w.errors.Exceeded():
			wasPaused := f.paused()
			pause := d.pauses.escalate(f)
			f.throttledUntil = now.Add(pause)
			if !wasPaused {
				toPause = append(toPause, tp)
			}
			rate, samples := w.errors.Rate()
			d.logger.Warn(
				"Sink error rate above threshold, pausing partition",
				"topic", tp.Topic, "partition", tp.Partition,
				"error_rate", rate, "samples", samples, "pause", pause,
			)

		case f.level > 0 && w.errors.Healthy():
			f.level = 0
		}
	}
	d.flowMu.Unlock()

	if len(toCap) > 0 {
		d.consumer.PausePartitions(toCap...)
		for _, tp := range toCap {
			d.metrics.Paused(tp.Topic, ReasonSinkCapacity)
		}
		d.logger.Debug("Sink in-flight cap saturated, pausing partitions", "partitions", len(toCap))
	}
	if len(toPause) > 0 {
		d.consumer.PausePartitions(toPause...)
		for _, tp := range toPause {
			d.metrics.Paused(tp.Topic, ReasonErrorRate)
		}
	}
	if len(toResume) > 0 {
		d.consumer.ResumePartitions(toResume...)
		for range toResume {
			d.metrics.Resumed()
		}
	}
}

func (d *Dispatcher) getWorker(tp kafka.TopicPartition) (*partitionWorker, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	worker, ok := d.workers[tp]
	return worker, ok
}

// OnPartitionsAssigned starts a worker with fresh offset state for every
// partition. Offsets resume from the broker's committed position.
func (d *Dispatcher) OnPartitionsAssigned(_ context.Context, partitions []kafka.TopicPartition) {
	d.haltedMu.Lock()
	for _, tp := range partitions {
		delete(d.halted, tp)
	}
	d.haltedMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, tp := range partitions {
		if _, exists := d.workers[tp]; exists {
			d.logger.Warn("Worker already exists for partition", "partition", tp)
			continue
		}

		worker := newPartitionWorker(tp, d)
		d.workers[tp] = worker
		worker.Start(d.runCtx)

		d.logger.Debug("Started worker for partition", "partition", tp)
	}
}

// OnPartitionsRevoked stops the workers of the revoked partitions and waits
// for them to finish their in-flight records and final commit.
func (d *Dispatcher) OnPartitionsRevoked(_ context.Context, partitions []kafka.TopicPartition) {
	d.flowMu.Lock()
	for _, tp := range partitions {
		if f, ok := d.flows[tp]; ok && f.paused() {
			d.metrics.Resumed()
		}
		delete(d.flows, tp)
	}
	d.flowMu.Unlock()

	d.mu.Lock()
	workersToStop := make([]*partitionWorker, 0, len(partitions))
	for _, tp := range partitions {
		if worker, exists := d.workers[tp]; exists {
			worker.Stop()
			workersToStop = append(workersToStop, worker)
		}
	}
	d.mu.Unlock()

	d.waitForWorkers(workersToStop)

	d.mu.Lock()
	for _, tp := range partitions {
		delete(d.workers, tp)
	}
	d.mu.Unlock()

	d.logger.Debug("Completed handling partition revocation")
}

func (d *Dispatcher) waitForWorkers(workers []*partitionWorker) {
	timeout := d.config.ShutdownGrace + d.config.CommitTimeout

	var wg sync.WaitGroup
	for _, worker := range workers {
		wg.Add(1)
		go func(w *partitionWorker) {
			defer wg.Done()
			if err := w.WaitForStop(timeout); err != nil {
				d.logger.Warn(
					"Timeout waiting for worker to stop",
					"partition", w.Partition(),
					"error", err,
				)
			}
		}(worker)
	}
	wg.Wait()
}

// shutdown stops all workers, each committing its final offsets.
func (d *Dispatcher) shutdown() {
	d.logger.Info("Shutting down dispatcher")

	d.flowMu.Lock()
	for _, f := range d.flows {
		if f.paused() {
			d.metrics.Resumed()
		}
	}
	d.flows = make(map[kafka.TopicPartition]*flowState)
	d.flowMu.Unlock()

	d.mu.Lock()
	allWorkers := make([]*partitionWorker, 0, len(d.workers))
	for _, worker := range d.workers {
		worker.Stop()
		allWorkers = append(allWorkers, worker)
	}
	d.workers = make(map[kafka.TopicPartition]*partitionWorker)
	d.mu.Unlock()

	d.waitForWorkers(allWorkers)

	d.logger.Info("Dispatcher shutdown complete")
}

// WorkerCount returns the number of active partition workers
func (d *Dispatcher) WorkerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.workers)
}

// WorkerQueueDepths returns the queue depth for each partition worker
func (d *Dispatcher) WorkerQueueDepths() map[kafka.TopicPartition]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	depths := make(map[kafka.TopicPartition]int, len(d.workers))
	for tp, worker := range d.workers {
		depths[tp] = worker.QueueDepth()
	}
	return depths
}

// PendingCounts returns the number of pending records per partition
func (d *Dispatcher) PendingCounts() map[kafka.TopicPartition]int {
	d.flowMu.Lock()
	defer d.flowMu.Unlock()

	counts := make(map[kafka.TopicPartition]int, len(d.flows))
	for tp, f := range d.flows {
		if len(f.pending) > 0 {
			counts[tp] = len(f.pending)
		}
	}
	return counts
}

// PausedPartitions returns the partitions currently paused by backpressure.
func (d *Dispatcher) PausedPartitions() []kafka.TopicPartition {
	d.flowMu.Lock()
	defer d.flowMu.Unlock()

	result := make([]kafka.TopicPartition, 0, len(d.flows))
	for tp, f := range d.flows {
		if f.paused() {
			result = append(result, tp)
		}
	}
	return result
}

// PartitionState returns the offset state of an owned partition.
func (d *Dispatcher) PartitionState(tp kafka.TopicPartition) (offset.PartitionState, bool) {
	worker, ok := d.getWorker(tp)
	if !ok {
		return offset.PartitionState{}, false
	}
	return worker.State(), true
}

// Halted returns the partitions that stopped admitting records since they
// were last assigned.
func (d *Dispatcher) Halted() []*PartitionHaltedError {
	d.haltedMu.RLock()
	defer d.haltedMu.RUnlock()

	result := make([]*PartitionHaltedError, 0, len(d.halted))
	for _, he := range d.halted {
		result = append(result, he)
	}
	return result
}
