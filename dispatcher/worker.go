package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coderxlab/featurestream/committer"
	"github.com/coderxlab/featurestream/deadletter"
	"github.com/coderxlab/featurestream/errorhandler"
	"github.com/coderxlab/featurestream/kafka"
	"github.com/coderxlab/featurestream/logger"
	"github.com/coderxlab/featurestream/metrics"
	"github.com/coderxlab/featurestream/offset"
	streamsotel "github.com/coderxlab/featurestream/otel"
)

// result is the terminal outcome of one record. An empty outcome means the
// record was abandoned and must not be resolved.
type result struct {
	offset  int64
	resolve offset.Resolver
	outcome string
	err     error

	failures  int
	successes int
}

// partitionWorker owns the offset state of a single partition. Records are
// admitted in fetch order and delivered concurrently; the worker goroutine
// alone touches the window, the tracker and the broker commit.
type partitionWorker struct {
	partition  kafka.TopicPartition
	decoder    Decoder
	deliverer  Deliverer
	policy     errorhandler.Handler
	deadLetter deadletter.Sink
	consumer   kafka.Consumer
	committer  committer.Committer

	tracker *offset.Tracker
	window  *offset.Window
	errors  *errorWindow

	recordCh chan kafka.ConsumerRecord
	results  chan result
	doneCh   chan struct{}
	stopCh   chan struct{}
	errCh    chan error

	maxInFlight   int
	inFlight      int
	epoch         int32
	shutdownGrace time.Duration
	commitTimeout time.Duration

	procCtx    context.Context
	cancelProc context.CancelFunc

	halted atomic.Bool

	mu      sync.RWMutex
	stopped bool

	stateMu sync.RWMutex
	state   offset.PartitionState

	logger  logger.Logger
	metrics *metrics.Metrics
	tel     *streamsotel.Telemetry
	groupID string
}

func newPartitionWorker(
	partition kafka.TopicPartition,
	d *Dispatcher,
) *partitionWorker {
	cfg := d.config
	tracker := offset.NewTracker(partition)

	return &partitionWorker{
		partition:  partition,
		decoder:    d.decoder,
		deliverer:  d.deliverer,
		policy:     d.policy,
		deadLetter: cfg.DeadLetter,
		consumer:   d.consumer,
		committer: committer.NewPeriodicCommitter(
			committer.WithMaxInterval(cfg.CommitInterval),
			committer.WithMaxCount(cfg.CommitCount),
		),
		tracker:       tracker,
		window:        offset.NewWindow(partition),
		errors:        newErrorWindow(cfg.Backpressure, d.now),
		recordCh:      make(chan kafka.ConsumerRecord, cfg.QueueSize),
		results:       make(chan result, cfg.PartitionConcurrency),
		doneCh:        make(chan struct{}),
		stopCh:        make(chan struct{}),
		errCh:         d.errCh,
		maxInFlight:   cfg.PartitionConcurrency,
		epoch:         -1,
		shutdownGrace: cfg.ShutdownGrace,
		commitTimeout: cfg.CommitTimeout,
		state:         tracker.State(),
		logger: d.logger.With(
			"component", "partition-worker",
			"topic", partition.Topic,
			"partition", partition.Partition,
		),
		metrics: cfg.Metrics,
		tel:     cfg.Telemetry,
		groupID: d.consumer.GroupID(),
	}
}

// Start begins processing records in a separate goroutine. In-flight
// deliveries do not inherit ctx cancellation: they get the shutdown grace
// period to finish.
func (w *partitionWorker) Start(ctx context.Context) {
	w.procCtx, w.cancelProc = context.WithCancel(context.WithoutCancel(ctx))
	go w.run(ctx)
}

func (w *partitionWorker) run(ctx context.Context) {
	defer close(w.doneCh)
	defer w.committer.Close()
	defer w.cancelProc()

	w.logger.Debug("Partition worker started")

	for {
		var recordCh <-chan kafka.ConsumerRecord
		if !w.halted.Load() && w.inFlight < w.maxInFlight {
			recordCh = w.recordCh
		}

		select {
		case <-ctx.Done():
			w.logger.Debug("Context cancelled, finishing in-flight records")
			w.finish()
			return

		case <-w.stopCh:
			w.logger.Debug("Stop signal received, finishing in-flight records")
			w.finish()
			return

		case rec := <-recordCh:
			w.admit(rec)

		case res := <-w.results:
			w.complete(res)

		case <-w.committer.C():
			_ = w.commit()
		}
	}
}

func (w *partitionWorker) admit(rec kafka.ConsumerRecord) {
	// a batch polled before a revoke can reach the next owner ahead of the
	// refetch from the committed position
	if rec.Offset <= w.window.Last() {
		w.logger.Debug("Skipping record already admitted", "offset", rec.Offset, "last", w.window.Last())
		w.metrics.Processed(w.partition.Topic, metrics.OutcomeDuplicate)
		return
	}

	resolve, err := w.window.Track(rec.Offset)
	if err != nil {
		w.halt(rec.Offset, err)
		return
	}
	if rec.LeaderEpoch > w.epoch {
		w.epoch = rec.LeaderEpoch
	}

	w.inFlight++
	go func() {
		w.results <- w.process(w.procCtx, rec, resolve)
	}()
}

func (w *partitionWorker) complete(res result) {
	w.inFlight--

	if res.outcome == "" {
		w.logger.Debug("Record abandoned, it will be redelivered", "offset", res.offset)
		return
	}

	w.metrics.Processed(w.partition.Topic, res.outcome)
	w.errors.Observe(res.failures, res.successes)

	if res.outcome == metrics.OutcomeFailed {
		w.halt(res.offset, res.err)
		return
	}

	highest, advanced := res.resolve()
	w.committer.RecordProcessed(1)
	if !advanced {
		return
	}

	if err := w.tracker.Advance(highest, w.epoch); err != nil {
		w.halt(highest, err)
		return
	}
	w.publishState()
}

// commit reports the delivered prefix to the broker. A failed commit is
// retried on the next signal.
func (w *partitionWorker) commit() error {
	pos, ok := w.tracker.CommitPosition()
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.commitTimeout)
	defer cancel()

	if err := w.consumer.Commit(ctx, map[kafka.TopicPartition]kafka.Offset{w.partition: pos}); err != nil {
		w.metrics.CommitFailed(w.partition.Topic)
		w.logger.Warn("Failed to commit offset", "position", pos.Offset, "error", err)
		return err
	}

	if err := w.tracker.MarkCommitted(pos.Offset - 1); err != nil {
		w.halt(pos.Offset-1, err)
		return err
	}
	w.publishState()
	w.committer.Committed()
	w.metrics.Committed(w.partition.Topic, w.partition.Partition, pos.Offset)

	w.logger.Debug("Committed offset", "position", pos.Offset)
	return nil
}

// finish waits for in-flight records up to the shutdown grace, abandons the
// rest and commits what was resolved.
func (w *partitionWorker) finish() {
	grace := time.NewTimer(w.shutdownGrace)
	defer grace.Stop()

	graceC := grace.C
	for w.inFlight > 0 {
		select {
		case res := <-w.results:
			w.complete(res)
		case <-graceC:
			w.logger.Warn("Shutdown grace elapsed, abandoning in-flight records", "in_flight", w.inFlight)
			w.cancelProc()
			graceC = nil
		}
	}

	if err := w.commit(); err != nil {
		w.logger.Error("Failed to commit offset on stop", "error", err)
	}
}

// halt stops admissions for good. Already admitted records still complete
// and the resolved prefix before offset is still committed.
func (w *partitionWorker) halt(offset int64, err error) {
	if w.halted.Swap(true) {
		return
	}

	w.logger.Error("Partition halted, no further records will be admitted", "offset", offset, "error", err)
	w.consumer.PausePartitions(w.partition)
	emitError(w.errCh, w.logger, &PartitionHaltedError{Partition: w.partition, Offset: offset, Err: err})
}

func (w *partitionWorker) publishState() {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	w.state = w.tracker.State()
}

// State returns the last published offset state.
func (w *partitionWorker) State() offset.PartitionState {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.state
}

// TrySubmit non blocking submit to processing queue, true if submitted, false if full or stopped
func (w *partitionWorker) TrySubmit(record kafka.ConsumerRecord) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped || w.halted.Load() {
		return false
	}

	select {
	case w.recordCh <- record:
		return true
	default:
		return false
	}
}

// Stop signals the worker to stop and returns immediately
func (w *partitionWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	w.stopped = true
	close(w.stopCh)
}

// WaitForStop waits for the worker to fully stop processing
func (w *partitionWorker) WaitForStop(timeout time.Duration) error {
	select {
	case <-w.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for partition worker %v to stop", w.partition)
	}
}

func (w *partitionWorker) Halted() bool {
	return w.halted.Load()
}

// Partition returns the partition this worker is responsible for
func (w *partitionWorker) Partition() kafka.TopicPartition {
	return w.partition
}

// QueueDepth returns the number of records currently queued for processing
func (w *partitionWorker) QueueDepth() int {
	return len(w.recordCh)
}
