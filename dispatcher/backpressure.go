package dispatcher

import (
	"sync"
	"time"

	"github.com/coderxlab/featurestream/kafka"
	"github.com/hugolhafner/dskit/backoff"
)

// Pause reasons, used as the metrics label.
const (
	ReasonErrorRate    = "error_rate"
	ReasonSaturated    = "saturated"
	ReasonSinkCapacity = "sink_capacity"
)

const windowBuckets = 10

type bucket struct {
	slot     int64
	failures int
	total    int
}

// errorWindow is a bucketed, time based sliding window over sink attempt
// outcomes. Written by the partition worker and read by the poll loop.
type errorWindow struct {
	width      time.Duration
	threshold  float64
	minSamples int
	now        func() time.Time

	mu      sync.Mutex
	buckets [windowBuckets]bucket
}

func newErrorWindow(cfg BackpressureConfig, now func() time.Time) *errorWindow {
	width := cfg.Window / windowBuckets
	if width < time.Millisecond {
		width = time.Millisecond
	}
	if now == nil {
		now = time.Now
	}

	return &errorWindow{
		width:      width,
		threshold:  cfg.Threshold,
		minSamples: cfg.MinSamples,
		now:        now,
	}
}

func (w *errorWindow) slot(t time.Time) int64 {
	return t.UnixNano() / int64(w.width)
}

// Observe adds the attempts of one resolved record.
func (w *errorWindow) Observe(failures, successes int) {
	if failures+successes == 0 {
		return
	}

	s := w.slot(w.now())

	w.mu.Lock()
	defer w.mu.Unlock()

	b := &w.buckets[s%windowBuckets]
	if b.slot != s {
		*b = bucket{slot: s}
	}
	b.failures += failures
	b.total += failures + successes
}

// Rate returns the failed share of attempts still inside the window.
func (w *errorWindow) Rate() (float64, int) {
	s := w.slot(w.now())

	w.mu.Lock()
	defer w.mu.Unlock()

	var failures, total int
	for _, b := range w.buckets {
		if b.total == 0 || s-b.slot >= windowBuckets {
			continue
		}
		failures += b.failures
		total += b.total
	}

	if total == 0 {
		return 0, 0
	}
	return float64(failures) / float64(total), total
}

// Exceeded reports whether the window holds enough attempts and their error
// rate is above the threshold.
func (w *errorWindow) Exceeded() bool {
	rate, n := w.Rate()
	return n >= w.minSamples && rate > w.threshold
}

// Healthy reports whether the window holds enough attempts and their error
// rate is within the threshold.
func (w *errorWindow) Healthy() bool {
	rate, n := w.Rate()
	return n >= w.minSamples && rate <= w.threshold
}

// flowState is the fetch state of one partition as managed by the poll loop.
type flowState struct {
	// pending holds records that could not be queued because the worker
	// queue was full, processed FIFO before new records from Poll
	pending   []kafka.ConsumerRecord
	saturated bool

	// capped is set while every sink in-flight slot is taken
	capped bool

	// throttledUntil is set while the partition is paused for its error rate
	throttledUntil time.Time
	level          uint
}

func (f *flowState) paused() bool {
	return f.saturated || f.capped || !f.throttledUntil.IsZero()
}

// pauseSchedule yields bounded exponential pause lengths.
type pauseSchedule struct {
	exp backoff.Exponential
}

func newPauseSchedule(cfg BackpressureConfig) pauseSchedule {
	return pauseSchedule{exp: backoff.NewExponential(
		backoff.WithInitialInterval(cfg.PauseBase),
		backoff.WithMaxInterval(cfg.PauseMax),
	)}
}

// escalate moves f one level up and returns the pause length for that level.
func (p pauseSchedule) escalate(f *flowState) time.Duration {
	f.level++
	return p.exp.Next(f.level)
}
