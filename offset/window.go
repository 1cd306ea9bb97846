package offset

import (
	"github.com/coderxlab/featurestream/kafka"
)

type node struct {
	offset     int64
	prev, next *node
}

// Window turns out-of-order resolutions into contiguous-prefix advances.
// Offsets are tracked in fetch order. Resolving an offset only moves the
// high watermark once every earlier tracked offset is resolved too.
//
// Like Tracker it belongs to a single worker and is not safe for concurrent use.
type Window struct {
	tp         kafka.TopicPartition
	start, end *node
	highest    int64
	pending    int
	last       int64
}

func NewWindow(tp kafka.TopicPartition) *Window {
	return &Window{tp: tp, highest: None, last: None}
}

// Resolver marks a tracked offset as terminal. It returns the new contiguous
// high watermark and whether it moved.
type Resolver func() (highest int64, advanced bool)

// Track registers offset as in flight. Offsets must be strictly increasing.
func (w *Window) Track(offset int64) (Resolver, error) {
	if offset <= w.last {
		return nil, &ContractViolationError{Partition: w.tp, Offset: offset, Current: w.last, Op: "track"}
	}
	w.last = offset

	n := &node{offset: offset}
	if w.start == nil {
		w.start = n
	}
	if w.end != nil {
		n.prev = w.end
		w.end.next = n
	}
	w.end = n
	w.pending++

	done := false
	return func() (int64, bool) {
		if done {
			return w.highest, false
		}
		done = true
		return w.resolve(n)
	}, nil
}

// resolve unlinks n. A resolved node in the middle hands its offset to its
// predecessor so the watermark jumps over it once the predecessor resolves.
func (w *Window) resolve(n *node) (int64, bool) {
	w.pending--

	advanced := false
	if n.prev != nil {
		n.prev.offset = n.offset
		n.prev.next = n.next
	} else {
		w.highest = n.offset
		w.start = n.next
		advanced = true
	}

	if n.next != nil {
		n.next.prev = n.prev
	} else {
		w.end = n.prev
	}

	return w.highest, advanced
}

// Highest is the greatest offset with every earlier tracked offset resolved.
func (w *Window) Highest() int64 {
	return w.highest
}

// Last is the most recently tracked offset, or None.
func (w *Window) Last() int64 {
	return w.last
}

func (w *Window) Pending() int {
	return w.pending
}
