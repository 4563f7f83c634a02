package segment

import (
	"sync/atomic"
	"time"
)

// DefaultQueueDepth bounds how many segments can wait for a slow
// transcriber before new ones are dropped.
const DefaultQueueDepth = 5

// Queue is a bounded per-source FIFO of segments. Enqueue never
// blocks: when the queue is full the new segment is dropped, favoring
// capture over transcription completeness.
type Queue struct {
	ch       chan Segment
	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Queue{ch: make(chan Segment, depth)}
}

// Enqueue offers a segment, reporting false when the queue was full
// and the segment dropped.
func (q *Queue) Enqueue(s Segment) bool {
	select {
	case q.ch <- s:
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dequeue waits up to timeout for a segment.
func (q *Queue) Dequeue(timeout time.Duration) (Segment, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s := <-q.ch:
		return s, true
	case <-timer.C:
		return Segment{}, false
	}
}

// Len reports how many segments are waiting.
func (q *Queue) Len() int { return len(q.ch) }

// Enqueued reports how many segments were accepted since creation.
func (q *Queue) Enqueued() uint64 { return q.enqueued.Load() }

// Dropped reports how many segments were dropped on a full queue.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Drain discards any residual segments, returning how many were
// thrown away. Used at shutdown; queued segments are never transcribed
// after stop.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}
