package segment

import (
	"time"

	"github.com/loopscribe/loopscribe/internal/capture"
)

// DefaultWindow is the accumulation window before a segment is handed
// to transcription.
const DefaultWindow = 5 * time.Second

// Segment is one fixed-duration window of captured frames, consumed
// exactly once by a transcription worker.
type Segment struct {
	Source   capture.Source
	Frames   []capture.Frame
	Start    time.Time
	Duration time.Duration
}

// Buffer accumulates consecutive raw frames for one source and emits
// a Segment once the accumulated duration reaches the window. It is
// accessed only by the capture goroutine, so it needs no locking.
type Buffer struct {
	source capture.Source
	window time.Duration

	frames   []capture.Frame
	duration time.Duration
	start    time.Time
	emitted  time.Time
}

func NewBuffer(source capture.Source, window time.Duration) *Buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Buffer{source: source, window: window}
}

// Add appends a frame and, when the accumulated duration reaches the
// window, returns the finished segment. The duration estimate is
// sample-clock based (frame count times frame duration), not
// wall-clock. A cap at roughly double the window evicts the oldest
// frame so the accumulator cannot grow without bound if emission is
// somehow delayed.
func (b *Buffer) Add(f capture.Frame) (Segment, bool) {
	if len(b.frames) == 0 {
		b.start = time.Now()
	}
	b.frames = append(b.frames, f)
	b.duration += f.Duration()

	if max := 2 * b.window; b.duration > max && len(b.frames) > 1 {
		evicted := b.frames[0]
		b.frames = b.frames[1:]
		b.duration -= evicted.Duration()
	}

	if b.duration >= b.window {
		return b.emit(), true
	}
	return Segment{}, false
}

// Flush emits whatever is accumulated as a short final segment, if
// anything.
func (b *Buffer) Flush() (Segment, bool) {
	if len(b.frames) == 0 {
		return Segment{}, false
	}
	return b.emit(), true
}

// Reset discards accumulated frames.
func (b *Buffer) Reset() {
	b.frames = nil
	b.duration = 0
}

// Len reports the number of accumulated frames.
func (b *Buffer) Len() int { return len(b.frames) }

// LastEmitted reports when the buffer last emitted a segment.
func (b *Buffer) LastEmitted() time.Time { return b.emitted }

func (b *Buffer) emit() Segment {
	seg := Segment{
		Source:   b.source,
		Frames:   b.frames,
		Start:    b.start,
		Duration: b.duration,
	}
	b.frames = nil
	b.duration = 0
	b.emitted = time.Now()
	return seg
}
