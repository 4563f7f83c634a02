// Package worker runs the per-source transcription loop: pull one
// segment at a time from the bounded queue, hand it to the speech
// engine, and emit results. One worker per source keeps results in
// capture order within that source; the two sources are fully
// independent.
package worker

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/loopscribe/loopscribe/internal/capture"
	"github.com/loopscribe/loopscribe/internal/pcm"
	"github.com/loopscribe/loopscribe/internal/segment"
	"github.com/loopscribe/loopscribe/internal/stt"
)

// Result is one non-empty transcription emitted by a worker.
type Result struct {
	Source    capture.Source
	Text      string
	Timestamp time.Time
}

// ResultSink receives results on the worker goroutine.
type ResultSink func(Result)

// DefaultErrorLogEvery rate-limits recognition error logging so a
// flapping engine cannot flood the log.
const DefaultErrorLogEvery = 10

// Config configures one worker.
type Config struct {
	Source         capture.Source
	Queue          *segment.Queue
	Transcriber    stt.Transcriber
	Sink           ResultSink
	Logger         zerolog.Logger
	DequeueTimeout time.Duration
	ErrorLogEvery  int
}

type Worker struct {
	source         capture.Source
	queue          *segment.Queue
	stt            stt.Transcriber
	sink           ResultSink
	log            zerolog.Logger
	dequeueTimeout time.Duration
	errorLogEvery  int

	cancel context.CancelFunc
	done   chan struct{}

	processed atomic.Uint64
	failures  int // consecutive, worker goroutine only
}

func New(cfg Config) *Worker {
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = 500 * time.Millisecond
	}
	if cfg.ErrorLogEvery <= 0 {
		cfg.ErrorLogEvery = DefaultErrorLogEvery
	}
	return &Worker{
		source:         cfg.Source,
		queue:          cfg.Queue,
		stt:            cfg.Transcriber,
		sink:           cfg.Sink,
		log:            cfg.Logger,
		dequeueTimeout: cfg.DequeueTimeout,
		errorLogEvery:  cfg.ErrorLogEvery,
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.failures = 0

	go w.loop(ctx)
	w.log.Info().Stringer("source", w.source).Msg("Transcription worker started")
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		seg, ok := w.queue.Dequeue(w.dequeueTimeout)
		if !ok {
			continue
		}
		w.process(ctx, seg)
	}
}

// process transcribes one segment to completion before the next is
// dequeued, which is what keeps per-source results ordered.
func (w *Worker) process(ctx context.Context, seg segment.Segment) {
	if len(seg.Frames) == 0 {
		return
	}

	sampleRate := seg.Frames[0].SampleRate
	var mono []int16
	for _, f := range seg.Frames {
		mono = append(mono, pcm.Downmix(f.Samples, f.Channels)...)
	}

	text, err := w.stt.Transcribe(ctx, mono, sampleRate, 1)
	w.processed.Add(1)

	if err != nil {
		w.failures++
		if (w.failures-1)%w.errorLogEvery == 0 {
			w.log.Error().Stringer("source", w.source).Int("consecutive_failures", w.failures).
				Err(err).Msg("Transcription failed")
		}
		return
	}
	w.failures = 0

	if strings.TrimSpace(text) == "" {
		return
	}
	w.sink(Result{Source: w.source, Text: text, Timestamp: time.Now()})
}

// Stop signals the loop to exit after its current dequeue attempt and
// waits up to timeout for it to finish. Returns false when the worker
// did not join in time (it is then abandoned, not killed). Residual
// queued segments are never transcribed after Stop.
func (w *Worker) Stop(timeout time.Duration) bool {
	if w.cancel == nil {
		return true
	}
	w.cancel()

	select {
	case <-w.done:
		w.log.Info().Stringer("source", w.source).
			Uint64("segments", w.processed.Load()).Msg("Transcription worker stopped")
		return true
	case <-time.After(timeout):
		w.log.Warn().Stringer("source", w.source).Msg("Transcription worker did not stop in time, abandoning")
		return false
	}
}

// Processed reports how many segments this worker has handed to the
// engine, successful or not.
func (w *Worker) Processed() uint64 {
	return w.processed.Load()
}
