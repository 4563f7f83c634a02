// Package session ties the pipeline together: device selection,
// capture, segmentation, per-source transcription workers, and the
// end-of-session recording writer.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loopscribe/loopscribe/internal/capture"
	"github.com/loopscribe/loopscribe/internal/config"
	"github.com/loopscribe/loopscribe/internal/device"
	"github.com/loopscribe/loopscribe/internal/segment"
	"github.com/loopscribe/loopscribe/internal/stt"
	"github.com/loopscribe/loopscribe/internal/wavefile"
	"github.com/loopscribe/loopscribe/internal/worker"
)

// ErrSessionActive is returned by Start while a session is running.
var ErrSessionActive = errors.New("session already running")

// DefaultJoinTimeout bounds how long Stop waits for each worker.
const DefaultJoinTimeout = 5 * time.Second

// Config wires a controller. Scan and Opener are injected so tests can
// run the whole pipeline against fake devices.
type Config struct {
	Scan        func() []device.Descriptor
	Opener      capture.StreamOpener
	Transcriber stt.Transcriber
	Sink        EventSink
	Logger      zerolog.Logger

	Window     time.Duration
	ChunkSize  int
	QueueDepth int
	OutputDir  string

	Microphone  config.SourceConfig
	SystemAudio config.SourceConfig

	JoinTimeout    time.Duration
	DequeueTimeout time.Duration
}

// Controller runs one recording-and-transcription session at a time.
type Controller struct {
	cfg    Config
	sink   EventSink
	log    zerolog.Logger
	writer *wavefile.Writer

	mu      sync.Mutex
	running bool
	id      string
	cap     *capture.Session
	buffers map[capture.Source]*segment.Buffer
	queues  map[capture.Source]*segment.Queue
	workers map[capture.Source]*worker.Worker
	takes   map[capture.Source]*wavefile.Take
	saved   []string
}

func NewController(cfg Config) *Controller {
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.Window <= 0 {
		cfg.Window = segment.DefaultWindow
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	return &Controller{
		cfg:    cfg,
		sink:   cfg.Sink,
		log:    cfg.Logger,
		writer: wavefile.NewWriter(cfg.OutputDir, cfg.Logger),
	}
}

// Start scans devices, opens the enabled sources, and launches capture
// plus one transcription worker per open source. When no enabled
// source yields a usable device the sink gets a fatal error and the
// controller stays stopped.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrSessionActive
	}

	devices := c.cfg.Scan()
	selected := map[capture.Source]device.Descriptor{}
	if c.cfg.Microphone.Enabled {
		if d, ok := c.pick(devices, capture.Microphone, c.cfg.Microphone.DeviceID); ok {
			selected[capture.Microphone] = d
		}
	}
	if c.cfg.SystemAudio.Enabled {
		if d, ok := c.pick(devices, capture.SystemAudio, c.cfg.SystemAudio.DeviceID); ok {
			selected[capture.SystemAudio] = d
		}
	}
	if len(selected) == 0 {
		c.sink.OnFatalError("no usable capture device found")
		return capture.ErrNoUsableSource
	}

	c.id = uuid.NewString()
	c.saved = nil
	c.buffers = map[capture.Source]*segment.Buffer{}
	c.queues = map[capture.Source]*segment.Queue{}
	c.takes = map[capture.Source]*wavefile.Take{}
	for src := range selected {
		c.buffers[src] = segment.NewBuffer(src, c.cfg.Window)
		c.queues[src] = segment.NewQueue(c.cfg.QueueDepth)
		c.takes[src] = &wavefile.Take{}
	}

	c.cap = capture.New(capture.Config{
		FramesPerBuffer: c.cfg.ChunkSize,
		Opener:          c.cfg.Opener,
		Logger:          c.log,
	})
	if err := c.cap.Start(selected, c.onFrame); err != nil {
		c.sink.OnFatalError(err.Error())
		return err
	}

	c.workers = map[capture.Source]*worker.Worker{}
	for _, src := range c.cap.Open() {
		w := worker.New(worker.Config{
			Source:         src,
			Queue:          c.queues[src],
			Transcriber:    c.cfg.Transcriber,
			Sink:           c.onResult,
			Logger:         c.log,
			DequeueTimeout: c.cfg.DequeueTimeout,
		})
		w.Start()
		c.workers[src] = w
		c.sink.OnStatus(src, "capturing")
	}

	c.running = true
	c.log.Info().Str("session_id", c.id).Int("sources", len(c.workers)).Msg("Session started")
	return nil
}

// pick resolves one source's device: explicit override first, then the
// source's auto-selection rule. A missing override falls back to
// auto-selection rather than failing the session.
func (c *Controller) pick(devices []device.Descriptor, src capture.Source, override string) (device.Descriptor, bool) {
	if override != "" {
		if d, ok := device.FindByID(devices, override); ok {
			return d, true
		}
		c.log.Warn().Stringer("source", src).Str("device_id", override).
			Msg("Configured device not found, auto-selecting")
	}
	switch src {
	case capture.SystemAudio:
		return device.SelectSystemAudio(devices)
	default:
		return device.SelectMicrophone(devices)
	}
}

// onFrame runs on the capture goroutine. Every frame, silence-padded
// or not, goes into the source's take; finished segments go to the
// source's queue, dropped when it is full.
func (c *Controller) onFrame(f capture.Frame) {
	take := c.takes[f.Source]
	if take.SampleRate == 0 {
		take.SampleRate = f.SampleRate
		take.Channels = f.Channels
	}
	take.Append(f.Samples)

	seg, ok := c.buffers[f.Source].Add(f)
	if !ok {
		return
	}
	if !c.queues[f.Source].Enqueue(seg) {
		c.log.Warn().Stringer("source", f.Source).
			Uint64("dropped", c.queues[f.Source].Dropped()).
			Msg("Transcription queue full, segment dropped")
	}
}

func (c *Controller) onResult(r worker.Result) {
	c.sink.OnResult(r.Source, r.Text, r.Timestamp)
}

// Stop ends capture, flushes the final partial segments, stops the
// workers, and persists the recordings. Residual queued segments are
// discarded. Stopping a stopped controller is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false

	if err := c.cap.Stop(); err != nil {
		c.log.Warn().Err(err).Msg("Capture stop failed")
	}

	// Give the workers a chance at the tail ends before they wind down.
	for src, buf := range c.buffers {
		seg, ok := buf.Flush()
		if !ok {
			continue
		}
		if !c.queues[src].Enqueue(seg) {
			c.log.Warn().Stringer("source", src).Msg("Queue full at stop, final segment dropped")
		}
	}

	for src, w := range c.workers {
		if !w.Stop(c.cfg.JoinTimeout) {
			c.log.Warn().Stringer("source", src).Msg("Worker abandoned at stop")
		}
	}
	for src, q := range c.queues {
		if n := q.Drain(); n > 0 {
			c.log.Info().Stringer("source", src).Int("discarded", n).Msg("Discarded untranscribed segments")
		}
	}

	takes := map[capture.Source]wavefile.Take{}
	for src, t := range c.takes {
		takes[src] = *t
	}
	stamp := time.Now().Format("20060102_150405")
	saved, err := c.writer.WriteSession(stamp, takes)
	c.saved = saved

	for src := range c.workers {
		c.sink.OnStatus(src, "stopped")
	}
	c.log.Info().Str("session_id", c.id).Strs("files", saved).Msg("Session stopped")
	return err
}

// Running reports whether a session is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ID returns the identifier of the current (or last) session.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// SavedFiles lists the recordings written by the last Stop.
func (c *Controller) SavedFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.saved))
	copy(out, c.saved)
	return out
}

// QueueStats reports per-source enqueue/drop counters for the current
// session, for diagnostics.
func (c *Controller) QueueStats() map[capture.Source][2]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[capture.Source][2]uint64{}
	for src, q := range c.queues {
		out[src] = [2]uint64{q.Enqueued(), q.Dropped()}
	}
	return out
}
