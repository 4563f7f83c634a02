package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/loopscribe/loopscribe/internal/device"
)

// State tracks the capture lifecycle.
type State int

const (
	Idle State = iota
	Opening
	Capturing
	Closing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opening:
		return "opening"
	case Capturing:
		return "capturing"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// ErrNoUsableSource is returned by Start when no requested source
// could be opened at all.
var ErrNoUsableSource = errors.New("no capture source could be opened")

// ErrAlreadyCapturing is returned by Start when a session is active.
var ErrAlreadyCapturing = errors.New("capture session already active")

// FrameSink receives every captured frame, including silence-padded
// ones. It is invoked on the capture goroutine and must not block.
type FrameSink func(Frame)

// Config configures a capture session.
type Config struct {
	FramesPerBuffer int
	Opener          StreamOpener
	Logger          zerolog.Logger
}

// DefaultFramesPerBuffer matches the device-buffer read size used for
// segmentation math throughout the pipeline.
const DefaultFramesPerBuffer = 1024

type sourceStream struct {
	stream Stream
	seq    uint64
}

// Session owns at most one open hardware stream per enabled source
// and pulls fixed-size frames in a loop while capturing. Both sources
// are read sequentially within one tick, which keeps their frame
// sequences equal in length without claiming sample-level sync.
type Session struct {
	framesPerBuffer int
	opener          StreamOpener
	log             zerolog.Logger

	mu      sync.Mutex
	state   State
	streams map[Source]*sourceStream
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(cfg Config) *Session {
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = DefaultFramesPerBuffer
	}
	return &Session{
		framesPerBuffer: cfg.FramesPerBuffer,
		opener:          cfg.Opener,
		log:             cfg.Logger,
	}
}

// Start opens one stream per requested source and begins the read
// loop. A source that fails to open is disabled for the session; if
// every source fails, Start reports ErrNoUsableSource and the session
// stays Idle.
func (s *Session) Start(devices map[Source]device.Descriptor, sink FrameSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return ErrAlreadyCapturing
	}
	s.state = Opening

	s.streams = make(map[Source]*sourceStream)
	for _, src := range Sources {
		desc, ok := devices[src]
		if !ok {
			continue
		}
		stream, err := s.opener.Open(desc, s.framesPerBuffer)
		if err != nil {
			s.log.Warn().Stringer("source", src).Str("device", desc.ID).Err(err).
				Msg("Failed to open capture stream, source disabled for session")
			continue
		}
		s.streams[src] = &sourceStream{stream: stream}
		s.log.Info().Stringer("source", src).Str("device", desc.ID).
			Int("channels", stream.Channels()).Int("sample_rate", stream.SampleRate()).
			Msg("Capture stream opened")
	}

	if len(s.streams) == 0 {
		s.streams = nil
		s.state = Idle
		return ErrNoUsableSource
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = Capturing

	go s.loop(ctx, sink)
	return nil
}

func (s *Session) loop(ctx context.Context, sink FrameSink) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			s.readTick(sink)
		}
	}
}

// readTick reads one frame from each open source in a fixed order. A
// failed read emits a same-length all-zero frame so that the sources'
// frame sequences stay equal in length; a read error on one source
// never stops the other.
func (s *Session) readTick(sink FrameSink) {
	for _, src := range Sources {
		ss := s.streams[src]
		if ss == nil {
			continue
		}

		samples, err := ss.stream.Read()
		silence := false
		if err != nil {
			samples = make([]int16, s.framesPerBuffer*ss.stream.Channels())
			silence = true
			s.log.Debug().Stringer("source", src).Err(err).Msg("Read failed, padding silence")
		}

		frame := Frame{
			Source:     src,
			Samples:    samples,
			Channels:   ss.stream.Channels(),
			SampleRate: ss.stream.SampleRate(),
			Seq:        ss.seq,
			Silence:    silence,
		}
		ss.seq++
		sink(frame)
	}
}

// Stop ends capture, waits for the read loop to exit, and releases
// the device handles. Calling Stop on an Idle session, or twice, is a
// no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != Capturing {
		s.mu.Unlock()
		return nil
	}
	s.state = Closing
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	for src, ss := range s.streams {
		if err := ss.stream.Close(); err != nil {
			s.log.Warn().Stringer("source", src).Err(err).Msg("Failed to close capture stream")
		}
	}
	s.streams = nil
	s.cancel = nil
	s.done = nil
	s.state = Idle
	return nil
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open reports which sources have an open stream.
func (s *Session) Open() []Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Source
	for _, src := range Sources {
		if _, ok := s.streams[src]; ok {
			out = append(out, src)
		}
	}
	return out
}
