package capture

import "github.com/loopscribe/loopscribe/internal/device"

// Stream is one open hardware capture stream. Read fills and returns
// one fixed-size interleaved chunk; it must return within roughly one
// buffer duration (a failed or timed-out read returns an error, which
// the session pads with silence).
type Stream interface {
	Read() ([]int16, error)
	Channels() int
	SampleRate() int
	Close() error
}

// StreamOpener opens a stream against a scanned endpoint using the
// device's own negotiated channel count and sample rate. Implemented
// by the PortAudio opener in production and by fakes in tests.
type StreamOpener interface {
	Open(desc device.Descriptor, framesPerBuffer int) (Stream, error)
}
