package capture

import "time"

// Source identifies which hardware stream a frame came from.
type Source int

const (
	Microphone Source = iota
	SystemAudio
)

func (s Source) String() string {
	switch s {
	case Microphone:
		return "microphone"
	case SystemAudio:
		return "system_audio"
	default:
		return "unknown"
	}
}

// Sources lists all capturable sources in capture order.
var Sources = []Source{Microphone, SystemAudio}

// Frame is one fixed-size chunk of interleaved PCM pulled from a device.
// Frames are immutable once emitted; sequence numbers are strictly
// increasing per source for the life of one recording.
type Frame struct {
	Source     Source
	Samples    []int16 // interleaved
	Channels   int
	SampleRate int
	Seq        uint64
	Silence    bool // true when this frame was padded in on a read failure
}

// SampleCount returns the number of samples per channel.
func (f Frame) SampleCount() int {
	if f.Channels <= 0 {
		return len(f.Samples)
	}
	return len(f.Samples) / f.Channels
}

// Duration returns the nominal duration of the frame at its sample rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.SampleCount()) * time.Second / time.Duration(f.SampleRate)
}
