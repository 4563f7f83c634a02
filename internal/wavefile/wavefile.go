package wavefile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Take is the accumulated raw PCM of one source over a recording,
// kept at the device's own negotiated channel count and sample rate.
type Take struct {
	Samples    []int16 // interleaved
	SampleRate int
	Channels   int
}

// Append adds one frame's samples.
func (t *Take) Append(samples []int16) {
	t.Samples = append(t.Samples, samples...)
}

// Empty reports whether any audio was captured.
func (t *Take) Empty() bool { return len(t.Samples) == 0 }

// Duration is the nominal take length at its sample rate.
func (t *Take) Duration() time.Duration {
	if t.SampleRate <= 0 || t.Channels <= 0 {
		return 0
	}
	frames := len(t.Samples) / t.Channels
	return time.Duration(frames) * time.Second / time.Duration(t.SampleRate)
}

// Encode writes the take as 16-bit PCM WAV. The header reflects the
// take's own sample rate and channel count, never a fixed constant.
func Encode(w io.WriteSeeker, t Take) error {
	if t.SampleRate <= 0 || t.Channels <= 0 {
		return errors.New("take has no negotiated format")
	}

	enc := wav.NewEncoder(w, t.SampleRate, 16, t.Channels, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: t.Channels,
			SampleRate:  t.SampleRate,
		},
		Data:           make([]int, len(t.Samples)),
		SourceBitDepth: 16,
	}
	for i, s := range t.Samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// WriteFile encodes the take to path.
func WriteFile(path string, t Take) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, t); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}

// WriteTemp encodes the take to a temporary WAV file and returns its
// path. The caller removes it when done.
func WriteTemp(pattern string, t Take) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	if err := Encode(f, t); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
