package capture

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/loopscribe/loopscribe/internal/device"
)

// PortAudioOpener opens capture streams through PortAudio. The device
// subsystem must be initialized before use.
type PortAudioOpener struct{}

func (PortAudioOpener) Open(desc device.Descriptor, framesPerBuffer int) (Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var info *portaudio.DeviceInfo
	for _, d := range devices {
		if d.Name == desc.ID {
			info = d
			break
		}
	}
	if info == nil {
		return nil, fmt.Errorf("device not found: %s", desc.ID)
	}

	channels := info.MaxInputChannels
	if channels < 1 {
		channels = 1
	}
	rate := info.DefaultSampleRate
	if rate <= 0 {
		rate = 16000
	}

	buf := make([]int16, framesPerBuffer*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      rate,
		FramesPerBuffer: framesPerBuffer,
	}, buf)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	return &paStream{
		stream:   stream,
		buf:      buf,
		channels: channels,
		rate:     int(rate),
	}, nil
}

type paStream struct {
	stream   *portaudio.Stream
	buf      []int16
	channels int
	rate     int
}

func (s *paStream) Read() ([]int16, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	out := make([]int16, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

func (s *paStream) Channels() int   { return s.channels }
func (s *paStream) SampleRate() int { return s.rate }

func (s *paStream) Close() error {
	s.stream.Stop()
	return s.stream.Close()
}
