package device

import (
	"strings"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// Descriptor describes one capture-capable endpoint at scan time.
// Descriptors are immutable and re-created on each rescan.
type Descriptor struct {
	ID                string
	DisplayName       string
	MaxInputChannels  int
	DefaultSampleRate float64
	Loopback          bool
	Available         bool
	DefaultInput      bool
}

// Catalog enumerates and classifies capture endpoints.
type Catalog struct {
	log   zerolog.Logger
	class Classifier
	probe func(*portaudio.DeviceInfo) error
}

// NewCatalog creates a catalog using the given classifier. The
// subsystem must be initialized before Scan is called.
func NewCatalog(class Classifier, log zerolog.Logger) *Catalog {
	if class == nil {
		class = NameClassifier{}
	}
	return &Catalog{
		log:   log,
		class: class,
		probe: probeStream,
	}
}

// Scan enumerates all capture-capable endpoints. Scanning never fails:
// endpoints that cannot be enumerated or probed are marked unavailable
// and excluded from selection rather than aborting the scan.
func (c *Catalog) Scan() []Descriptor {
	devices, err := portaudio.Devices()
	if err != nil {
		c.log.Warn().Err(err).Msg("Device enumeration failed")
		return nil
	}

	defaultInput, _ := portaudio.DefaultInputDevice()

	var out []Descriptor
	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}

		desc := Descriptor{
			ID:                d.Name,
			DisplayName:       d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Loopback:          c.class.Classify(d.Name, d.MaxInputChannels) == SystemAudioClass,
			DefaultInput:      defaultInput != nil && d == defaultInput,
		}

		if err := c.probe(d); err != nil {
			c.log.Debug().Str("device", d.Name).Err(err).Msg("Probe failed, marking unavailable")
			desc.Available = false
		} else {
			desc.Available = true
		}
		out = append(out, desc)
	}

	c.log.Info().Int("devices", len(out)).Msg("Scanned audio capture endpoints")
	return out
}

// probeStream opens a short-lived stream to verify the endpoint can
// actually be captured from, then closes it immediately.
func probeStream(d *portaudio.DeviceInfo) error {
	buf := make([]int16, 256*d.MaxInputChannels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   d,
			Channels: d.MaxInputChannels,
			Latency:  d.DefaultLowInputLatency,
		},
		SampleRate:      d.DefaultSampleRate,
		FramesPerBuffer: 256,
	}, buf)
	if err != nil {
		return err
	}
	return stream.Close()
}

// SelectMicrophone picks the microphone endpoint for a session:
// available, classified as a microphone, and not a generic aggregator.
// Falls back to the platform default input device when nothing better
// exists.
func SelectMicrophone(devices []Descriptor) (Descriptor, bool) {
	for _, d := range devices {
		if d.Available && !d.Loopback && !isAggregator(d.DisplayName) {
			return d, true
		}
	}
	for _, d := range devices {
		if d.Available && d.DefaultInput {
			return d, true
		}
	}
	return Descriptor{}, false
}

// SelectSystemAudio picks the loopback endpoint for a session, or
// reports that the platform has no loopback capability at all, in
// which case system-audio transcription is disabled for the session.
func SelectSystemAudio(devices []Descriptor) (Descriptor, bool) {
	for _, d := range devices {
		if d.Available && d.Loopback && d.DefaultInput {
			return d, true
		}
	}
	for _, d := range devices {
		if d.Available && d.Loopback {
			return d, true
		}
	}
	return Descriptor{}, false
}

// FindByID resolves an explicit device override from the config layer.
func FindByID(devices []Descriptor, id string) (Descriptor, bool) {
	for _, d := range devices {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

var aggregatorNames = []string{"default", "sysdefault", "pulse", "dmix", "any"}

func isAggregator(name string) bool {
	lower := strings.ToLower(name)
	for _, a := range aggregatorNames {
		if lower == a {
			return true
		}
	}
	return false
}
