package device

import "strings"

// Class is the best-effort role assigned to a capture endpoint.
type Class int

const (
	Unknown Class = iota
	MicrophoneClass
	SystemAudioClass
)

func (c Class) String() string {
	switch c {
	case MicrophoneClass:
		return "microphone"
	case SystemAudioClass:
		return "system_audio"
	default:
		return "unknown"
	}
}

// Classifier decides what role a raw capture endpoint plays. Device
// names are the only portable signal for loopback detection, so this
// is inherently heuristic; keeping it behind an interface lets the
// catalog be tested without a platform audio API.
type Classifier interface {
	Classify(name string, maxInputChannels int) Class
}

// NameClassifier matches well-known substrings in device names.
type NameClassifier struct{}

var loopbackHints = []string{
	"loopback",
	"monitor of",
	"stereo mix",
	"what u hear",
	"wave out",
}

var microphoneHints = []string{
	"microphone",
	"mic",
	"headset",
	"webcam",
}

func (NameClassifier) Classify(name string, maxInputChannels int) Class {
	if maxInputChannels <= 0 {
		return Unknown
	}
	lower := strings.ToLower(name)
	for _, hint := range loopbackHints {
		if strings.Contains(lower, hint) {
			return SystemAudioClass
		}
	}
	for _, hint := range microphoneHints {
		if strings.Contains(lower, hint) {
			return MicrophoneClass
		}
	}
	// Any other enumerable input is a candidate microphone.
	return MicrophoneClass
}
