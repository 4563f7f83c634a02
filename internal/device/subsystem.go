package device

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Subsystem owns the process-wide PortAudio handle. The underlying
// library must be initialized exactly once and reused; opening and
// closing individual streams is the only per-session mutation.
type Subsystem struct {
	mu     sync.Mutex
	active bool
}

// NewSubsystem initializes PortAudio.
func NewSubsystem() (*Subsystem, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &Subsystem{active: true}, nil
}

// Terminate releases the PortAudio handle. Safe to call more than once.
func (s *Subsystem) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	s.active = false
	return portaudio.Terminate()
}
