package session

import (
	"time"

	"github.com/loopscribe/loopscribe/internal/capture"
)

// EventSink receives session events. Callbacks are invoked from
// pipeline goroutines and must return quickly.
type EventSink interface {
	// OnResult delivers one non-empty transcription.
	OnResult(source capture.Source, text string, ts time.Time)
	// OnStatus reports a per-source lifecycle change ("capturing",
	// "stopped").
	OnStatus(source capture.Source, status string)
	// OnFatalError reports a condition that prevented the session from
	// running at all.
	OnFatalError(msg string)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) OnResult(capture.Source, string, time.Time) {}
func (NopSink) OnStatus(capture.Source, string)            {}
func (NopSink) OnFatalError(string)                        {}
