// Package stt provides the speech-to-text capability consumed by the
// transcription workers: pluggable engines plus an ordered fallback
// chain. Engines may be slow and may fail per segment; callers treat
// empty text as "no speech", not as an error.
package stt

import "context"

// Transcriber converts one segment of PCM audio to text.
// Implementations must tolerate being called concurrently from up to
// two independent worker goroutines, one per source.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16, sampleRate, channels int) (string, error)
	Close() error
}
