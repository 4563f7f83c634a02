package wavefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/loopscribe/loopscribe/internal/capture"
)

func tone(n int, channels int) []int16 {
	out := make([]int16, n*channels)
	for i := range out {
		out[i] = int16((i % 64) * 100)
	}
	return out
}

func decode(t *testing.T, path string) (*wav.Decoder, func()) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		t.Fatalf("%s is not a valid WAV file", path)
	}
	return d, func() { f.Close() }
}

func TestWriteFileKeepsNegotiatedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")

	take := Take{Samples: tone(4800, 2), SampleRate: 44100, Channels: 2}
	if err := WriteFile(path, take); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	d, closeFn := decode(t, path)
	defer closeFn()

	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if buf.Format.SampleRate != 44100 {
		t.Errorf("sample rate = %d, want 44100", buf.Format.SampleRate)
	}
	if buf.Format.NumChannels != 2 {
		t.Errorf("channels = %d, want 2", buf.Format.NumChannels)
	}
	if len(buf.Data) != 4800*2 {
		t.Errorf("sample count = %d, want %d", len(buf.Data), 4800*2)
	}
}

func TestEncodeRejectsUnnegotiatedTake(t *testing.T) {
	dir := t.TempDir()
	err := WriteFile(filepath.Join(dir, "bad.wav"), Take{Samples: []int16{1}})
	if err == nil {
		t.Fatal("expected error for take without format")
	}
}

func TestMergeResamplesToCommonRate(t *testing.T) {
	mic := Take{Samples: tone(16000, 1), SampleRate: 16000, Channels: 1}
	sys := Take{Samples: tone(44100, 2), SampleRate: 44100, Channels: 2}

	merged, err := Merge(mic, sys)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if merged.SampleRate != 44100 {
		t.Errorf("merged rate = %d, want 44100", merged.SampleRate)
	}
	if merged.Channels != 1 {
		t.Errorf("merged channels = %d, want 1", merged.Channels)
	}
	// Both inputs are one second long; the overlay should be too.
	if got := len(merged.Samples); got < 44090 || got > 44110 {
		t.Errorf("merged length = %d samples, want ~44100", got)
	}
}

func TestMergeEmptyTakeFails(t *testing.T) {
	mic := Take{Samples: tone(100, 1), SampleRate: 16000, Channels: 1}
	if _, err := Merge(mic, Take{}); err == nil {
		t.Fatal("expected merge of empty take to fail")
	}
}

func TestWriteSessionBothSourcesAndMerge(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zerolog.Nop())

	takes := map[capture.Source]Take{
		capture.Microphone:  {Samples: tone(16000, 1), SampleRate: 16000, Channels: 1},
		capture.SystemAudio: {Samples: tone(48000, 2), SampleRate: 48000, Channels: 2},
	}

	saved, err := w.WriteSession("20240101_120000", takes)
	if err != nil {
		t.Fatalf("WriteSession failed: %v", err)
	}
	if len(saved) != 3 {
		t.Fatalf("expected 3 files, got %v", saved)
	}

	for _, name := range []string{
		"microphone_20240101_120000.wav",
		"system_audio_20240101_120000.wav",
		"merged_20240101_120000.wav",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestWriteSessionSkipsEmptySource(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, zerolog.Nop())

	takes := map[capture.Source]Take{
		capture.Microphone:  {Samples: tone(8000, 1), SampleRate: 16000, Channels: 1},
		capture.SystemAudio: {SampleRate: 48000, Channels: 2}, // no frames
	}

	saved, err := w.WriteSession("20240101_130000", takes)
	if err != nil {
		t.Fatalf("WriteSession failed: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected only the microphone file, got %v", saved)
	}
	if filepath.Base(saved[0]) != "microphone_20240101_130000.wav" {
		t.Fatalf("unexpected file %s", saved[0])
	}
}
