package wavefile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/loopscribe/loopscribe/internal/capture"
	"github.com/loopscribe/loopscribe/internal/pcm"
)

// Writer persists the takes of a finished session into an output
// directory, one container file per source plus a best-effort merge.
type Writer struct {
	dir string
	log zerolog.Logger
}

func NewWriter(dir string, log zerolog.Logger) *Writer {
	return &Writer{dir: dir, log: log}
}

// WriteSession writes microphone_<stamp>.wav and/or
// system_audio_<stamp>.wav for every source that captured frames, and
// when both exist attempts merged_<stamp>.wav. A failed merge degrades
// to copying the microphone file; per-file failures are collected but
// never abort the remaining writes.
func (w *Writer) WriteSession(stamp string, takes map[capture.Source]Take) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var saved []string
	var errs []error

	paths := map[capture.Source]string{}
	for _, src := range capture.Sources {
		take, ok := takes[src]
		if !ok || take.Empty() {
			continue
		}
		path := filepath.Join(w.dir, fmt.Sprintf("%s_%s.wav", src, stamp))
		if err := WriteFile(path, take); err != nil {
			w.log.Error().Stringer("source", src).Err(err).Msg("Failed to write recording")
			errs = append(errs, err)
			continue
		}
		paths[src] = path
		saved = append(saved, path)
		w.log.Info().Stringer("source", src).Str("path", path).
			Dur("duration", take.Duration()).Msg("Recording saved")
	}

	micPath, hasMic := paths[capture.Microphone]
	_, hasSys := paths[capture.SystemAudio]
	if hasMic && hasSys {
		mergedPath := filepath.Join(w.dir, fmt.Sprintf("merged_%s.wav", stamp))
		merged, err := Merge(takes[capture.Microphone], takes[capture.SystemAudio])
		if err == nil {
			err = WriteFile(mergedPath, merged)
		}
		if err != nil {
			w.log.Warn().Err(err).Msg("Merge failed, copying microphone file instead")
			if copyErr := copyFile(micPath, mergedPath); copyErr != nil {
				errs = append(errs, copyErr)
				return saved, errors.Join(errs...)
			}
		}
		saved = append(saved, mergedPath)
	}

	return saved, errors.Join(errs...)
}

// Merge overlays two takes into a single mono take at the higher of
// the two sample rates.
func Merge(a, b Take) (Take, error) {
	if a.Empty() || b.Empty() {
		return Take{}, errors.New("cannot merge an empty take")
	}
	if a.SampleRate <= 0 || b.SampleRate <= 0 {
		return Take{}, errors.New("cannot merge takes without a sample rate")
	}

	rate := a.SampleRate
	if b.SampleRate > rate {
		rate = b.SampleRate
	}

	am := pcm.Resample(pcm.Downmix(a.Samples, a.Channels), a.SampleRate, rate)
	bm := pcm.Resample(pcm.Downmix(b.Samples, b.Channels), b.SampleRate, rate)

	return Take{
		Samples:    pcm.Mix(am, bm),
		SampleRate: rate,
		Channels:   1,
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
