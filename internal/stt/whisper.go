package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/loopscribe/loopscribe/internal/config"
	"github.com/loopscribe/loopscribe/internal/pcm"
)

// whisperSampleRate is the only input rate whisper.cpp accepts;
// segments at other device rates are resampled on the way in.
const whisperSampleRate = 16000

type whisperTranscriber struct {
	model     whisper.Model
	modelPath string
	language  string
	threads   int
	mu        sync.Mutex
}

// NewWhisper loads (downloading on first use) a local whisper.cpp
// model.
func NewWhisper(cfg config.WhisperConfig) (Transcriber, error) {
	modelPath := filepath.Join(config.ModelsPath(), cfg.Model+".bin")

	// Check if model exists, download if needed
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := downloadModel(cfg.Model, modelPath); err != nil {
			return nil, fmt.Errorf("failed to download model: %w", err)
		}
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	return &whisperTranscriber{
		model:     model,
		modelPath: modelPath,
		language:  cfg.Language,
		threads:   cfg.Threads,
	}, nil
}

func (w *whisperTranscriber) Transcribe(ctx context.Context, samples []int16, sampleRate, channels int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mono := samples
	if channels > 1 {
		mono = pcm.Downmix(samples, channels)
	}
	if sampleRate != whisperSampleRate {
		mono = pcm.Resample(mono, sampleRate, whisperSampleRate)
	}

	// whisper.cpp contexts are not safe for concurrent use against one
	// model, so the two source workers are serialized here.
	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("failed to create context: %w", err)
	}

	if w.threads > 0 {
		wctx.SetThreads(uint(w.threads))
	}
	if w.language != "auto" && w.language != "" {
		wctx.SetLanguage(w.language)
	}
	wctx.SetTranslate(false)

	if err := wctx.Process(pcm.ToFloat32(mono), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process failed: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			break // EOF
		}
		parts = append(parts, segment.Text)
	}

	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

func (w *whisperTranscriber) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model != nil {
		w.model.Close()
		w.model = nil
	}
	return nil
}
