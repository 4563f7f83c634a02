package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/loopscribe/loopscribe/internal/config"
	"github.com/loopscribe/loopscribe/internal/wavefile"
)

const openAIEndpoint = "https://api.openai.com/v1/audio/transcriptions"

type openAITranscriber struct {
	apiKey   string
	model    string
	language string
	client   *http.Client
}

// NewOpenAI creates a network transcriber against the OpenAI
// audio/transcriptions API.
func NewOpenAI(apiKey string, cfg config.OpenAIConfig, language string) (Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	return &openAITranscriber{
		apiKey:   apiKey,
		model:    model,
		language: language,
		client:   &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

func (o *openAITranscriber) Transcribe(ctx context.Context, samples []int16, sampleRate, channels int) (string, error) {
	// The API wants a container file, so the segment goes out as a
	// short-lived temp WAV.
	path, err := wavefile.WriteTemp("loopscribe_segment_*.wav", wavefile.Take{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	})
	if err != nil {
		return "", fmt.Errorf("failed to stage segment: %w", err)
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", o.model); err != nil {
		return "", err
	}
	if o.language != "" && o.language != "auto" {
		if err := mw.WriteField("language", o.language); err != nil {
			return "", err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIEndpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai http %d: %s", resp.StatusCode, string(b))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (o *openAITranscriber) Close() error { return nil }
