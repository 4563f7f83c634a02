package stt

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Chain tries an ordered list of engines in sequence until one
// answers. An empty transcription is still an answer (no speech in the
// segment); only engine errors fall through to the next provider.
type Chain struct {
	providers []Transcriber
	log       zerolog.Logger
}

func NewChain(log zerolog.Logger, providers ...Transcriber) *Chain {
	return &Chain{providers: providers, log: log}
}

func (c *Chain) Transcribe(ctx context.Context, samples []int16, sampleRate, channels int) (string, error) {
	if len(c.providers) == 0 {
		return "", errors.New("no transcription engines configured")
	}

	var errs []error
	for i, p := range c.providers {
		text, err := p.Transcribe(ctx, samples, sampleRate, channels)
		if err == nil {
			return text, nil
		}
		errs = append(errs, err)
		c.log.Debug().Int("engine", i).Err(err).Msg("Engine failed, trying next")

		if ctx.Err() != nil {
			break
		}
	}
	return "", errors.Join(errs...)
}

func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
