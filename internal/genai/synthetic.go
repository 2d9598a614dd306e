package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tendant/simple-imagegen/internal/img"
	"github.com/tendant/simple-imagegen/internal/job"
)

// Synthetic renders deterministic placeholder images. It keeps the queue and
// gallery exercised in environments without an API key.
type Synthetic struct {
	Delay time.Duration
	Seed  func() int64
}

func NewSynthetic(delay time.Duration) *Synthetic {
	return &Synthetic{Delay: delay, Seed: RandomSeed}
}

func (s *Synthetic) Generate(ctx context.Context, params job.Params) (job.Output, error) {
	source := s.Seed
	if source == nil {
		source = RandomSeed
	}
	seed := ResolveSeed(params.Seed, source)

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return job.Output{}, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return job.Output{}, err
	}

	w, h := img.Dimensions(params.AspectRatio)
	data, err := img.Placeholder(w, h, fmt.Sprintf("%s|%s|%d", BuildPrompt(params), params.AspectRatio, seed))
	if err != nil {
		return job.Output{}, err
	}
	return job.Output{Data: data, MimeType: "image/png", Seed: seed}, nil
}

var (
	_ Generator = (*Client)(nil)
	_ Generator = (*Synthetic)(nil)
)

// NewGenerator returns a Gemini client, or a Synthetic generator when no API
// key is configured.
func NewGenerator(ctx context.Context, cfg Config, log *slog.Logger) (Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		log.Warn("no Gemini API key configured, using synthetic generator")
		return NewSynthetic(0), nil
	}
	return NewClient(ctx, cfg, WithLogger(log))
}
