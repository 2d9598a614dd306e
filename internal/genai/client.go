// Package genai turns generation params into images using the Gemini API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/tendant/simple-imagegen/internal/job"
)

const (
	// DefaultModel is the Gemini model used for image generation.
	DefaultModel = "gemini-2.5-flash-image"

	// randomSeedLimit bounds seeds picked for requests without one.
	randomSeedLimit = 1_000_000
)

var ErrNoImage = errors.New("no image data found in response")

// Generator produces one image for a set of params.
type Generator interface {
	Generate(ctx context.Context, params job.Params) (job.Output, error)
}

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds the configuration for the Gemini client.
type Config struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// Client generates images through the Gemini API.
type Client struct {
	models modelsAPI
	model  string
	log    *slog.Logger
	seed   func() int64
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithSeedSource replaces the random seed source.
func WithSeedSource(fn func() int64) ClientOption {
	return func(c *Client) {
		c.seed = fn
	}
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, cfg Config, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     strings.TrimSpace(cfg.APIKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newClient(client.Models, cfg.Model, opts...), nil
}

func newClient(models modelsAPI, model string, opts ...ClientOption) *Client {
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		models: models,
		model:  model,
		log:    slog.Default(),
		seed:   RandomSeed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Generate sends params to the model and returns the first inline image.
func (c *Client) Generate(ctx context.Context, params job.Params) (job.Output, error) {
	seed := ResolveSeed(params.Seed, c.seed)

	resp, err := c.models.GenerateContent(ctx, c.model, BuildContents(params), BuildConfig(params, seed))
	if err != nil {
		return job.Output{}, fmt.Errorf("generate content: %w", err)
	}

	out, err := firstImage(resp)
	if err != nil {
		return job.Output{}, err
	}
	out.Seed = seed

	c.log.Debug("generated image",
		slog.String("model", c.model),
		slog.String("mime_type", out.MimeType),
		slog.Int("bytes", len(out.Data)),
		slog.Int64("seed", seed),
	)
	return out, nil
}

func firstImage(resp *genai.GenerateContentResponse) (job.Output, error) {
	if resp == nil {
		return job.Output{}, ErrNoImage
	}
	var text []string
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return job.Output{Data: part.InlineData.Data, MimeType: mimeType}, nil
			}
			if t := strings.TrimSpace(part.Text); t != "" {
				text = append(text, t)
			}
		}
	}
	if len(text) > 0 {
		return job.Output{}, fmt.Errorf("%w: %s", ErrNoImage, truncate(strings.Join(text, " "), 300))
	}
	return job.Output{}, ErrNoImage
}

// ResolveSeed returns the requested seed, or a fresh one from source.
func ResolveSeed(requested *int64, source func() int64) int64 {
	if requested != nil {
		return *requested
	}
	return source()
}

// RandomSeed picks a seed in [0, 1000000).
func RandomSeed() int64 {
	return rand.Int64N(randomSeedLimit)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
