// Package gallery stores finished generations and their thumbnails.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosimple/slug"

	"github.com/tendant/simple-imagegen/internal/img"
	"github.com/tendant/simple-imagegen/internal/job"
	"github.com/tendant/simple-imagegen/internal/storage"
)

const (
	imagesPrefix = "images"
	thumbsPrefix = "thumbs"

	filenamePromptChars = 20
)

type Gallery struct {
	store storage.Store
	thumb img.ThumbnailSpec
	log   *slog.Logger
	now   func() time.Time
}

func New(store storage.Store, thumb img.ThumbnailSpec, log *slog.Logger) *Gallery {
	return &Gallery{
		store: store,
		thumb: thumb,
		log:   log,
		now:   time.Now,
	}
}

// Save stores the generated image and a thumbnail for j. A thumbnail failure is
// logged and leaves ThumbnailKey empty; the image itself is what matters.
func (g *Gallery) Save(ctx context.Context, j job.Job, out job.Output) (job.Result, error) {
	if len(out.Data) == 0 {
		return job.Result{}, errors.New("gallery: empty image")
	}
	mimeType := out.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	filename := Filename(j.Params.Prompt, out.Seed, mimeType, g.now())

	imageKey, err := g.store.Put(ctx, path.Join(imagesPrefix, j.ID, filename), out.Data, mimeType)
	if err != nil {
		return job.Result{}, fmt.Errorf("store image: %w", err)
	}
	result := job.Result{
		ImageKey: imageKey,
		MimeType: mimeType,
		Filename: filename,
	}

	thumbKey, err := g.SaveThumbnail(ctx, imageKey, out.Data)
	if err != nil {
		g.log.Warn("thumbnail failed", "job_id", j.ID, "image_key", imageKey, "err", err)
		return result, nil
	}
	result.ThumbnailKey = thumbKey
	return result, nil
}

// SaveThumbnail renders and stores the thumbnail belonging to imageKey.
func (g *Gallery) SaveThumbnail(ctx context.Context, imageKey string, data []byte) (string, error) {
	thumb, err := img.GenerateThumbnail(data, g.thumb)
	if err != nil {
		return "", fmt.Errorf("generate thumbnail: %w", err)
	}
	key, err := g.store.Put(ctx, ThumbnailKey(imageKey), thumb.Data, thumb.MimeType)
	if err != nil {
		return "", fmt.Errorf("store thumbnail: %w", err)
	}
	return key, nil
}

// Open streams a stored image or thumbnail.
func (g *Gallery) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return g.store.Open(ctx, key)
}

// IsImageKey reports whether key addresses a full-size image.
func IsImageKey(key string) bool {
	return strings.HasPrefix(key, imagesPrefix+"/")
}

// ThumbnailKey derives the thumbnail key for an image key.
func ThumbnailKey(imageKey string) string {
	rest := strings.TrimPrefix(imageKey, imagesPrefix+"/")
	return path.Join(thumbsPrefix, strings.TrimSuffix(rest, path.Ext(rest))+".jpg")
}

// Filename builds the download name for a result:
// <timestamp>_<prompt slug>_<seed><ext>.
func Filename(prompt string, seed int64, mimeType string, at time.Time) string {
	timestamp := strings.NewReplacer(":", "-", ".", "-").Replace(at.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	s := slug.Make(truncateRunes(prompt, filenamePromptChars))
	if s == "" {
		s = "image"
	}
	return fmt.Sprintf("%s_%s_%d%s", timestamp, s, seed, extensionFor(mimeType))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
