package img

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/tendant/simple-imagegen/internal/job"
)

// Dimensions returns the pixel size rendered for an aspect ratio.
func Dimensions(aspect job.AspectRatio) (int, int) {
	switch aspect {
	case job.AspectWide:
		return 1344, 768
	case job.AspectStory:
		return 768, 1344
	case job.AspectClassic:
		return 1184, 864
	case job.AspectPortrait:
		return 864, 1184
	default:
		return 1024, 1024
	}
}

// Placeholder renders a deterministic PNG whose colours derive from the key.
// It stands in for real output when no generation backend is configured.
func Placeholder(width, height int, key string) ([]byte, error) {
	sum := sha256.Sum256([]byte(key))
	base := color.NRGBA{R: sum[0], G: sum[1], B: sum[2], A: 255}
	accent := color.NRGBA{R: sum[3], G: sum[4], B: sum[5], A: 255}

	canvas := imaging.New(width, height, base)

	stripe := imaging.New(width, max(height/12, 16), accent)
	for y := 0; y < height; y += stripe.Bounds().Dy() * 2 {
		canvas = imaging.Overlay(canvas, stripe, image.Pt(0, y), 0.6)
	}

	inset := imaging.New(width/3, height/3, color.NRGBA{R: sum[6], G: sum[7], B: sum[8], A: 255})
	canvas = imaging.PasteCenter(canvas, inset)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}
