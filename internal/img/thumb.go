// internal/img/thumb.go
package img

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

type ThumbnailSpec struct {
	Width  int
	Height int
}

type ThumbnailOutput struct {
	Data         []byte
	MimeType     string
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

// GenerateThumbnail decodes an encoded image, fits it into the given bounding
// box and returns it JPEG-encoded. Sources smaller than the box are not upscaled.
func GenerateThumbnail(data []byte, spec ThumbnailSpec) (*ThumbnailOutput, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	srcBounds := src.Bounds()
	thumb := fitWithin(src, spec.Width, spec.Height)

	var out bytes.Buffer
	if err := imaging.Encode(&out, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	b := thumb.Bounds()
	return &ThumbnailOutput{
		Data:         out.Bytes(),
		MimeType:     "image/jpeg",
		Width:        b.Dx(),
		Height:       b.Dy(),
		SourceWidth:  srcBounds.Dx(),
		SourceHeight: srcBounds.Dy(),
	}, nil
}

func fitWithin(src image.Image, boxW, boxH int) image.Image {
	b := src.Bounds()
	if b.Dx() <= boxW && b.Dy() <= boxH {
		return src
	}
	return imaging.Fit(src, boxW, boxH, imaging.Lanczos)
}
