package img

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/tendant/simple-imagegen/internal/job"
)

// DefaultReferenceMaxDim bounds the longest side of a reference image sent upstream.
const DefaultReferenceMaxDim = 1536

var ErrUnsupportedType = errors.New("unsupported image type")

// SupportedMimeTypes returns the MIME types accepted as reference images.
func SupportedMimeTypes() []string {
	return []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/bmp",
		"image/tiff",
	}
}

// Supports reports whether mimeType can be used as a reference image.
func Supports(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	for _, t := range SupportedMimeTypes() {
		if t == mimeType {
			return true
		}
	}
	return false
}

// DetectMime sniffs the content type of data. Tiff is checked by hand since
// http.DetectContentType does not know it; the declared type is the last resort.
func DetectMime(data []byte, declared string) string {
	sniffed := http.DetectContentType(data)
	if sniffed != "application/octet-stream" {
		return sniffed
	}
	if len(data) >= 4 && (string(data[0:4]) == "II*\x00" || string(data[0:4]) == "MM\x00*") {
		return "image/tiff"
	}
	return strings.ToLower(strings.TrimSpace(declared))
}

// ReferenceOptions controls how uploaded references are normalized.
type ReferenceOptions struct {
	MaxDim int
}

// PrepareReference validates an uploaded image and shrinks it so its longest
// side does not exceed opts.MaxDim. Images already within bounds keep their
// original bytes.
func PrepareReference(filename, declaredMime string, data []byte, opts ReferenceOptions) (job.ReferenceImage, error) {
	if len(data) == 0 {
		return job.ReferenceImage{}, fmt.Errorf("reference %q: empty file", filename)
	}
	maxDim := opts.MaxDim
	if maxDim <= 0 {
		maxDim = DefaultReferenceMaxDim
	}

	mimeType := DetectMime(data, declaredMime)
	if !Supports(mimeType) {
		return job.ReferenceImage{}, fmt.Errorf("reference %q: %w: %s", filename, ErrUnsupportedType, mimeType)
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return job.ReferenceImage{}, fmt.Errorf("reference %q: decode: %w", filename, err)
	}

	ref := job.ReferenceImage{
		ID:       uuid.NewString(),
		Filename: filepath.Base(filename),
		MimeType: mimeType,
		Data:     data,
	}

	b := src.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim && (mimeType == "image/jpeg" || mimeType == "image/png") {
		return ref, nil
	}

	// resize and re-encode anything large or in a format the API may not accept
	resized := fitWithin(src, maxDim, maxDim)
	encoded, err := encode(resized, mimeType)
	if err != nil {
		return job.ReferenceImage{}, fmt.Errorf("reference %q: %w", filename, err)
	}
	ref.Data = encoded.data
	ref.MimeType = encoded.mimeType
	return ref, nil
}

type encodedImage struct {
	data     []byte
	mimeType string
}

func encode(m image.Image, sourceMime string) (encodedImage, error) {
	var buf bytes.Buffer
	if sourceMime == "image/jpeg" {
		if err := imaging.Encode(&buf, m, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
			return encodedImage{}, fmt.Errorf("encode jpeg: %w", err)
		}
		return encodedImage{data: buf.Bytes(), mimeType: "image/jpeg"}, nil
	}
	if err := imaging.Encode(&buf, m, imaging.PNG); err != nil {
		return encodedImage{}, fmt.Errorf("encode png: %w", err)
	}
	return encodedImage{data: buf.Bytes(), mimeType: "image/png"}, nil
}
