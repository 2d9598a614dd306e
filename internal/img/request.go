package img

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/tendant/simple-imagegen/internal/job"
	"github.com/tendant/simple-imagegen/pkg/schema"
)

// ParamsFromRequest turns a wire submission into job params, decoding and
// preparing its base64 references. Problems with the payload come back as
// *job.ValidationError.
func ParamsFromRequest(req schema.JobSubmitRequest, opts ReferenceOptions) (job.Params, error) {
	params := job.Params{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		AspectRatio:    job.AspectRatio(req.AspectRatio),
		Seed:           req.Seed,
	}
	if len(req.ReferenceImages) > job.MaxReferences {
		return job.Params{}, &job.ValidationError{
			Field:   "reference_images",
			Message: fmt.Sprintf("at most %d reference images are allowed", job.MaxReferences),
		}
	}
	for i, r := range req.ReferenceImages {
		data, err := decodeBase64(r.Data)
		if err != nil {
			return job.Params{}, &job.ValidationError{
				Field:   "reference_images",
				Message: fmt.Sprintf("reference image %d: invalid base64: %v", i+1, err),
			}
		}
		name := r.Filename
		if name == "" {
			name = fmt.Sprintf("reference-%d", i+1)
		}
		ref, err := PrepareReference(name, r.MimeType, data, opts)
		if err != nil {
			return job.Params{}, &job.ValidationError{Field: "reference_images", Message: err.Error()}
		}
		params.ReferenceImages = append(params.ReferenceImages, ref)
	}
	return params, nil
}

// decodeBase64 accepts plain base64 or a data URL.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}
