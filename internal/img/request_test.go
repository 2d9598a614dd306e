package img

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/tendant/simple-imagegen/internal/job"
	"github.com/tendant/simple-imagegen/pkg/schema"
)

func TestParamsFromRequest(t *testing.T) {
	seed := int64(3)
	data := base64.StdEncoding.EncodeToString(createTestImage(t, 20, 20))

	params, err := ParamsFromRequest(schema.JobSubmitRequest{
		Prompt:         "a lighthouse",
		NegativePrompt: "boats",
		AspectRatio:    "16:9",
		Seed:           &seed,
		ReferenceImages: []schema.ReferenceImage{
			{Filename: "ref.png", Data: data},
			{Data: "data:image/png;base64," + data},
		},
	}, ReferenceOptions{})
	if err != nil {
		t.Fatalf("ParamsFromRequest returned error: %v", err)
	}

	if params.Prompt != "a lighthouse" || params.NegativePrompt != "boats" {
		t.Fatalf("unexpected text fields: %+v", params)
	}
	if params.AspectRatio != job.AspectWide {
		t.Fatalf("unexpected aspect ratio: %s", params.AspectRatio)
	}
	if params.Seed == nil || *params.Seed != 3 {
		t.Fatalf("seed not carried over")
	}
	if len(params.ReferenceImages) != 2 {
		t.Fatalf("expected 2 references, got %d", len(params.ReferenceImages))
	}
	if params.ReferenceImages[1].Filename != "reference-2" {
		t.Fatalf("unexpected default filename: %s", params.ReferenceImages[1].Filename)
	}
	if params.ReferenceImages[0].MimeType != "image/png" {
		t.Fatalf("unexpected mime type: %s", params.ReferenceImages[0].MimeType)
	}
}

func TestParamsFromRequestRejectsBadReferences(t *testing.T) {
	tests := []struct {
		name string
		refs []schema.ReferenceImage
	}{
		{"bad base64", []schema.ReferenceImage{{Data: "%%%"}}},
		{"not an image", []schema.ReferenceImage{{Data: base64.StdEncoding.EncodeToString([]byte("hello world"))}}},
		{"too many", make([]schema.ReferenceImage, job.MaxReferences+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParamsFromRequest(schema.JobSubmitRequest{Prompt: "x", ReferenceImages: tt.refs}, ReferenceOptions{})
			if !errors.Is(err, job.ErrInvalidParams) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}
