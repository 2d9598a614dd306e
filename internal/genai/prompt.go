package genai

import (
	"strings"

	"google.golang.org/genai"

	"github.com/tendant/simple-imagegen/internal/job"
)

// BuildPrompt folds the negative prompt into the text sent to the model.
func BuildPrompt(params job.Params) string {
	prompt := params.Prompt
	if negative := strings.TrimSpace(params.NegativePrompt); negative != "" {
		prompt += "\n\n(Avoid elements: " + negative + ")"
	}
	return prompt
}

// BuildContents returns the user turn: the prompt followed by the references.
func BuildContents(params job.Params) []*genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(BuildPrompt(params))}
	for _, ref := range params.ReferenceImages {
		parts = append(parts, genai.NewPartFromBytes(ref.Data, ref.MimeType))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

// BuildConfig requests image output at the job's aspect ratio and seed.
func BuildConfig(params job.Params, seed int64) *genai.GenerateContentConfig {
	aspect := params.AspectRatio
	if aspect == "" {
		aspect = job.DefaultAspect
	}
	s := int32(seed)
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		ImageConfig: &genai.ImageConfig{
			AspectRatio: string(aspect),
		},
		Seed: &s,
	}
}
