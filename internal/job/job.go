// internal/job/job.go
package job

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle state of a generation job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusGenerating, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type AspectRatio string

const (
	AspectSquare   AspectRatio = "1:1"
	AspectWide     AspectRatio = "16:9"
	AspectStory    AspectRatio = "9:16"
	AspectPortrait AspectRatio = "3:4"
	AspectClassic  AspectRatio = "4:3"

	DefaultAspect = AspectSquare
)

const (
	MaxReferences       = 3
	MaxSeed       int64 = math.MaxInt32
)

// AspectRatios lists the supported ratios in display order.
func AspectRatios() []AspectRatio {
	return []AspectRatio{AspectSquare, AspectWide, AspectStory, AspectClassic, AspectPortrait}
}

func (a AspectRatio) Valid() bool {
	for _, r := range AspectRatios() {
		if a == r {
			return true
		}
	}
	return false
}

// ReferenceImage is a conditioning image attached to a request.
type ReferenceImage struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// Params are the submission parameters of a job. A job owns its own copy.
type Params struct {
	Prompt          string           `json:"prompt"`
	NegativePrompt  string           `json:"negative_prompt,omitempty"`
	AspectRatio     AspectRatio      `json:"aspect_ratio"`
	Seed            *int64           `json:"seed,omitempty"`
	ReferenceImages []ReferenceImage `json:"reference_images,omitempty"`
}

// Clone returns a deep copy of p.
func (p Params) Clone() Params {
	out := p
	if p.Seed != nil {
		seed := *p.Seed
		out.Seed = &seed
	}
	if p.ReferenceImages != nil {
		out.ReferenceImages = make([]ReferenceImage, len(p.ReferenceImages))
		for i, ref := range p.ReferenceImages {
			ref.Data = append([]byte(nil), ref.Data...)
			out.ReferenceImages[i] = ref
		}
	}
	return out
}

// Output is what a generator produces for a job.
type Output struct {
	Data     []byte
	MimeType string
	Seed     int64
}

// Result references the stored output of a completed job.
type Result struct {
	ImageKey     string `json:"image_key"`
	ThumbnailKey string `json:"thumbnail_key,omitempty"`
	MimeType     string `json:"mime_type"`
	Filename     string `json:"filename"`
}

// Job captures one submitted generation request and its outcome.
type Job struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	Params     Params     `json:"params"`
	Status     Status     `json:"status"`
	Result     *Result    `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	ActualSeed *int64     `json:"actual_seed,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

var (
	ErrInvalidParams     = errors.New("invalid generation params")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError describes why a set of params was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidParams }

// Normalize trims free text and applies the default aspect ratio.
func Normalize(p Params) Params {
	p.Prompt = strings.TrimSpace(p.Prompt)
	p.NegativePrompt = strings.TrimSpace(p.NegativePrompt)
	p.AspectRatio = AspectRatio(strings.TrimSpace(string(p.AspectRatio)))
	if p.AspectRatio == "" {
		p.AspectRatio = DefaultAspect
	}
	return p
}

// Validate checks p after normalization.
func Validate(p Params) error {
	if strings.TrimSpace(p.Prompt) == "" {
		return &ValidationError{Field: "prompt", Message: "prompt is required"}
	}
	if p.AspectRatio != "" && !p.AspectRatio.Valid() {
		return &ValidationError{Field: "aspect_ratio", Message: fmt.Sprintf("unsupported aspect ratio %q", p.AspectRatio)}
	}
	if p.Seed != nil && (*p.Seed < 0 || *p.Seed > MaxSeed) {
		return &ValidationError{Field: "seed", Message: fmt.Sprintf("seed must be between 0 and %d", MaxSeed)}
	}
	if len(p.ReferenceImages) > MaxReferences {
		return &ValidationError{Field: "reference_images", Message: fmt.Sprintf("at most %d reference images are allowed", MaxReferences)}
	}
	for i, ref := range p.ReferenceImages {
		if len(ref.Data) == 0 {
			return &ValidationError{Field: "reference_images", Message: fmt.Sprintf("reference image %d is empty", i+1)}
		}
	}
	return nil
}

// NewJob validates params and returns a pending job holding its own copy of them.
func NewJob(params Params) (*Job, error) {
	params = Normalize(params)
	if err := Validate(params); err != nil {
		return nil, err
	}
	params = params.Clone()
	for i := range params.ReferenceImages {
		if params.ReferenceImages[i].ID == "" {
			params.ReferenceImages[i].ID = uuid.NewString()
		}
	}
	return &Job{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Params:    params,
		Status:    StatusPending,
	}, nil
}

// Clone returns a copy of j that shares nothing mutable with it.
func (j *Job) Clone() Job {
	out := *j
	out.Params = j.Params.Clone()
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	if j.ActualSeed != nil {
		s := *j.ActualSeed
		out.ActualSeed = &s
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

func transitionError(j *Job, to Status) error {
	return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, j.ID, j.Status, to)
}

func MarkGenerating(j *Job) error {
	if j.Status != StatusPending {
		return transitionError(j, StatusGenerating)
	}
	now := time.Now().UTC()
	j.Status = StatusGenerating
	j.StartedAt = &now
	return nil
}

func MarkCompleted(j *Job, result Result, seed int64) error {
	if j.Status != StatusGenerating {
		return transitionError(j, StatusCompleted)
	}
	j.Status = StatusCompleted
	j.Result = &result
	j.ActualSeed = &seed
	finish(j)
	return nil
}

func MarkFailed(j *Job, err error) error {
	if j.Status != StatusGenerating {
		return transitionError(j, StatusFailed)
	}
	j.Status = StatusFailed
	if err != nil {
		j.Error = err.Error()
	}
	finish(j)
	return nil
}

func MarkCancelled(j *Job) error {
	if j.Status.Terminal() {
		return transitionError(j, StatusCancelled)
	}
	j.Status = StatusCancelled
	finish(j)
	return nil
}

func finish(j *Job) {
	now := time.Now().UTC()
	j.FinishedAt = &now
}
