// pkg/schema/events.go
package schema

// JobSubmitRequest asks the service to queue a generation job.
type JobSubmitRequest struct {
	RequestID       string           `json:"request_id,omitempty"`
	Prompt          string           `json:"prompt"`
	NegativePrompt  string           `json:"negative_prompt,omitempty"`
	AspectRatio     string           `json:"aspect_ratio,omitempty"`
	Seed            *int64           `json:"seed,omitempty"`
	ReferenceImages []ReferenceImage `json:"reference_images,omitempty"`
}

// ReferenceImage carries a conditioning image as standard base64.
type ReferenceImage struct {
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data"`
}

type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
	FailureTypeCancelled  FailureType = "cancelled"
)

type JobLifecycleEvent struct {
	JobID          string      `json:"job_id"`
	Status         string      `json:"status"`
	PreviousStatus string      `json:"previous_status,omitempty"`
	Prompt         string      `json:"prompt"`
	AspectRatio    string      `json:"aspect_ratio"`
	Seed           *int64      `json:"seed,omitempty"`
	Error          string      `json:"error,omitempty"`
	FailureType    FailureType `json:"failure_type,omitempty"`
	HappenedAt     int64       `json:"happened_at"`
}

type JobResult struct {
	ImageKey     string `json:"image_key"`
	ThumbnailKey string `json:"thumbnail_key,omitempty"`
	MimeType     string `json:"mime_type"`
	Filename     string `json:"filename"`
}

type JobDone struct {
	JobID            string      `json:"job_id"`
	Status           string      `json:"status"`
	Prompt           string      `json:"prompt"`
	ActualSeed       *int64      `json:"actual_seed,omitempty"`
	Result           *JobResult  `json:"result,omitempty"`
	ProcessingTimeMs int64       `json:"processing_time_ms"`
	Error            string      `json:"error,omitempty"`
	FailureType      FailureType `json:"failure_type,omitempty"`
	HappenedAt       int64       `json:"happened_at"`
}
