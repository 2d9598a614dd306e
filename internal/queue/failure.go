package queue

import (
	"strings"

	"github.com/tendant/simple-imagegen/internal/job"
	"github.com/tendant/simple-imagegen/pkg/schema"
)

// ClassifyFailure labels a finished job's error for downstream consumers.
// Nothing in the queue retries; the label only tells subscribers whether
// resubmitting the same params is worth trying.
func ClassifyFailure(status job.Status, message string) schema.FailureType {
	switch status {
	case job.StatusCancelled:
		return schema.FailureTypeCancelled
	case job.StatusFailed:
	default:
		return ""
	}

	msg := strings.ToLower(message)

	if strings.Contains(msg, "invalid generation params") ||
		strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "aspect ratio") ||
		strings.Contains(msg, "unsupported image type") {
		return schema.FailureTypeValidation
	}

	// Check for network/temporary errors
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "temporary failure") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "503") {
		return schema.FailureTypeRetryable
	}

	// The model answered but refused or returned no image.
	if strings.Contains(msg, "no image data found") ||
		strings.Contains(msg, "safety") ||
		strings.Contains(msg, "blocked") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "api key") {
		return schema.FailureTypePermanent
	}

	// Default to retryable for unknown errors
	return schema.FailureTypeRetryable
}
