package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tendant/simple-imagegen/internal/img"
	"github.com/tendant/simple-imagegen/internal/job"
	"github.com/tendant/simple-imagegen/internal/queue"
	"github.com/tendant/simple-imagegen/pkg/schema"
)

// JSONPublisher is the subset of Client used to emit events.
type JSONPublisher interface {
	PublishJSON(subject string, v any) error
}

// Events publishes queue transitions. Every transition goes to subject; a
// terminal one is also summarized on subject+".done".
type Events struct {
	pub     JSONPublisher
	subject string
	log     *slog.Logger
	now     func() time.Time
}

func NewEvents(pub JSONPublisher, subject string, log *slog.Logger) *Events {
	return &Events{pub: pub, subject: subject, log: log, now: time.Now}
}

// Observe is a queue.Listener.
func (e *Events) Observe(j job.Job, prev job.Status) {
	failureType := queue.ClassifyFailure(j.Status, j.Error)
	happenedAt := e.now().Unix()

	event := schema.JobLifecycleEvent{
		JobID:          j.ID,
		Status:         string(j.Status),
		PreviousStatus: string(prev),
		Prompt:         j.Params.Prompt,
		AspectRatio:    string(j.Params.AspectRatio),
		Seed:           j.Params.Seed,
		Error:          j.Error,
		FailureType:    failureType,
		HappenedAt:     happenedAt,
	}
	if err := e.pub.PublishJSON(e.subject, event); err != nil {
		e.log.Error("publish lifecycle event failed", "subject", e.subject, "job_id", j.ID, "status", j.Status, "err", err)
	}

	if !j.Status.Terminal() {
		return
	}

	done := schema.JobDone{
		JobID:            j.ID,
		Status:           string(j.Status),
		Prompt:           j.Params.Prompt,
		ActualSeed:       j.ActualSeed,
		ProcessingTimeMs: processingTime(j),
		Error:            j.Error,
		FailureType:      failureType,
		HappenedAt:       happenedAt,
	}
	if j.Result != nil {
		done.Result = &schema.JobResult{
			ImageKey:     j.Result.ImageKey,
			ThumbnailKey: j.Result.ThumbnailKey,
			MimeType:     j.Result.MimeType,
			Filename:     j.Result.Filename,
		}
	}
	if err := e.pub.PublishJSON(e.subject+".done", done); err != nil {
		e.log.Error("publish result failed", "subject", e.subject+".done", "job_id", j.ID, "err", err)
	}
}

func processingTime(j job.Job) int64 {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt).Milliseconds()
}

// Submitter accepts new jobs.
type Submitter interface {
	Submit(params job.Params) (job.Job, error)
}

// SubmitHandler returns a SubscribeJSON handler that queues every
// schema.JobSubmitRequest it receives. Rejected requests are reported on the
// events subject as failed validation when events is non-nil.
func SubmitHandler(q Submitter, opts img.ReferenceOptions, events *Events, log *slog.Logger) func(ctx context.Context, data []byte) {
	return func(ctx context.Context, data []byte) {
		var req schema.JobSubmitRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Warn("invalid submit request", "err", err)
			events.rejected(req, err)
			return
		}
		reqLogger := log.With("request_id", req.RequestID)

		params, err := img.ParamsFromRequest(req, opts)
		if err == nil {
			var j job.Job
			j, err = q.Submit(params)
			if err == nil {
				reqLogger.Info("queued job from bus", "job_id", j.ID)
				return
			}
		}
		reqLogger.Warn("rejected submit request", "err", err)
		events.rejected(req, err)
	}
}

func (e *Events) rejected(req schema.JobSubmitRequest, cause error) {
	if e == nil {
		return
	}
	event := schema.JobLifecycleEvent{
		JobID:       req.RequestID,
		Status:      string(job.StatusFailed),
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Seed:        req.Seed,
		Error:       cause.Error(),
		FailureType: schema.FailureTypeValidation,
		HappenedAt:  e.now().Unix(),
	}
	if err := e.pub.PublishJSON(e.subject, event); err != nil {
		e.log.Error("publish rejection failed", "subject", e.subject, "request_id", req.RequestID, "err", err)
	}
}
