// Package queue holds submitted generation jobs and runs them one at a time.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tendant/simple-imagegen/internal/job"
)

var (
	ErrNotFound    = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

// Generator produces the image for a job's params.
type Generator interface {
	Generate(ctx context.Context, params job.Params) (job.Output, error)
}

// Saver persists a generated image and returns where it was stored.
type Saver interface {
	Save(ctx context.Context, j job.Job, out job.Output) (job.Result, error)
}

// Listener observes a transition. prev is empty for a newly submitted job.
type Listener func(j job.Job, prev job.Status)

type Options struct {
	// Timeout bounds a single generation, including storing the result.
	// Zero means no limit.
	Timeout time.Duration
	Logger  *slog.Logger
}

type Queue struct {
	gen     Generator
	saver   Saver
	timeout time.Duration
	log     *slog.Logger

	mu        sync.Mutex
	jobs      []*job.Job // submission order
	byID      map[string]*job.Job
	runningID string
	cancelRun context.CancelFunc
	listeners []Listener
	issued    uint64 // transitions handed a delivery turn, under mu

	// Deliveries run in the order their transitions were made.
	turnMu    sync.Mutex
	turn      *sync.Cond
	delivered uint64

	wake chan struct{}
}

// event is a transition waiting for its delivery turn.
type event struct {
	seq       uint64
	listeners []Listener
	job       job.Job
	prev      job.Status
}

func New(gen Generator, saver Saver, opts Options) *Queue {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	q := &Queue{
		gen:     gen,
		saver:   saver,
		timeout: opts.Timeout,
		log:     log,
		byID:    make(map[string]*job.Job),
		wake:    make(chan struct{}, 1),
	}
	q.turn = sync.NewCond(&q.turnMu)
	return q
}

// OnTransition registers fn. Listeners run outside the queue lock, in the
// order they were registered, and see transitions in the order they happened.
// A listener may read the queue but must not submit or cancel jobs.
func (q *Queue) OnTransition(fn Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, fn)
}

// Submit validates params and appends a pending job.
func (q *Queue) Submit(params job.Params) (job.Job, error) {
	j, err := job.NewJob(params)
	if err != nil {
		return job.Job{}, err
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, j)
	q.byID[j.ID] = j
	snap := j.Clone()
	ev := q.stageLocked(snap, "")
	q.mu.Unlock()

	q.log.Info("job submitted", "job_id", snap.ID, "aspect_ratio", snap.Params.AspectRatio, "references", len(snap.Params.ReferenceImages))
	q.deliver(ev)
	q.signal()
	return snap, nil
}

// Run dispatches pending jobs until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	q.log.Info("dispatcher started")
	for {
		if ctx.Err() != nil {
			q.log.Info("dispatcher stopped")
			return ctx.Err()
		}
		if q.dispatch(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			q.log.Info("dispatcher stopped")
			return ctx.Err()
		case <-q.wake:
		}
	}
}

// dispatch runs the oldest pending job if nothing is generating. It reports
// whether a job was run.
func (q *Queue) dispatch(ctx context.Context) bool {
	snap, runCtx, ok := q.claim(ctx)
	if !ok {
		return false
	}
	defer q.release(snap.ID)

	logger := q.log.With("job_id", snap.ID)
	logger.Info("generation started", "aspect_ratio", snap.Params.AspectRatio)

	out, err := q.gen.Generate(runCtx, snap.Params)
	if err == nil && runCtx.Err() == nil {
		var result job.Result
		result, err = q.saver.Save(runCtx, snap, out)
		if err == nil {
			q.complete(logger, snap.ID, result, out.Seed)
			return true
		}
		err = fmt.Errorf("save image: %w", err)
	}
	if err == nil {
		err = runCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) && q.timeout > 0 {
		err = fmt.Errorf("generation timed out after %s: %w", q.timeout, err)
	}
	q.fail(logger, snap.ID, err)
	return true
}

func (q *Queue) claim(ctx context.Context) (job.Job, context.Context, bool) {
	q.mu.Lock()
	if q.generatingLocked() {
		q.mu.Unlock()
		return job.Job{}, nil, false
	}
	var next *job.Job
	for _, j := range q.jobs {
		if j.Status == job.StatusPending {
			next = j
			break
		}
	}
	if next == nil {
		q.mu.Unlock()
		return job.Job{}, nil, false
	}
	if err := job.MarkGenerating(next); err != nil {
		q.mu.Unlock()
		q.log.Error("claim job", "job_id", next.ID, "err", err)
		return job.Job{}, nil, false
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if q.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, q.timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	q.runningID = next.ID
	q.cancelRun = cancel
	snap := next.Clone()
	ev := q.stageLocked(snap, job.StatusPending)
	q.mu.Unlock()

	q.deliver(ev)
	return snap, runCtx, true
}

func (q *Queue) release(id string) {
	q.mu.Lock()
	if q.runningID == id {
		if q.cancelRun != nil {
			q.cancelRun()
		}
		q.runningID = ""
		q.cancelRun = nil
	}
	q.mu.Unlock()
}

func (q *Queue) complete(logger *slog.Logger, id string, result job.Result, seed int64) {
	q.mu.Lock()
	j := q.byID[id]
	if j == nil || j.Status != job.StatusGenerating {
		q.mu.Unlock()
		logger.Info("discarding result of finished job", "image_key", result.ImageKey)
		return
	}
	_ = job.MarkCompleted(j, result, seed)
	snap := j.Clone()
	ev := q.stageLocked(snap, job.StatusGenerating)
	q.mu.Unlock()

	logger.Info("generation completed", "image_key", result.ImageKey, "seed", seed, "duration_ms", elapsed(snap).Milliseconds())
	q.deliver(ev)
}

func (q *Queue) fail(logger *slog.Logger, id string, cause error) {
	q.mu.Lock()
	j := q.byID[id]
	if j == nil || j.Status != job.StatusGenerating {
		q.mu.Unlock()
		logger.Info("discarding error of finished job", "err", cause)
		return
	}
	_ = job.MarkFailed(j, cause)
	snap := j.Clone()
	ev := q.stageLocked(snap, job.StatusGenerating)
	q.mu.Unlock()

	logger.Error("generation failed", "err", cause, "failure_type", ClassifyFailure(snap.Status, snap.Error))
	q.deliver(ev)
}

// Cancel stops a pending or generating job. A generating job's request is
// aborted and anything it returns afterwards is dropped.
func (q *Queue) Cancel(id string) (job.Job, error) {
	q.mu.Lock()
	j := q.byID[id]
	if j == nil {
		q.mu.Unlock()
		return job.Job{}, ErrNotFound
	}
	if j.Status.Terminal() {
		snap := j.Clone()
		q.mu.Unlock()
		return snap, ErrJobFinished
	}
	prev := j.Status
	if err := job.MarkCancelled(j); err != nil {
		q.mu.Unlock()
		return job.Job{}, err
	}
	if q.runningID == id && q.cancelRun != nil {
		q.cancelRun()
	}
	snap := j.Clone()
	ev := q.stageLocked(snap, prev)
	q.mu.Unlock()

	q.log.Info("job cancelled", "job_id", id, "previous_status", prev)
	q.deliver(ev)
	q.signal()
	return snap, nil
}

func (q *Queue) Get(id string) (job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.byID[id]
	if j == nil {
		return job.Job{}, ErrNotFound
	}
	return j.Clone(), nil
}

// List returns jobs newest first, restricted to statuses when any are given.
func (q *Queue) List(statuses ...job.Status) []job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]job.Job, 0, len(q.jobs))
	for i := len(q.jobs) - 1; i >= 0; i-- {
		j := q.jobs[i]
		if len(statuses) > 0 && !hasStatus(statuses, j.Status) {
			continue
		}
		out = append(out, j.Clone())
	}
	return out
}

// Active returns pending and generating jobs, newest first.
func (q *Queue) Active() []job.Job {
	return q.List(job.StatusPending, job.StatusGenerating)
}

// Completed returns the gallery: completed jobs, newest first.
func (q *Queue) Completed() []job.Job {
	return q.List(job.StatusCompleted)
}

// Reuse returns a copy of a job's params suitable for resubmission.
func (q *Queue) Reuse(id string) (job.Params, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j := q.byID[id]
	if j == nil {
		return job.Params{}, ErrNotFound
	}
	return j.Params.Clone(), nil
}

// Stats counts jobs per status. Every status is present.
func (q *Queue) Stats() map[job.Status]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	counts := map[job.Status]int{
		job.StatusPending:    0,
		job.StatusGenerating: 0,
		job.StatusCompleted:  0,
		job.StatusFailed:     0,
		job.StatusCancelled:  0,
	}
	for _, j := range q.jobs {
		counts[j.Status]++
	}
	return counts
}

func (q *Queue) generatingLocked() bool {
	if q.runningID != "" {
		return true
	}
	for _, j := range q.jobs {
		if j.Status == job.StatusGenerating {
			return true
		}
	}
	return false
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// stageLocked hands the transition just made its delivery turn. q.mu must be
// held so turns follow the order of state changes.
func (q *Queue) stageLocked(j job.Job, prev job.Status) event {
	ev := event{seq: q.issued, listeners: q.listeners, job: j, prev: prev}
	q.issued++
	return ev
}

// deliver waits for every earlier transition to reach the listeners, then
// notifies them of ev.
func (q *Queue) deliver(ev event) {
	q.turnMu.Lock()
	for q.delivered != ev.seq {
		q.turn.Wait()
	}
	q.turnMu.Unlock()

	defer func() {
		q.turnMu.Lock()
		q.delivered++
		q.turn.Broadcast()
		q.turnMu.Unlock()
	}()
	for _, fn := range ev.listeners {
		fn(ev.job.Clone(), ev.prev)
	}
}

func hasStatus(statuses []job.Status, s job.Status) bool {
	for _, want := range statuses {
		if want == s {
			return true
		}
	}
	return false
}

func elapsed(j job.Job) time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}
