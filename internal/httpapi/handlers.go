package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"

	"github.com/tendant/simple-imagegen/internal/img"
	"github.com/tendant/simple-imagegen/internal/job"
	"github.com/tendant/simple-imagegen/internal/queue"
	"github.com/tendant/simple-imagegen/internal/storage"
	"github.com/tendant/simple-imagegen/pkg/schema"
)

var errNotCompleted = errors.New("job has not completed")

type jobResponse struct {
	job.Job
	ImageURL     string `json:"image_url,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

func toResponse(j job.Job) jobResponse {
	resp := jobResponse{Job: j}
	if j.Status == job.StatusCompleted && j.Result != nil {
		resp.ImageURL = "/api/jobs/" + j.ID + "/image"
		if j.Result.ThumbnailKey != "" {
			resp.ThumbnailURL = "/api/jobs/" + j.ID + "/thumbnail"
		}
	}
	return resp
}

func toResponses(jobs []job.Job) []jobResponse {
	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toResponse(j))
	}
	return out
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) queueView(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"active": toResponses(s.jobs.Active()),
		"stats":  s.jobs.Stats(),
	})
}

// galleryView lists completed jobs, newest first.
func (s *Server) galleryView(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, toResponses(s.jobs.Completed()))
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	var (
		params job.Params
		err    error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		params, err = s.paramsFromMultipart(r)
	} else {
		var req schema.JobSubmitRequest
		if err = render.DecodeJSON(r.Body, &req); err != nil {
			if !tooLarge(err) {
				err = &job.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
			}
		} else {
			params, err = img.ParamsFromRequest(req, s.reference)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	j, err := s.jobs.Submit(params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httplog.LogEntrySetField(r.Context(), "job_id", slog.StringValue(j.ID))
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, toResponse(j))
}

// paramsFromMultipart reads a form submission. Only the first MaxReferences
// "reference" files are used.
func (s *Server) paramsFromMultipart(r *http.Request) (job.Params, error) {
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		if tooLarge(err) {
			return job.Params{}, err
		}
		return job.Params{}, &job.ValidationError{Field: "body", Message: fmt.Sprintf("invalid form: %v", err)}
	}
	params := job.Params{
		Prompt:         r.FormValue("prompt"),
		NegativePrompt: r.FormValue("negative_prompt"),
		AspectRatio:    job.AspectRatio(r.FormValue("aspect_ratio")),
	}
	if raw := strings.TrimSpace(r.FormValue("seed")); raw != "" {
		seed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return job.Params{}, &job.ValidationError{Field: "seed", Message: fmt.Sprintf("invalid seed %q", raw)}
		}
		params.Seed = &seed
	}

	files := r.MultipartForm.File["reference"]
	if len(files) > job.MaxReferences {
		s.log.Info("ignoring extra reference images", "received", len(files), "max", job.MaxReferences)
		files = files[:job.MaxReferences]
	}
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return job.Params{}, fmt.Errorf("open upload %q: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return job.Params{}, fmt.Errorf("read upload %q: %w", fh.Filename, err)
		}
		ref, err := img.PrepareReference(fh.Filename, fh.Header.Get("Content-Type"), data, s.reference)
		if err != nil {
			return job.Params{}, &job.ValidationError{Field: "reference", Message: err.Error()}
		}
		params.ReferenceImages = append(params.ReferenceImages, ref)
	}
	return params, nil
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []job.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := job.Status(strings.TrimSpace(part))
			if !st.Valid() {
				s.writeError(w, r, &job.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", st)})
				return
			}
			statuses = append(statuses, st)
		}
	}
	render.JSON(w, r, toResponses(s.jobs.List(statuses...)))
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, toResponse(j))
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	render.JSON(w, r, toResponse(j))
}

// jobParams returns a job's params in submission form so a client can post
// them back unchanged.
func (s *Server) jobParams(w http.ResponseWriter, r *http.Request) {
	params, err := s.jobs.Reuse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req := schema.JobSubmitRequest{
		Prompt:         params.Prompt,
		NegativePrompt: params.NegativePrompt,
		AspectRatio:    string(params.AspectRatio),
		Seed:           params.Seed,
	}
	for _, ref := range params.ReferenceImages {
		req.ReferenceImages = append(req.ReferenceImages, schema.ReferenceImage{
			Filename: ref.Filename,
			MimeType: ref.MimeType,
			Data:     base64.StdEncoding.EncodeToString(ref.Data),
		})
	}
	render.JSON(w, r, req)
}

func (s *Server) jobImage(w http.ResponseWriter, r *http.Request) {
	j, err := s.completedJob(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": j.Result.Filename})
	s.stream(w, r, j.Result.ImageKey, j.Result.MimeType, disposition)
}

func (s *Server) jobThumbnail(w http.ResponseWriter, r *http.Request) {
	j, err := s.completedJob(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if j.Result.ThumbnailKey == "" {
		s.writeError(w, r, storage.ErrNotFound)
		return
	}
	s.stream(w, r, j.Result.ThumbnailKey, "image/jpeg", "")
}

func (s *Server) completedJob(r *http.Request) (job.Job, error) {
	j, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		return job.Job{}, err
	}
	if j.Status != job.StatusCompleted || j.Result == nil {
		return job.Job{}, fmt.Errorf("%w: status is %s", errNotCompleted, j.Status)
	}
	return j, nil
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request, key, contentType, disposition string) {
	rc, err := s.images.Open(r.Context(), key)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	if disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warn("stream image failed", "key", key, "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, job.ErrInvalidParams):
		status = http.StatusBadRequest
	case tooLarge(err):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, queue.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, queue.ErrJobFinished), errors.Is(err, errNotCompleted):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": err.Error()})
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
