// Package httpapi exposes the generation queue over HTTP.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/simple-imagegen/internal/img"
	"github.com/tendant/simple-imagegen/internal/job"
)

// DefaultMaxUploadBytes caps a submission body, references included.
const DefaultMaxUploadBytes = 32 << 20

// Jobs is the queue as seen by the API.
type Jobs interface {
	Submit(params job.Params) (job.Job, error)
	Get(id string) (job.Job, error)
	List(statuses ...job.Status) []job.Job
	Active() []job.Job
	Completed() []job.Job
	Cancel(id string) (job.Job, error)
	Reuse(id string) (job.Params, error)
	Stats() map[job.Status]int
}

// Images serves stored results.
type Images interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type Options struct {
	Logger         *slog.Logger
	AllowedOrigins []string
	MaxUploadBytes int64
	Reference      img.ReferenceOptions
	Gatherer       prometheus.Gatherer
}

type Server struct {
	jobs      Jobs
	images    Images
	log       *slog.Logger
	maxUpload int64
	reference img.ReferenceOptions
}

// NewRouter builds the HTTP handler for the API.
func NewRouter(jobs Jobs, images Images, opts Options) http.Handler {
	s := &Server{
		jobs:      jobs,
		images:    images,
		log:       opts.Logger,
		maxUpload: opts.MaxUploadBytes,
		reference: opts.Reference,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	// RequestLogger also installs chi's RequestID and Recoverer.
	r.Use(httplog.RequestLogger(&httplog.Logger{
		Logger:  s.log,
		Options: httplog.Options{Concise: true},
	}, []string{"/healthz", "/metrics"}))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/queue", s.queueView)
		api.Get("/gallery", s.galleryView)
		api.Route("/jobs", func(jobs chi.Router) {
			jobs.Post("/", s.createJob)
			jobs.Get("/", s.listJobs)
			jobs.Route("/{id}", func(one chi.Router) {
				one.Get("/", s.getJob)
				one.Post("/cancel", s.cancelJob)
				one.Get("/params", s.jobParams)
				one.Get("/image", s.jobImage)
				one.Get("/thumbnail", s.jobThumbnail)
			})
		})
	})

	return r
}
