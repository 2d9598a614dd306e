// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/simple-imagegen/internal/bus"
	"github.com/tendant/simple-imagegen/internal/config"
	"github.com/tendant/simple-imagegen/internal/gallery"
	"github.com/tendant/simple-imagegen/internal/genai"
	"github.com/tendant/simple-imagegen/internal/httpapi"
	"github.com/tendant/simple-imagegen/internal/img"
	"github.com/tendant/simple-imagegen/internal/queue"
	"github.com/tendant/simple-imagegen/internal/storage"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger.Info("server starting",
		"http_addr", cfg.HTTPAddr,
		"storage_backend", cfg.StorageBackend,
		"generation_timeout", cfg.GenerationTimeout,
		"thumb_width", cfg.ThumbWidth,
		"thumb_height", cfg.ThumbHeight,
		"nats_enabled", cfg.NATSURL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.StorageBackend, cfg.OutputDir, cfg.S3, logger)
	if err != nil {
		fatal(logger, "open storage", err, "backend", cfg.StorageBackend)
	}
	logger.Info("storage ready", "backend", store.Name(), "output_dir", cfg.OutputDir)

	gal := gallery.New(store, img.ThumbnailSpec{Width: cfg.ThumbWidth, Height: cfg.ThumbHeight}, logger)

	gen, err := genai.NewGenerator(ctx, genai.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, logger)
	if err != nil {
		fatal(logger, "create generator", err)
	}

	q := queue.New(gen, gal, queue.Options{Timeout: cfg.GenerationTimeout, Logger: logger})
	metrics := queue.NewMetrics(prometheus.DefaultRegisterer)
	q.OnTransition(metrics.Observe)

	refOpts := img.ReferenceOptions{MaxDim: cfg.ReferenceMaxDim}

	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL, bus.Options{Logger: logger, HandlerTimeout: cfg.NATSHandlerTimeout})
		if err != nil {
			fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
		}
		defer nc.Close()
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL)

		events := bus.NewEvents(nc, cfg.SubjectJobEvents, logger)
		q.OnTransition(events.Observe)

		if _, err := nc.SubscribeJSON(cfg.SubjectJobSubmit, bus.SubmitHandler(q, refOpts, events, logger)); err != nil {
			fatal(logger, "subscribe submissions", err, "subject", cfg.SubjectJobSubmit)
		}
		logger.Info("listening for submissions", "subject", cfg.SubjectJobSubmit, "events_subject", cfg.SubjectJobEvents)
	}

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		_ = q.Run(ctx)
	}()

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewRouter(q, gal, httpapi.Options{
			Logger:         logger,
			AllowedOrigins: cfg.CORSAllowedOrigins,
			MaxUploadBytes: cfg.MaxUploadBytes,
			Reference:      refOpts,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			fatal(logger, "http server", err, "addr", cfg.HTTPAddr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	stop()
	<-dispatcherDone
	logger.Info("server stopped", "stats", q.Stats())
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
