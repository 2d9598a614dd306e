// cmd/generate queues one or more generations from the command line and
// writes the results into a local gallery directory.
//
// Usage:
//
//	./generate -prompt "a lighthouse at dusk"
//	./generate -prompt "same scene, watercolor" -ref photo.jpg -aspect-ratio 16:9 -n 3
//	./generate -prompt "fixed seed" -seed 42 -negative "people, text" -out ./renders
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tendant/simple-imagegen/internal/gallery"
	"github.com/tendant/simple-imagegen/internal/genai"
	"github.com/tendant/simple-imagegen/internal/img"
	"github.com/tendant/simple-imagegen/internal/job"
	"github.com/tendant/simple-imagegen/internal/queue"
	"github.com/tendant/simple-imagegen/internal/storage"
)

type refList []string

func (r *refList) String() string     { return strings.Join(*r, ",") }
func (r *refList) Set(v string) error { *r = append(*r, v); return nil }

func main() {
	_ = godotenv.Load()

	prompt := flag.String("prompt", "", "Prompt describing the image (required)")
	negative := flag.String("negative", "", "Elements to avoid")
	aspect := flag.String("aspect-ratio", string(job.DefaultAspect), "Aspect ratio: "+aspectList())
	seed := flag.Int64("seed", -1, "Seed (-1 = random per job)")
	out := flag.String("out", "./data/gallery", "Output directory")
	count := flag.Int("n", 1, "Number of jobs to queue")
	timeout := flag.Duration("timeout", 2*time.Minute, "Per-generation timeout")
	model := flag.String("model", getenv("GEMINI_MODEL", ""), "Gemini model (default "+genai.DefaultModel+")")
	thumbSize := flag.Int("thumb", 512, "Thumbnail bounding box in pixels")
	verbose := flag.Bool("v", false, "Verbose output")
	var refs refList
	flag.Var(&refs, "ref", fmt.Sprintf("Reference image path (repeatable, max %d)", job.MaxReferences))
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if strings.TrimSpace(*prompt) == "" {
		fmt.Println("Error: -prompt flag is required")
		flag.Usage()
		os.Exit(1)
	}
	if *count <= 0 {
		fatal(logger, "invalid -n", fmt.Errorf("must be greater than zero (got %d)", *count))
	}
	if len(refs) > job.MaxReferences {
		fmt.Printf("⚠️  Using the first %d of %d reference images\n", job.MaxReferences, len(refs))
		refs = refs[:job.MaxReferences]
	}

	seedParam, err := parseSeed(*seed)
	if err != nil {
		fatal(logger, "invalid -seed", err)
	}
	params := job.Params{
		Prompt:         *prompt,
		NegativePrompt: *negative,
		AspectRatio:    job.AspectRatio(*aspect),
		Seed:           seedParam,
	}
	for _, path := range refs {
		data, err := os.ReadFile(path)
		if err != nil {
			fatal(logger, "read reference", err, "path", path)
		}
		ref, err := img.PrepareReference(filepath.Base(path), "", data, img.ReferenceOptions{})
		if err != nil {
			fatal(logger, "prepare reference", err, "path", path)
		}
		params.ReferenceImages = append(params.ReferenceImages, ref)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewFileStore(*out)
	if err != nil {
		fatal(logger, "open output directory", err, "out", *out)
	}
	gal := gallery.New(store, img.ThumbnailSpec{Width: *thumbSize, Height: *thumbSize}, logger)

	apiKey := getenv("GEMINI_API_KEY", getenv("API_KEY", ""))
	gen, err := genai.NewGenerator(ctx, genai.Config{APIKey: apiKey, Model: *model}, logger)
	if err != nil {
		fatal(logger, "create generator", err)
	}
	if _, synthetic := gen.(*genai.Synthetic); synthetic {
		fmt.Println("⚠️  GEMINI_API_KEY not set, rendering placeholders")
	}

	q := queue.New(gen, gal, queue.Options{Timeout: *timeout, Logger: logger})

	var wg sync.WaitGroup
	q.OnTransition(func(j job.Job, prev job.Status) {
		switch j.Status {
		case job.StatusGenerating:
			fmt.Printf("🎨 Generating %s...\n", short(j.ID))
		case job.StatusCompleted:
			path, _ := store.Path(j.Result.ImageKey)
			fmt.Printf("✅ %s -> %s (seed %d)\n", short(j.ID), path, *j.ActualSeed)
			wg.Done()
		case job.StatusFailed:
			fmt.Printf("❌ %s failed: %s\n", short(j.ID), j.Error)
			wg.Done()
		case job.StatusCancelled:
			fmt.Printf("⏹️  %s cancelled\n", short(j.ID))
			wg.Done()
		}
	})

	start := time.Now()
	ids := make([]string, 0, *count)
	for i := 0; i < *count; i++ {
		wg.Add(1)
		j, err := q.Submit(params)
		if err != nil {
			fatal(logger, "submit job", err)
		}
		ids = append(ids, j.ID)
	}
	fmt.Printf("\n📋 Queued %d job(s), aspect ratio %s\n", len(ids), params.AspectRatio)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go func() { _ = q.Run(runCtx) }()

	// On interrupt, cancel everything still queued and let the dispatcher
	// settle the job in flight.
	go func() {
		<-ctx.Done()
		for _, j := range q.Active() {
			_, _ = q.Cancel(j.ID)
		}
	}()

	wg.Wait()
	stats := q.Stats()
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("📁 Output: %s\n", store.BasePath())
	fmt.Printf("📊 Completed %d, failed %d, cancelled %d\n",
		stats[job.StatusCompleted], stats[job.StatusFailed], stats[job.StatusCancelled])
	fmt.Printf("⏱️  Time: %v\n\n", time.Since(start).Round(time.Millisecond))

	if stats[job.StatusCompleted] != len(ids) {
		os.Exit(1)
	}
}

// parseSeed maps the -seed flag to a job seed. -1 asks for a random seed per
// job; other negative values are rejected.
func parseSeed(v int64) (*int64, error) {
	switch {
	case v == -1:
		return nil, nil
	case v < 0:
		return nil, fmt.Errorf("must be -1 (random) or between 0 and %d (got %d)", job.MaxSeed, v)
	}
	return &v, nil
}

func aspectList() string {
	names := make([]string, 0, len(job.AspectRatios()))
	for _, a := range job.AspectRatios() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
