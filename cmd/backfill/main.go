// cmd/backfill/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/tendant/simple-imagegen/internal/gallery"
	"github.com/tendant/simple-imagegen/internal/img"
	"github.com/tendant/simple-imagegen/internal/storage"
)

type config struct {
	OutputDir   string
	ThumbWidth  int
	ThumbHeight int
	Limit       int
	DryRun      bool
	Overwrite   bool
}

type stats struct {
	Scanned   int
	Missing   int
	Generated int
	Failed    int
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger.Info("backfill starting",
		"output_dir", cfg.OutputDir,
		"thumb_width", cfg.ThumbWidth,
		"thumb_height", cfg.ThumbHeight,
		"limit", cfg.Limit,
		"dry_run", cfg.DryRun,
		"overwrite", cfg.Overwrite,
	)

	store, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		fatal(logger, "open gallery directory", err, "output_dir", cfg.OutputDir)
	}
	gal := gallery.New(store, img.ThumbnailSpec{Width: cfg.ThumbWidth, Height: cfg.ThumbHeight}, logger)

	result, err := backfill(context.Background(), store, gal, cfg, logger)
	if err != nil {
		fatal(logger, "backfill failed", err)
	}
	logger.Info("backfill complete",
		"scanned", result.Scanned,
		"missing", result.Missing,
		"generated", result.Generated,
		"failed", result.Failed,
		"dry_run", cfg.DryRun,
	)
	if result.Failed > 0 {
		os.Exit(1)
	}
}

// backfill renders a thumbnail for every stored image that lacks one.
func backfill(ctx context.Context, store *storage.FileStore, gal *gallery.Gallery, cfg config, logger *slog.Logger) (stats, error) {
	var st stats
	err := store.Walk("images", func(key string) error {
		if !gallery.IsImageKey(key) {
			return nil
		}
		if cfg.Limit > 0 && st.Missing >= cfg.Limit {
			return nil
		}
		st.Scanned++

		thumbKey := gallery.ThumbnailKey(key)
		if !cfg.Overwrite {
			exists, err := store.Exists(thumbKey)
			if err != nil {
				return fmt.Errorf("check %s: %w", thumbKey, err)
			}
			if exists {
				return nil
			}
		}
		st.Missing++

		if cfg.DryRun {
			logger.Info("would generate thumbnail", "image_key", key, "thumbnail_key", thumbKey)
			return nil
		}

		data, err := readAll(ctx, store, key)
		if err != nil {
			st.Failed++
			logger.Error("read image failed", "image_key", key, "err", err)
			return nil
		}
		if _, err := gal.SaveThumbnail(ctx, key, data); err != nil {
			st.Failed++
			logger.Error("generate thumbnail failed", "image_key", key, "err", err)
			return nil
		}
		st.Generated++
		logger.Info("generated thumbnail", "image_key", key, "thumbnail_key", thumbKey)
		return nil
	})
	return st, err
}

func readAll(ctx context.Context, store storage.Store, key string) ([]byte, error) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func loadConfig() (config, error) {
	cfg := config{
		OutputDir: getenv("OUTPUT_DIR", "./data/gallery"),
		DryRun:    true, // Default to dry-run for safety
	}

	width, err := parsePositiveInt(getenv("THUMB_WIDTH", "512"), "THUMB_WIDTH")
	if err != nil {
		return config{}, err
	}
	height, err := parsePositiveInt(getenv("THUMB_HEIGHT", "512"), "THUMB_HEIGHT")
	if err != nil {
		return config{}, err
	}
	cfg.ThumbWidth = width
	cfg.ThumbHeight = height

	flag.StringVar(&cfg.OutputDir, "dir", cfg.OutputDir, "Gallery directory to scan")
	flag.IntVar(&cfg.Limit, "limit", 0, "Maximum number of thumbnails to generate (0 = unlimited)")
	flag.BoolVar(&cfg.Overwrite, "overwrite", false, "Regenerate thumbnails that already exist")

	var execute bool
	flag.BoolVar(&execute, "execute", false, "Actually write thumbnails (disables dry-run)")
	flag.Parse()

	// If --execute is specified, disable dry-run
	if execute {
		cfg.DryRun = false
	}
	return cfg, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
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
