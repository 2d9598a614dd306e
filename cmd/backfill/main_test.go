package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"testing"

	"github.com/tendant/simple-imagegen/internal/gallery"
	"github.com/tendant/simple-imagegen/internal/img"
	"github.com/tendant/simple-imagegen/internal/storage"
)

func writeImage(t *testing.T, store *storage.FileStore, key string) {
	t.Helper()
	m := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			m.Set(x, y, color.RGBA{R: 90, G: 160, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if _, err := store.Put(context.Background(), key, buf.Bytes(), "image/png"); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func newFixture(t *testing.T) (*storage.FileStore, *gallery.Gallery, *slog.Logger) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return store, gallery.New(store, img.ThumbnailSpec{Width: 16, Height: 16}, logger), logger
}

func TestBackfillGeneratesMissingThumbnails(t *testing.T) {
	store, gal, logger := newFixture(t)
	writeImage(t, store, "images/a/one.png")
	writeImage(t, store, "images/b/two.png")
	if _, err := store.Put(context.Background(), "thumbs/a/one.jpg", []byte("existing"), "image/jpeg"); err != nil {
		t.Fatalf("put thumb: %v", err)
	}

	st, err := backfill(context.Background(), store, gal, config{}, logger)
	if err != nil {
		t.Fatalf("backfill returned error: %v", err)
	}
	if st.Scanned != 2 || st.Missing != 1 || st.Generated != 1 || st.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	ok, err := store.Exists("thumbs/b/two.jpg")
	if err != nil || !ok {
		t.Fatalf("expected thumbnail for two.png (exists=%v err=%v)", ok, err)
	}
}

func TestBackfillDryRunWritesNothing(t *testing.T) {
	store, gal, logger := newFixture(t)
	writeImage(t, store, "images/a/one.png")

	st, err := backfill(context.Background(), store, gal, config{DryRun: true}, logger)
	if err != nil {
		t.Fatalf("backfill returned error: %v", err)
	}
	if st.Missing != 1 || st.Generated != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if ok, _ := store.Exists("thumbs/a/one.jpg"); ok {
		t.Fatal("dry run must not write thumbnails")
	}
}

func TestBackfillCountsUndecodableImages(t *testing.T) {
	store, gal, logger := newFixture(t)
	if _, err := store.Put(context.Background(), "images/a/broken.png", []byte("nope"), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}

	st, err := backfill(context.Background(), store, gal, config{}, logger)
	if err != nil {
		t.Fatalf("backfill returned error: %v", err)
	}
	if st.Failed != 1 {
		t.Fatalf("expected one failure, got %+v", st)
	}
}

func TestBackfillEmptyGallery(t *testing.T) {
	store, gal, logger := newFixture(t)
	st, err := backfill(context.Background(), store, gal, config{}, logger)
	if err != nil {
		t.Fatalf("backfill returned error: %v", err)
	}
	if st.Scanned != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}
