package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HTTP_ADDR", "GEMINI_API_KEY", "API_KEY", "GEMINI_MODEL", "GENERATION_TIMEOUT",
		"STORAGE_BACKEND", "OUTPUT_DIR", "AWS_S3_BUCKET", "AWS_S3_USE_PATH_STYLE",
		"THUMB_WIDTH", "THUMB_HEIGHT", "REFERENCE_MAX_DIM", "MAX_UPLOAD_BYTES",
		"CORS_ALLOWED_ORIGINS", "NATS_URL", "NATS_HANDLER_TIMEOUT", "SUBJECT_JOB_SUBMIT", "SUBJECT_JOB_EVENTS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected HTTP addr: %s", cfg.HTTPAddr)
	}
	if cfg.StorageBackend != "file" || cfg.OutputDir != "./data/gallery" {
		t.Fatalf("unexpected storage: %s %s", cfg.StorageBackend, cfg.OutputDir)
	}
	if cfg.GenerationTimeout != 2*time.Minute {
		t.Fatalf("unexpected timeout: %s", cfg.GenerationTimeout)
	}
	if cfg.ThumbWidth != 512 || cfg.ThumbHeight != 512 {
		t.Fatalf("unexpected thumb dimensions: %dx%d", cfg.ThumbWidth, cfg.ThumbHeight)
	}
	if cfg.MaxUploadBytes != 32<<20 {
		t.Fatalf("unexpected upload limit: %d", cfg.MaxUploadBytes)
	}
	if cfg.NATSURL != "" {
		t.Fatalf("NATS should be disabled by default, got %s", cfg.NATSURL)
	}
	if cfg.NATSHandlerTimeout != 30*time.Second {
		t.Fatalf("unexpected NATS handler timeout: %s", cfg.NATSHandlerTimeout)
	}
	if cfg.SubjectJobSubmit != "imagegen.jobs.submit" || cfg.SubjectJobEvents != "imagegen.jobs.events" {
		t.Fatalf("unexpected subjects: %s %s", cfg.SubjectJobSubmit, cfg.SubjectJobEvents)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Fatalf("unexpected CORS origins: %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadAPIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEY", "legacy")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GeminiAPIKey != "legacy" {
		t.Fatalf("expected fallback API key, got %q", cfg.GeminiAPIKey)
	}

	t.Setenv("GEMINI_API_KEY", "primary")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GeminiAPIKey != "primary" {
		t.Fatalf("expected GEMINI_API_KEY to win, got %q", cfg.GeminiAPIKey)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"THUMB_WIDTH", "not-a-number"},
		{"THUMB_HEIGHT", "0"},
		{"GENERATION_TIMEOUT", "soon"},
		{"GENERATION_TIMEOUT", "-5"},
		{"NATS_HANDLER_TIMEOUT", "later"},
		{"STORAGE_BACKEND", "ftp"},
		{"STORAGE_BACKEND", "s3"},
		{"MAX_UPLOAD_BYTES", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"90", 90 * time.Second},
		{"1m30s", 90 * time.Second},
		{"0", 0},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in, "X")
		if err != nil {
			t.Fatalf("parseDuration(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("parseDuration(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" http://a.test , ,http://b.test")
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Fatalf("unexpected list: %v", got)
	}
}
