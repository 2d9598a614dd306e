// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-imagegen/internal/storage"
)

type Config struct {
	HTTPAddr string

	GeminiAPIKey      string
	GeminiModel       string
	GenerationTimeout time.Duration

	StorageBackend string
	OutputDir      string
	S3             storage.S3Config

	ThumbWidth      int
	ThumbHeight     int
	ReferenceMaxDim int
	MaxUploadBytes  int64

	CORSAllowedOrigins []string

	NATSURL            string
	NATSHandlerTimeout time.Duration
	SubjectJobSubmit   string
	SubjectJobEvents   string
}

// Load reads the configuration. Call godotenv.Load first to pick up a .env file.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		GeminiAPIKey:   getenv("GEMINI_API_KEY", getenv("API_KEY", "")),
		GeminiModel:    getenv("GEMINI_MODEL", ""),
		StorageBackend: strings.ToLower(getenv("STORAGE_BACKEND", "file")),
		OutputDir:      getenv("OUTPUT_DIR", "./data/gallery"),
		S3: storage.S3Config{
			Bucket:       getenv("AWS_S3_BUCKET", ""),
			Region:       getenv("AWS_S3_REGION", "us-east-1"),
			AccessKey:    getenv("AWS_ACCESS_KEY_ID", ""),
			SecretKey:    getenv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:     getenv("AWS_S3_ENDPOINT", ""),
			UsePathStyle: getenvBool("AWS_S3_USE_PATH_STYLE", false),
			Prefix:       getenv("AWS_S3_PREFIX", ""),
		},
		CORSAllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),
		NATSURL:            getenv("NATS_URL", ""),
		SubjectJobSubmit:   getenv("SUBJECT_JOB_SUBMIT", "imagegen.jobs.submit"),
		SubjectJobEvents:   getenv("SUBJECT_JOB_EVENTS", "imagegen.jobs.events"),
	}

	switch cfg.StorageBackend {
	case "file", "memory":
	case "s3":
		if cfg.S3.Bucket == "" {
			return Config{}, fmt.Errorf("AWS_S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORAGE_BACKEND %q (want file, s3 or memory)", cfg.StorageBackend)
	}

	timeout, err := parseDuration(getenv("GENERATION_TIMEOUT", "2m"), "GENERATION_TIMEOUT")
	if err != nil {
		return Config{}, err
	}
	cfg.GenerationTimeout = timeout

	handlerTimeout, err := parseDuration(getenv("NATS_HANDLER_TIMEOUT", "30s"), "NATS_HANDLER_TIMEOUT")
	if err != nil {
		return Config{}, err
	}
	cfg.NATSHandlerTimeout = handlerTimeout

	width, err := parsePositiveInt(getenv("THUMB_WIDTH", "512"), "THUMB_WIDTH")
	if err != nil {
		return Config{}, err
	}
	cfg.ThumbWidth = width

	height, err := parsePositiveInt(getenv("THUMB_HEIGHT", "512"), "THUMB_HEIGHT")
	if err != nil {
		return Config{}, err
	}
	cfg.ThumbHeight = height

	maxDim, err := parsePositiveInt(getenv("REFERENCE_MAX_DIM", "1536"), "REFERENCE_MAX_DIM")
	if err != nil {
		return Config{}, err
	}
	cfg.ReferenceMaxDim = maxDim

	maxUpload, err := parsePositiveInt(getenv("MAX_UPLOAD_BYTES", strconv.Itoa(32<<20)), "MAX_UPLOAD_BYTES")
	if err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

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

// parseDuration accepts Go durations ("90s") or a bare number of seconds.
func parseDuration(value string, name string) (time.Duration, error) {
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("%s must not be negative (got %d)", name, secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative (got %s)", name, d)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvBool(key string, defaultValue bool) bool {
	val := getenv(key, "")
	if val == "" {
		return defaultValue
	}
	return val == "true"
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
