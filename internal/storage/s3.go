package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config holds the settings for an S3 or MinIO bucket.
type S3Config struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	Endpoint     string
	UsePathStyle bool
	Prefix       string
}

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store persists objects in an S3-compatible bucket.
type S3Store struct {
	client s3API
	bucket string
	prefix string
	log    *slog.Logger
}

// NewS3Store builds an S3 client from cfg. Static credentials are used when
// both keys are set, otherwise the default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg S3Config, log *slog.Logger) (*S3Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage: s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	log.Info("s3 storage initialized",
		slog.String("bucket", cfg.Bucket),
		slog.String("region", cfg.Region),
		slog.String("endpoint", cfg.Endpoint),
	)
	return newS3Store(client, cfg.Bucket, cfg.Prefix, log), nil
}

func newS3Store(client s3API, bucket, prefix string, log *slog.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}
}

func (s *S3Store) Name() string { return "s3" }

func (s *S3Store) objectKey(key string) (string, string, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	if s.prefix == "" {
		return cleanKey, cleanKey, nil
	}
	return cleanKey, s.prefix + "/" + cleanKey, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	cleanKey, objectKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.log.Error("failed to upload object", slog.String("key", objectKey), slog.String("error", err.Error()))
		return "", fmt.Errorf("storage: put object: %w", err)
	}
	return cleanKey, nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_, objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("storage: get object: %w", err)
	}
	return out.Body, nil
}
