package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"images/a.png", "images/a.png", false},
		{"/images//a.png", "images/a.png", false},
		{"./images/a.png", "images/a.png", false},
		{"images\\a.png", "images/a.png", false},
		{"../etc/passwd", "", true},
		{"images/../../x", "", true},
		{"   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := sanitizeKey(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	key, err := store.Put(ctx, "/images/job-1/out.png", []byte("data"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "images/job-1/out.png", key)

	_, err = os.Stat(filepath.Join(dir, "images", "job-1", "out.png"))
	require.NoError(t, err)

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))

	ok, err := store.Exists(key)
	require.NoError(t, err)
	assert.True(t, ok)

	var keys []string
	require.NoError(t, store.Walk("images", func(k string) error {
		keys = append(keys, k)
		return nil
	}))
	assert.Equal(t, []string{"images/job-1/out.png"}, keys)
}

func TestFileStoreMissingObject(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "images/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Walk("thumbs", func(string) error {
		t.Fatal("walk over a missing prefix should visit nothing")
		return nil
	}))
}

func TestFileStoreRequiresBasePath(t *testing.T) {
	_, err := NewFileStore("  ")
	assert.Error(t, err)
}

func TestMemoryStoreCopiesData(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	data := []byte("abc")

	key, err := store.Put(ctx, "a/b", data, "")
	require.NoError(t, err)
	data[0] = 'z'

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, store.Len())

	_, err = store.Open(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeS3 struct {
	puts    map[string][]byte
	types   map[string]string
	missing bool
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.puts[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.puts[aws.ToString(in.Key)]
	if !ok || f.missing {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3StorePrefixesKeys(t *testing.T) {
	fake := &fakeS3{puts: map[string][]byte{}, types: map[string]string{}}
	store := newS3Store(fake, "bucket", "/generated/", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	key, err := store.Put(ctx, "images/a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "images/a.png", key)
	assert.Contains(t, fake.puts, "generated/images/a.png")
	assert.Equal(t, "image/png", fake.types["generated/images/a.png"])

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "png", string(got))

	_, err = store.Open(ctx, "images/b.png")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestOpenSelectsBackend(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	fs, err := Open(context.Background(), "file", t.TempDir(), S3Config{}, log)
	require.NoError(t, err)
	assert.Equal(t, "file", fs.Name())

	ms, err := Open(context.Background(), "memory", "", S3Config{}, log)
	require.NoError(t, err)
	assert.Equal(t, "memory", ms.Name())

	_, err = Open(context.Background(), "s3", "", S3Config{}, log)
	assert.Error(t, err)

	_, err = Open(context.Background(), "tape", "", S3Config{}, log)
	assert.Error(t, err)
}
