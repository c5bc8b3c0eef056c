package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testS3Config(endpoint string) S3Config {
	return S3Config{
		Bucket:          "narrations",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}
}

func TestNewS3Storage(t *testing.T) {
	storage, err := NewS3Storage(context.Background(), t.TempDir(), testS3Config("http://localhost:4566/"))
	require.NoError(t, err)

	assert.Equal(t, "narrations", storage.bucket)
	assert.Equal(t, "us-east-1", storage.region)
	assert.Equal(t, "http://localhost:4566", storage.endpoint)
}

func TestS3Storage_InheritsLocalStorage(t *testing.T) {
	storage, err := NewS3Storage(context.Background(), t.TempDir(), testS3Config("http://localhost:4566"))
	require.NoError(t, err)

	ctx := context.Background()
	path, err := storage.SaveTemp(ctx, "segment", "mp3", strings.NewReader("test data"))
	require.NoError(t, err)

	reader, err := storage.Open(ctx, path)
	require.NoError(t, err)
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	_ = reader.Close()
	assert.Equal(t, "test data", string(content))

	require.NoError(t, storage.Remove(ctx, path))
}

func TestS3Storage_Upload_MockServer(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	storage, err := NewS3Storage(context.Background(), t.TempDir(), testS3Config(server.URL))
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "book.mp3")
	require.NoError(t, os.WriteFile(src, []byte("narration"), 0600))

	t.Run("default bucket", func(t *testing.T) {
		url, err := storage.Upload(context.Background(), Location{Key: "books/book.mp3"}, src)
		require.NoError(t, err)

		assert.Equal(t, "/narrations/books/book.mp3", gotPath)
		assert.Equal(t, "narration", gotBody)
		assert.Equal(t, server.URL+"/narrations/books/book.mp3", url)
	})

	t.Run("explicit bucket", func(t *testing.T) {
		url, err := storage.Upload(context.Background(), Location{Bucket: "other", Key: "a.mp3"}, src)
		require.NoError(t, err)

		assert.Equal(t, "/other/a.mp3", gotPath)
		assert.Equal(t, server.URL+"/other/a.mp3", url)
	})

	t.Run("missing source file", func(t *testing.T) {
		_, err := storage.Upload(context.Background(), Location{Key: "a.mp3"}, filepath.Join(t.TempDir(), "nope.mp3"))
		assert.Error(t, err)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := storage.Upload(context.Background(), Location{}, src)
		assert.ErrorIs(t, err, ErrInvalidLocation)
	})
}

func TestS3Storage_ObjectURL_AWS(t *testing.T) {
	s := &S3Storage{bucket: "b", region: "eu-west-1"}
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com/k.mp3", s.objectURL(Location{Bucket: "b", Key: "k.mp3"}))
}

func TestS3Storage_Upload_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	storage, err := NewS3Storage(context.Background(), t.TempDir(), testS3Config(server.URL))
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "book.mp3")
	require.NoError(t, os.WriteFile(src, []byte("narration"), 0600))

	_, err = storage.Upload(context.Background(), Location{Key: "book.mp3"}, src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload to S3")
}
