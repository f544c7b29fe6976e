package fetcher

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ota-client/internal/domain/firmware"
)

// TestFetch_StagesCompleteImage checks the body lands verbatim, overwriting an older file.
func TestFetch_StagesCompleteImage(t *testing.T) {
	t.Parallel()

	image := make([]byte, 256<<10)
	_, err := rand.Read(image)
	require.NoError(t, err)

	userAgent := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent <- r.Header.Get("User-Agent")

		_, _ = w.Write(image)
	}))
	t.Cleanup(server.Close)

	destination := filepath.Join(t.TempDir(), "ota", "image")
	require.NoError(t, os.MkdirAll(filepath.Dir(destination), 0o755))
	require.NoError(t, os.WriteFile(destination, []byte("previous image that is longer than nothing"), 0o644))

	artifact, err := New().Fetch(context.Background(), server.URL+"/fw.bin", destination)
	require.NoError(t, err)
	require.Equal(t, destination, artifact.Path)
	require.Equal(t, int64(len(image)), artifact.ByteLength)

	staged, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.True(t, bytes.Equal(image, staged))
	require.Contains(t, <-userAgent, "ota-client/")

	_, err = os.Stat(destination + PartialSuffix)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFetch_CreatesStagingDirectory ensures a missing parent directory is created.
func TestFetch_CreatesStagingDirectory(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("firmware"))
	}))
	t.Cleanup(server.Close)

	destination := filepath.Join(t.TempDir(), "a", "b", "image")

	artifact, err := New().Fetch(context.Background(), server.URL, destination)
	require.NoError(t, err)
	require.Equal(t, int64(len("firmware")), artifact.ByteLength)
}

// TestFetch_BadStatus reports non-success downloads as NetworkFailure and stages nothing.
func TestFetch_BadStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)

	destination := filepath.Join(t.TempDir(), "image")

	_, err := New().Fetch(context.Background(), server.URL+"/missing.bin", destination)
	require.ErrorIs(t, err, firmware.ErrNetworkFailure)

	var typed *firmware.Error
	require.True(t, errors.As(err, &typed))
	require.Equal(t, http.StatusNotFound, typed.StatusCode)
	require.Equal(t, firmware.StageFetch, typed.Stage)

	_, err = os.Stat(destination)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFetch_TruncatedBody keeps the previous image and removes the partial file.
func TestFetch_TruncatedBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1000")
		_, _ = w.Write([]byte("only a few bytes"))
	}))
	t.Cleanup(server.Close)

	destination := filepath.Join(t.TempDir(), "image")
	require.NoError(t, os.WriteFile(destination, []byte("old"), 0o644))

	_, err := New().Fetch(context.Background(), server.URL, destination)
	require.ErrorIs(t, err, firmware.ErrNetworkFailure)

	contents, err := os.ReadFile(destination)
	require.NoError(t, err)
	require.Equal(t, "old", string(contents))

	_, err = os.Stat(destination + PartialSuffix)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestFetch_WriteFailure reports local I/O errors as WriteFailure.
func TestFetch_WriteFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("firmware"))
	}))
	t.Cleanup(server.Close)

	// The parent of the destination is a regular file, so nothing can be created under it.
	blocker := filepath.Join(t.TempDir(), "not-a-directory")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := New().Fetch(context.Background(), server.URL, filepath.Join(blocker, "image"))
	require.ErrorIs(t, err, firmware.ErrWriteFailure)
	require.NotErrorIs(t, err, firmware.ErrNetworkFailure)
}

// TestFetch_NetworkFailure reports an unreachable host as NetworkFailure.
func TestFetch_NetworkFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New().Fetch(context.Background(), url, filepath.Join(t.TempDir(), "image"))
	require.ErrorIs(t, err, firmware.ErrNetworkFailure)
}
