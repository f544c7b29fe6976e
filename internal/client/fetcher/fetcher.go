// Package fetcher downloads firmware images to a local staging path.
//
// The body is streamed into a sibling ".part" file which is synced, closed
// and renamed over the destination, so a reader of the destination either
// sees the previous file or the complete new one.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/oshokin/ota-client/internal/client/transport"
	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/logger"
	"github.com/oshokin/ota-client/internal/version"
)

const (
	// PartialSuffix is appended to the destination while the download is in flight.
	PartialSuffix = ".part"

	// stagingFileMode is the mode of staged images.
	stagingFileMode os.FileMode = 0o644
	// stagingDirMode is the mode of a staging directory created on demand.
	stagingDirMode os.FileMode = 0o755
)

// Fetcher performs one download per call without retries.
type Fetcher struct {
	// httpClient downloads the image.
	httpClient *http.Client
	// timeout bounds the whole download.
	timeout time.Duration
}

// Option configures the fetcher.
type Option func(*Fetcher)

// WithTimeout sets the deadline for one download.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// New creates a fetcher with config defaults.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: transport.NewHTTPClient(config.DefaultConnectTimeout),
		timeout:    config.DefaultFetchTimeout,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch streams url into destination, overwriting it.
// Content type and size are not checked; the verifier decides what the bytes are worth.
func (f *Fetcher) Fetch(ctx context.Context, url, destination string) (firmware.StagedArtifact, error) {
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return firmware.StagedArtifact{}, networkFailure(err)
	}

	req.Header.Set("User-Agent", version.UserAgent())

	logger.InfoKV(ctx, "Downloading firmware image", "url", url, "destination", destination)

	response, err := f.httpClient.Do(req)
	if err != nil {
		return firmware.StagedArtifact{}, networkFailure(err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return firmware.StagedArtifact{}, &firmware.Error{
			Stage:      firmware.StageFetch,
			Kind:       firmware.KindNetworkFailure,
			StatusCode: response.StatusCode,
			Err:        fmt.Errorf("download %s: %s", url, response.Status),
		}
	}

	written, err := stage(response.Body, destination)
	if err != nil {
		return firmware.StagedArtifact{}, err
	}

	logger.InfoKV(ctx, "Firmware image staged", "path", destination, "bytes", written)

	return firmware.StagedArtifact{
		Path:       destination,
		ByteLength: written,
	}, nil
}

// stage copies body to destination through a synced partial file.
func stage(body io.Reader, destination string) (int64, error) {
	destination = filepath.Clean(destination)

	if err := os.MkdirAll(filepath.Dir(destination), stagingDirMode); err != nil {
		return 0, writeFailure(fmt.Errorf("create staging directory: %w", err))
	}

	partialPath := destination + PartialSuffix

	file, err := os.OpenFile(partialPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, stagingFileMode)
	if err != nil {
		return 0, writeFailure(fmt.Errorf("open staging file: %w", err))
	}

	// From here on any failure leaves no partial file behind.
	committed := false

	defer func() {
		if !committed {
			_ = file.Close()
			_ = os.Remove(partialPath)
		}
	}()

	sink := &trackingWriter{w: file}

	written, err := io.Copy(sink, body)
	if err != nil {
		if sink.err != nil {
			return written, writeFailure(fmt.Errorf("write staging file: %w", sink.err))
		}

		return written, networkFailure(fmt.Errorf("read response body: %w", err))
	}

	if err = file.Sync(); err != nil {
		return written, writeFailure(fmt.Errorf("sync staging file: %w", err))
	}

	if err = file.Close(); err != nil {
		return written, writeFailure(fmt.Errorf("close staging file: %w", err))
	}

	if err = os.Rename(partialPath, destination); err != nil {
		_ = os.Remove(partialPath)
		committed = true

		return written, writeFailure(fmt.Errorf("move staging file into place: %w", err))
	}

	committed = true

	return written, nil
}

// trackingWriter remembers write errors so io.Copy failures can be attributed
// to the local disk rather than the network.
type trackingWriter struct {
	w   io.Writer
	err error
}

// Write implements io.Writer.
func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}

	return n, err
}

func networkFailure(cause error) error {
	return firmware.NewError(firmware.StageFetch, firmware.KindNetworkFailure, cause)
}

func writeFailure(cause error) error {
	return firmware.NewError(firmware.StageFetch, firmware.KindWriteFailure, cause)
}
