// Package resolver queries the update service for the firmware descriptor
// matching a device identity and its running version.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oshokin/ota-client/internal/client/transport"
	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/logger"
	"github.com/oshokin/ota-client/internal/version"
)

const (
	// HeaderDeviceUID carries the canonical device UUID.
	HeaderDeviceUID = "Device-Uid"
	// HeaderCurrentVersion carries the running firmware version.
	HeaderCurrentVersion = "Current-Version"

	// maxDescriptorBytes caps the response body; a descriptor is three short strings.
	maxDescriptorBytes = 64 << 10
)

var errTrailingData = errors.New("unexpected data after descriptor")

// Resolver performs one descriptor query per call. It never retries or caches.
type Resolver struct {
	// httpClient sends the query.
	httpClient *http.Client
	// timeout bounds the whole request including the body read.
	timeout time.Duration
}

// Option configures the resolver.
type Option func(*Resolver)

// WithTimeout sets the deadline for one query.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// New creates a resolver with config defaults.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		httpClient: transport.NewHTTPClient(config.DefaultConnectTimeout),
		timeout:    config.DefaultResolveTimeout,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve asks endpoint for the current descriptor of the device.
func (r *Resolver) Resolve(
	ctx context.Context,
	identity firmware.DeviceIdentity,
	currentVersion string,
	endpoint string,
) (*firmware.Descriptor, error) {
	if identity.IsZero() {
		return nil, firmware.NewError(firmware.StageIdentity, firmware.KindInvalidIdentity, nil)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, firmware.NewError(firmware.StageResolve, firmware.KindNetworkFailure, err)
	}

	req.Header.Set(HeaderDeviceUID, identity.String())
	req.Header.Set(HeaderCurrentVersion, currentVersion)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	logger.DebugKV(ctx, "Querying update service", "endpoint", endpoint, "current_version", currentVersion)

	response, err := r.httpClient.Do(req)
	if err != nil {
		return nil, firmware.NewError(firmware.StageResolve, firmware.KindNetworkFailure, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		// Drain a little so the error page does not linger on the socket.
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxDescriptorBytes))

		return nil, firmware.NewServiceError(response.StatusCode)
	}

	descriptor, err := decodeDescriptor(io.LimitReader(response.Body, maxDescriptorBytes))
	if err != nil {
		return nil, err
	}

	logger.InfoKV(ctx, "Descriptor received",
		"version", descriptor.Version, "sha256", descriptor.ContentHash, "url", descriptor.ArtifactURL)

	return descriptor, nil
}

// decodeDescriptor accepts exactly one JSON object with exactly the three descriptor fields.
func decodeDescriptor(body io.Reader) (*firmware.Descriptor, error) {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	var descriptor firmware.Descriptor
	if err := decoder.Decode(&descriptor); err != nil {
		return nil, malformed(fmt.Errorf("decode descriptor: %w", err))
	}

	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, malformed(errTrailingData)
	}

	if err := descriptor.Validate(); err != nil {
		return nil, malformed(err)
	}

	return &descriptor, nil
}

func malformed(cause error) error {
	return firmware.NewError(firmware.StageResolve, firmware.KindMalformedResponse, cause)
}
