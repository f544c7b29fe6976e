package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ota-client/internal/domain/firmware"
)

const (
	testDeviceID = "22222222-2222-2222-2222-222222222222"
	testHash     = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
)

// serve starts a test server answering every request with the given status and body.
func serve(t *testing.T, status int, body string, inspect func(*http.Request)) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server
}

// TestResolve_SendsMetadataAsHeaders verifies identity and version travel as headers, not body.
func TestResolve_SendsMetadataAsHeaders(t *testing.T) {
	t.Parallel()

	var got *http.Request

	body := `{"version":"v2.1","sha256":"` + testHash + `","url":"http://x/fw.bin"}`
	server := serve(t, http.StatusOK, body, func(r *http.Request) { got = r.Clone(context.Background()) })

	descriptor, err := New().Resolve(
		context.Background(),
		firmware.MustParseDeviceIdentity(testDeviceID),
		"v2.0",
		server.URL,
	)
	require.NoError(t, err)
	require.Equal(t, &firmware.Descriptor{
		Version:     "v2.1",
		ContentHash: testHash,
		ArtifactURL: "http://x/fw.bin",
	}, descriptor)

	require.NotNil(t, got)
	require.Equal(t, http.MethodGet, got.Method)
	require.Equal(t, testDeviceID, got.Header.Get(HeaderDeviceUID))
	require.Equal(t, "v2.0", got.Header.Get(HeaderCurrentVersion))
	require.Contains(t, got.Header.Get("User-Agent"), "ota-client/")
	require.Zero(t, got.ContentLength)
}

// TestResolve_ServiceError maps any non-success status to ServiceError with the code.
func TestResolve_ServiceError(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusServiceUnavailable, http.StatusNotFound, http.StatusInternalServerError} {
		server := serve(t, status, "unavailable", nil)

		_, err := New().Resolve(context.Background(), firmware.MustParseDeviceIdentity(testDeviceID), "v2.0", server.URL)
		require.ErrorIs(t, err, firmware.ErrServiceError)

		var typed *firmware.Error
		require.True(t, errors.As(err, &typed))
		require.Equal(t, status, typed.StatusCode)
		require.Equal(t, firmware.StageResolve, typed.Stage)
	}
}

// TestResolve_MalformedResponse covers bodies that do not decode into exactly three valid fields.
func TestResolve_MalformedResponse(t *testing.T) {
	t.Parallel()

	bodies := []string{
		``,
		`not json`,
		`{"version":"v2.1","sha256":"` + testHash + `"}`,
		`{"version":"v2.1","sha256":"` + testHash + `","url":"http://x/fw.bin","extra":1}`,
		`{"version":"v2.1","sha256":"abc","url":"http://x/fw.bin"}`,
		`{"version":"","sha256":"` + testHash + `","url":"http://x/fw.bin"}`,
		`{"version":2,"sha256":"` + testHash + `","url":"http://x/fw.bin"}`,
		`{"version":"v2.1","sha256":"` + testHash + `","url":"http://x/fw.bin"} {}`,
		`[]`,
	}

	for _, body := range bodies {
		server := serve(t, http.StatusOK, body, nil)

		_, err := New().Resolve(context.Background(), firmware.MustParseDeviceIdentity(testDeviceID), "v2.0", server.URL)
		require.ErrorIs(t, err, firmware.ErrMalformedResponse, body)
	}
}

// TestResolve_NetworkFailure reports transport errors and timeouts as NetworkFailure.
func TestResolve_NetworkFailure(t *testing.T) {
	t.Parallel()

	// Closed server.
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := New().Resolve(context.Background(), firmware.MustParseDeviceIdentity(testDeviceID), "v2.0", url)
	require.ErrorIs(t, err, firmware.ErrNetworkFailure)
	require.Equal(t, firmware.StageResolve, firmware.StageOf(err))

	// Slow server.
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	_, err = New(WithTimeout(50*time.Millisecond)).
		Resolve(context.Background(), firmware.MustParseDeviceIdentity(testDeviceID), "v2.0", slow.URL)
	require.ErrorIs(t, err, firmware.ErrNetworkFailure)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestResolve_ZeroIdentity rejects an identity that was never parsed.
func TestResolve_ZeroIdentity(t *testing.T) {
	t.Parallel()

	_, err := New().Resolve(context.Background(), firmware.DeviceIdentity{}, "v2.0", "http://127.0.0.1:1")
	require.ErrorIs(t, err, firmware.ErrInvalidIdentity)
}
