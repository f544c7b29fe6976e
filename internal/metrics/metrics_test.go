package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ota-client/internal/domain/firmware"
	"github.com/oshokin/ota-client/internal/service/updater"
)

// scrape returns the exposition text of the collector.
func scrape(t *testing.T, c *Collector) string {
	t.Helper()

	recorder := httptest.NewRecorder()
	c.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, recorder.Code)

	return recorder.Body.String()
}

// TestObserve_CountsOutcomes records states, failures and the staged size.
func TestObserve_CountsOutcomes(t *testing.T) {
	t.Parallel()

	c := New()
	started := time.Unix(1_700_000_000, 0)

	c.Observe(&updater.Report{
		State:      updater.StateInstalled,
		Artifact:   &firmware.StagedArtifact{Path: "/tmp/image", ByteLength: 4096},
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
	})

	err := firmware.NewServiceError(http.StatusServiceUnavailable)
	c.Observe(&updater.Report{
		State:       updater.StateFailed,
		Err:         err,
		FailureKind: firmware.KindOf(err).String(),
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
	})
	c.Observe(nil)

	body := scrape(t, c)
	require.Contains(t, body, `ota_client_runs_total{outcome="installed"} 1`)
	require.Contains(t, body, `ota_client_runs_total{outcome="failed"} 1`)
	require.Contains(t, body, `ota_client_failures_total{kind="service_error",stage="resolve"} 1`)
	require.Contains(t, body, `ota_client_staged_bytes 4096`)
	require.Contains(t, body, `ota_client_last_run_duration_seconds 1`)
	require.Contains(t, body, `ota_client_last_run_success 0`)
}

// TestServe_ExposesMetricsUntilCanceled serves /metrics and stops with the context.
func TestServe_ExposesMetricsUntilCanceled(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	c := New()
	c.Observe(&updater.Report{State: updater.StateUpToDate})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- c.serve(ctx, listener)
	}()

	var body []byte

	require.Eventually(t, func() bool {
		response, getErr := http.Get("http://" + listener.Addr().String() + "/metrics") //nolint:noctx // Test.
		if getErr != nil {
			return false
		}

		defer func() {
			_ = response.Body.Close()
		}()

		body, getErr = io.ReadAll(response.Body)

		return getErr == nil && response.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	require.Contains(t, string(body), `ota_client_runs_total{outcome="up_to_date"} 1`)

	cancel()

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.Fail(t, "metrics server did not stop")
	}

	require.False(t, errors.Is(err, http.ErrServerClosed))
}
