package integration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/domain/firmware"
)

const (
	testDeviceID   = "33333333-3333-3333-3333-333333333333"
	descriptorPath = "/firmware"
	imagePath      = "/fw.bin"
)

// updateService is an in-process stand-in for the update service and the image host.
type updateService struct {
	// server answers descriptor queries and image downloads.
	server *httptest.Server
	// descriptor is served as JSON when status is 200.
	descriptor firmware.Descriptor
	// image is the body of the download.
	image []byte
	// status of descriptor responses.
	status atomic.Int32
	// queries counts descriptor requests.
	queries atomic.Int32
	// downloads counts image requests.
	downloads atomic.Int32
}

// startUpdateService serves image under a descriptor announcing version.
// The announced hash is the digest of announced, which lets tests simulate tampered images.
func startUpdateService(t *testing.T, version string, image, announced []byte) *updateService {
	t.Helper()

	service := &updateService{
		image: image,
	}

	service.status.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc(descriptorPath, func(w http.ResponseWriter, _ *http.Request) {
		service.queries.Add(1)

		if status := int(service.status.Load()); status != http.StatusOK {
			http.Error(w, "unavailable", status)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(service.descriptor)
	})
	mux.HandleFunc(imagePath, func(w http.ResponseWriter, _ *http.Request) {
		service.downloads.Add(1)

		_, _ = w.Write(service.image)
	})

	service.server = httptest.NewServer(mux)
	t.Cleanup(service.server.Close)

	service.descriptor = firmware.Descriptor{
		Version:     version,
		ContentHash: digest(announced),
		ArtifactURL: service.server.URL + imagePath,
	}

	return service
}

// endpoint is the descriptor URL.
func (s *updateService) endpoint() string {
	return s.server.URL + descriptorPath
}

// digest returns the lowercase SHA-256 hex of data.
func digest(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

// writeConfig saves cfg to a temporary settings file and returns its path.
func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, config.Save(path, cfg))

	return path
}

// installerScript writes a shell installer that copies the staged image to
// copyPath, prints output and exits with code.
func installerScript(t *testing.T, copyPath, output string, code int) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell installers are not available on windows")
	}

	script := "#!/bin/sh\n"
	if copyPath != "" {
		script += "cp \"$1\" '" + copyPath + "'\n"
	}

	script += "echo '" + output + "'\n"
	script += "exit " + string(rune('0'+code)) + "\n"

	path := filepath.Join(t.TempDir(), "install.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755)) //nolint:gosec // Test installer must be executable.

	return path
}

// reservePort returns a free loopback address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	_ = l.Close()

	return addr
}
