package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/ota-client/internal/domain/firmware"
)

// CleanupPolicy decides what happens to the staged image at the end of a run.
type CleanupPolicy string

const (
	// CleanupOnSuccess removes the image after Installed or UpToDate and keeps it
	// after a failure or mismatch so it can be inspected.
	CleanupOnSuccess CleanupPolicy = "on-success"
	// CleanupAlways removes the image at the end of every run.
	CleanupAlways CleanupPolicy = "always"
	// CleanupNever leaves the image on disk.
	CleanupNever CleanupPolicy = "never"
)

// Config holds everything the OTA client needs to run the update pipeline.
type Config struct {
	// DeviceID is the canonical UUID of this device.
	DeviceID string `yaml:"device_id"`
	// CurrentVersion is the running firmware version, used when VersionFile is empty.
	CurrentVersion string `yaml:"current_version,omitempty"`
	// VersionFile is read on every run to obtain the running firmware version.
	VersionFile string `yaml:"version_file,omitempty"`
	// Endpoint is the update service URL queried for the firmware descriptor.
	Endpoint string `yaml:"endpoint"`
	// StagingPath is where the downloaded image is written.
	StagingPath string `yaml:"staging_path"`
	// Cleanup is the staged image retention policy.
	Cleanup CleanupPolicy `yaml:"cleanup"`
	// ConnectTimeout bounds TCP connection establishment for both HTTP calls.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// ResolveTimeout bounds the whole descriptor query.
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`
	// FetchTimeout bounds the whole artifact download.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// Digest selects how the image digest is computed.
	Digest DigestConfig `yaml:"digest"`
	// Installer selects how a verified image is installed.
	Installer InstallerConfig `yaml:"installer"`
	// Daemon configures the periodic mode.
	Daemon DaemonConfig `yaml:"daemon"`
	// MQTT configures the optional firmware-pull trigger.
	MQTT MQTTConfig `yaml:"mqtt"`
	// Log configures logging.
	Log LogConfig `yaml:"log"`
}

// DigestConfig selects the digest computer.
type DigestConfig struct {
	// Command, when set, is run with the staged path appended; the first
	// whitespace-delimited token of its output is the digest. Empty means
	// the digest is computed in-process.
	Command []string `yaml:"command,omitempty"`
}

// InstallerConfig selects the installer.
type InstallerConfig struct {
	// Command is run with the staged path appended as its sole argument.
	Command []string `yaml:"command,omitempty"`
	// Target, when set instead of Command, is a file atomically replaced by the image.
	Target string `yaml:"target,omitempty"`
	// Timeout bounds the installation procedure.
	Timeout time.Duration `yaml:"timeout"`
	// RebootCommand is started after a successful installation.
	RebootCommand []string `yaml:"reboot_command,omitempty"`
}

// DaemonConfig configures periodic checks.
type DaemonConfig struct {
	// InitialDelay is waited before the first check to let the network come up.
	InitialDelay time.Duration `yaml:"initial_delay"`
	// Interval is the average time between checks.
	Interval time.Duration `yaml:"interval"`
	// JitterPercent spreads checks by ± this share of Interval.
	JitterPercent int `yaml:"jitter_percent"`
	// MetricsAddress serves Prometheus metrics when set.
	MetricsAddress string `yaml:"metrics_address,omitempty"`
	// HealthAddress serves the gRPC health service when set.
	HealthAddress string `yaml:"health_address,omitempty"`
	// StateFile is where the last run report is persisted.
	StateFile string `yaml:"state_file"`
}

// MQTTConfig configures the firmware-pull subscription. Empty Brokers disables it.
type MQTTConfig struct {
	Brokers     []string      `yaml:"brokers,omitempty"`
	ClientID    string        `yaml:"client_id,omitempty"`
	Username    string        `yaml:"username,omitempty"`
	Password    string        `yaml:"password,omitempty"`
	TopicPrefix string        `yaml:"topic_prefix,omitempty"`
	KeepAlive   time.Duration `yaml:"keep_alive,omitempty"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level      string `yaml:"level,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
	Compress   bool   `yaml:"compress,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for client settings.
	DefaultConfigFilename = "ota-client.yaml"

	// DefaultStagingPath is where images are staged unless configured.
	DefaultStagingPath = "/upgrade_data/ota/image"

	// DefaultStateFilename is the default daemon state file.
	DefaultStateFilename = "ota-client-state.yaml"

	// DefaultConnectTimeout matches the connection timeout devices have always used.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultResolveTimeout bounds a descriptor query.
	DefaultResolveTimeout = 30 * time.Second

	// DefaultFetchTimeout bounds an image download.
	DefaultFetchTimeout = 30 * time.Minute

	// DefaultInstallTimeout bounds the installer.
	DefaultInstallTimeout = 15 * time.Minute

	// DefaultInitialDelay gives the network time to come up after boot.
	DefaultInitialDelay = 60 * time.Second

	// DefaultInterval is the average time between checks in daemon mode.
	DefaultInterval = time.Hour

	// DefaultJitterPercent spreads the fleet's checks.
	DefaultJitterPercent = 15

	// DefaultTopicPrefix is the MQTT topic prefix for firmware-pull messages.
	DefaultTopicPrefix = "ota"

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	maxJitterPercent = 100
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errEndpointRequired is returned when the update service URL is missing.
	errEndpointRequired = errors.New("endpoint must be provided")
	// errVersionRequired is returned when neither version source is configured.
	errVersionRequired = errors.New("current_version or version_file must be provided")
	// errInstallerRequired is returned when no installer is configured.
	errInstallerRequired = errors.New("installer.command or installer.target must be provided")
	// errInstallerAmbiguous is returned when both installers are configured.
	errInstallerAmbiguous = errors.New("installer.command and installer.target are mutually exclusive")
	// errUnknownCleanup is returned for an unsupported cleanup policy.
	errUnknownCleanup = errors.New("unknown cleanup policy")
	// errBadJitter is returned for jitter outside 0..100.
	errBadJitter = errors.New("jitter_percent must be between 0 and 100")
	// errEmptyVersionFile is returned when the version file holds no version.
	errEmptyVersionFile = errors.New("version file is empty")
	// errUnsupportedScheme is returned for non-HTTP endpoints.
	errUnsupportedScheme = errors.New("endpoint scheme must be http or https")
)

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions: the file may hold MQTT credentials.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills defaults in place.
//
//nolint:cyclop // A flat list of independent checks reads better than helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if _, err := firmware.ParseDeviceIdentity(cfg.DeviceID); err != nil {
		return fmt.Errorf("invalid device_id: %w", err)
	}

	if err := validateEndpoint(cfg.Endpoint); err != nil {
		return err
	}

	if cfg.CurrentVersion == "" && cfg.VersionFile == "" {
		return errVersionRequired
	}

	if len(cfg.Installer.Command) == 0 && cfg.Installer.Target == "" {
		return errInstallerRequired
	}

	if len(cfg.Installer.Command) > 0 && cfg.Installer.Target != "" {
		return errInstallerAmbiguous
	}

	switch cfg.Cleanup {
	case "":
		cfg.Cleanup = CleanupOnSuccess
	case CleanupOnSuccess, CleanupAlways, CleanupNever:
	default:
		return fmt.Errorf("%q: %w", cfg.Cleanup, errUnknownCleanup)
	}

	if cfg.Daemon.JitterPercent < 0 || cfg.Daemon.JitterPercent > maxJitterPercent {
		return errBadJitter
	}

	for _, address := range []string{cfg.Daemon.MetricsAddress, cfg.Daemon.HealthAddress} {
		if address == "" {
			continue
		}

		if _, _, err := net.SplitHostPort(address); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", address, err)
		}
	}

	applyDefaults(cfg)

	return nil
}

// applyDefaults fills zero values with package defaults.
func applyDefaults(cfg *Config) {
	if cfg.StagingPath == "" {
		cfg.StagingPath = DefaultStagingPath
	}

	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = DefaultResolveTimeout
	}

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	if cfg.Installer.Timeout <= 0 {
		cfg.Installer.Timeout = DefaultInstallTimeout
	}

	if cfg.Daemon.InitialDelay < 0 {
		cfg.Daemon.InitialDelay = 0
	}

	if cfg.Daemon.Interval <= 0 {
		cfg.Daemon.Interval = DefaultInterval
	}

	if cfg.Daemon.JitterPercent == 0 {
		cfg.Daemon.JitterPercent = DefaultJitterPercent
	}

	if cfg.Daemon.StateFile == "" {
		cfg.Daemon.StateFile = DefaultStateFilename
	}

	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
}

// validateEndpoint requires an absolute http(s) URL.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return errEndpointRequired
	}

	parsed, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%q: %w", endpoint, errUnsupportedScheme)
	}

	return nil
}

// Identity returns the parsed device identity. Validate must have succeeded.
func (c *Config) Identity() firmware.DeviceIdentity {
	return firmware.MustParseDeviceIdentity(c.DeviceID)
}

// ResolveCurrentVersion returns the running firmware version. The version
// file wins over the static value so a completed install is picked up
// without restarting the daemon.
func (c *Config) ResolveCurrentVersion() (string, error) {
	if c.VersionFile == "" {
		return c.CurrentVersion, nil
	}

	contents, err := os.ReadFile(filepath.Clean(c.VersionFile))
	if err != nil {
		return "", fmt.Errorf("read version file: %w", err)
	}

	current := strings.TrimSpace(string(contents))
	if current == "" {
		return "", fmt.Errorf("%s: %w", c.VersionFile, errEmptyVersionFile)
	}

	return current, nil
}
