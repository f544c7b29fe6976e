package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/ota-client/internal/config"
	"github.com/oshokin/ota-client/internal/service/updater"
)

// Repository defines persistence operations for the last run report.
type Repository interface {
	Load(ctx context.Context) (*updater.Report, error)
	Save(ctx context.Context, report *updater.Report) error
}

// FileRepository persists the last report to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

var (
	// ErrNotFound is returned when the state file does not exist yet.
	ErrNotFound = errors.New("state not found")
	// errNilReport is returned when Save gets nothing to store.
	errNilReport = errors.New("report is nil")
)

// NewFileRepository creates a repository that reads and writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load reads the last report from disk.
func (r *FileRepository) Load(_ context.Context) (*updater.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read state file: %w", err)
	}

	var report updater.Report
	if err = yaml.Unmarshal(contents, &report); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}

	return &report, nil
}

// Save replaces the state file with report. The file is written next to the
// target and renamed so a crash never leaves a truncated state.
func (r *FileRepository) Save(_ context.Context, report *updater.Report) error {
	if report == nil {
		return errNilReport
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "" {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state directory: %w", err)
		}
	}

	temporary := r.path + ".tmp"
	if err = os.WriteFile(temporary, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	if err = os.Rename(temporary, r.path); err != nil {
		_ = os.Remove(temporary)
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}
