package integrity

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultDigestCommand is used by CommandComputer when no command is configured.
const DefaultDigestCommand = "sha256sum"

var (
	// errEmptyDigestOutput is returned when the digest command prints nothing.
	errEmptyDigestOutput = errors.New("digest command produced no output")
	// errNotSHA256 is returned when a computed digest is not 64 hex characters.
	errNotSHA256 = errors.New("digest is not a sha256 hex string")
)

// DigestComputer produces the lowercase hex SHA-256 of a file's contents.
type DigestComputer interface {
	Digest(ctx context.Context, path string) (string, error)
}

// SHA256Computer hashes the file in-process.
type SHA256Computer struct{}

// Digest implements DigestComputer.
func (SHA256Computer) Digest(ctx context.Context, path string) (string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err = io.Copy(hasher, &contextReader{ctx: ctx, r: bufio.NewReader(file)}); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// CommandComputer delegates hashing to an external program such as sha256sum.
type CommandComputer struct {
	// Command is the program and its leading arguments; the path is appended.
	Command []string
}

// NewCommandComputer returns a computer running command, or sha256sum when command is empty.
func NewCommandComputer(command []string) *CommandComputer {
	if len(command) == 0 {
		command = []string{DefaultDigestCommand}
	}

	return &CommandComputer{Command: command}
}

// Digest implements DigestComputer. The digest is the first
// whitespace-delimited token of the command's standard output.
func (c *CommandComputer) Digest(ctx context.Context, path string) (string, error) {
	command := c.Command
	if len(command) == 0 {
		command = []string{DefaultDigestCommand}
	}

	args := append(append([]string{}, command[1:]...), path)

	var stdout, stderr bytes.Buffer

	//nolint:gosec // The command comes from the operator's configuration.
	cmd := exec.CommandContext(ctx, command[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %s: %w: %s", command[0], err, strings.TrimSpace(stderr.String()))
	}

	fields := strings.Fields(stdout.String())
	if len(fields) == 0 {
		return "", errEmptyDigestOutput
	}

	return strings.ToLower(fields[0]), nil
}

// New returns the computer matching a configured command: in-process when empty.
func New(command []string) DigestComputer {
	if len(command) == 0 {
		return SHA256Computer{}
	}

	return NewCommandComputer(command)
}

// contextReader stops a long read once ctx is done.
type contextReader struct {
	ctx context.Context //nolint:containedctx // Scoped to a single io.Copy.
	r   io.Reader
}

// Read implements io.Reader.
func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
