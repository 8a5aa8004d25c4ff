// SPDX-License-Identifier: MPL-2.0

package npm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/shell"
)

// DefaultCommand is the package manager invoked when none is configured.
const DefaultCommand = "npm"

var (
	// ErrCommandFailed is the sentinel error wrapped by CommandError.
	ErrCommandFailed = errors.New("package manager command failed")
	// ErrInstallFailed marks a CommandError raised by Install.
	ErrInstallFailed = errors.New("dependency install failed")
	// ErrInvalidCommand is returned when the configured command line cannot be parsed.
	ErrInvalidCommand = errors.New("invalid package manager command")
)

type (
	// Tool invokes one package-manager executable.
	Tool struct {
		argv        []string
		installArgs []string
		logger      *log.Logger
	}

	// CommandError is returned when the package manager could not be started
	// or exited with a non-zero status.
	CommandError struct {
		// Command is the full command line that was run.
		Command string
		// Dir is the working directory of the subprocess ("" for the current one).
		Dir string
		// ExitCode is the process exit status, or -1 when it never ran.
		ExitCode int
		// Err is the underlying error from os/exec.
		Err error
		// kind is ErrInstallFailed for installs, nil otherwise.
		kind error
	}
)

// NewTool parses command ("npm", "corepack npm", "$HOME/bin/npm") into argv.
// Environment references are expanded using the process environment.
// A nil logger discards subprocess output.
func NewTool(command string, installArgs []string, logger *log.Logger) (*Tool, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	argv, err := shell.Fields(command, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidCommand, command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w %q: no executable", ErrInvalidCommand, command)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Tool{
		argv:        argv,
		installArgs: append([]string(nil), installArgs...),
		logger:      logger,
	}, nil
}

// Name returns the executable the tool runs.
func (t *Tool) Name() string { return t.argv[0] }

// Version runs "<tool> --version" and returns the first line of its stdout.
func (t *Tool) Version(ctx context.Context) (string, error) {
	var out bytes.Buffer
	if err := t.run(ctx, "", &out, "--version"); err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(out.String(), "\n")
	return strings.TrimSpace(line), nil
}

// Install runs "<tool> install --production" with dir as working directory.
// A non-zero exit is returned as a *CommandError that matches ErrInstallFailed.
func (t *Tool) Install(ctx context.Context, dir string) error {
	args := append([]string{"install", "--production"}, t.installArgs...)
	err := t.run(ctx, dir, nil, args...)
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		cmdErr.kind = ErrInstallFailed
	}
	return err
}

// run executes the tool and blocks until it exits. exec.Cmd.Wait returns only
// after the stdout/stderr copy goroutines are done, so every output line has
// been forwarded before the exit status is inspected.
func (t *Tool) run(ctx context.Context, dir string, capture io.Writer, args ...string) error {
	argv := append(append([]string(nil), t.argv[1:]...), args...)
	cmdline := strings.Join(append([]string{t.argv[0]}, argv...), " ")

	t.logger.Debug("spawn", "command", cmdline, "dir", dir)

	stdout := newLineWriter(t.logger, log.DebugLevel, t.argv[0])
	stderr := newLineWriter(t.logger, log.WarnLevel, t.argv[0])

	cmd := exec.CommandContext(ctx, t.argv[0], argv...)
	cmd.Dir = dir
	if capture != nil {
		cmd.Stdout = io.MultiWriter(capture, stdout)
	} else {
		cmd.Stdout = stdout
	}
	cmd.Stderr = stderr

	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if err == nil {
		return nil
	}

	cmdErr := &CommandError{Command: cmdline, Dir: dir, ExitCode: -1, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		cmdErr.ExitCode = exitErr.ExitCode()
	}
	return cmdErr
}

// Error implements the error interface for CommandError.
func (e *CommandError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("command %q failed: exit code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

// Unwrap exposes the sentinel errors and the os/exec cause.
func (e *CommandError) Unwrap() []error {
	errs := []error{ErrCommandFailed, e.Err}
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	return errs
}

// lineWriter forwards complete lines written by a subprocess to a logger.
type lineWriter struct {
	mu     sync.Mutex
	logger *log.Logger
	level  log.Level
	source string
	buf    []byte
}

func newLineWriter(logger *log.Logger, level log.Level, source string) *lineWriter {
	return &lineWriter{logger: logger, level: level, source: source}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing line that was not newline-terminated.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	text := strings.TrimRight(string(line), "\r")
	if strings.TrimSpace(text) == "" {
		return
	}
	w.logger.Log(w.level, w.source+": "+text)
}
