package transcript

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// commandRunner runs an external program and returns its stdout.
type commandRunner func(ctx context.Context, logger *slog.Logger, name string, args ...string) ([]byte, error)

// runCommand executes an external command and logs how it went. Stderr is
// folded into the returned error when the command exits non-zero.
func runCommand(ctx context.Context, logger *slog.Logger, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger = logger.With("command", name, "args", strings.Join(args, " "))
	logger.Debug("Executing command")

	startTime := time.Now()
	err := cmd.Run()
	duration := time.Since(startTime)

	if err != nil {
		logger.Error("Command execution failed", "duration", duration, "error", err, "stderr", stderr.String())
		return stdout.Bytes(), &commandError{
			name:   name,
			args:   args,
			err:    err,
			output: strings.TrimSpace(stdout.String() + "\n" + stderr.String()),
		}
	}

	logger.Debug("Command executed successfully", "duration", duration)
	return stdout.Bytes(), nil
}

type commandError struct {
	name   string
	args   []string
	err    error
	output string
}

func (e *commandError) Error() string {
	return fmt.Sprintf("command '%s %s' failed: %v: %s", e.name, strings.Join(e.args, " "), e.err, e.output)
}

func (e *commandError) Unwrap() error { return e.err }

// checkExecutable verifies that name is on PATH.
func checkExecutable(logger *slog.Logger, lookPath func(string) (string, error), name string) error {
	path, err := lookPath(name)
	if err != nil {
		logger.Error("Required executable not found in PATH", "executable", name, "error", err)
		return fmt.Errorf("executable '%s' not found in PATH: %w", name, err)
	}
	logger.Debug("Executable found", "name", name, "path", path)
	return nil
}
