//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"github.com/oshokin/gacha-release/internal/logger"
)

// DefaultTailLines is how many trailing output lines a failed command reports.
const DefaultTailLines = 40

var (
	// ErrEmptyCommand is returned when a command line has no executable.
	ErrEmptyCommand = errors.New("command is empty")
	// ErrCommandNotFound is returned when the executable is not on PATH.
	ErrCommandNotFound = errors.New("command not found")
)

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	// Command is the command line as run.
	Command string
	// Code is the exit status.
	Code int
	// Output is the tail of the combined stdout/stderr.
	Output string
}

// Error implements error.
func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
	}

	return fmt.Sprintf("%s exited with status %d:\n%s", e.Command, e.Code, e.Output)
}

// Runner runs external tools in a fixed directory.
type Runner struct {
	// Dir is the working directory of every command.
	Dir string
	// Env are extra KEY=VALUE variables appended to the current environment.
	Env []string
	// OutputLevel is the level tool output lines are logged at.
	OutputLevel zapcore.Level
	// TailLines is how many output lines an ExitError carries.
	TailLines int
}

// NewRunner creates a runner for dir.
func NewRunner(dir string, outputLevel zapcore.Level) *Runner {
	return &Runner{
		Dir:         dir,
		OutputLevel: outputLevel,
		TailLines:   DefaultTailLines,
	}
}

// WithEnv returns a copy of the runner with extra environment variables.
func (r *Runner) WithEnv(env ...string) *Runner {
	cloned := *r
	cloned.Env = append(append([]string(nil), r.Env...), env...)

	return &cloned
}

// Run executes argv and returns its combined output.
// Output is streamed to the log line by line while the command runs.
func (r *Runner) Run(ctx context.Context, argv ...string) ([]byte, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrEmptyCommand
	}

	commandLine := strings.Join(argv, " ")

	ctx = logger.WithKV(ctx, "tool", argv[0])
	logger.DebugKV(ctx, "Running command", "command", commandLine, "dir", r.Dir)

	//nolint:gosec // Commands come from the pipeline configuration.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir

	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}

	var (
		output bytes.Buffer
		stream = &zapio.Writer{Log: logger.FromContext(ctx).Desugar(), Level: r.OutputLevel}
		sink   = io.MultiWriter(&output, stream)
	)

	cmd.Stdout = sink
	cmd.Stderr = sink

	err := cmd.Run()
	_ = stream.Close()

	if err == nil {
		return output.Bytes(), nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return output.Bytes(), fmt.Errorf("%w: %s", ErrCommandNotFound, argv[0])
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output.Bytes(), &ExitError{
			Command: commandLine,
			Code:    exitErr.ExitCode(),
			Output:  Tail(output.String(), r.TailLines),
		}
	}

	return output.Bytes(), fmt.Errorf("run %s: %w", commandLine, err)
}

// Tail returns the last n non-empty lines of s.
// A non-positive n keeps every non-empty line.
func Tail(s string, n int) string {
	var lines []string

	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	return strings.Join(lines, "\n")
}
