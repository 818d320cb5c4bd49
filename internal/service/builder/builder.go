package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/logger"
)

var errNoCommand = errors.New("no packaging command configured")

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, argv ...string) ([]byte, error)
}

// Builder runs the packaging tool.
type Builder struct {
	// command is the packaging tool command line.
	command []string
	// runner executes the command in the source root.
	runner Runner
}

// New creates a Builder for the command line.
func New(command []string, runner Runner) *Builder {
	return &Builder{
		command: append([]string(nil), command...),
		runner:  runner,
	}
}

// Build runs the packaging tool once.
func (b *Builder) Build(ctx context.Context) error {
	if len(b.command) == 0 {
		return fmt.Errorf("%w: %w", release.ErrBuildFailed, errNoCommand)
	}

	logger.InfoKV(ctx, "Running packaging tool", "command", strings.Join(b.command, " "))

	if _, err := b.runner.Run(ctx, b.command...); err != nil {
		return fmt.Errorf("%w: %w", release.ErrBuildFailed, err)
	}

	return nil
}
