package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/gacha-release/internal/domain/release"
	"github.com/oshokin/gacha-release/internal/service/common"
)

// TestBuild_PopulatesOutput runs a packaging command that creates a bundle.
func TestBuild_PopulatesOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runner := common.NewRunner(dir, zapcore.DebugLevel)
	command := []string{"sh", "-c", "mkdir -p dist/LinguaGacha.app/Contents && echo plist > dist/LinguaGacha.app/Contents/Info.plist"}

	require.NoError(t, New(command, runner).Build(context.Background()))

	_, err := os.Stat(filepath.Join(dir, "dist", "LinguaGacha.app", "Contents", "Info.plist"))
	require.NoError(t, err)
}

// TestBuild_Fails propagates the exit status and output tail.
func TestBuild_Fails(t *testing.T) {
	t.Parallel()

	runner := common.NewRunner(t.TempDir(), zapcore.DebugLevel)
	command := []string{"sh", "-c", "echo 'spec file not found' >&2; exit 2"}

	err := New(command, runner).Build(context.Background())
	require.ErrorIs(t, err, release.ErrBuildFailed)
	require.Contains(t, err.Error(), "spec file not found")

	var exitErr *common.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

// TestBuild_NoCommand rejects an empty command line.
func TestBuild_NoCommand(t *testing.T) {
	t.Parallel()

	err := New(nil, common.NewRunner(t.TempDir(), zapcore.DebugLevel)).Build(context.Background())
	require.ErrorIs(t, err, release.ErrBuildFailed)
}
