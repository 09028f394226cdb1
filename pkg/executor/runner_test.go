package executor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("local runner needs sh")
	}
}

func TestLocalRunnerCapturesLogAndOutputs(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	runner := NewLocalRunner()

	res, err := runner.Run(context.Background(), Command{
		Stage:      "build",
		Script:     `echo building "$INPUT_IMAGE_NAME" && echo "version=1.2.3" >> "$FLOWLINE_OUTPUT" && echo "digest=sha256:abc" >> "$FLOWLINE_OUTPUT" && echo "scratch=tmp" >> "$FLOWLINE_OUTPUT"`,
		Env:        map[string]string{"INPUT_IMAGE_NAME": "org/app"},
		Workdir:    dir,
		LogPath:    filepath.Join(dir, "logs", "build.log"),
		OutputPath: filepath.Join(dir, "logs", "build.out"),
		Declared:   []string{"version", "digest"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	// Undeclared outputs are dropped.
	assert.Equal(t, map[string]string{"version": "1.2.3", "digest": "sha256:abc"}, res.Outputs)

	log, err := os.ReadFile(filepath.Join(dir, "logs", "build.log"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "building org/app")
}

func TestLocalRunnerReportsExitCode(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()

	res, err := NewLocalRunner().Run(context.Background(), Command{
		Stage:   "flaky",
		Script:  "exit 3",
		Workdir: dir,
		LogPath: filepath.Join(dir, "flaky.log"),
	})
	require.Error(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestLocalRunnerHonorsContext(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewLocalRunner().Run(ctx, Command{
		Stage:   "slow",
		Script:  "sleep 30",
		Workdir: dir,
		LogPath: filepath.Join(dir, "slow.log"),
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalRunnerNoOutputsDeclared(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()

	res, err := NewLocalRunner().Run(context.Background(), Command{
		Stage:   "noop",
		Script:  "true",
		Workdir: dir,
		LogPath: filepath.Join(dir, "noop.log"),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Outputs)
}
