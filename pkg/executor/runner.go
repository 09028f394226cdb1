package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Command is one fully expanded stage invocation handed to a backend.
type Command struct {
	Stage      string
	Script     string
	Env        map[string]string
	Workdir    string
	LogPath    string
	OutputPath string
	Declared   []string
}

// Result is what a backend reports for one stage.
type Result struct {
	ExitCode int
	Outputs  map[string]string
}

// Runner executes a single stage command. The executor only sequences stages
// and records results; what a stage actually does is the backend's business.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// LocalRunner executes stage commands via `sh -c` on the host, capturing
// combined output to the stage log file. Stages publish outputs by writing
// `name=value` lines to the file named by FLOWLINE_OUTPUT.
type LocalRunner struct{}

func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

func (r *LocalRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if err := os.MkdirAll(cmd.Workdir, 0o755); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("create workdir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cmd.LogPath), 0o755); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("create log dir: %w", err)
	}

	logFile, err := os.Create(cmd.LogPath)
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("create stage log: %w", err)
	}
	defer logFile.Close()

	outputPath := cmd.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(cmd.Workdir, cmd.Stage+".out")
	}

	proc := exec.CommandContext(ctx, "sh", "-c", cmd.Script)
	proc.Dir = cmd.Workdir
	proc.Stdout = logFile
	proc.Stderr = logFile
	proc.Env = append(os.Environ(), "FLOWLINE_OUTPUT="+outputPath)
	for k, v := range cmd.Env {
		proc.Env = append(proc.Env, k+"="+v)
	}

	runErr := proc.Run()
	if ctx.Err() != nil {
		return Result{ExitCode: -1}, ctx.Err()
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode()}, runErr
		}
		return Result{ExitCode: -1}, runErr
	}

	outputs, err := readOutputs(outputPath, cmd.Declared)
	if err != nil {
		return Result{ExitCode: 0}, fmt.Errorf("read stage outputs: %w", err)
	}
	return Result{ExitCode: 0, Outputs: outputs}, nil
}

// readOutputs parses `name=value` lines, keeping only declared names.
func readOutputs(path string, declared []string) (map[string]string, error) {
	if len(declared) == 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	want := make(map[string]bool, len(declared))
	for _, name := range declared {
		want[name] = true
	}

	outputs := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok || !want[name] {
			continue
		}
		outputs[name] = value
	}
	if len(outputs) == 0 {
		return nil, scanner.Err()
	}
	return outputs, scanner.Err()
}
