package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

const maxCapturedOutput = 4096

// PythonRunnerConfig configures how submissions are executed.
type PythonRunnerConfig struct {
	Image         string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	WorkspaceRoot string
}

// RunOutcome is what the grader keeps from a sandbox run.
type RunOutcome struct {
	Output    string
	ExitCode  int
	RuntimeMs int64
	TimedOut  bool
}

// PythonRunner runs a single Python source file as main.py inside the executor.
type PythonRunner struct {
	executor Executor
	cfg      PythonRunnerConfig
}

// NewPythonRunner wraps an executor with the submission layout.
func NewPythonRunner(executor Executor, cfg PythonRunnerConfig) *PythonRunner {
	if cfg.Image == "" {
		cfg.Image = "python:3.11-alpine"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &PythonRunner{executor: executor, cfg: cfg}
}

// RunPython writes source to a fresh workspace and executes `python main.py`.
// A timeout is reported through the outcome rather than as an error.
func (r *PythonRunner) RunPython(ctx context.Context, source string) (RunOutcome, error) {
	workspace, err := os.MkdirTemp(r.cfg.WorkspaceRoot, "submission-")
	if err != nil {
		return RunOutcome{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := os.Chmod(workspace, 0o755); err != nil {
		return RunOutcome{}, fmt.Errorf("chmod workspace: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, "main.py"), []byte(source), 0o644); err != nil {
		return RunOutcome{}, fmt.Errorf("write main.py: %w", err)
	}

	result, err := r.executor.Run(ctx, ExecutionRequest{
		Image:         r.cfg.Image,
		Cmd:           []string{"python", "main.py"},
		Env:           []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONUNBUFFERED=1"},
		Timeout:       r.cfg.Timeout,
		Workspace:     workspace,
		MemoryLimitMB: r.cfg.MemoryLimitMB,
		CPUShares:     r.cfg.CPUShares,
	})

	outcome := RunOutcome{
		Output:    truncateOutput(joinOutput(result.Stdout, result.Stderr)),
		ExitCode:  result.ExitCode,
		RuntimeMs: result.Duration.Milliseconds(),
		TimedOut:  result.TimedOut,
	}
	if result.TimedOut {
		outcome.Output = strings.TrimSpace(outcome.Output + fmt.Sprintf("\n[timed out after %s]", r.cfg.Timeout))
		return outcome, nil
	}
	if err != nil {
		return outcome, err
	}

	return outcome, nil
}

func joinOutput(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return stderr
	default:
		return stdout + "\n" + stderr
	}
}

func truncateOutput(output string) string {
	if len(output) <= maxCapturedOutput {
		return output
	}
	cut := maxCapturedOutput
	for cut > 0 && !utf8.RuneStart(output[cut]) {
		cut--
	}
	return output[:cut] + "\n[output truncated]"
}
