package repair

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vk/langforge/internal/ctxlog"
	"github.com/vk/langforge/internal/model"
)

// Tester runs the probe input through the artifacts on disk.
type Tester interface {
	Test(ctx context.Context, artifacts model.Artifacts, input string) (json.RawMessage, error)
}

// DefaultRunnerCommand executes run.js.
var DefaultRunnerCommand = []string{"node"}

// SubprocessTester runs `Command... run.js probe.txt` in a new process for
// every test, so parser and interpreter modules are always loaded from disk.
// The input is written to the probe file first and never passed as an
// argument.
type SubprocessTester struct {
	Command []string
}

type runnerError struct {
	Error *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// Test implements Tester. Failures are returned as *TestFailure.
func (t *SubprocessTester) Test(ctx context.Context, artifacts model.Artifacts, input string) (json.RawMessage, error) {
	command := t.Command
	if len(command) == 0 {
		command = DefaultRunnerCommand
	}
	probe := artifacts.ProbePath
	if probe == "" {
		probe = filepath.Join(artifacts.Dir, model.ProbeFile)
	}
	if err := os.WriteFile(probe, []byte(input), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write probe input: %w", err)
	}
	args := append(append([]string{}, command[1:]...), artifacts.RunnerPath, probe)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command[0], args...)
	cmd.Dir = artifacts.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Running probe input.", "command", command[0], "runner", artifacts.RunnerPath, "probe", probe)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &TestFailure{Kind: FailureIntegration, Message: fmt.Sprintf("failed to launch runner: %v", err)}
		}
		return nil, classify(stderr.String(), err)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if json.Valid(out) && len(out) > 0 {
		return json.RawMessage(out), nil
	}
	// A runner that prints plain text still produced a value.
	quoted, err := json.Marshal(string(out))
	if err != nil {
		return nil, err
	}
	return quoted, nil
}

// classify reads the runner's structured error line. Unstructured output is
// treated as an evaluation failure.
func classify(stderr string, runErr error) *TestFailure {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		var re runnerError
		if err := json.Unmarshal([]byte(strings.TrimSpace(lines[i])), &re); err != nil || re.Error == nil {
			continue
		}
		kind := FailureKind(re.Error.Kind)
		switch kind {
		case FailureParse, FailureEvaluation, FailureIntegration:
		default:
			kind = FailureEvaluation
		}
		return &TestFailure{Kind: kind, Message: re.Error.Message}
	}
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = runErr.Error()
	}
	return &TestFailure{Kind: FailureEvaluation, Message: msg}
}
