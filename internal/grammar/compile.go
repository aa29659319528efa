package grammar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/vk/langforge/internal/ctxlog"
	"github.com/vk/langforge/internal/events"
	"github.com/vk/langforge/internal/model"
)

// DefaultCompilerCommand generates a standalone JavaScript parser from a
// Lark grammar.
var DefaultCompilerCommand = []string{"lark-js"}

// Compiled lists the files produced by a successful compilation.
type Compiled struct {
	GrammarPath string
	ParserPath  string
}

// Compiler runs the external grammar compiler as a subprocess.
type Compiler struct {
	// Command is the compiler invocation; the grammar path and the parser
	// path are appended as positional arguments.
	Command []string
	Events  events.Sink
	Retry   model.RetryPolicy
}

// Compile writes grammarText into outputDir and compiles it into a parser.
// Existing artifacts in outputDir are overwritten. After every successful
// compilation the parser is patched with StripUnsupportedOptions. Failing
// all attempts returns a *CompilationError.
func (c *Compiler) Compile(ctx context.Context, grammarText, outputDir string) (*Compiled, error) {
	ctx, logger := ctxlog.WithStage(ctx, events.StageCompile)
	policy := c.Retry.Normalize()
	paths := model.ArtifactsIn(outputDir)

	command := c.Command
	if len(command) == 0 {
		command = DefaultCompilerCommand
	}

	events.Emit(ctx, c.Events, events.Event{Stage: events.StageCompile, Kind: events.KindStarted})
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}
	if err := os.WriteFile(paths.GrammarPath, []byte(grammarText), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write grammar file: %w", err)
	}

	var diagnostics string
	var attempts []string
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 {
			events.Emit(ctx, c.Events, events.Event{
				Stage:   events.StageCompile,
				Kind:    events.KindRetry,
				Attempt: attempt,
				Message: firstLine(diagnostics),
			})
			if err := policy.Wait(ctx); err != nil {
				return nil, err
			}
		}

		err := c.run(ctx, command, paths.GrammarPath, paths.ParserPath)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			diagnostics = err.Error()
			attempts = append(attempts, diagnostics)
			logger.Debug("Compiler attempt failed.", "attempt", attempt, "error", diagnostics)
			continue
		}

		if err := patchParser(paths.ParserPath); err != nil {
			diagnostics = err.Error()
			attempts = append(attempts, diagnostics)
			logger.Debug("Compiler produced no usable parser.", "attempt", attempt, "error", diagnostics)
			continue
		}

		events.Emit(ctx, c.Events, events.Event{
			Stage:   events.StageCompile,
			Kind:    events.KindSucceeded,
			Attempt: attempt,
			Message: paths.ParserPath,
		})
		return &Compiled{GrammarPath: paths.GrammarPath, ParserPath: paths.ParserPath}, nil
	}

	compErr := &CompilationError{Grammar: grammarText, Attempts: attempts}
	events.Emit(ctx, c.Events, events.Event{Stage: events.StageCompile, Kind: events.KindFailed, Message: firstLine(diagnostics)})
	return nil, compErr
}

// run executes the compiler once and returns its diagnostics as the error
// on any failure.
func (c *Compiler) run(ctx context.Context, command []string, grammarPath, parserPath string) error {
	args := append(append([]string{}, command[1:]...), grammarPath, parserPath)
	cmd := exec.CommandContext(ctx, command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	ctxlog.FromContext(ctx).Debug("Running grammar compiler.", "command", command[0], "args", args)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = err.Error()
			}
			return fmt.Errorf("compiler exited with status %d: %s", exitErr.ExitCode(), msg)
		}
		return fmt.Errorf("failed to launch compiler %q: %w", command[0], err)
	}
	return nil
}

// patchParser applies StripUnsupportedOptions to the parser file in place.
func patchParser(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("compiler reported success but the parser is unreadable: %w", err)
	}
	return os.WriteFile(path, StripUnsupportedOptions(src), 0o644)
}

var unsupportedOptionRe = regexp.MustCompile(`\s*"(?:strict|ordered_sets)"\s*:\s*(?:true|false|null)\s*,?`)

// StripUnsupportedOptions removes the "strict" and "ordered_sets" entries
// from the options embedded in a generated parser. The JavaScript runtime
// rejects both. The rewrite is deterministic and idempotent.
func StripUnsupportedOptions(src []byte) []byte {
	return unsupportedOptionRe.ReplaceAll(src, nil)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
