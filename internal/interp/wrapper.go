package interp

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

// Prelude is the fixed wrapper every interpreter starts with. It provides
// tree normalization and the run(inputText) entry point; the synthesized
// body supplies evaluate(node).
//
//go:embed js/prelude.js
var Prelude string

// Runner is the standalone runner script written next to the interpreter.
//
//go:embed js/runner.js
var Runner string

// Artifact is one generation of the interpreter module.
type Artifact struct {
	// Body is the synthesized evaluate(node) definition.
	Body string
	// Source is Prelude followed by Body.
	Source string
}

// NewArtifact wraps body in the fixed prelude.
func NewArtifact(body string) *Artifact {
	body = strings.TrimSpace(body) + "\n"
	return &Artifact{Body: body, Source: Prelude + body}
}

// WriteInterpreter replaces the interpreter module at path with a. The file
// is always rewritten whole.
func WriteInterpreter(path string, a *Artifact) error {
	if err := os.WriteFile(path, []byte(a.Source), 0o644); err != nil {
		return fmt.Errorf("failed to write interpreter: %w", err)
	}
	return nil
}

// WriteRunner writes the standalone runner script to path.
func WriteRunner(path string) error {
	if err := os.WriteFile(path, []byte(Runner), 0o755); err != nil {
		return fmt.Errorf("failed to write runner script: %w", err)
	}
	return nil
}
