// Package example generates a sample program for a synthesized grammar. The
// program is constrained by the grammar itself, so whatever the service
// returns is syntactically valid by construction. The pipeline uses it as the
// repair loop's probe input when the operator supplied no sample.
package example

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/langforge/internal/cache"
	"github.com/vk/langforge/internal/ctxlog"
	"github.com/vk/langforge/internal/events"
	"github.com/vk/langforge/internal/model"
	"github.com/vk/langforge/internal/synth"
)

// CacheStage is the cache namespace of generated examples.
const CacheStage = "example"

const instructions = `You write short example programs for a domain-specific language.
Exercise as many constructs of the grammar as fit in a few lines.
Output only the program text.`

type cacheInput struct {
	Grammar string `json:"grammar"`
	Spec    string `json:"spec"`
	Sample  string `json:"sample,omitempty"`
}

// Generator produces example programs.
type Generator struct {
	Client synth.Client
	Cache  *cache.Store
	Events events.Sink
	Model  string
}

// Generate returns an example program accepted by grammarText.
func (g *Generator) Generate(ctx context.Context, run *model.Run, grammarText string) (string, error) {
	ctx, logger := ctxlog.WithStage(ctx, events.StageExample)
	key := cacheInput{Grammar: grammarText, Spec: run.Spec, Sample: run.Sample}

	events.Emit(ctx, g.Events, events.Event{Stage: events.StageExample, Kind: events.KindStarted})
	if entry, ok := g.Cache.Get(ctx, CacheStage, key); ok {
		events.Emit(ctx, g.Events, events.Event{Stage: events.StageExample, Kind: events.KindCacheHit})
		return entry.Output, nil
	}

	var input strings.Builder
	input.WriteString("Language description:\n")
	input.WriteString(strings.TrimSpace(run.Spec))
	input.WriteString("\n\nGrammar:\n")
	input.WriteString(grammarText)
	if run.HasSample() {
		input.WriteString("\nWrite a program in the style of this sample:\n")
		input.WriteString(run.Sample)
		input.WriteString("\n")
	}

	out, err := g.Client.Complete(ctx, synth.Request{
		Model:        g.Model,
		Instructions: instructions,
		Input:        input.String(),
		Grammar: &synth.GrammarConstraint{
			ToolName:    "emit_program",
			Description: "Emit one program in the language.",
			Syntax:      "lark",
			Definition:  grammarText,
		},
	})
	if err != nil {
		events.Emit(ctx, g.Events, events.Event{Stage: events.StageExample, Kind: events.KindFailed, Message: err.Error()})
		return "", fmt.Errorf("example generation failed: %w", err)
	}
	program := synth.StripFences(out)
	logger.Debug("Example program generated.", "bytes", len(program))

	g.Cache.Put(ctx, CacheStage, key, program)
	events.Emit(ctx, g.Events, events.Event{Stage: events.StageExample, Kind: events.KindSucceeded, Message: fmt.Sprintf("%d bytes", len(program))})
	return program, nil
}

// Write stores program as the run's example artifact and returns its path.
func Write(dir, program string) (string, error) {
	path := filepath.Join(dir, model.ExampleFile)
	if err := os.WriteFile(path, []byte(program+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to write example program: %w", err)
	}
	return path, nil
}
