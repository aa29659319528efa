// Package interp synthesizes the interpreter module of the target language.
// The service writes only an evaluate(node) function; the fixed prelude
// supplies parsing, tree normalization and the run entry point. No local
// validation happens here: the repair loop discovers whether it works.
package interp

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/langforge/internal/cache"
	"github.com/vk/langforge/internal/ctxlog"
	"github.com/vk/langforge/internal/events"
	"github.com/vk/langforge/internal/model"
	"github.com/vk/langforge/internal/schema"
	"github.com/vk/langforge/internal/synth"
)

// Cache namespaces.
const (
	CacheStage       = "interpreter"
	RepairCacheStage = "repair"
)

type cacheInput struct {
	Grammar   string        `json:"grammar"`
	Schema    schema.Schema `json:"schema"`
	Semantics string        `json:"semantics"`
}

// Fix is the context of a repair request.
type Fix struct {
	// Error is the message of the failure that triggered the repair.
	Error string `json:"error"`
	// Sample is the probe input that failed.
	Sample string `json:"sample"`
	// CurrentBody is the failing evaluate(node) definition.
	CurrentBody string `json:"current_body"`
	// Instructions is optional operator guidance.
	Instructions string `json:"instructions,omitempty"`
}

type repairCacheInput struct {
	cacheInput
	Fix Fix `json:"fix"`
}

// Synthesizer produces interpreter artifacts.
type Synthesizer struct {
	Client synth.Client
	Cache  *cache.Store
	Events events.Sink
	Model  string
}

// Synthesize returns a fresh interpreter for grammarText. A single external
// call is made on a cache miss.
func (s *Synthesizer) Synthesize(ctx context.Context, run *model.Run, grammarText string, sch schema.Schema) (*Artifact, error) {
	ctx, _ = ctxlog.WithStage(ctx, events.StageInterpreter)
	key := cacheInput{Grammar: grammarText, Schema: sch, Semantics: run.Semantics}

	events.Emit(ctx, s.Events, events.Event{Stage: events.StageInterpreter, Kind: events.KindStarted})
	return s.generate(ctx, events.StageInterpreter, CacheStage, key, buildInput(run, grammarText, sch, nil), "")
}

// Repair regenerates the whole evaluate body using the failure context. The
// previous body is never patched. A repair that reproduces the failing body
// is neither cached nor served from the cache.
func (s *Synthesizer) Repair(ctx context.Context, run *model.Run, grammarText string, sch schema.Schema, fix Fix) (*Artifact, error) {
	ctx, _ = ctxlog.WithStage(ctx, events.StageRepair)
	key := repairCacheInput{
		cacheInput: cacheInput{Grammar: grammarText, Schema: sch, Semantics: run.Semantics},
		Fix:        fix,
	}
	return s.generate(ctx, events.StageRepair, RepairCacheStage, key, buildInput(run, grammarText, sch, &fix), fix.CurrentBody)
}

// generate returns a cached or freshly synthesized body. Bodies equal to
// stale are treated as cache misses and are not stored.
func (s *Synthesizer) generate(ctx context.Context, stage, cacheStage string, key any, input, stale string) (*Artifact, error) {
	logger := ctxlog.FromContext(ctx)
	unchanged := func(body string) bool {
		return stale != "" && strings.TrimSpace(body) == strings.TrimSpace(stale)
	}
	if entry, ok := s.Cache.Get(ctx, cacheStage, key); ok && !unchanged(entry.Output) {
		events.Emit(ctx, s.Events, events.Event{Stage: stage, Kind: events.KindCacheHit})
		return NewArtifact(entry.Output), nil
	}

	out, err := s.Client.Complete(ctx, synth.Request{
		Model:        s.Model,
		Instructions: instructions,
		Input:        input,
	})
	if err != nil {
		events.Emit(ctx, s.Events, events.Event{Stage: stage, Kind: events.KindFailed, Message: err.Error()})
		return nil, fmt.Errorf("interpreter synthesis failed: %w", err)
	}
	body := synth.StripFences(out)
	logger.Debug("Interpreter body synthesized.", "bytes", len(body))

	if unchanged(body) {
		logger.Warn("Repair returned the failing interpreter unchanged.")
	} else {
		s.Cache.Put(ctx, cacheStage, key, body)
	}
	if stage == events.StageInterpreter {
		events.Emit(ctx, s.Events, events.Event{Stage: stage, Kind: events.KindSucceeded, Message: fmt.Sprintf("%d bytes", len(body))})
	}
	return NewArtifact(body), nil
}

const instructions = `You write the evaluator of a domain-specific language in JavaScript (CommonJS, Node.js).

Write exactly one top-level function: function evaluate(node) { ... }
You may define helper functions, but do not define run, module.exports, require calls or any parser wiring.

evaluate receives a normalized parse tree:
- token nodes: { type: "TOKEN_NAME", value: "text" }
- interior nodes: { type: "rule_or_alias", children: [ ...nodes ] }
Interior node types use the alias when the grammar declares one, otherwise the rule name.
Helpers firstChild(node, type?) and lastChild(node, type?) are available; they select by position.
Throw an Error for unknown node types. Output only code, no prose.`

func buildInput(run *model.Run, grammarText string, sch schema.Schema, fix *Fix) string {
	var b strings.Builder
	b.WriteString("Grammar:\n")
	b.WriteString(grammarText)
	fmt.Fprintf(&b, "\nNode types: %s\n", strings.Join(sch.NodeTypes, ", "))
	fmt.Fprintf(&b, "Rules: %s\n", strings.Join(sch.Rules, ", "))
	fmt.Fprintf(&b, "Tokens: %s\n", strings.Join(sch.Tokens, ", "))
	b.WriteString("\nSemantics:\n")
	b.WriteString(strings.TrimSpace(run.Semantics))
	b.WriteString("\n")

	if fix == nil {
		return b.String()
	}
	b.WriteString("\nThe current evaluator fails. Rewrite it completely.\n")
	b.WriteString("\nError:\n")
	b.WriteString(fix.Error)
	b.WriteString("\n\nInput program:\n")
	b.WriteString(fix.Sample)
	b.WriteString("\n\nCurrent evaluator:\n")
	b.WriteString(fix.CurrentBody)
	if strings.TrimSpace(fix.Instructions) != "" {
		b.WriteString("\nOperator instructions:\n")
		b.WriteString(fix.Instructions)
		b.WriteString("\n")
	}
	return b.String()
}
