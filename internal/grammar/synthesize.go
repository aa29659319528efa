// Package grammar produces and compiles the grammar of the target language.
// The Synthesizer asks the synthesis service for grammar text and validates
// it locally; the Compiler hands accepted grammar to the external compiler
// and patches the produced parser so it can be loaded.
package grammar

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vk/langforge/internal/cache"
	"github.com/vk/langforge/internal/ctxlog"
	"github.com/vk/langforge/internal/events"
	"github.com/vk/langforge/internal/model"
	"github.com/vk/langforge/internal/synth"
)

// CacheStage is the cache namespace of synthesized grammars.
const CacheStage = "grammar"

// cacheInput is the semantic input of grammar synthesis. Sample is omitted
// when empty, so runs without a sample are keyed by the specification alone.
type cacheInput struct {
	Spec   string `json:"spec"`
	Sample string `json:"sample,omitempty"`
}

// Synthesizer turns a language specification into validated grammar text.
type Synthesizer struct {
	Client synth.Client
	Cache  *cache.Store
	Events events.Sink
	Model  string
	Retry  model.RetryPolicy
}

// Synthesize returns grammar text for run.Spec. With a cache hit no external
// call is made. Otherwise up to Retry.Attempts streamed attempts are made;
// each sees the error messages of every previous attempt. Exhausting the
// budget returns a *SynthesisError.
func (s *Synthesizer) Synthesize(ctx context.Context, run *model.Run) (string, error) {
	ctx, logger := ctxlog.WithStage(ctx, events.StageGrammar)
	policy := s.Retry.Normalize()
	key := cacheInput{Spec: run.Spec, Sample: run.Sample}

	events.Emit(ctx, s.Events, events.Event{Stage: events.StageGrammar, Kind: events.KindStarted})
	if entry, ok := s.Cache.Get(ctx, CacheStage, key); ok {
		events.Emit(ctx, s.Events, events.Event{Stage: events.StageGrammar, Kind: events.KindCacheHit})
		return entry.Output, nil
	}

	var failures []string
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 {
			events.Emit(ctx, s.Events, events.Event{
				Stage:   events.StageGrammar,
				Kind:    events.KindRetry,
				Attempt: attempt,
				Message: failures[len(failures)-1],
			})
			if err := policy.Wait(ctx); err != nil {
				return "", err
			}
		}

		text, err := s.attempt(ctx, run, failures, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Debug("Grammar attempt rejected.", "attempt", attempt, "error", err)
			failures = append(failures, err.Error())
			continue
		}

		s.Cache.Put(ctx, CacheStage, key, text)
		events.Emit(ctx, s.Events, events.Event{
			Stage:   events.StageGrammar,
			Kind:    events.KindSucceeded,
			Attempt: attempt,
			Message: fmt.Sprintf("%d bytes", len(text)),
		})
		return text, nil
	}

	synthErr := &SynthesisError{Attempts: failures}
	events.Emit(ctx, s.Events, events.Event{Stage: events.StageGrammar, Kind: events.KindFailed, Message: synthErr.Error()})
	return "", synthErr
}

func (s *Synthesizer) attempt(ctx context.Context, run *model.Run, priorErrors []string, attempt int) (string, error) {
	req := synth.Request{
		Model:        s.Model,
		Instructions: grammarInstructions,
		Input:        buildPrompt(run, priorErrors),
		Grammar: &synth.GrammarConstraint{
			ToolName:    "emit_grammar",
			Description: "Emit the complete grammar of the described language.",
			Syntax:      "lark",
			Definition:  MetaGrammar,
		},
	}

	text, err := synth.Drain(s.Client.Stream(ctx, req), func(fragment string) {
		events.Emit(ctx, s.Events, events.Event{
			Stage:   events.StageGrammar,
			Kind:    events.KindFragment,
			Attempt: attempt,
			Message: fragment,
		})
	})
	if err != nil {
		if errors.Is(err, synth.ErrEmptyOutput) {
			return "", errors.New("the synthesis service returned an empty grammar")
		}
		return "", err
	}

	text = strings.TrimSpace(synth.StripFences(text)) + "\n"
	if err := Validate(text); err != nil {
		return "", err
	}
	return text, nil
}
