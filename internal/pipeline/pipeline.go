// Package pipeline sequences the generation stages of a run: grammar
// synthesis, compilation, schema extraction, example generation, interpreter
// synthesis and the test-and-repair loop. Stages run strictly one after
// another, each consuming the previous stage's output.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/langforge/internal/ctxlog"
	"github.com/vk/langforge/internal/events"
	"github.com/vk/langforge/internal/example"
	"github.com/vk/langforge/internal/grammar"
	"github.com/vk/langforge/internal/interp"
	"github.com/vk/langforge/internal/model"
	"github.com/vk/langforge/internal/repair"
	"github.com/vk/langforge/internal/schema"
)

// Status is the terminal state of a run that did not fail hard.
type Status string

const (
	// StatusSuccess means the interpreter evaluated the probe input.
	StatusSuccess Status = "success"
	// StatusFlagged means the operator accepted a failing interpreter, or an
	// automatic fix ran out of attempts.
	StatusFlagged Status = "flagged"
	// StatusUntested means there was no probe input to test with.
	StatusUntested Status = "untested"
)

// GrammarStage produces validated grammar text.
type GrammarStage interface {
	Synthesize(ctx context.Context, run *model.Run) (string, error)
}

// CompileStage compiles grammar text into a parser.
type CompileStage interface {
	Compile(ctx context.Context, grammarText, outputDir string) (*grammar.Compiled, error)
}

// ExampleStage writes a program in the new language.
type ExampleStage interface {
	Generate(ctx context.Context, run *model.Run, grammarText string) (string, error)
}

// InterpreterStage produces the first interpreter artifact.
type InterpreterStage interface {
	Synthesize(ctx context.Context, run *model.Run, grammarText string, sch schema.Schema) (*interp.Artifact, error)
}

// RepairStage tests and repairs the interpreter.
type RepairStage interface {
	Run(ctx context.Context, run *model.Run, in repair.Input) (repair.Outcome, error)
}

// Orchestrator runs the stages in order.
type Orchestrator struct {
	Grammar     GrammarStage
	Compiler    CompileStage
	Example     ExampleStage
	Interpreter InterpreterStage
	Repair      RepairStage
	Events      events.Sink
}

// Result describes a finished run.
type Result struct {
	Status    Status
	Artifacts model.Artifacts
	Grammar   string
	Schema    schema.Schema
	// Probe is the input the interpreter was tested with: the sample, or the
	// generated example when no sample was given.
	Probe     string
	Outcome   repair.Outcome
}

// Value returns the evaluated probe result, or nil.
func (r *Result) Value() json.RawMessage {
	if r == nil {
		return nil
	}
	return r.Outcome.Result
}

// Run executes every stage for run. A failure before the repair loop ends the
// run with that stage's error. A failing interpreter is not an error; it is
// reported through Result.Status. An operator abort returns an error wrapping
// repair.ErrAbort.
func (o *Orchestrator) Run(ctx context.Context, run *model.Run) (*Result, error) {
	ctx, logger := ctxlog.WithStage(ctx, events.StagePipeline)
	o.narrate(ctx, events.KindStarted, "generating language artifacts in "+run.OutputDir)

	grammarText, err := o.Grammar.Synthesize(ctx, run)
	if err != nil {
		return nil, o.fail(ctx, events.StageGrammar, err)
	}

	compiled, err := o.Compiler.Compile(ctx, grammarText, run.OutputDir)
	if err != nil {
		return nil, o.fail(ctx, events.StageCompile, err)
	}

	sch := schema.Extract(grammarText)
	events.Emit(ctx, o.Events, events.Event{
		Stage:   events.StageSchema,
		Kind:    events.KindSucceeded,
		Message: fmt.Sprintf("%d rules, %d tokens, %d aliases", len(sch.Rules), len(sch.Tokens), len(sch.Aliases)),
	})

	artifacts := model.ArtifactsIn(run.OutputDir)
	artifacts.GrammarPath = compiled.GrammarPath
	artifacts.ParserPath = compiled.ParserPath

	probe := run.Sample
	if !run.HasSample() && o.Example != nil {
		program, err := o.Example.Generate(ctx, run, grammarText)
		if err != nil {
			logger.Warn("No example program; the interpreter will not be tested.", "error", err)
		} else if path, err := example.Write(run.OutputDir, program); err != nil {
			logger.Warn("Failed to store example program.", "error", err)
			probe = program
		} else {
			artifacts.ExamplePath = path
			probe = program
		}
	}

	art, err := o.Interpreter.Synthesize(ctx, run, grammarText, sch)
	if err != nil {
		return nil, o.fail(ctx, events.StageInterpreter, err)
	}
	if err := interp.WriteInterpreter(artifacts.InterpreterPath, art); err != nil {
		return nil, o.fail(ctx, events.StageInterpreter, err)
	}
	if err := interp.WriteRunner(artifacts.RunnerPath); err != nil {
		return nil, o.fail(ctx, events.StageInterpreter, err)
	}

	res := &Result{Artifacts: artifacts, Grammar: grammarText, Schema: sch, Probe: probe}
	if probe == "" {
		res.Status = StatusUntested
		res.Outcome = repair.Outcome{Artifact: art}
		o.narrate(ctx, events.KindSucceeded, "artifacts written; interpreter untested")
		return res, nil
	}

	outcome, err := o.Repair.Run(ctx, run, repair.Input{
		Grammar:   grammarText,
		Schema:    sch,
		Artifact:  art,
		Artifacts: artifacts,
		Sample:    probe,
	})
	res.Outcome = outcome
	if err != nil {
		return res, o.fail(ctx, events.StageRepair, err)
	}

	if outcome.Success {
		res.Status = StatusSuccess
		o.narrate(ctx, events.KindSucceeded, "interpreter result: "+string(outcome.Result))
		return res, nil
	}
	res.Status = StatusFlagged
	logger.Warn("Interpreter does not pass its test; artifacts are flagged.", "accepted", outcome.Accepted, "error", outcome.Err)
	o.narrate(ctx, events.KindSucceeded, "artifacts written with a flagged interpreter")
	return res, nil
}

func (o *Orchestrator) narrate(ctx context.Context, kind events.Kind, msg string) {
	events.Emit(ctx, o.Events, events.Event{Stage: events.StagePipeline, Kind: kind, Message: msg})
}

func (o *Orchestrator) fail(ctx context.Context, stage string, err error) error {
	o.narrate(ctx, events.KindFailed, fmt.Sprintf("%s stage failed: %v", stage, err))
	return fmt.Errorf("%s stage: %w", stage, err)
}
