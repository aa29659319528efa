// Package repair tests the generated interpreter against the probe input and,
// when it fails, lets an Operator choose how to recover: regenerate with or
// without guidance, accept the broken artifacts, or abort the run.
package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vk/langforge/internal/ctxlog"
	"github.com/vk/langforge/internal/events"
	"github.com/vk/langforge/internal/interp"
	"github.com/vk/langforge/internal/model"
	"github.com/vk/langforge/internal/schema"
)

// Regenerator rewrites the whole interpreter body from failure context.
type Regenerator interface {
	Repair(ctx context.Context, run *model.Run, grammarText string, sch schema.Schema, fix interp.Fix) (*interp.Artifact, error)
}

// Input is everything the loop tests and regenerates with.
type Input struct {
	Grammar   string
	Schema    schema.Schema
	Artifact  *interp.Artifact
	Artifacts model.Artifacts
	// Sample is the fixed probe input.
	Sample string
}

// Outcome is the terminal state of the loop.
type Outcome struct {
	Success bool
	// Accepted is set when the operator chose to continue with a failing
	// interpreter.
	Accepted bool
	Result   json.RawMessage
	// Tests is the number of test executions performed.
	Tests int
	// Err is the last failure when Success is false.
	Err error
	// Artifact is the interpreter that was tested last.
	Artifact *interp.Artifact
}

// Loop is the test-and-repair state machine.
type Loop struct {
	Regenerator Regenerator
	Tester      Tester
	Operator    Operator
	Events      events.Sink
	// Retry bounds regenerations per fix request. Delay is not applied.
	Retry model.RetryPolicy
}

type state struct {
	in      Input
	current *interp.Artifact
	tests   int
}

// Run tests in.Artifact and drives repairs until the interpreter passes, the
// operator accepts the failure, or the operator aborts. Abort is reported as
// a *FatalAbort error; every other terminal state is an Outcome.
func (l *Loop) Run(ctx context.Context, run *model.Run, in Input) (Outcome, error) {
	ctx, logger := ctxlog.WithStage(ctx, events.StageRepair)
	attempts := l.Retry.Normalize().Attempts
	st := &state{in: in, current: in.Artifact}

	result, failure := l.test(ctx, st, 0)
	if failure == nil {
		return st.success(result), nil
	}

	exhausted := false
	for {
		decision, err := l.Operator.Decide(ctx, DecisionRequest{Failure: failure, Exhausted: exhausted, Tests: st.tests})
		if err != nil {
			return st.failed(failure), fmt.Errorf("operator decision failed: %w", err)
		}
		logger.Info("Operator decided.", "action", decision.Action)

		switch decision.Action {
		case ActionContinue:
			events.Emit(ctx, l.Events, events.Event{Stage: events.StageRepair, Kind: events.KindInfo, Message: "continuing with a failing interpreter"})
			out := st.failed(failure)
			out.Accepted = true
			return out, nil

		case ActionAbort:
			events.Emit(ctx, l.Events, events.Event{Stage: events.StageRepair, Kind: events.KindFailed, Message: "aborted by operator"})
			return st.failed(failure), &FatalAbort{Cause: failure}

		case ActionAutoFix, ActionFixWithInstructions:
			instructions := ""
			if decision.Action == ActionFixWithInstructions {
				instructions = decision.Instructions
			}
			var ok bool
			result, ok, failure = l.fix(ctx, run, st, failure, instructions, attempts)
			if ok {
				return st.success(result), nil
			}
			if decision.Action == ActionAutoFix {
				logger.Warn("Automatic fix exhausted its attempts.", "attempts", attempts, "error", failure)
				return st.failed(failure), nil
			}
			exhausted = true

		default:
			return st.failed(failure), fmt.Errorf("unknown operator action %q", decision.Action)
		}
	}
}

// fix regenerates and re-tests up to attempts times. Each regeneration sees
// the latest failure and the body that produced it.
func (l *Loop) fix(ctx context.Context, run *model.Run, st *state, failure error, instructions string, attempts int) (json.RawMessage, bool, error) {
	logger := ctxlog.FromContext(ctx)
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		events.Emit(ctx, l.Events, events.Event{Stage: events.StageRepair, Kind: events.KindRetry, Attempt: attempt, Message: failureMessage(failure)})

		art, err := l.Regenerator.Repair(ctx, run, st.in.Grammar, st.in.Schema, interp.Fix{
			Error:        failureMessage(failure),
			Sample:       st.in.Sample,
			CurrentBody:  st.current.Body,
			Instructions: instructions,
		})
		if err != nil {
			logger.Warn("Interpreter regeneration failed.", "attempt", attempt, "error", err)
			failure = err
			continue
		}
		st.current = art

		result, testErr := l.test(ctx, st, attempt)
		if testErr == nil {
			return result, true, nil
		}
		failure = testErr
	}
	return nil, false, failure
}

// test writes the current interpreter wholesale and runs the probe once.
func (l *Loop) test(ctx context.Context, st *state, attempt int) (json.RawMessage, error) {
	if err := interp.WriteInterpreter(st.in.Artifacts.InterpreterPath, st.current); err != nil {
		return nil, &TestFailure{Kind: FailureIntegration, Message: err.Error()}
	}
	st.tests++
	events.Emit(ctx, l.Events, events.Event{Stage: events.StageRepair, Kind: events.KindStarted, Attempt: attempt, Message: "testing interpreter"})

	result, err := l.Tester.Test(ctx, st.in.Artifacts, st.in.Sample)
	if err != nil {
		var tf *TestFailure
		if !errors.As(err, &tf) {
			err = &TestFailure{Kind: FailureIntegration, Message: err.Error()}
		}
		events.Emit(ctx, l.Events, events.Event{Stage: events.StageRepair, Kind: events.KindFailed, Attempt: attempt, Message: err.Error()})
		return nil, err
	}
	events.Emit(ctx, l.Events, events.Event{Stage: events.StageRepair, Kind: events.KindSucceeded, Attempt: attempt, Message: string(result)})
	return result, nil
}

func (st *state) success(result json.RawMessage) Outcome {
	return Outcome{Success: true, Result: result, Tests: st.tests, Artifact: st.current}
}

func (st *state) failed(err error) Outcome {
	return Outcome{Err: err, Tests: st.tests, Artifact: st.current}
}
