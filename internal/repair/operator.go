package repair

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Action is the operator's resolution of a failed test.
type Action string

const (
	ActionFixWithInstructions Action = "fix"
	ActionAutoFix             Action = "auto-fix"
	ActionContinue            Action = "continue"
	ActionAbort               Action = "abort"
)

// Decision is the operator's answer to a DecisionRequest.
type Decision struct {
	Action Action
	// Instructions is free text guidance, used with ActionFixWithInstructions.
	Instructions string
}

// DecisionRequest describes the failure the operator is asked about.
type DecisionRequest struct {
	Failure error
	// Exhausted is set when a manual fix used up its attempts. Auto-fix is
	// not offered again in that case.
	Exhausted bool
	// Tests is the number of test executions so far.
	Tests int
}

// Choices lists the actions available for req, in prompt order.
func (req DecisionRequest) Choices() []Action {
	if req.Exhausted {
		return []Action{ActionFixWithInstructions, ActionContinue, ActionAbort}
	}
	return []Action{ActionFixWithInstructions, ActionAutoFix, ActionContinue, ActionAbort}
}

// Operator decides how the loop proceeds after a failed test.
type Operator interface {
	Decide(ctx context.Context, req DecisionRequest) (Decision, error)
}

// FixedOperator always answers with the same decision.
type FixedOperator struct {
	Decision Decision
}

// Decide implements Operator.
func (o FixedOperator) Decide(context.Context, DecisionRequest) (Decision, error) {
	return o.Decision, nil
}

// ErrNoDecision is returned by a ScriptedOperator with nothing left to say.
var ErrNoDecision = errors.New("no scripted decision left")

// ScriptedOperator answers with queued decisions and records every request.
type ScriptedOperator struct {
	mu        sync.Mutex
	decisions []Decision
	requests  []DecisionRequest
}

// NewScriptedOperator returns an operator answering with decisions in order.
func NewScriptedOperator(decisions ...Decision) *ScriptedOperator {
	return &ScriptedOperator{decisions: decisions}
}

// Decide implements Operator.
func (o *ScriptedOperator) Decide(_ context.Context, req DecisionRequest) (Decision, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, req)
	if len(o.decisions) == 0 {
		return Decision{}, ErrNoDecision
	}
	d := o.decisions[0]
	o.decisions = o.decisions[1:]
	return d, nil
}

// Requests returns the requests seen so far.
func (o *ScriptedOperator) Requests() []DecisionRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]DecisionRequest(nil), o.requests...)
}

// ConsoleOperator prompts on a terminal. It blocks until a line is read;
// there is no timeout.
type ConsoleOperator struct {
	In  io.Reader
	Out io.Writer

	once   sync.Once
	reader *bufio.Reader
}

var (
	errorStyle  = color.New(color.FgRed, color.OpBold)
	promptStyle = color.New(color.FgCyan, color.OpBold)
	hintStyle   = color.New(color.FgGray)
)

var actionLabels = map[Action]string{
	ActionFixWithInstructions: "fix with instructions",
	ActionAutoFix:             "automatic fix",
	ActionContinue:            "continue anyway",
	ActionAbort:               "abort",
}

// Decide implements Operator.
func (o *ConsoleOperator) Decide(ctx context.Context, req DecisionRequest) (Decision, error) {
	o.once.Do(func() { o.reader = bufio.NewReader(o.In) })

	if req.Failure != nil {
		fmt.Fprintln(o.Out, errorStyle.Sprint("Interpreter test failed: ")+req.Failure.Error())
	}
	if req.Exhausted {
		fmt.Fprintln(o.Out, hintStyle.Sprint("The fix attempts did not pass the test."))
	}
	choices := req.Choices()
	for i, a := range choices {
		fmt.Fprintf(o.Out, "  %d) %s\n", i+1, actionLabels[a])
	}

	for {
		fmt.Fprint(o.Out, promptStyle.Sprint("Choose an action: "))
		line, err := o.readLine(ctx)
		if err != nil {
			return Decision{}, err
		}
		action, ok := matchAction(line, choices)
		if !ok {
			fmt.Fprintln(o.Out, hintStyle.Sprintf("Unrecognized choice %q.", line))
			continue
		}
		d := Decision{Action: action}
		if action == ActionFixWithInstructions {
			fmt.Fprint(o.Out, promptStyle.Sprint("Instructions: "))
			if d.Instructions, err = o.readLine(ctx); err != nil {
				return Decision{}, err
			}
		}
		return d, nil
	}
}

func (o *ConsoleOperator) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := o.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read operator input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// matchAction accepts a choice number, an action name or a fuzzy match of
// either.
func matchAction(input string, choices []Action) (Action, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}
	if n, err := strconv.Atoi(input); err == nil {
		if n >= 1 && n <= len(choices) {
			return choices[n-1], true
		}
		return "", false
	}

	targets := make([]string, 0, len(choices)*2)
	byTarget := make(map[string]Action, len(choices)*2)
	for _, a := range choices {
		for _, t := range []string{string(a), actionLabels[a]} {
			targets = append(targets, t)
			byTarget[t] = a
		}
	}
	ranks := fuzzy.RankFindNormalizedFold(input, targets)
	if len(ranks) == 0 {
		return "", false
	}
	sort.Sort(ranks)
	return byTarget[ranks[0].Target], true
}
