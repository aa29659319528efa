package repair

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a test of the interpreter failed.
type FailureKind string

const (
	// FailureParse means the parser rejected the probe input.
	FailureParse FailureKind = "parse"
	// FailureEvaluation means evaluate(node) threw.
	FailureEvaluation FailureKind = "evaluation"
	// FailureIntegration means the parser and interpreter could not be
	// loaded or wired together.
	FailureIntegration FailureKind = "integration"
)

// TestFailure is a recoverable failure of the interpreter on the probe
// input. Message is passed verbatim into the next regeneration.
type TestFailure struct {
	Kind    FailureKind
	Message string
}

func (e *TestFailure) Error() string {
	return fmt.Sprintf("%s failure: %s", e.Kind, e.Message)
}

// ErrAbort reports that the operator terminated the run.
var ErrAbort = errors.New("run aborted by operator")

// FatalAbort is returned when the operator chooses to abort.
type FatalAbort struct {
	// Cause is the failure that was on screen when the operator aborted.
	Cause error
}

func (e *FatalAbort) Error() string {
	if e.Cause == nil {
		return ErrAbort.Error()
	}
	return fmt.Sprintf("%s after: %s", ErrAbort.Error(), e.Cause)
}

func (e *FatalAbort) Unwrap() error { return ErrAbort }

// failureMessage extracts the text handed to the regenerator.
func failureMessage(err error) string {
	var tf *TestFailure
	if errors.As(err, &tf) {
		return tf.Message
	}
	return err.Error()
}
