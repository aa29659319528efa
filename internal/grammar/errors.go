package grammar

import (
	"fmt"
	"strings"
)

// SynthesisError is returned when no valid grammar could be produced within
// the retry budget. Attempts holds the error message of every attempt in
// order.
type SynthesisError struct {
	Attempts []string
}

func (e *SynthesisError) Error() string {
	var b strings.Builder
	last := ""
	if n := len(e.Attempts); n > 0 {
		last = e.Attempts[n-1]
	}
	fmt.Fprintf(&b, "grammar synthesis failed after %d attempt(s): %s", len(e.Attempts), last)
	for i, msg := range e.Attempts {
		fmt.Fprintf(&b, "\n  attempt %d: %s", i+1, msg)
	}
	return b.String()
}

// CompilationError is returned when the external grammar compiler rejected
// the grammar on every attempt. It carries the offending grammar so the
// report can be diagnosed without re-running. Attempts holds the compiler
// diagnostics of every attempt in order.
type CompilationError struct {
	Grammar  string
	Attempts []string
}

// Diagnostics returns the output of the last attempt.
func (e *CompilationError) Diagnostics() string {
	if n := len(e.Attempts); n > 0 {
		return e.Attempts[n-1]
	}
	return ""
}

func (e *CompilationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "grammar compilation failed after %d attempt(s): %s",
		len(e.Attempts), strings.TrimSpace(e.Diagnostics()))
	if len(e.Attempts) > 1 {
		for i, msg := range e.Attempts {
			fmt.Fprintf(&b, "\n  attempt %d: %s", i+1, firstLine(msg))
		}
	}
	fmt.Fprintf(&b, "\n--- grammar ---\n%s", e.Grammar)
	return b.String()
}
