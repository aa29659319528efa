// Package synth is the boundary to the external text synthesis service used
// by every generative stage. Streams are modelled as finite, lazy,
// non-restartable sequences of text fragments; an error anywhere in the
// sequence is a hard failure of the call.
package synth

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// GrammarConstraint restricts output to a context-free grammar, delivered to
// the service as a custom tool whose input must match Definition.
type GrammarConstraint struct {
	ToolName    string
	Description string
	// Syntax of Definition; the service understands "lark" and "regex".
	Syntax     string
	Definition string
}

// Request is a single synthesis call.
type Request struct {
	Model        string
	Instructions string
	Input        string
	Grammar      *GrammarConstraint
}

// Client talks to the synthesis service.
type Client interface {
	// Stream yields output fragments as they arrive. The sequence ends after
	// the first error, which callers must treat as fatal for the attempt.
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
	// Complete returns the whole output of a non-streaming call.
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrEmptyOutput is returned when the service produced no text at all.
var ErrEmptyOutput = errors.New("synthesis service returned empty output")

// ErrIncompleteStream is returned when a stream closes before the service
// reports the response complete. Partial text is never a result.
var ErrIncompleteStream = errors.New("synthesis stream ended before completion")

// Drain consumes a stream to completion. Every fragment is passed to
// onFragment (which may be nil) before the next one is read. Partial output
// is discarded if the stream fails.
func Drain(seq iter.Seq2[string, error], onFragment func(string)) (string, error) {
	var b strings.Builder
	for fragment, err := range seq {
		if err != nil {
			return "", err
		}
		if onFragment != nil {
			onFragment(fragment)
		}
		b.WriteString(fragment)
	}
	if b.Len() == 0 {
		return "", ErrEmptyOutput
	}
	return b.String(), nil
}

// StripFences removes a single surrounding Markdown code fence, if present.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		return strings.Trim(t, "`")
	}
	t = t[nl+1:]
	if end := strings.LastIndex(t, "```"); end >= 0 {
		t = t[:end]
	}
	return strings.TrimSpace(t)
}
