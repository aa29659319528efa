// Package events narrates pipeline progress to the operator as it happens.
// Every stage reports its transitions through a Sink; concrete sinks write to
// the structured log, keep a snapshot for the status endpoint, or forward the
// events to a remote socket.io dashboard.
package events

import (
	"context"
	"time"
)

// Kind classifies a pipeline event.
type Kind string

const (
	KindStarted   Kind = "started"
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
	KindRetry     Kind = "retry"
	KindCacheHit  Kind = "cache_hit"
	// KindFragment carries a piece of streamed synthesis output. It is for
	// incremental display only.
	KindFragment Kind = "fragment"
	KindInfo     Kind = "info"
)

// Stage names used across the pipeline.
const (
	StageGrammar     = "grammar"
	StageCompile     = "compile"
	StageSchema      = "schema"
	StageExample     = "example"
	StageInterpreter = "interpreter"
	StageRepair      = "repair"
	StagePipeline    = "pipeline"
)

// Event is a single narrated pipeline transition.
type Event struct {
	Time    time.Time `json:"time"`
	Stage   string    `json:"stage"`
	Kind    Kind      `json:"kind"`
	Attempt int       `json:"attempt,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Sink receives pipeline events.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Nop discards all events.
type Nop struct{}

// Emit implements Sink.
func (Nop) Emit(context.Context, Event) {}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Emit implements Sink.
func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

// Emit stamps ev and sends it to sink, tolerating a nil sink.
func Emit(ctx context.Context, sink Sink, ev Event) {
	if sink == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	sink.Emit(ctx, ev)
}
