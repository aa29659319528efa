package events

import (
	"context"
	"sync"
)

// Status is a point-in-time view of a pipeline run.
type Status struct {
	Stage   string  `json:"stage"`
	State   Kind    `json:"state"`
	Attempt int     `json:"attempt,omitempty"`
	Message string  `json:"message,omitempty"`
	History []Event `json:"history"`
}

// Tracker remembers the latest non-fragment event per run. It backs the
// status endpoint and is safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	current Event
	history []Event
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Emit implements Sink.
func (t *Tracker) Emit(_ context.Context, ev Event) {
	if ev.Kind == KindFragment {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = ev
	t.history = append(t.history, ev)
}

// Snapshot returns a copy of the tracked state.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	history := make([]Event, len(t.history))
	copy(history, t.history)
	return Status{
		Stage:   t.current.Stage,
		State:   t.current.Kind,
		Attempt: t.current.Attempt,
		Message: t.current.Message,
		History: history,
	}
}
