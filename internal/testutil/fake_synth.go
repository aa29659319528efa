package testutil

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/vk/langforge/internal/synth"
)

// Reply is one scripted answer of a FakeSynth.
type Reply struct {
	// Fragments are yielded in order by Stream, or joined by Complete.
	Fragments []string
	// Err is yielded after the fragments (Stream) or returned (Complete).
	Err error
}

// Text is a single-fragment reply.
func Text(s string) Reply {
	return Reply{Fragments: []string{s}}
}

// FakeSynth is a scripted synth.Client. Replies are consumed in order across
// Stream and Complete calls; every request is recorded.
type FakeSynth struct {
	mu       sync.Mutex
	replies  []Reply
	requests []synth.Request
	// Fallback answers calls once the script is exhausted. When nil those
	// calls fail.
	Fallback func(req synth.Request) Reply
}

// NewFakeSynth returns a client that answers with replies in order.
func NewFakeSynth(replies ...Reply) *FakeSynth {
	return &FakeSynth{replies: replies}
}

var errScriptExhausted = errors.New("fake synth: no scripted reply left")

func (f *FakeSynth) next(req synth.Request) Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		if f.Fallback != nil {
			return f.Fallback(req)
		}
		return Reply{Err: errScriptExhausted}
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r
}

// Stream implements synth.Client.
func (f *FakeSynth) Stream(_ context.Context, req synth.Request) iter.Seq2[string, error] {
	reply := f.next(req)
	return func(yield func(string, error) bool) {
		for _, fragment := range reply.Fragments {
			if !yield(fragment, nil) {
				return
			}
		}
		if reply.Err != nil {
			yield("", reply.Err)
		}
	}
}

// Complete implements synth.Client.
func (f *FakeSynth) Complete(_ context.Context, req synth.Request) (string, error) {
	reply := f.next(req)
	if reply.Err != nil {
		return "", reply.Err
	}
	var out string
	for _, fragment := range reply.Fragments {
		out += fragment
	}
	if out == "" {
		return "", synth.ErrEmptyOutput
	}
	return out, nil
}

// Requests returns every request seen so far.
func (f *FakeSynth) Requests() []synth.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]synth.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Calls returns the number of requests seen so far.
func (f *FakeSynth) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
