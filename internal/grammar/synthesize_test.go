package grammar

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/langforge/internal/cache"
	"github.com/vk/langforge/internal/events"
	"github.com/vk/langforge/internal/model"
	"github.com/vk/langforge/internal/testutil"
)

const validGrammar = `start: sum
sum: product (ADD_OP product)*
product: NUMBER | "(" sum ")" -> group
ADD_OP: "+" | "-"
NUMBER: /[0-9]+/
%import common.WS
%ignore WS`

func newRun(t *testing.T) *model.Run {
	t.Helper()
	run, err := model.NewRun("integers with + - * / and parentheses", "evaluate to a number", "", t.TempDir())
	require.NoError(t, err)
	return run
}

func newCache(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.New(cache.Options{Dir: t.TempDir(), Read: true, Write: true})
	require.NoError(t, err)
	return store
}

func TestSynthesize_StreamsAndValidates(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	client := testutil.NewFakeSynth(testutil.Reply{Fragments: []string{"start: sum\n", validGrammar[len("start: sum\n"):]}})
	tracker := events.NewTracker()
	var fragments []string
	sink := events.Multi{tracker, sinkFunc(func(ev events.Event) {
		if ev.Kind == events.KindFragment {
			fragments = append(fragments, ev.Message)
		}
	})}

	s := &Synthesizer{Client: client, Events: sink, Model: "gpt-5"}
	out, err := s.Synthesize(ctx, newRun(t))
	require.NoError(t, err)
	assert.Equal(t, validGrammar+"\n", out)
	assert.Len(t, fragments, 2)
	assert.Equal(t, events.KindSucceeded, tracker.Snapshot().State)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	require.NotNil(t, reqs[0].Grammar)
	assert.Equal(t, MetaGrammar, reqs[0].Grammar.Definition)
	assert.Equal(t, "gpt-5", reqs[0].Model)
	assert.NotContains(t, reqs[0].Input, "Previous attempts")
}

func TestSynthesize_CacheIdempotence(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	client := testutil.NewFakeSynth(testutil.Text(validGrammar))
	store := newCache(t)
	run := newRun(t)

	s := &Synthesizer{Client: client, Cache: store}
	first, err := s.Synthesize(ctx, run)
	require.NoError(t, err)
	second, err := s.Synthesize(ctx, run)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, client.Calls(), "the synthesis service must be invoked at most once")
}

func TestSynthesize_RetryBoundAndAccumulatedErrors(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	client := testutil.NewFakeSynth(
		testutil.Text("start: 'a'"),
		testutil.Text("start: \"b'"),
		testutil.Text("start: 'c'"),
		testutil.Text(validGrammar),
	)
	store := newCache(t)

	s := &Synthesizer{Client: client, Cache: store, Retry: model.RetryPolicy{Attempts: 3}}
	_, err := s.Synthesize(ctx, newRun(t))

	var synthErr *SynthesisError
	require.ErrorAs(t, err, &synthErr)
	require.Len(t, synthErr.Attempts, 3)
	assert.Equal(t, 3, client.Calls(), "exactly three attempts must be made")
	assert.Contains(t, synthErr.Attempts[1], "mismatched quotes")
	assert.Equal(t, 3, strings.Count(err.Error(), "\n  attempt "))

	reqs := client.Requests()
	assert.NotContains(t, reqs[0].Input, "Previous attempts")
	assert.Contains(t, reqs[1].Input, "1. "+synthErr.Attempts[0])
	assert.Contains(t, reqs[2].Input, "1. "+synthErr.Attempts[0])
	assert.Contains(t, reqs[2].Input, "2. "+synthErr.Attempts[1])

	_, ok := store.Get(ctx, CacheStage, cacheInput{Spec: newRun(t).Spec})
	assert.False(t, ok, "failures must not be cached")
}

func TestSynthesize_StreamErrorFailsAttempt(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	client := testutil.NewFakeSynth(
		testutil.Reply{Fragments: []string{"start: "}, Err: errors.New("connection reset")},
		testutil.Text(validGrammar),
	)

	s := &Synthesizer{Client: client}
	out, err := s.Synthesize(ctx, newRun(t))
	require.NoError(t, err)
	assert.Equal(t, validGrammar+"\n", out)
	require.Len(t, client.Requests(), 2)
	assert.Contains(t, client.Requests()[1].Input, "connection reset")
}

func TestSynthesize_SampleBiasesPromptAndKey(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	client := testutil.NewFakeSynth(testutil.Text(validGrammar), testutil.Text(validGrammar))
	store := newCache(t)
	s := &Synthesizer{Client: client, Cache: store}

	run := newRun(t)
	withSample := *run
	withSample.Sample = "1+2*3"

	_, err := s.Synthesize(ctx, run)
	require.NoError(t, err)
	_, err = s.Synthesize(ctx, &withSample)
	require.NoError(t, err)

	assert.Equal(t, 2, client.Calls(), "a different sample is a different cache key")
	assert.Contains(t, client.Requests()[1].Input, "1+2*3")
}

func TestSynthesize_StripsFences(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	client := testutil.NewFakeSynth(testutil.Text("```lark\n" + validGrammar + "\n```"))
	out, err := (&Synthesizer{Client: client}).Synthesize(ctx, newRun(t))
	require.NoError(t, err)
	assert.Equal(t, validGrammar+"\n", out)
}

func TestSynthesize_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := testutil.NewFakeSynth(testutil.Reply{Err: context.Canceled})

	_, err := (&Synthesizer{Client: client}).Synthesize(ctx, newRun(t))
	require.ErrorIs(t, err, context.Canceled)
}

type sinkFunc func(ev events.Event)

func (f sinkFunc) Emit(_ context.Context, ev events.Event) { f(ev) }
