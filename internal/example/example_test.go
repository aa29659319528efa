package example

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/langforge/internal/cache"
	"github.com/vk/langforge/internal/model"
	"github.com/vk/langforge/internal/testutil"
)

const grammarText = "start: NUMBER (\"+\" NUMBER)*\nNUMBER: /[0-9]+/\n"

func TestGenerate_ConstrainedByGrammarAndCached(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	client := testutil.NewFakeSynth(testutil.Text("```\n1+2+3\n```"))
	store, err := cache.New(cache.Options{Dir: t.TempDir(), Read: true, Write: true})
	require.NoError(t, err)

	run, err := model.NewRun("sums of integers", "", "", t.TempDir())
	require.NoError(t, err)

	g := &Generator{Client: client, Cache: store, Model: "gpt-5"}
	program, err := g.Generate(ctx, run, grammarText)
	require.NoError(t, err)
	assert.Equal(t, "1+2+3", program)

	again, err := g.Generate(ctx, run, grammarText)
	require.NoError(t, err)
	assert.Equal(t, program, again)
	assert.Equal(t, 1, client.Calls())

	req := client.Requests()[0]
	require.NotNil(t, req.Grammar)
	assert.Equal(t, grammarText, req.Grammar.Definition)
	assert.Contains(t, req.Input, "sums of integers")
}

func TestGenerate_Failure(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	client := testutil.NewFakeSynth(testutil.Reply{Err: errors.New("quota exceeded")})
	run, err := model.NewRun("x", "", "", t.TempDir())
	require.NoError(t, err)

	_, err = (&Generator{Client: client}).Generate(ctx, run, grammarText)
	require.ErrorContains(t, err, "quota exceeded")
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(dir, "1+2")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1+2\n", string(data))
}
