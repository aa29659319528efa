package grammar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/langforge/internal/model"
	"github.com/vk/langforge/internal/testutil"
)

const generatedParser = `const DATA = {"parser": {}, "options": {"debug": false, "strict": false, "keep_all_tokens": false, "ordered_sets": true, "start": ["start"]}};
module.exports = { get_parser };
`

func TestStripUnsupportedOptions(t *testing.T) {
	got := string(StripUnsupportedOptions([]byte(generatedParser)))
	assert.NotContains(t, got, `"strict"`)
	assert.NotContains(t, got, `"ordered_sets"`)
	assert.Contains(t, got, `"debug": false, "keep_all_tokens": false, "start": ["start"]`)

	again := string(StripUnsupportedOptions([]byte(got)))
	assert.Equal(t, got, again, "the rewrite must be idempotent")
}

func TestStripUnsupportedOptions_LastEntry(t *testing.T) {
	got := string(StripUnsupportedOptions([]byte(`{"debug": true, "strict": null}`)))
	assert.Equal(t, `{"debug": true,}`, got)
}

func TestCompile_SuccessPatchesParser(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	// The fake compiler copies a canned parser to the requested path.
	canned := filepath.Join(t.TempDir(), "canned.js")
	require.NoError(t, os.WriteFile(canned, []byte(generatedParser), 0o644))
	cmd := testutil.ShellScript(t, `test -f "$1" || exit 3
cp "`+canned+`" "$2"`)

	out := t.TempDir()
	c := &Compiler{Command: cmd}
	res, err := c.Compile(ctx, validGrammar, out)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, model.GrammarFile), res.GrammarPath)
	assert.Equal(t, filepath.Join(out, model.ParserFile), res.ParserPath)

	grammarOnDisk, err := os.ReadFile(res.GrammarPath)
	require.NoError(t, err)
	assert.Equal(t, validGrammar, string(grammarOnDisk))

	parser, err := os.ReadFile(res.ParserPath)
	require.NoError(t, err)
	assert.NotContains(t, string(parser), "ordered_sets")

	// Compiling again into the same directory overwrites deterministically.
	res2, err := c.Compile(ctx, validGrammar, out)
	require.NoError(t, err)
	parser2, err := os.ReadFile(res2.ParserPath)
	require.NoError(t, err)
	assert.Equal(t, parser, parser2)
}

func TestCompile_MalformedGrammarFailsEveryAttempt(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	counter := filepath.Join(t.TempDir(), "count")
	cmd := testutil.ShellScript(t, `echo x >> "`+counter+`"
echo "Unexpected end of input: unbalanced group in $1" >&2
exit 1`)

	malformed := "start: (sum\nsum: NUMBER\nNUMBER: /[0-9]+/\n"
	c := &Compiler{Command: cmd, Retry: model.RetryPolicy{Attempts: 3}}
	_, err := c.Compile(ctx, malformed, t.TempDir())

	var compErr *CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Equal(t, malformed, compErr.Grammar)
	assert.Contains(t, compErr.Diagnostics(), "unbalanced group")
	assert.Contains(t, compErr.Diagnostics(), "status 1")
	assert.Len(t, compErr.Attempts, 3)
	assert.Contains(t, err.Error(), malformed)

	runs, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(runs), "x"), "the compiler must run exactly three times")
}

func TestCompile_ErrorKeepsEveryAttempt(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	counter := filepath.Join(t.TempDir(), "count")
	cmd := testutil.ShellScript(t, `echo x >> "`+counter+`"
echo "failure number $(wc -l < "`+counter+`" | tr -d ' ')" >&2
exit 1`)

	c := &Compiler{Command: cmd, Retry: model.RetryPolicy{Attempts: 3}}
	_, err := c.Compile(ctx, validGrammar, t.TempDir())

	var compErr *CompilationError
	require.ErrorAs(t, err, &compErr)
	require.Len(t, compErr.Attempts, 3)
	for i, msg := range compErr.Attempts {
		assert.Contains(t, msg, fmt.Sprintf("failure number %d", i+1))
	}
	assert.Contains(t, compErr.Diagnostics(), "failure number 3")
	assert.Contains(t, err.Error(), "attempt 1: ")
	assert.Contains(t, err.Error(), "failure number 1")
}

func TestCompile_MissingParserIsFailure(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	cmd := testutil.ShellScript(t, `exit 0`)

	c := &Compiler{Command: cmd, Retry: model.RetryPolicy{Attempts: 2}}
	_, err := c.Compile(ctx, validGrammar, t.TempDir())

	var compErr *CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Contains(t, compErr.Diagnostics(), "unreadable")
}

func TestCompile_LaunchFailure(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	c := &Compiler{Command: []string{filepath.Join(t.TempDir(), "does-not-exist")}, Retry: model.RetryPolicy{Attempts: 1}}
	_, err := c.Compile(ctx, validGrammar, t.TempDir())

	var compErr *CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.Contains(t, compErr.Diagnostics(), "failed to launch compiler")
}
