package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/langforge/internal/events"
	"github.com/vk/langforge/internal/model"
	"github.com/vk/langforge/internal/pipeline"
	"github.com/vk/langforge/internal/repair"
	"github.com/vk/langforge/internal/testutil"
)

const testGrammar = `start: sum
sum: NUMBER ("+" NUMBER)* -> add
%import common.NUMBER`

type constTester struct{ inputs []string }

func (c *constTester) Test(_ context.Context, _ model.Artifacts, input string) (json.RawMessage, error) {
	c.inputs = append(c.inputs, input)
	return json.RawMessage("3"), nil
}

func writeInputs(t *testing.T) (dir, specPath string) {
	t.Helper()
	dir = t.TempDir()
	specPath = filepath.Join(dir, "spec.txt")
	require.NoError(t, os.WriteFile(specPath, []byte("sums of integers"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "semantics.txt"), []byte("evaluate to a number"), 0o644))
	return dir, specPath
}

func compilerConfig(t *testing.T, dir string) string {
	t.Helper()
	script := testutil.ShellScript(t, `echo 'exports.get_parser = function () {}' > "$2"`)
	path := filepath.Join(dir, "langforge.hcl")
	hcl := "compiler_command = [\"" + script[0] + "\", \"" + script[1] + "\"]\ncache_dir = \"" + filepath.Join(dir, "cache") + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(hcl), 0o644))
	return path
}

func TestNewConfig_Validation(t *testing.T) {
	_, err := NewConfig(Config{OutputDir: "out"})
	require.Error(t, err)
	_, err = NewConfig(Config{SpecPath: "spec.txt"})
	require.Error(t, err)
	_, err = NewConfig(Config{SpecPath: "spec.txt", OutputDir: "out", NonInteractive: "maybe"})
	require.ErrorContains(t, err, "invalid non-interactive mode")

	cfg, err := NewConfig(Config{SpecPath: "spec.txt", OutputDir: "out", NonInteractive: NonInteractiveAbort})
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.OutputDir)
}

func TestNewApp_PanicsOnMissingSpec(t *testing.T) {
	cfg := &Config{SpecPath: filepath.Join(t.TempDir(), "missing.txt"), OutputDir: t.TempDir()}
	assert.PanicsWithError(t, "failed to read specification: open "+cfg.SpecPath+": no such file or directory", func() {
		SetupAppTest(t, cfg, nil)
	})
}

func TestNewApp_PanicsOnBrokenConfig(t *testing.T) {
	dir, spec := writeInputs(t)
	bad := filepath.Join(dir, "bad.hcl")
	require.NoError(t, os.WriteFile(bad, []byte("model = "), 0o644))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		assert.Contains(t, r.(error).Error(), "failed to load configuration")
	}()
	SetupAppTest(t, &Config{SpecPath: spec, OutputDir: t.TempDir(), ConfigPath: bad}, nil)
}

func TestNewApp_FlagOverridesWin(t *testing.T) {
	_, spec := writeInputs(t)
	cfg := &Config{SpecPath: spec, OutputDir: t.TempDir(), Model: "flag-model", CacheRead: true}
	a, _ := SetupAppTest(t, cfg, &Deps{
		Client:  testutil.NewFakeSynth(),
		Environ: []string{"LANGFORGE_MODEL=env-model", "LANGFORGE_CACHE_DIR=" + t.TempDir()},
	})
	assert.Equal(t, "flag-model", a.Settings().Model)
	assert.True(t, a.Settings().CacheRead)
}

func TestOperatorSelection(t *testing.T) {
	_, spec := writeInputs(t)
	tests := []struct {
		name string
		cfg  Config
		want repair.Operator
	}{
		{"auto-fix", Config{AutoFix: true, NonInteractive: NonInteractiveAbort}, repair.FixedOperator{Decision: repair.Decision{Action: repair.ActionAutoFix}}},
		{"continue", Config{NonInteractive: NonInteractiveContinue}, repair.FixedOperator{Decision: repair.Decision{Action: repair.ActionContinue}}},
		{"abort", Config{NonInteractive: NonInteractiveAbort}, repair.FixedOperator{Decision: repair.Decision{Action: repair.ActionAbort}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.SpecPath = spec
			cfg.OutputDir = t.TempDir()
			a, _ := SetupAppTest(t, &cfg, &Deps{Client: testutil.NewFakeSynth(), Environ: []string{"LANGFORGE_CACHE_DIR=" + t.TempDir()}})
			assert.Equal(t, tc.want, a.operator(&Deps{}))
		})
	}

	a, _ := SetupAppTest(t, &Config{SpecPath: spec, OutputDir: t.TempDir()}, &Deps{Client: testutil.NewFakeSynth(), Environ: []string{"LANGFORGE_CACHE_DIR=" + t.TempDir()}})
	assert.IsType(t, &repair.ConsoleOperator{}, a.operator(&Deps{In: strings.NewReader("")}))
}

func TestReadSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.calc")
	require.NoError(t, os.WriteFile(path, []byte("1+2\n"), 0o644))

	got, err := readSample(path)
	require.NoError(t, err)
	assert.Equal(t, "1+2", got)

	got, err = readSample("3+4")
	require.NoError(t, err)
	assert.Equal(t, "3+4", got)

	got, err = readSample("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRun_EndToEnd(t *testing.T) {
	dir, spec := writeInputs(t)
	client := testutil.NewFakeSynth(
		testutil.Text(testGrammar),
		testutil.Text("function evaluate(node) { return 3 }"),
	)
	tester := &constTester{}
	out := filepath.Join(dir, "out")

	cfg := &Config{
		SpecPath:      spec,
		SemanticsPath: filepath.Join(dir, "semantics.txt"),
		Sample:        "1+2",
		OutputDir:     out,
		ConfigPath:    compilerConfig(t, dir),
	}
	a, logs := SetupAppTest(t, cfg, &Deps{Client: client, Tester: tester})

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusSuccess, res.Status)
	assert.JSONEq(t, "3", string(res.Value()))
	assert.Equal(t, []string{"1+2"}, tester.inputs)
	assert.Contains(t, logs.String(), "success: "+out)

	for _, name := range []string{model.GrammarFile, model.ParserFile, model.InterpreterFile, model.RunnerFile} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}
	assert.Equal(t, events.KindSucceeded, a.tracker.Snapshot().State)
}

func TestRun_AbortReturnsErrAbort(t *testing.T) {
	dir, spec := writeInputs(t)
	client := testutil.NewFakeSynth(
		testutil.Text(testGrammar),
		testutil.Text("function evaluate(node) { throw new Error('nope') }"),
	)
	cfg := &Config{
		SpecPath:       spec,
		Sample:         "1+2",
		OutputDir:      filepath.Join(dir, "out"),
		ConfigPath:     compilerConfig(t, dir),
		NonInteractive: NonInteractiveAbort,
	}
	tester := testerFunc(func(string) (json.RawMessage, error) {
		return nil, &repair.TestFailure{Kind: repair.FailureEvaluation, Message: "nope"}
	})
	a, _ := SetupAppTest(t, cfg, &Deps{Client: client, Tester: tester})

	_, err := a.Run(context.Background())
	require.ErrorIs(t, err, repair.ErrAbort)
}

type testerFunc func(input string) (json.RawMessage, error)

func (f testerFunc) Test(_ context.Context, _ model.Artifacts, input string) (json.RawMessage, error) {
	return f(input)
}

func TestStatusEndpoints(t *testing.T) {
	_, spec := writeInputs(t)
	a, _ := SetupAppTest(t, &Config{SpecPath: spec, OutputDir: t.TempDir()}, &Deps{Client: testutil.NewFakeSynth(), Environ: []string{"LANGFORGE_CACHE_DIR=" + t.TempDir()}})
	a.tracker.Emit(context.Background(), events.Event{Stage: events.StageCompile, Kind: events.KindRetry, Attempt: 2, Message: "unbalanced group"})

	srv := httptest.NewServer(a.statusMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status events.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, events.StageCompile, status.Stage)
	assert.Equal(t, events.KindRetry, status.State)
	assert.Equal(t, 2, status.Attempt)
	assert.Len(t, status.History, 1)
}
