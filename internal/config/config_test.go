package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(context.Background(), Options{})
	require.NoError(t, err)
	if diff := cmp.Diff(Defaults(), s); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, s.Validate())
	assert.Equal(t, 3, s.RetryPolicy().Attempts)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "langforge.hcl", `
cache_dir        = "from-file"
cache_read       = true
model            = "file-model"
api_key          = env.SECRET_FROM_DOTENV
compiler_command = ["npx", "lark-js"]
max_retries      = 5
retry_delay      = "250ms"
`)
	envFile := writeFile(t, dir, ".env", "SECRET_FROM_DOTENV=dotenv-key\nLANGFORGE_MODEL=dotenv-model\nLANGFORGE_EVENTS_URL=http://dotenv:3000\n")

	s, err := Load(context.Background(), Options{
		ConfigPath: cfg,
		EnvFile:    envFile,
		Environ:    []string{"LANGFORGE_MODEL=env-model", "LANGFORGE_CACHE_DIR=", "LANGFORGE_RUNNER=node --no-warnings"},
	})
	require.NoError(t, err)

	assert.Equal(t, "from-file", s.CacheDir, "empty variables do not override")
	assert.True(t, s.CacheRead)
	assert.True(t, s.CacheWrite)
	assert.Equal(t, "env-model", s.Model, "process env beats .env and file")
	assert.Equal(t, "dotenv-key", s.APIKey)
	assert.Equal(t, "http://dotenv:3000", s.EventsURL)
	assert.Equal(t, []string{"npx", "lark-js"}, s.CompilerCommand)
	assert.Equal(t, []string{"node", "--no-warnings"}, s.RunnerCommand)
	assert.Equal(t, 5, s.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, s.RetryDelay)
}

func TestLoad_DirectoryAppliesFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.hcl", `model = "first"
cache_backend = "sqlite"`)
	writeFile(t, dir, "b.hcl", `model = "second"`)

	s, err := Load(context.Background(), Options{ConfigPath: dir})
	require.NoError(t, err)
	assert.Equal(t, "second", s.Model)
	assert.Equal(t, "sqlite", s.CacheBackend)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(context.Background(), Options{EnvFile: filepath.Join(t.TempDir(), ".env")})
	require.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{
			name:    "unknown attribute",
			opts:    Options{ConfigPath: writeFile(t, dir, "unknown.hcl", `colour = "blue"`)},
			wantErr: "failed to decode config file",
		},
		{
			name:    "syntax error",
			opts:    Options{ConfigPath: writeFile(t, dir, "broken.hcl", `model = `)},
			wantErr: "failed to parse config file",
		},
		{
			name:    "bad duration in file",
			opts:    Options{ConfigPath: writeFile(t, dir, "delay.hcl", `retry_delay = "soon"`)},
			wantErr: "retry_delay",
		},
		{
			name:    "bad bool in env",
			opts:    Options{Environ: []string{"LANGFORGE_CACHE_READ=maybe"}},
			wantErr: "LANGFORGE_CACHE_READ",
		},
		{
			name:    "bad int in env",
			opts:    Options{Environ: []string{"LANGFORGE_MAX_RETRIES=many"}},
			wantErr: "LANGFORGE_MAX_RETRIES",
		},
		{
			name:    "missing config path",
			opts:    Options{ConfigPath: filepath.Join(dir, "nope.hcl")},
			wantErr: "failed to find config files",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(context.Background(), tc.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSettings_Validate(t *testing.T) {
	s := Defaults()
	s.CacheBackend = "redis"
	s.MaxRetries = 0
	s.RunnerCommand = nil

	err := s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown cache backend "redis"`)
	assert.Contains(t, err.Error(), "max retries")
	assert.Contains(t, err.Error(), "runner command")
}
