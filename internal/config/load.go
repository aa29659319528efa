package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/vk/langforge/internal/ctxlog"
	"github.com/vk/langforge/internal/fsutil"
)

// Options selects the configuration sources.
type Options struct {
	// ConfigPath is an HCL file, or a directory whose .hcl files are applied
	// in path order. Empty means no file.
	ConfigPath string
	// EnvFile is a .env file. A missing file is ignored.
	EnvFile string
	// Environ is the process environment in os.Environ form.
	Environ []string
}

// Load resolves settings from defaults, configuration files, the .env file
// and the environment. Flags are applied by the caller afterwards.
func Load(ctx context.Context, opts Options) (*Settings, error) {
	logger := ctxlog.FromContext(ctx)
	env, err := environment(opts)
	if err != nil {
		return nil, err
	}

	s := Defaults()
	if opts.ConfigPath != "" {
		files, err := fsutil.FindFilesByExtension(opts.ConfigPath, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to find config files in %s: %w", opts.ConfigPath, err)
		}
		parser := hclparse.NewParser()
		for _, path := range files {
			logger.Debug("Applying config file.", "path", path)
			if err := applyFile(s, parser, path, env); err != nil {
				return nil, err
			}
		}
	}

	if err := applyEnv(s, env); err != nil {
		return nil, err
	}
	return s, nil
}

// environment merges the .env file under the process environment; real
// variables always win.
func environment(opts Options) (map[string]string, error) {
	env := make(map[string]string)
	if opts.EnvFile != "" {
		dotenv, err := godotenv.Read(opts.EnvFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read env file %s: %w", opts.EnvFile, err)
		default:
			for k, v := range dotenv {
				env[k] = v
			}
		}
	}
	for _, kv := range opts.Environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	return env, nil
}

// Environment variable names.
const (
	EnvCacheDir       = "LANGFORGE_CACHE_DIR"
	EnvCacheRead      = "LANGFORGE_CACHE_READ"
	EnvCacheWrite     = "LANGFORGE_CACHE_WRITE"
	EnvCacheBackend   = "LANGFORGE_CACHE_BACKEND"
	EnvModel          = "LANGFORGE_MODEL"
	EnvAPIBase        = "OPENAI_BASE_URL"
	EnvAPIKey         = "OPENAI_API_KEY"
	EnvRequestTimeout = "LANGFORGE_REQUEST_TIMEOUT"
	EnvCompiler       = "LANGFORGE_COMPILER"
	EnvRunner         = "LANGFORGE_RUNNER"
	EnvMaxRetries     = "LANGFORGE_MAX_RETRIES"
	EnvRetryDelay     = "LANGFORGE_RETRY_DELAY"
	EnvEventsURL      = "LANGFORGE_EVENTS_URL"
)

func applyEnv(s *Settings, env map[string]string) error {
	var errs []error
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	command := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok {
			*dst = strings.Fields(v)
		}
	}

	str(EnvCacheDir, &s.CacheDir)
	boolean(EnvCacheRead, &s.CacheRead)
	boolean(EnvCacheWrite, &s.CacheWrite)
	str(EnvCacheBackend, &s.CacheBackend)
	str(EnvModel, &s.Model)
	str(EnvAPIBase, &s.APIBase)
	str(EnvAPIKey, &s.APIKey)
	duration(EnvRequestTimeout, &s.RequestTimeout)
	command(EnvCompiler, &s.CompilerCommand)
	command(EnvRunner, &s.RunnerCommand)
	if v, ok := lookup(EnvMaxRetries); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvMaxRetries, err))
		} else {
			s.MaxRetries = n
		}
	}
	duration(EnvRetryDelay, &s.RetryDelay)
	str(EnvEventsURL, &s.EventsURL)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	return nil
}
