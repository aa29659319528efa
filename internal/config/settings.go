package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/vk/langforge/internal/model"
)

// Default values.
const (
	DefaultCacheDir       = ".langforge-cache"
	DefaultCacheBackend   = "fs"
	DefaultModel          = "gpt-5"
	DefaultAPIBase        = "https://api.openai.com/v1"
	DefaultRetryDelay     = time.Second
	DefaultRequestTimeout = 10 * time.Minute
)

// Settings is the resolved configuration of a run.
type Settings struct {
	CacheDir     string
	CacheRead    bool
	CacheWrite   bool
	CacheBackend string

	Model          string
	APIBase        string
	APIKey         string
	RequestTimeout time.Duration

	CompilerCommand []string
	RunnerCommand   []string

	MaxRetries int
	RetryDelay time.Duration

	// EventsURL is an optional socket.io endpoint receiving pipeline events.
	EventsURL string
}

// Defaults returns the built-in settings.
func Defaults() *Settings {
	return &Settings{
		CacheDir:        DefaultCacheDir,
		CacheRead:       false,
		CacheWrite:      true,
		CacheBackend:    DefaultCacheBackend,
		Model:           DefaultModel,
		APIBase:         DefaultAPIBase,
		RequestTimeout:  DefaultRequestTimeout,
		CompilerCommand: []string{"lark-js"},
		RunnerCommand:   []string{"node"},
		MaxRetries:      model.DefaultMaxRetries,
		RetryDelay:      DefaultRetryDelay,
	}
}

// RetryPolicy returns the retry policy shared by the retrying stages.
func (s *Settings) RetryPolicy() model.RetryPolicy {
	return model.RetryPolicy{Attempts: s.MaxRetries, Delay: s.RetryDelay}.Normalize()
}

// Validate reports settings that cannot work.
func (s *Settings) Validate() error {
	var problems []string
	switch s.CacheBackend {
	case "fs", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unknown cache backend %q (want fs or sqlite)", s.CacheBackend))
	}
	if (s.CacheRead || s.CacheWrite) && strings.TrimSpace(s.CacheDir) == "" {
		problems = append(problems, "cache directory must not be empty when caching is enabled")
	}
	if len(s.CompilerCommand) == 0 {
		problems = append(problems, "compiler command must not be empty")
	}
	if len(s.RunnerCommand) == 0 {
		problems = append(problems, "runner command must not be empty")
	}
	if s.MaxRetries < 1 {
		problems = append(problems, fmt.Sprintf("max retries must be at least 1, got %d", s.MaxRetries))
	}
	if s.RetryDelay < 0 {
		problems = append(problems, "retry delay must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
