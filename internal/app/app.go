package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/vk/langforge/internal/cache"
	"github.com/vk/langforge/internal/config"
	"github.com/vk/langforge/internal/ctxlog"
	"github.com/vk/langforge/internal/events"
	"github.com/vk/langforge/internal/example"
	"github.com/vk/langforge/internal/grammar"
	"github.com/vk/langforge/internal/interp"
	"github.com/vk/langforge/internal/model"
	"github.com/vk/langforge/internal/pipeline"
	"github.com/vk/langforge/internal/repair"
	"github.com/vk/langforge/internal/synth"
)

// Deps replaces process-level collaborators, mainly for tests. Nil fields
// fall back to the real implementations.
type Deps struct {
	Client   synth.Client
	Tester   repair.Tester
	Operator repair.Operator
	In       io.Reader
	Environ  []string
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	settings   *config.Settings
	run        *model.Run
	cache      *cache.Store
	client     synth.Client
	tracker    *events.Tracker
	socket     *events.SocketSink
	pipeline   *pipeline.Orchestrator
	httpServer *http.Server
}

// NewApp is the constructor for the main application. Unusable configuration
// or unreadable inputs are fatal startup errors and panic.
func NewApp(outW io.Writer, appConfig *Config, deps *Deps) *App {
	if deps == nil {
		deps = &Deps{}
	}
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	environ := deps.Environ
	if environ == nil {
		environ = os.Environ()
	}
	settings, err := config.Load(ctx, config.Options{
		ConfigPath: appConfig.ConfigPath,
		EnvFile:    appConfig.EnvFile,
		Environ:    environ,
	})
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	applyOverrides(settings, appConfig)
	if err := settings.Validate(); err != nil {
		panic(err)
	}
	logger.Debug("Configuration resolved.", "model", settings.Model, "cache_dir", settings.CacheDir, "cache_read", settings.CacheRead, "cache_write", settings.CacheWrite)

	run, err := loadRun(appConfig)
	if err != nil {
		panic(err)
	}

	store, err := cache.New(cache.Options{
		Dir:     settings.CacheDir,
		Read:    settings.CacheRead,
		Write:   settings.CacheWrite,
		Backend: settings.CacheBackend,
	})
	if err != nil {
		panic(fmt.Errorf("failed to open cache: %w", err))
	}

	client := deps.Client
	if client == nil {
		client = synth.NewHTTPClient(synth.HTTPOptions{
			BaseURL: settings.APIBase,
			APIKey:  settings.APIKey,
			Timeout: settings.RequestTimeout,
		})
	}

	a := &App{
		ctx:      ctx,
		outW:     outW,
		logger:   logger,
		config:   appConfig,
		settings: settings,
		run:      run,
		cache:    store,
		client:   client,
		tracker:  events.NewTracker(),
	}

	sinks := events.Multi{&events.LogSink{Stream: outW}, a.tracker}
	if settings.EventsURL != "" {
		socket, err := events.DialSocket(ctx, events.SocketOptions{URL: settings.EventsURL})
		if err != nil {
			logger.Warn("Event dashboard unavailable; continuing without it.", "url", settings.EventsURL, "error", err)
		} else {
			a.socket = socket
			sinks = append(sinks, socket)
		}
	}
	a.pipeline = a.newPipeline(sinks, deps)
	return a
}

func (a *App) newPipeline(sink events.Sink, deps *Deps) *pipeline.Orchestrator {
	policy := a.settings.RetryPolicy()
	interpreter := &interp.Synthesizer{Client: a.client, Cache: a.cache, Events: sink, Model: a.settings.Model}

	tester := deps.Tester
	if tester == nil {
		tester = &repair.SubprocessTester{Command: a.settings.RunnerCommand}
	}
	return &pipeline.Orchestrator{
		Grammar:     &grammar.Synthesizer{Client: a.client, Cache: a.cache, Events: sink, Model: a.settings.Model, Retry: policy},
		Compiler:    &grammar.Compiler{Command: a.settings.CompilerCommand, Events: sink, Retry: policy},
		Example:     &example.Generator{Client: a.client, Cache: a.cache, Events: sink, Model: a.settings.Model},
		Interpreter: interpreter,
		Repair: &repair.Loop{
			Regenerator: interpreter,
			Tester:      tester,
			Operator:    a.operator(deps),
			Events:      sink,
			Retry:       policy,
		},
		Events: sink,
	}
}

// operator picks how failed interpreter tests are resolved.
func (a *App) operator(deps *Deps) repair.Operator {
	switch {
	case deps.Operator != nil:
		return deps.Operator
	case a.config.AutoFix:
		return repair.FixedOperator{Decision: repair.Decision{Action: repair.ActionAutoFix}}
	case a.config.NonInteractive == NonInteractiveContinue:
		return repair.FixedOperator{Decision: repair.Decision{Action: repair.ActionContinue}}
	case a.config.NonInteractive == NonInteractiveAbort:
		return repair.FixedOperator{Decision: repair.Decision{Action: repair.ActionAbort}}
	}
	in := deps.In
	if in == nil {
		in = os.Stdin
	}
	return &repair.ConsoleOperator{In: in, Out: a.outW}
}

func applyOverrides(s *config.Settings, cfg *Config) {
	if cfg.Model != "" {
		s.Model = cfg.Model
	}
	if cfg.CacheDir != "" {
		s.CacheDir = cfg.CacheDir
	}
	if cfg.CacheRead {
		s.CacheRead = true
	}
}

// loadRun reads the input texts named by cfg.
func loadRun(cfg *Config) (*model.Run, error) {
	spec, err := os.ReadFile(cfg.SpecPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read specification: %w", err)
	}
	var semantics []byte
	if cfg.SemanticsPath != "" {
		if semantics, err = os.ReadFile(cfg.SemanticsPath); err != nil {
			return nil, fmt.Errorf("failed to read semantics: %w", err)
		}
	}
	sample, err := readSample(cfg.Sample)
	if err != nil {
		return nil, err
	}
	return model.NewRun(string(spec), string(semantics), sample, cfg.OutputDir)
}

// readSample treats arg as a file path when such a file exists, otherwise as
// literal program text.
func readSample(arg string) (string, error) {
	if arg == "" {
		return "", nil
	}
	info, err := os.Stat(arg)
	if err != nil || info.IsDir() {
		return arg, nil
	}
	b, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("failed to read sample: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// Settings returns the resolved settings. This is primarily for testing.
func (a *App) Settings() *config.Settings {
	return a.settings
}
