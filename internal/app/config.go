package app

import (
	"errors"
	"fmt"
)

// Non-interactive repair modes.
const (
	NonInteractiveContinue = "continue"
	NonInteractiveAbort    = "abort"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	SpecPath      string // language description
	SemanticsPath string // run-time behavior description, optional
	Sample        string // literal program or path to one, optional
	OutputDir     string

	ConfigPath string // HCL file or directory, optional
	EnvFile    string

	AutoFix        bool
	NonInteractive string

	// Flag overrides; zero values leave the resolved settings untouched.
	Model     string
	CacheDir  string
	CacheRead bool

	LogFormat  string
	LogLevel   string
	StatusPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.SpecPath == "" {
		return nil, errors.New("SpecPath is a required configuration field and cannot be empty")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OutputDir is a required configuration field and cannot be empty")
	}
	switch cfg.NonInteractive {
	case "", NonInteractiveContinue, NonInteractiveAbort:
	default:
		return nil, fmt.Errorf("invalid non-interactive mode %q: must be %q or %q", cfg.NonInteractive, NonInteractiveContinue, NonInteractiveAbort)
	}
	if cfg.StatusPort < 0 {
		return nil, fmt.Errorf("invalid status port %d", cfg.StatusPort)
	}
	return &cfg, nil
}
