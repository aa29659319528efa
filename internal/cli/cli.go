package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/langforge/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// ExitCodeAbort is returned when the operator aborts a run.
const ExitCodeAbort = 130

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("langforge", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
langforge - Generate a grammar, parser and interpreter for a small language.

Usage:
  langforge [options] SPEC_FILE

Arguments:
  SPEC_FILE
    Plain-text description of the language's syntax.

Options:
`)
		flagSet.PrintDefaults()
	}

	semanticsFlag := flagSet.String("semantics", "", "Path to a description of the language's run-time behavior.")
	sampleFlag := flagSet.String("sample", "", "Sample program, literal or a path to a file. Used as the test input.")
	outFlag := flagSet.String("out", "out", "Directory for the generated artifacts.")
	configFlag := flagSet.String("config", "", "Path to an HCL config file or a directory of them.")
	envFileFlag := flagSet.String("env-file", ".env", "Path to a .env file. Missing files are ignored.")
	autoFixFlag := flagSet.Bool("auto-fix", false, "Repair failing interpreters without asking.")
	nonInteractiveFlag := flagSet.String("non-interactive", "", "Resolve failing interpreters without asking. Options: 'continue' or 'abort'.")
	modelFlag := flagSet.String("model", "", "Model name, overrides LANGFORGE_MODEL.")
	cacheDirFlag := flagSet.String("cache-dir", "", "Cache directory, overrides LANGFORGE_CACHE_DIR.")
	cacheReadFlag := flagSet.Bool("cache-read", false, "Serve repeated stage inputs from the cache.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		slog.Debug("No specification provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("expected one SPEC_FILE, got %d arguments", flagSet.NArg())}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		SpecPath:       flagSet.Arg(0),
		SemanticsPath:  *semanticsFlag,
		Sample:         *sampleFlag,
		OutputDir:      *outFlag,
		ConfigPath:     *configFlag,
		EnvFile:        *envFileFlag,
		AutoFix:        *autoFixFlag,
		NonInteractive: strings.ToLower(*nonInteractiveFlag),
		Model:          *modelFlag,
		CacheDir:       *cacheDirFlag,
		CacheRead:      *cacheReadFlag,
		LogFormat:      logFormat,
		LogLevel:       logLevel,
		StatusPort:     *statusPortFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
