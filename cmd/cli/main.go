package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/vk/langforge/internal/app"
	"github.com/vk/langforge/internal/cli"
	"github.com/vk/langforge/internal/repair"
)

// main is the entrypoint for the langforge application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// The real main function handles errors and exit codes.
	if err := run(ctx, os.Stdout, os.Args[1:], nil); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			stop()
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. deps is nil outside tests.
func run(ctx context.Context, outW io.Writer, args []string, deps *app.Deps) (err error) {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// The app panics on critical startup errors; report them as a clean error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	langforge := app.NewApp(outW, appConfig, deps)
	if _, err := langforge.Run(ctx); err != nil {
		if errors.Is(err, repair.ErrAbort) {
			return &cli.ExitError{Code: cli.ExitCodeAbort, Message: err.Error()}
		}
		return err
	}
	return nil
}
