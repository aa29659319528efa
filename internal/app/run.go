package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/vk/langforge/internal/ctxlog"
	"github.com/vk/langforge/internal/pipeline"
)

// Run executes one generation and releases every resource the App holds.
func (a *App) Run(ctx context.Context) (*pipeline.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	a.logger.Debug("App.Run method started.")
	defer a.close()

	a.statusServer()

	res, err := a.pipeline.Run(ctx, a.run)
	if err != nil {
		return res, err
	}

	switch res.Status {
	case pipeline.StatusSuccess:
		a.logger.Info("🏁 Language generated.", "output", res.Artifacts.Dir, "result", string(res.Value()))
	case pipeline.StatusUntested:
		a.logger.Warn("Language generated without a probe input; interpreter untested.", "output", res.Artifacts.Dir)
	default:
		a.logger.Warn("Language generated with a flagged interpreter.", "output", res.Artifacts.Dir, "error", res.Outcome.Err)
	}
	fmt.Fprintf(a.outW, "%s: %s\n", res.Status, res.Artifacts.Dir)

	a.logger.Debug("App.Run method finished.")
	return res, nil
}

func (a *App) close() {
	var errs []error
	if err := a.closeStatusServer(); err != nil {
		errs = append(errs, err)
	}
	if a.socket != nil {
		errs = append(errs, a.socket.Close())
	}
	if c, ok := a.client.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.cache.Close())
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Failed to release resources.", "error", err)
	}
}
