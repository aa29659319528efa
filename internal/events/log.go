package events

import (
	"context"
	"io"
	"sync"

	"github.com/vk/langforge/internal/ctxlog"
)

// LogSink narrates events through the logger found in the context. Streamed
// fragments are not logged; they are copied verbatim to Stream when set so
// the operator can watch synthesis output arrive.
type LogSink struct {
	Stream io.Writer

	mu         sync.Mutex
	lastStream string
}

// Emit implements Sink.
func (s *LogSink) Emit(ctx context.Context, ev Event) {
	logger := ctxlog.FromContext(ctx).With("stage", ev.Stage)
	if ev.Attempt > 0 {
		logger = logger.With("attempt", ev.Attempt)
	}

	switch ev.Kind {
	case KindFragment:
		if s.Stream == nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		s.lastStream = ev.Stage
		io.WriteString(s.Stream, ev.Message)
		return
	case KindFailed:
		s.endStream()
		logger.Error("Stage failed.", "error", ev.Message)
	case KindRetry:
		s.endStream()
		logger.Warn("Retrying stage.", "reason", ev.Message)
	case KindCacheHit:
		logger.Info("Cache hit, skipping external call.")
	case KindStarted:
		logger.Info("Stage started.")
	case KindSucceeded:
		s.endStream()
		logger.Info("Stage succeeded.", "detail", ev.Message)
	default:
		logger.Info(ev.Message)
	}
}

// endStream terminates a partially written fragment line.
func (s *LogSink) endStream() {
	if s.Stream == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastStream != "" {
		io.WriteString(s.Stream, "\n")
		s.lastStream = ""
	}
}
