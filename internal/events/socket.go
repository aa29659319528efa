package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/langforge/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// SocketEventName is the socket.io event every pipeline event is emitted as.
const SocketEventName = "langforge:event"

// SocketOptions configures a SocketSink connection.
type SocketOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// SocketSink forwards pipeline events to a socket.io dashboard.
type SocketSink struct {
	io *socket.Socket
}

// DialSocket connects to a socket.io server and returns a sink bound to the
// live connection. It blocks until the connection succeeds or fails.
func DialSocket(ctx context.Context, opt SocketOptions) (*SocketSink, error) {
	logger := ctxlog.FromContext(ctx).With("sink", "socketio", "url", opt.URL)
	logger.Debug("Connecting event sink...")

	parsedURL, err := url.Parse(opt.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("events URL %q must be absolute", opt.URL)
	}
	if opt.ConnectTimeout <= 0 {
		opt.ConnectTimeout = 10 * time.Second
	}
	namespace := opt.Namespace
	if namespace == "" {
		namespace = "/"
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if opt.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Event sink connected", "sid", io.Id())
		notify(connectChan, nil)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		notify(connectChan, err)
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketSink{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(opt.ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", opt.ConnectTimeout)
	}
}

// Emit implements Sink. Delivery is best effort.
func (s *SocketSink) Emit(ctx context.Context, ev Event) {
	payload := map[string]any{
		"time":    ev.Time.Format(time.RFC3339Nano),
		"stage":   ev.Stage,
		"kind":    string(ev.Kind),
		"attempt": ev.Attempt,
		"message": ev.Message,
	}
	if err := s.io.Emit(SocketEventName, payload); err != nil {
		ctxlog.FromContext(ctx).Debug("Failed to forward event.", "error", err)
	}
}

// Close disconnects from the dashboard.
func (s *SocketSink) Close() error {
	s.io.Disconnect()
	return nil
}

// notify delivers the first connection result; later ones are dropped.
func notify(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}
