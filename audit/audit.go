// Package audit provides structured audit logging for session operations.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the session guard.
const (
	ActionLogin        = "login"
	ActionLogout       = "logout"
	ActionRestore      = "restore"
	ActionUnauthorized = "unauthorized"
)

// Results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultIgnored = "ignored"
)

// Event represents a session audit event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	UserID    int64     `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Role      string    `json:"role,omitempty"`
	Action    string    `json:"action"` // login, logout, restore, unauthorized
	Result    string    `json:"result"` // success, failure, ignored
	Path      string    `json:"path,omitempty"`
	Details   string    `json:"details,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Handler processes audit events. Implementations should not block.
type Handler func(event Event)

// Logger emits audit events to configured handlers.
type Logger struct {
	handlers []Handler
	queue    chan Event
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// Option configures Logger behavior.
type Option func(*Logger)

// WithWriterHandler adds a handler that writes one JSON event per line to w.
func WithWriterHandler(w io.Writer) Option {
	return func(l *Logger) {
		l.AddHandler(func(e Event) {
			data, _ := json.Marshal(e)
			fmt.Fprintf(w, "%s\n", data)
		})
	}
}

// WithSlogHandler adds a handler that forwards events to a structured logger.
func WithSlogHandler(logger *slog.Logger) Option {
	return func(l *Logger) {
		if logger == nil {
			return
		}
		l.AddHandler(func(e Event) {
			logger.Info("audit",
				"request_id", e.RequestID,
				"action", e.Action,
				"result", e.Result,
				"user_id", e.UserID,
				"username", e.Username,
				"path", e.Path,
				"error", e.Error,
			)
		})
	}
}

// WithHandler adds a custom event handler.
func WithHandler(h Handler) Option {
	return func(l *Logger) {
		l.AddHandler(h)
	}
}

// New creates a new audit logger with buffered async emission.
// bufferSize: event queue buffer size (default: 1000).
func New(bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	logger := &Logger{
		handlers: make([]Handler, 0),
		queue:    make(chan Event, bufferSize),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(logger)
	}

	logger.wg.Add(1)
	go logger.process()

	return logger
}

// AddHandler adds a handler to receive audit events. Handlers must be added
// before the first event is logged.
func (l *Logger) AddHandler(h Handler) {
	l.handlers = append(l.handlers, h)
}

// Log emits an audit event asynchronously. Missing timestamps and request IDs
// are filled in. A nil Logger drops the event.
func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.RequestID == "" {
		event.RequestID = NewRequestID()
	}

	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.queue <- event:
	case <-l.done:
		// Logger is shutting down, event is dropped
	}
}

// LogContext is Log with the request ID taken from ctx when present.
func (l *Logger) LogContext(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = RequestID(ctx)
	}
	l.Log(event)
}

func (l *Logger) process() {
	defer l.wg.Done()
	for {
		select {
		case event := <-l.queue:
			l.dispatch(event)
		case <-l.done:
			l.drain()
			return
		}
	}
}

// drain dispatches whatever was queued before Close.
func (l *Logger) drain() {
	for {
		select {
		case event := <-l.queue:
			l.dispatch(event)
		default:
			return
		}
	}
}

func (l *Logger) dispatch(event Event) {
	for _, h := range l.handlers {
		h(event)
	}
}

// Close flushes pending events and stops the logger. It is safe to call more than once.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
	return nil
}

// NewRequestID returns a fresh correlation ID.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestID retrieves the request ID from context.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, ok := ctx.Value(contextKeyRequestID).(string)
	if !ok {
		return ""
	}
	return id
}

// WithRequestID stores the request ID in context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

type contextKey string

const contextKeyRequestID contextKey = "audit.request_id"
