package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestEventEmission(t *testing.T) {
	var c collector
	logger := New(10, WithHandler(c.handle))

	logger.Log(Event{Action: ActionLogin, Result: ResultSuccess, UserID: 7, Username: "alice"})
	logger.Close()

	events := c.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].UserID != 7 {
		t.Errorf("expected user 7, got %d", events[0].UserID)
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
	if _, err := uuid.Parse(events[0].RequestID); err != nil {
		t.Errorf("request ID %q is not a UUID: %v", events[0].RequestID, err)
	}
}

func TestMultipleHandlers(t *testing.T) {
	var c1, c2 collector
	logger := New(10, WithHandler(c1.handle), WithHandler(c2.handle))

	logger.Log(Event{Action: ActionLogout, Result: ResultSuccess})
	logger.Close()

	if len(c1.all()) != 1 || len(c2.all()) != 1 {
		t.Fatalf("handlers saw %d and %d events", len(c1.all()), len(c2.all()))
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-12345")
	if got := RequestID(ctx); got != "req-12345" {
		t.Errorf("expected req-12345, got %s", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Errorf("empty context request ID = %q", got)
	}
}

func TestLogContext_RequestID(t *testing.T) {
	var c collector
	logger := New(10, WithHandler(c.handle))

	logger.LogContext(WithRequestID(context.Background(), "req-1"), Event{Action: ActionRestore, Result: ResultSuccess})
	logger.Close()

	if got := c.all()[0].RequestID; got != "req-1" {
		t.Errorf("request ID = %q, want req-1", got)
	}
}

func TestQueueBuffer(t *testing.T) {
	var mu sync.Mutex
	var count int

	logger := New(5, WithHandler(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		count++
		time.Sleep(10 * time.Millisecond) // Simulate slow handler
	}))

	for i := 0; i < 5; i++ {
		logger.Log(Event{Action: ActionUnauthorized, Result: ResultIgnored})
	}
	logger.Close()

	mu.Lock()
	defer mu.Unlock()
	if count != 5 {
		t.Errorf("expected 5 events processed, got %d", count)
	}
}

func TestCloseTwiceAndLogAfterClose(t *testing.T) {
	var c collector
	logger := New(1, WithHandler(c.handle))
	logger.Close()
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	logger.Log(Event{Action: ActionLogin})
	if len(c.all()) != 0 {
		t.Error("events logged after Close must be dropped")
	}

	var nilLogger *Logger
	nilLogger.Log(Event{Action: ActionLogin})
	_ = nilLogger.Close()
}

func TestWriterHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(10, WithWriterHandler(&buf))

	logger.Log(Event{Action: ActionLogin, Result: ResultFailure, Username: "alice", Error: "Invalid credentials"})
	logger.Close()

	var e Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &e); err != nil {
		t.Fatalf("decode line %q: %v", buf.String(), err)
	}
	if e.Error != "Invalid credentials" || e.Result != ResultFailure {
		t.Errorf("event = %+v", e)
	}
}

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(10, WithSlogHandler(slog.New(slog.NewJSONHandler(&buf, nil))))

	logger.Log(Event{Action: ActionUnauthorized, Result: ResultSuccess, Path: "/api/transactions"})
	logger.Close()

	out := buf.String()
	if !strings.Contains(out, `"action":"unauthorized"`) || !strings.Contains(out, `"path":"/api/transactions"`) {
		t.Errorf("slog output = %s", out)
	}
}
