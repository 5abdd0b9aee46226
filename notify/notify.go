// Package notify delivers transient user notifications.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"github.com/chimerakang/changedesk"
)

func stamp(n changedesk.Notification) changedesk.Notification {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	return n
}

// Log writes notifications to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog builds a logger-backed notifier. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(n changedesk.Notification) {
	level := slog.LevelInfo
	if n.Level == changedesk.LevelError {
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, n.Message, "level", string(n.Level))
}

// Topic returns the bus topic for a notification level.
func Topic(level changedesk.Level) string {
	return "notify:" + string(level)
}

// Bus publishes notifications on an event bus, one topic per level.
// Subscribers receive a changedesk.Notification argument.
type Bus struct {
	bus evbus.Bus
}

// NewBus wraps bus. A nil bus gets a fresh one.
func NewBus(bus evbus.Bus) *Bus {
	if bus == nil {
		bus = evbus.New()
	}
	return &Bus{bus: bus}
}

func (b *Bus) Notify(n changedesk.Notification) {
	b.bus.Publish(Topic(n.Level), stamp(n))
}

// Subscribe registers fn for notifications of the given level.
func (b *Bus) Subscribe(level changedesk.Level, fn func(changedesk.Notification)) error {
	return b.bus.Subscribe(Topic(level), fn)
}

// Unsubscribe removes a handler previously passed to Subscribe.
func (b *Bus) Unsubscribe(level changedesk.Level, fn func(changedesk.Notification)) error {
	return b.bus.Unsubscribe(Topic(level), fn)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []changedesk.Notification
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(n changedesk.Notification) {
	r.mu.Lock()
	r.items = append(r.items, stamp(n))
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications, oldest first.
func (r *Recorder) All() []changedesk.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]changedesk.Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Messages returns the recorded messages of the given level.
func (r *Recorder) Messages(level changedesk.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.items {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

// Last returns the most recent notification.
func (r *Recorder) Last() (changedesk.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return changedesk.Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Len returns the number of recorded notifications.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
}

// Multi fans a notification out to several notifiers in order.
type Multi []changedesk.Notifier

func (m Multi) Notify(n changedesk.Notification) {
	n = stamp(n)
	for _, target := range m {
		if target != nil {
			target.Notify(n)
		}
	}
}

var (
	_ changedesk.Notifier = (*Log)(nil)
	_ changedesk.Notifier = (*Bus)(nil)
	_ changedesk.Notifier = (*Recorder)(nil)
	_ changedesk.Notifier = Multi(nil)
)
