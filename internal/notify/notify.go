// Package notify carries short user-facing messages from the workflows to
// whatever surface shows them.
package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

type Notifier interface {
	Notify(level Level, message string)
}

type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// Discard drops every notification.
var Discard Notifier = NotifierFunc(func(Level, string) {})

// Recorder buffers notifications until the caller drains them.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Level: level, Message: message})
}

// Drain returns everything recorded so far and empties the buffer.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.items
	r.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

// Logged mirrors every notification to the logger before forwarding it.
func Logged(log zerolog.Logger, next Notifier) Notifier {
	return NotifierFunc(func(level Level, message string) {
		evt := log.Debug()
		if level == LevelError {
			evt = log.Warn()
		}
		evt.Str("level", string(level)).Str("message", message).Msg("notification")
		next.Notify(level, message)
	})
}
