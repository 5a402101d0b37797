// Package notify carries non-blocking user notifications.
package notify

import (
	"log"
	"sync"
	"time"
)

type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Error   Level = "error"
)

// Notification is one message shown to the author.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier delivers notifications without blocking the caller.
type Notifier interface {
	Notify(level Level, message string)
}

// Func adapts a function to Notifier.
type Func func(level Level, message string)

func (f Func) Notify(level Level, message string) { f(level, message) }

// Discard drops every notification.
var Discard Notifier = Func(func(Level, string) {})

// DefaultLimit bounds a Feed when no limit is given.
const DefaultLimit = 20

// Feed keeps the most recent notifications and mirrors them to the log.
type Feed struct {
	mu     sync.Mutex
	prefix string
	limit  int
	items  []Notification
	now    func() time.Time
}

func NewFeed(prefix string, limit int) *Feed {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Feed{prefix: prefix, limit: limit, now: time.Now}
}

func (f *Feed) Notify(level Level, message string) {
	log.Printf("%s: %s: %s", f.prefix, level, message)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, Notification{Level: level, Message: message, At: f.now().UTC()})
	if over := len(f.items) - f.limit; over > 0 {
		f.items = append(f.items[:0:0], f.items[over:]...)
	}
}

// Recent returns the retained notifications, oldest first.
func (f *Feed) Recent() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.items...)
}
