// Package autosave persists a text buffer after it stops changing.
//
// A Controller debounces buffer updates, saves the settled content when it
// differs from the last persisted snapshot and the document has a title,
// and never runs two saves for the same document at once. Triggers that
// arrive while a save is in flight are dropped rather than queued.
package autosave

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mdddj/blog-new-sub000/internal/notify"
	"github.com/mdddj/blog-new-sub000/internal/timing"
)

const (
	DefaultDelay   = 2000 * time.Millisecond
	DefaultFlash   = 2000 * time.Millisecond
	DefaultTimeout = 30 * time.Second
)

type State string

const (
	Idle            State = "idle"
	PendingDebounce State = "pending"
	Saving          State = "saving"
	SuccessFlash    State = "saved"
)

// Config wires a Controller to its collaborators. Save and Build are
// required. Title may be nil when the document has no title requirement.
type Config[T any] struct {
	Save     func(ctx context.Context, payload T) error
	Build    func() T
	Title    func() string
	Notifier notify.Notifier
	Clock    timing.Clock

	Delay   time.Duration
	Flash   time.Duration
	Timeout time.Duration
	Enabled bool

	// OnSaved runs after every successful save, including one that completes
	// after Reset.
	OnSaved func(payload T)
	OnError func(err error)
}

// Status is a point-in-time view of a Controller.
type Status struct {
	State     State  `json:"state"`
	Enabled   bool   `json:"enabled"`
	Saving    bool   `json:"saving"`
	Saves     int    `json:"saves"`
	LastError string `json:"lastError,omitempty"`
}

// Controller is safe for concurrent use. Collaborators are never called
// with the controller's lock held.
type Controller[T any] struct {
	cfg Config[T]
	wg  sync.WaitGroup

	mu          sync.Mutex
	state       State
	enabled     bool
	closed      bool
	gen         int
	content     string
	settled     string
	snapshot    string
	inFlight    bool
	debounce    timing.Timer
	debounceSeq int
	flash       timing.Timer
	flashSeq    int
	saves       int
	lastErr     string
}

func New[T any](cfg Config[T]) *Controller[T] {
	if cfg.Clock == nil {
		cfg.Clock = timing.Real{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Flash <= 0 {
		cfg.Flash = DefaultFlash
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Controller[T]{cfg: cfg, state: Idle, enabled: cfg.Enabled}
}

// Update records the latest buffer content and restarts the debounce while
// auto-save is enabled.
func (c *Controller[T]) Update(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.content = content
	if c.enabled {
		c.armLocked()
	}
}

// Reevaluate checks the settled content again without waiting for a new
// debounce, as when the title changes.
func (c *Controller[T]) Reevaluate() {
	c.mu.Lock()
	pending := c.debounce != nil
	gen := c.gen
	c.mu.Unlock()
	if !pending {
		c.evaluate(gen)
	}
}

// SetEnabled turns automatic saving on or off. Turning it off does not
// cancel a save already running. Turning it on debounces the current content.
func (c *Controller[T]) SetEnabled(on bool) {
	c.mu.Lock()
	if c.closed || c.enabled == on {
		c.mu.Unlock()
		return
	}
	c.enabled = on
	if on {
		c.armLocked()
	} else {
		c.stopDebounceLocked()
	}
	c.syncStateLocked()
	c.mu.Unlock()

	if on {
		c.cfg.Notifier.Notify(notify.Info, "Auto-save enabled")
	} else {
		c.cfg.Notifier.Notify(notify.Info, "Auto-save disabled")
	}
}

// Toggle flips the enabled flag and returns the new value.
func (c *Controller[T]) Toggle() bool {
	c.mu.Lock()
	on := !c.enabled
	c.mu.Unlock()
	c.SetEnabled(on)
	return on
}

func (c *Controller[T]) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Reset starts tracking a freshly loaded document whose persisted content is
// content. Pending timers stop and a save still running for the previous
// document is ignored when it finishes.
func (c *Controller[T]) Reset(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.stopDebounceLocked()
	c.stopFlashLocked()
	c.content = content
	c.settled = content
	c.snapshot = content
	c.inFlight = false
	c.lastErr = ""
	c.syncStateLocked()
}

// MarkPersisted records content saved through the manual path.
func (c *Controller[T]) MarkPersisted(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = content
}

// Snapshot returns the last persisted content.
func (c *Controller[T]) Snapshot() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *Controller[T]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller[T]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:     c.state,
		Enabled:   c.enabled,
		Saving:    c.inFlight,
		Saves:     c.saves,
		LastError: c.lastErr,
	}
}

// Wait blocks until saves started so far have finished.
func (c *Controller[T]) Wait() {
	c.wg.Wait()
}

// Close stops the timers. A running save completes but its result is
// ignored.
func (c *Controller[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.gen++
	c.stopDebounceLocked()
	c.stopFlashLocked()
	c.inFlight = false
	c.syncStateLocked()
}

func (c *Controller[T]) armLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounceSeq++
	seq := c.debounceSeq
	c.debounce = c.cfg.Clock.AfterFunc(c.cfg.Delay, func() { c.settle(seq) })
	c.syncStateLocked()
}

func (c *Controller[T]) stopDebounceLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.debounceSeq++
}

func (c *Controller[T]) stopFlashLocked() {
	if c.flash != nil {
		c.flash.Stop()
		c.flash = nil
	}
	c.flashSeq++
}

func (c *Controller[T]) syncStateLocked() {
	switch {
	case c.inFlight:
		c.state = Saving
	case c.flash != nil:
		c.state = SuccessFlash
	case c.debounce != nil:
		c.state = PendingDebounce
	default:
		c.state = Idle
	}
}

func (c *Controller[T]) settle(seq int) {
	c.mu.Lock()
	if seq != c.debounceSeq || c.closed {
		c.mu.Unlock()
		return
	}
	c.debounce = nil
	c.settled = c.content
	gen := c.gen
	c.syncStateLocked()
	c.mu.Unlock()

	c.evaluate(gen)
}

func (c *Controller[T]) evaluate(gen int) {
	title := ""
	if c.cfg.Title != nil {
		title = c.cfg.Title()
	}

	c.mu.Lock()
	if !c.shouldSaveLocked(gen, title) {
		c.mu.Unlock()
		return
	}
	content := c.settled
	c.inFlight = true
	c.syncStateLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	payload := c.cfg.Build()
	go c.run(gen, content, payload)
}

func (c *Controller[T]) shouldSaveLocked(gen int, title string) bool {
	if c.closed || gen != c.gen || !c.enabled {
		return false
	}
	if c.settled == "" || c.settled == c.snapshot {
		return false
	}
	if c.cfg.Title != nil && strings.TrimSpace(title) == "" {
		return false
	}
	if c.inFlight {
		log.Printf("autosave: save already in flight, dropping trigger")
		return false
	}
	return true
}

func (c *Controller[T]) run(gen int, content string, payload T) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	err := c.cfg.Save(ctx, payload)
	cancel()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		log.Printf("autosave: discarding result of save for a replaced document (err=%v)", err)
		// The write still happened; only this controller's state ignores it.
		if err == nil && c.cfg.OnSaved != nil {
			c.cfg.OnSaved(payload)
		}
		return
	}
	c.inFlight = false
	if err != nil {
		c.lastErr = err.Error()
		c.syncStateLocked()
		c.mu.Unlock()

		log.Printf("autosave: save failed: %v", err)
		c.cfg.Notifier.Notify(notify.Error, "Auto-save failed: "+err.Error())
		if c.cfg.OnError != nil {
			c.cfg.OnError(err)
		}
		return
	}

	c.snapshot = content
	c.saves++
	c.lastErr = ""
	c.stopFlashLocked()
	flashSeq := c.flashSeq
	c.flash = c.cfg.Clock.AfterFunc(c.cfg.Flash, func() { c.endFlash(flashSeq) })
	c.syncStateLocked()
	again := c.debounce == nil && c.settled != c.snapshot
	c.mu.Unlock()

	c.cfg.Notifier.Notify(notify.Success, "Auto-save succeeded")
	if c.cfg.OnSaved != nil {
		c.cfg.OnSaved(payload)
	}
	if again {
		c.evaluate(gen)
	}
}

func (c *Controller[T]) endFlash(seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.flashSeq {
		return
	}
	c.flash = nil
	c.syncStateLocked()
}
