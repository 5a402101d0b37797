package toc

import (
	"sort"

	"github.com/mdddj/blog-new-sub000/internal/render"
)

// ObserverOptions mirror the viewport margins of an intersection observer.
type ObserverOptions struct {
	TopMargin         float64
	BottomMarginRatio float64
	Threshold         float64
}

// DefaultObserverOptions biases observation toward the top of the viewport.
var DefaultObserverOptions = ObserverOptions{TopMargin: -80, BottomMarginRatio: -0.6, Threshold: 0}

// Entry is one heading's observation in a batch.
type Entry struct {
	ID           string
	Intersecting bool
	Top          float64
}

// Observer watches heading elements and reports batches to its callback.
type Observer interface {
	Observe(id string) bool
	Disconnect()
}

// ObserverFactory creates an observer bound to callback.
type ObserverFactory func(opts ObserverOptions, callback func([]Entry)) Observer

// IntersectionTracker picks the topmost heading currently intersecting the
// biased viewport band.
type IntersectionTracker struct {
	state
	newObserver ObserverFactory
	opts        ObserverOptions
	gen         int
	observer    Observer
}

// NewIntersectionTracker uses page only for Select scrolling; page may be nil.
func NewIntersectionTracker(page Page, newObserver ObserverFactory) *IntersectionTracker {
	return &IntersectionTracker{
		state:       state{page: page},
		newObserver: newObserver,
		opts:        DefaultObserverOptions,
	}
}

// SetHeadings disconnects the previous observer and observes the new set.
// The first heading is active until an observation arrives.
func (t *IntersectionTracker) SetHeadings(headings []render.Heading) {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	old := t.observer
	t.observer = nil
	t.replace(headings)
	if len(t.headings) > 0 && t.active == "" {
		t.active = t.headings[0].ID
	}
	ids := make([]string, 0, len(t.headings))
	for _, h := range t.headings {
		ids = append(ids, h.ID)
	}
	t.mu.Unlock()

	if old != nil {
		old.Disconnect()
	}
	if len(ids) == 0 {
		return
	}

	observer := t.newObserver(t.opts, func(entries []Entry) { t.observe(gen, entries) })
	for _, id := range ids {
		observer.Observe(id)
	}

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		observer.Disconnect()
		return
	}
	t.observer = observer
	t.mu.Unlock()
}

func (t *IntersectionTracker) observe(gen int, entries []Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}

	intersecting := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Intersecting && t.has(e.ID) {
			intersecting = append(intersecting, e)
		}
	}
	if len(intersecting) == 0 {
		return
	}
	sort.SliceStable(intersecting, func(i, j int) bool { return intersecting[i].Top < intersecting[j].Top })
	t.active = intersecting[0].ID
}

// Close disconnects the observer.
func (t *IntersectionTracker) Close() {
	t.mu.Lock()
	t.gen++
	observer := t.observer
	t.observer = nil
	t.mu.Unlock()
	if observer != nil {
		observer.Disconnect()
	}
}

var (
	_ Tracker = (*ScrollTracker)(nil)
	_ Tracker = (*IntersectionTracker)(nil)
)
