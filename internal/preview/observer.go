package preview

import (
	"sync"

	"github.com/mdddj/blog-new-sub000/internal/toc"
)

type headlessObserver struct {
	doc      *Headless
	opts     toc.ObserverOptions
	callback func([]toc.Entry)

	mu     sync.Mutex
	ids    []string
	last   map[string]bool
	cancel func()
}

// NewObserver watches headings laid out on d. Observed headings report once
// when observed and again on every scroll that moves them into or out of the
// band left after applying opts' margins to the viewport.
func (d *Headless) NewObserver(opts toc.ObserverOptions, callback func([]toc.Entry)) toc.Observer {
	o := &headlessObserver{doc: d, opts: opts, callback: callback, last: map[string]bool{}}
	o.cancel = d.OnScroll(o.check)
	return o
}

func (o *headlessObserver) Observe(id string) bool {
	o.mu.Lock()
	if o.cancel == nil {
		o.mu.Unlock()
		return false
	}
	entry, ok := o.entryLocked(id)
	if !ok {
		o.mu.Unlock()
		return false
	}
	o.ids = append(o.ids, id)
	o.last[id] = entry.Intersecting
	o.mu.Unlock()

	o.callback([]toc.Entry{entry})
	return true
}

func (o *headlessObserver) Disconnect() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.ids = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *headlessObserver) check() {
	o.mu.Lock()
	var changed []toc.Entry
	for _, id := range o.ids {
		entry, ok := o.entryLocked(id)
		if !ok || entry.Intersecting == o.last[id] {
			continue
		}
		o.last[id] = entry.Intersecting
		changed = append(changed, entry)
	}
	o.mu.Unlock()

	if len(changed) > 0 {
		o.callback(changed)
	}
}

func (o *headlessObserver) entryLocked(id string) (toc.Entry, bool) {
	top, ok := o.doc.HeadingTop(id)
	if !ok {
		return toc.Entry{}, false
	}
	vh := o.doc.ViewportHeight()
	bandTop := -o.opts.TopMargin
	bandBottom := vh * (1 + o.opts.BottomMarginRatio)
	intersecting := top < bandBottom && top+o.doc.lineH > bandTop
	return toc.Entry{ID: id, Intersecting: intersecting, Top: top}, true
}

var _ toc.Page = (*Headless)(nil)
