package toc

import "github.com/mdddj/blog-new-sub000/internal/render"

// ScrollTracker recomputes the active heading from heading positions on
// every scroll event.
type ScrollTracker struct {
	state
	gen    int
	cancel func()
}

func NewScrollTracker(page Page) *ScrollTracker {
	return &ScrollTracker{state: state{page: page}}
}

// SetHeadings replaces the heading set, recomputes immediately and keeps a
// scroll subscription only while the set is non-empty.
func (t *ScrollTracker) SetHeadings(headings []render.Heading) {
	t.mu.Lock()
	t.gen++
	gen := t.gen
	cancel := t.cancel
	t.cancel = nil
	t.replace(headings)
	empty := len(t.headings) == 0
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if empty {
		return
	}
	t.update()
	unsubscribe := t.page.OnScroll(t.update)

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		unsubscribe()
		return
	}
	t.cancel = unsubscribe
	t.mu.Unlock()
}

type position struct {
	id  string
	top float64
}

func (t *ScrollTracker) update() {
	t.mu.Lock()
	defer t.mu.Unlock()

	present := make([]position, 0, len(t.headings))
	for _, h := range t.headings {
		if top, ok := t.page.HeadingTop(h.ID); ok {
			present = append(present, position{id: h.ID, top: top})
		}
	}
	if len(present) == 0 {
		return
	}

	active := present[0].id
	for _, p := range present {
		if p.top > HeaderOffset+ReadingLine {
			break
		}
		active = p.id
	}
	if t.page.ViewportHeight()+t.page.ScrollY() >= t.page.DocumentHeight()-BottomSlack {
		active = present[len(present)-1].id
	}
	t.active = active
}

// Close drops the scroll subscription.
func (t *ScrollTracker) Close() {
	t.mu.Lock()
	t.gen++
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
