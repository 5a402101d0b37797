package preview

import (
	"sync"

	"github.com/mdddj/blog-new-sub000/internal/render"
)

// SectionHeight is the distance between consecutive headings on a
// Headless page.
const SectionHeight = 400

// Headless is an in-memory Document. Trigger positions are laid out one
// line apart and headings one section apart; interactions are driven with
// Hover, Leave, Press, Key and ScrollTo. Only the objects of the current
// render are held: removed overlays and replaced triggers are dropped.
type Headless struct {
	mu        sync.Mutex
	viewport  Viewport
	lineH     float64
	triggers  []*headlessTrigger
	popups    []*headlessPopup
	modals    []*headlessModal
	created   int
	bound     int
	keys      map[int]func(string)
	nextKey   int
	scrollOff bool

	headings   map[string]float64
	docHeight  float64
	scrollY    float64
	scrolls    map[int]func()
	nextScroll int
}

// NewHeadless returns a document with the given viewport.
func NewHeadless(vp Viewport) *Headless {
	return &Headless{
		viewport:  vp,
		lineH:     24,
		keys:      map[int]func(string){},
		headings:  map[string]float64{},
		docHeight: vp.Height,
		scrolls:   map[int]func(){},
	}
}

type headlessTrigger struct {
	doc       *Headless
	url       string
	rect      Rect
	listeners map[Event]map[int]func()
	next      int
}

func (t *headlessTrigger) PreviewURL() string { return t.url }
func (t *headlessTrigger) Rect() Rect         { return t.rect }

func (t *headlessTrigger) On(event Event, fn func()) func() {
	t.doc.mu.Lock()
	defer t.doc.mu.Unlock()
	if t.listeners[event] == nil {
		t.listeners[event] = map[int]func(){}
	}
	id := t.next
	t.next++
	t.listeners[event][id] = fn
	t.doc.bound++
	return func() {
		t.doc.mu.Lock()
		defer t.doc.mu.Unlock()
		if _, ok := t.listeners[event][id]; ok {
			delete(t.listeners[event], id)
			t.doc.bound--
		}
	}
}

type headlessPopup struct {
	doc     *Headless
	visible bool
	url     string
	left    float64
	top     float64
}

func (p *headlessPopup) Show(url string, left, top float64) {
	p.doc.mu.Lock()
	p.visible, p.url, p.left, p.top = true, url, left, top
	p.doc.mu.Unlock()
}

func (p *headlessPopup) Hide() {
	p.doc.mu.Lock()
	p.visible = false
	p.doc.mu.Unlock()
}

func (p *headlessPopup) Remove() {
	p.doc.mu.Lock()
	defer p.doc.mu.Unlock()
	for i, live := range p.doc.popups {
		if live == p {
			p.doc.popups = append(p.doc.popups[:i], p.doc.popups[i+1:]...)
			return
		}
	}
}

type headlessModal struct {
	doc      *Headless
	open     bool
	url      string
	dismiss  map[int]func()
	nextDism int
}

func (m *headlessModal) Show(url string) {
	m.doc.mu.Lock()
	m.open, m.url = true, url
	m.doc.mu.Unlock()
}

func (m *headlessModal) Hide() {
	m.doc.mu.Lock()
	m.open = false
	m.doc.mu.Unlock()
}

func (m *headlessModal) Remove() {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	for i, live := range m.doc.modals {
		if live == m {
			m.doc.modals = append(m.doc.modals[:i], m.doc.modals[i+1:]...)
			return
		}
	}
}

func (m *headlessModal) OnDismiss(fn func()) func() {
	m.doc.mu.Lock()
	defer m.doc.mu.Unlock()
	id := m.nextDism
	m.nextDism++
	m.dismiss[id] = fn
	m.doc.bound++
	return func() {
		m.doc.mu.Lock()
		defer m.doc.mu.Unlock()
		if _, ok := m.dismiss[id]; ok {
			delete(m.dismiss, id)
			m.doc.bound--
		}
	}
}

// Triggers builds a trigger per element found by FindTriggers, replacing the
// triggers of the previous markup.
func (d *Headless) Triggers(markup string) []Trigger {
	infos := FindTriggers(markup)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.triggers = make([]*headlessTrigger, 0, len(infos))
	out := make([]Trigger, 0, len(infos))
	for i, info := range infos {
		top := float64(i) * d.lineH
		t := &headlessTrigger{
			doc:       d,
			url:       info.URL,
			rect:      Rect{Top: top, Bottom: top + d.lineH, Left: 0},
			listeners: map[Event]map[int]func(){},
		}
		d.triggers = append(d.triggers, t)
		out = append(out, t)
	}
	return out
}

func (d *Headless) Viewport() Viewport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport
}

func (d *Headless) NewPopup() Popup {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := &headlessPopup{doc: d}
	d.created++
	d.popups = append(d.popups, p)
	return p
}

func (d *Headless) NewModal() Modal {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := &headlessModal{doc: d, dismiss: map[int]func(){}}
	d.created++
	d.modals = append(d.modals, m)
	return m
}

func (d *Headless) OnKey(fn func(string)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextKey
	d.nextKey++
	d.keys[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.keys, id)
	}
}

func (d *Headless) LockScroll(locked bool) {
	d.mu.Lock()
	d.scrollOff = locked
	d.mu.Unlock()
}

// SetTriggerRect moves trigger i.
func (d *Headless) SetTriggerRect(i int, r Rect) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= 0 && i < len(d.triggers) {
		d.triggers[i].rect = r
	}
}

func (d *Headless) fire(i int, event Event) {
	d.mu.Lock()
	if i < 0 || i >= len(d.triggers) {
		d.mu.Unlock()
		return
	}
	var fns []func()
	for _, fn := range d.triggers[i].listeners[event] {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Hover moves the pointer onto trigger i.
func (d *Headless) Hover(i int) { d.fire(i, MouseEnter) }

// Leave moves the pointer off trigger i.
func (d *Headless) Leave(i int) { d.fire(i, MouseLeave) }

// Press clicks trigger i.
func (d *Headless) Press(i int) { d.fire(i, Click) }

// Key dispatches a keydown to every key listener.
func (d *Headless) Key(key string) {
	d.mu.Lock()
	var fns []func(string)
	for _, fn := range d.keys {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(key)
	}
}

// DismissModal clicks the backdrop of the newest modal.
func (d *Headless) DismissModal() {
	d.mu.Lock()
	if len(d.modals) == 0 {
		d.mu.Unlock()
		return
	}
	m := d.modals[len(d.modals)-1]
	var fns []func()
	for _, fn := range m.dismiss {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Snapshot is the observable state of a Headless document. Listeners counts
// key, dismiss and trigger listeners still registered.
type Snapshot struct {
	LiveOverlays    int     `json:"liveOverlays"`
	Created         int     `json:"overlaysCreated"`
	Listeners       int     `json:"listeners"`
	PopupVisible    bool    `json:"popupVisible"`
	PopupURL        string  `json:"popupUrl,omitempty"`
	PopupLeft       float64 `json:"popupLeft"`
	PopupTop        float64 `json:"popupTop"`
	ModalOpen       bool    `json:"modalOpen"`
	ModalURL        string  `json:"modalUrl,omitempty"`
	ScrollLocked    bool    `json:"scrollLocked"`
	ScrollY         float64 `json:"scrollY"`
	ScrollListeners int     `json:"scrollListeners"`
}

func (d *Headless) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		LiveOverlays:    len(d.popups) + len(d.modals),
		Created:         d.created,
		Listeners:       len(d.keys) + d.bound,
		ScrollLocked:    d.scrollOff,
		ScrollY:         d.scrollY,
		ScrollListeners: len(d.scrolls),
	}
	for _, p := range d.popups {
		if p.visible {
			s.PopupVisible, s.PopupURL, s.PopupLeft, s.PopupTop = true, p.url, p.left, p.top
		}
	}
	for _, m := range d.modals {
		if m.open {
			s.ModalOpen, s.ModalURL = true, m.url
		}
	}
	return s
}

// LayoutHeadings places headings one section apart in document order and
// sizes the page to hold the last section.
func (d *Headless) LayoutHeadings(headings []render.Heading) {
	d.mu.Lock()
	d.headings = make(map[string]float64, len(headings))
	for i, h := range headings {
		d.headings[h.ID] = float64(i) * SectionHeight
	}
	d.docHeight = d.viewport.Height
	if h := float64(len(headings)) * SectionHeight; h > d.docHeight {
		d.docHeight = h
	}
	d.scrollY = clampScroll(d.scrollY, d.docHeight, d.viewport.Height)
	d.mu.Unlock()
}

func (d *Headless) HeadingTop(id string) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	off, ok := d.headings[id]
	return off - d.scrollY, ok
}

func (d *Headless) ScrollY() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrollY
}

func (d *Headless) ViewportHeight() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.viewport.Height
}

func (d *Headless) DocumentHeight() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.docHeight
}

// ScrollTo moves the page and notifies scroll listeners. Scrolling is
// ignored while a modal holds the scroll lock.
func (d *Headless) ScrollTo(y float64) {
	d.mu.Lock()
	if d.scrollOff {
		d.mu.Unlock()
		return
	}
	d.scrollY = clampScroll(y, d.docHeight, d.viewport.Height)
	fns := make([]func(), 0, len(d.scrolls))
	for _, fn := range d.scrolls {
		fns = append(fns, fn)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (d *Headless) OnScroll(fn func()) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextScroll
	d.nextScroll++
	d.scrolls[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.scrolls, id)
	}
}

func clampScroll(y, docHeight, viewport float64) float64 {
	limit := docHeight - viewport
	if y > limit {
		y = limit
	}
	if y < 0 {
		y = 0
	}
	return y
}
