package preview

import (
	"sync"
	"time"

	"github.com/mdddj/blog-new-sub000/internal/timing"
)

// SettleDelay lets freshly rendered markup commit before triggers are scanned.
const SettleDelay = 100 * time.Millisecond

// Overlay owns at most one preview pass at a time. A pass holds the popup,
// the modal and every listener registered for one rendering of the markup.
type Overlay struct {
	mu     sync.Mutex
	doc    Document
	clock  timing.Clock
	settle time.Duration
	gen    int
	timer  timing.Timer
	pass   *pass
	closed bool
}

type pass struct {
	popup     Popup
	modal     Modal
	removers  []func()
	triggers  int
	modalOpen bool
}

// State summarizes the current pass.
type State struct {
	Active    bool `json:"active"`
	Triggers  int  `json:"triggers"`
	ModalOpen bool `json:"modalOpen"`
}

func New(doc Document, clock timing.Clock) *Overlay {
	if clock == nil {
		clock = timing.Real{}
	}
	return &Overlay{doc: doc, clock: clock, settle: SettleDelay}
}

// Refresh tears down the previous pass and schedules a scan of markup once
// it has settled.
func (o *Overlay) Refresh(markup string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.gen++
	gen := o.gen
	old, timer := o.detachLocked()
	o.timer = o.clock.AfterFunc(o.settle, func() { o.install(gen, markup) })
	o.mu.Unlock()

	release(old, timer, o.doc)
}

// Close cancels a pending scan and releases the current pass.
func (o *Overlay) Close() {
	o.mu.Lock()
	o.closed = true
	o.gen++
	old, timer := o.detachLocked()
	o.mu.Unlock()

	release(old, timer, o.doc)
}

func (o *Overlay) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pass == nil {
		return State{}
	}
	return State{Active: true, Triggers: o.pass.triggers, ModalOpen: o.pass.modalOpen}
}

func (o *Overlay) detachLocked() (*pass, timing.Timer) {
	old, timer := o.pass, o.timer
	o.pass, o.timer = nil, nil
	return old, timer
}

func release(p *pass, timer timing.Timer, doc Document) {
	if timer != nil {
		timer.Stop()
	}
	if p == nil {
		return
	}
	for _, remove := range p.removers {
		remove()
	}
	p.popup.Remove()
	p.modal.Remove()
	if p.modalOpen {
		doc.LockScroll(false)
	}
}

func (o *Overlay) install(gen int, markup string) {
	o.mu.Lock()
	stale := gen != o.gen
	o.mu.Unlock()
	if stale {
		return
	}

	triggers := o.doc.Triggers(markup)
	if len(triggers) == 0 {
		return
	}

	p := &pass{popup: o.doc.NewPopup(), modal: o.doc.NewModal(), triggers: len(triggers)}

	hideModal := func() {
		o.mu.Lock()
		open := p.modalOpen && o.pass == p
		p.modalOpen = false
		o.mu.Unlock()
		if open {
			p.modal.Hide()
			o.doc.LockScroll(false)
		}
	}
	showModal := func(url string) {
		p.popup.Hide()
		o.mu.Lock()
		current := o.pass == p
		if current {
			p.modalOpen = true
		}
		o.mu.Unlock()
		if current {
			p.modal.Show(url)
			o.doc.LockScroll(true)
		}
	}

	p.removers = append(p.removers,
		p.modal.OnDismiss(hideModal),
		o.doc.OnKey(func(key string) {
			if key == "Escape" {
				hideModal()
			}
		}),
	)
	for _, trigger := range triggers {
		url := trigger.PreviewURL()
		if url == "" {
			continue
		}
		trigger := trigger
		p.removers = append(p.removers,
			trigger.On(MouseEnter, func() {
				left, top := PlacePopup(trigger.Rect(), o.doc.Viewport())
				p.popup.Show(url, left, top)
			}),
			trigger.On(MouseLeave, p.popup.Hide),
			trigger.On(Click, func() { showModal(url) }),
		)
	}

	o.mu.Lock()
	if gen != o.gen || o.closed {
		o.mu.Unlock()
		release(p, nil, o.doc)
		return
	}
	o.timer = nil
	o.pass = p
	o.mu.Unlock()
}
