package preview

import (
	"testing"
	"time"

	"github.com/mdddj/blog-new-sub000/internal/render"
	"github.com/mdddj/blog-new-sub000/internal/timing"
)

const twoTriggers = `<p>See <span class="image-preview-trigger" data-preview-url="https://cdn/a.png">a</span>
and <span class="x image-preview-trigger" data-preview-url="https://cdn/b.png">b</span></p>`

func newOverlay() (*Overlay, *Headless, *timing.Fake) {
	clock := timing.NewFake()
	doc := NewHeadless(Viewport{Width: 1280, Height: 800})
	return New(doc, clock), doc, clock
}

func TestOverlayInstallsAfterSettle(t *testing.T) {
	o, doc, clock := newOverlay()
	defer o.Close()

	o.Refresh(twoTriggers)
	if s := doc.Snapshot(); s.Created != 0 {
		t.Fatalf("overlays created before settle: %+v", s)
	}
	clock.Advance(SettleDelay - time.Millisecond)
	if s := doc.Snapshot(); s.Created != 0 {
		t.Fatalf("overlays created before settle: %+v", s)
	}
	clock.Advance(time.Millisecond)

	s := doc.Snapshot()
	if s.LiveOverlays != 2 {
		t.Fatalf("LiveOverlays = %d, want 2", s.LiveOverlays)
	}
	// one key listener, one modal dismiss listener, three per trigger
	if s.Listeners != 8 {
		t.Fatalf("Listeners = %d, want 8", s.Listeners)
	}
	if st := o.State(); !st.Active || st.Triggers != 2 {
		t.Fatalf("State() = %+v", st)
	}
}

func TestOverlayHoverAndZoom(t *testing.T) {
	o, doc, clock := newOverlay()
	defer o.Close()
	o.Refresh(twoTriggers)
	clock.Advance(SettleDelay)

	doc.Hover(0)
	s := doc.Snapshot()
	if !s.PopupVisible || s.PopupURL != "https://cdn/a.png" || s.PopupLeft != 10 || s.PopupTop != 34 {
		t.Fatalf("popup after hover = %+v", s)
	}
	doc.Leave(0)
	if doc.Snapshot().PopupVisible {
		t.Fatal("popup still visible after leave")
	}

	doc.Hover(1)
	doc.Press(1)
	s = doc.Snapshot()
	if s.PopupVisible || !s.ModalOpen || s.ModalURL != "https://cdn/b.png" || !s.ScrollLocked {
		t.Fatalf("after click = %+v", s)
	}
	if !o.State().ModalOpen {
		t.Fatal("State().ModalOpen = false")
	}

	doc.Key("Enter")
	if !doc.Snapshot().ModalOpen {
		t.Fatal("non-Escape key closed the modal")
	}
	doc.Key("Escape")
	s = doc.Snapshot()
	if s.ModalOpen || s.ScrollLocked {
		t.Fatalf("after Escape = %+v", s)
	}

	doc.Press(0)
	doc.DismissModal()
	s = doc.Snapshot()
	if s.ModalOpen || s.ScrollLocked {
		t.Fatalf("after backdrop dismiss = %+v", s)
	}
}

func TestOverlayRefreshTearsDownPreviousPass(t *testing.T) {
	o, doc, clock := newOverlay()
	defer o.Close()
	o.Refresh(twoTriggers)
	clock.Advance(SettleDelay)
	doc.Press(0)

	o.Refresh(`<span class="image-preview-trigger" data-preview-url="/c.png">c</span>`)
	s := doc.Snapshot()
	if s.LiveOverlays != 0 || s.Listeners != 0 || s.ScrollLocked {
		t.Fatalf("previous pass not released: %+v", s)
	}
	if o.State().Active {
		t.Fatal("State().Active during settle")
	}

	clock.Advance(SettleDelay)
	s = doc.Snapshot()
	if s.LiveOverlays != 2 || s.Created != 4 || s.Listeners != 5 {
		t.Fatalf("second pass = %+v", s)
	}
}

func TestOverlayRapidRefreshInstallsOnce(t *testing.T) {
	o, doc, clock := newOverlay()
	defer o.Close()
	for i := 0; i < 5; i++ {
		o.Refresh(twoTriggers)
		clock.Advance(SettleDelay / 2)
	}
	clock.Advance(SettleDelay)
	if s := doc.Snapshot(); s.Created != 2 || s.LiveOverlays != 2 {
		t.Fatalf("overlays = %+v, want exactly one pass", s)
	}
}

func TestOverlayNoTriggers(t *testing.T) {
	o, doc, clock := newOverlay()
	defer o.Close()
	o.Refresh(`<p>nothing to preview</p>`)
	clock.Advance(SettleDelay)
	if s := doc.Snapshot(); s.Created != 0 || s.Listeners != 0 {
		t.Fatalf("created overlays without triggers: %+v", s)
	}
	if o.State().Active {
		t.Fatal("State().Active without triggers")
	}
}

func TestOverlaySkipsTriggersWithoutURL(t *testing.T) {
	o, doc, clock := newOverlay()
	defer o.Close()
	o.Refresh(`<span class="image-preview-trigger">bare</span>`)
	clock.Advance(SettleDelay)
	s := doc.Snapshot()
	if s.LiveOverlays != 2 || s.Listeners != 2 {
		t.Fatalf("snapshot = %+v, want overlays with only key and dismiss listeners", s)
	}
}

func TestOverlayClose(t *testing.T) {
	o, doc, clock := newOverlay()
	o.Refresh(twoTriggers)
	clock.Advance(SettleDelay)
	doc.Press(1)

	o.Close()
	s := doc.Snapshot()
	if s.LiveOverlays != 0 || s.Listeners != 0 || s.ScrollLocked {
		t.Fatalf("after Close = %+v", s)
	}

	o.Refresh(twoTriggers)
	clock.Advance(SettleDelay)
	if s := doc.Snapshot(); s.Created != 2 {
		t.Fatalf("Refresh after Close created overlays: %+v", s)
	}
}

func TestOverlayCloseCancelsPendingScan(t *testing.T) {
	o, doc, clock := newOverlay()
	o.Refresh(twoTriggers)
	o.Close()
	clock.Advance(SettleDelay)
	if s := doc.Snapshot(); s.Created != 0 {
		t.Fatalf("pending scan ran after Close: %+v", s)
	}
}

func TestOverlayRepeatedRefreshKeepsPageBounded(t *testing.T) {
	o, doc, clock := newOverlay()
	defer o.Close()

	const passes = 500
	for i := 0; i < passes; i++ {
		o.Refresh(twoTriggers)
		clock.Advance(SettleDelay)
		doc.Hover(0)
	}

	doc.mu.Lock()
	popups, modals, triggers := len(doc.popups), len(doc.modals), len(doc.triggers)
	doc.mu.Unlock()
	if popups != 1 || modals != 1 || triggers != 2 {
		t.Fatalf("page holds popups=%d modals=%d triggers=%d, want 1, 1, 2", popups, modals, triggers)
	}
	s := doc.Snapshot()
	if s.Created != 2*passes || s.LiveOverlays != 2 || s.Listeners != 8 {
		t.Fatalf("snapshot = %+v", s)
	}

	o.Close()
	doc.mu.Lock()
	popups, modals = len(doc.popups), len(doc.modals)
	doc.mu.Unlock()
	if popups != 0 || modals != 0 || doc.Snapshot().Listeners != 0 {
		t.Fatalf("after Close popups=%d modals=%d snapshot=%+v", popups, modals, doc.Snapshot())
	}
}

func TestHeadlessRemoveIsIdempotent(t *testing.T) {
	doc := NewHeadless(Viewport{Width: 800, Height: 600})
	m := doc.NewModal()
	remove := m.OnDismiss(func() {})
	remove()
	remove()
	m.Remove()
	m.Remove()
	if s := doc.Snapshot(); s.Listeners != 0 || s.LiveOverlays != 0 || s.Created != 1 {
		t.Fatalf("snapshot = %+v", s)
	}
}

func TestHeadlessScrollSurface(t *testing.T) {
	doc := NewHeadless(Viewport{Width: 1280, Height: 800})
	doc.LayoutHeadings([]render.Heading{{ID: "heading-0"}, {ID: "heading-1"}, {ID: "heading-2"}})
	if h := doc.DocumentHeight(); h != 3*SectionHeight {
		t.Fatalf("DocumentHeight() = %v", h)
	}

	fired := 0
	cancel := doc.OnScroll(func() { fired++ })
	doc.ScrollTo(300)
	if top, ok := doc.HeadingTop("heading-1"); !ok || top != SectionHeight-300 {
		t.Fatalf("HeadingTop(heading-1) = %v, %v", top, ok)
	}
	if _, ok := doc.HeadingTop("heading-9"); ok {
		t.Fatal("HeadingTop reported a missing heading")
	}

	doc.ScrollTo(10000)
	if y := doc.ScrollY(); y != 3*SectionHeight-800 {
		t.Fatalf("ScrollY() = %v, want clamp to page end", y)
	}
	doc.LockScroll(true)
	doc.ScrollTo(0)
	if fired != 2 || doc.ScrollY() == 0 {
		t.Fatalf("scroll while locked: fired=%d y=%v", fired, doc.ScrollY())
	}
	doc.LockScroll(false)

	cancel()
	doc.ScrollTo(0)
	if fired != 2 || doc.Snapshot().ScrollListeners != 0 {
		t.Fatalf("listener survived cancel: fired=%d", fired)
	}

	doc.LayoutHeadings(nil)
	if doc.DocumentHeight() != 800 || doc.ScrollY() != 0 {
		t.Fatalf("empty layout: height=%v y=%v", doc.DocumentHeight(), doc.ScrollY())
	}
}
