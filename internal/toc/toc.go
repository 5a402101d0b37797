// Package toc tracks which heading of a rendered document the reader is on.
package toc

import (
	"sync"

	"github.com/mdddj/blog-new-sub000/internal/render"
)

const (
	// HeaderOffset is the height of the fixed page header in pixels.
	HeaderOffset = 100
	// ReadingLine is how far below the header a heading still counts as read.
	ReadingLine = 50
	// BottomSlack is the distance from the page bottom treated as "at the end".
	BottomSlack = 50
	// SelectOffset is where a selected heading lands below the viewport top.
	SelectOffset = 80
	// IndentStep is the outline indentation per level in pixels.
	IndentStep = 12
)

// Page is the reading surface seen by a tracker. Positions are in pixels;
// HeadingTop is relative to the viewport and reports false when the heading
// element is not on the page.
type Page interface {
	HeadingTop(id string) (float64, bool)
	ScrollY() float64
	ViewportHeight() float64
	DocumentHeight() float64
	ScrollTo(y float64)
	OnScroll(fn func()) (cancel func())
}

// Tracker keeps the active heading id for one reading surface.
type Tracker interface {
	SetHeadings(headings []render.Heading)
	Active() string
	Select(id string) bool
	Close()
}

// Tracking strategies accepted by New.
const (
	StrategyScroll       = "scroll"
	StrategyIntersection = "intersection"
)

// New returns the tracker named by strategy. Unknown names fall back to
// scroll tracking; intersection tracking also needs newObserver.
func New(strategy string, page Page, newObserver ObserverFactory) Tracker {
	if strategy == StrategyIntersection && newObserver != nil {
		return NewIntersectionTracker(page, newObserver)
	}
	return NewScrollTracker(page)
}

// OutlineItem is a table-of-contents row.
type OutlineItem struct {
	render.Heading
	Depth  int `json:"depth"`
	Indent int `json:"indent"`
}

// Outline normalizes heading depth against the shallowest heading present.
func Outline(headings []render.Heading) []OutlineItem {
	items := make([]OutlineItem, 0, len(headings))
	if len(headings) == 0 {
		return items
	}
	minLevel := headings[0].Level
	for _, h := range headings[1:] {
		if h.Level < minLevel {
			minLevel = h.Level
		}
	}
	for _, h := range headings {
		depth := h.Level - minLevel
		items = append(items, OutlineItem{Heading: h, Depth: depth, Indent: depth * IndentStep})
	}
	return items
}

// state is the part shared by both strategies: the heading set and the
// active id, which always names a heading in the set or is empty.
type state struct {
	mu       sync.Mutex
	page     Page
	headings []render.Heading
	active   string
}

func (s *state) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *state) has(id string) bool {
	for _, h := range s.headings {
		if h.ID == id {
			return true
		}
	}
	return false
}

// replace installs a new heading set and drops an active id that no longer
// exists. Callers hold mu.
func (s *state) replace(headings []render.Heading) {
	s.headings = append([]render.Heading(nil), headings...)
	if !s.has(s.active) {
		s.active = ""
	}
}

// Select marks id active and scrolls it just below the fixed header.
func (s *state) Select(id string) bool {
	s.mu.Lock()
	if !s.has(id) {
		s.mu.Unlock()
		return false
	}
	s.active = id
	page := s.page
	s.mu.Unlock()

	if page == nil {
		return true
	}
	if top, ok := page.HeadingTop(id); ok {
		page.ScrollTo(top + page.ScrollY() - SelectOffset)
	}
	return true
}
