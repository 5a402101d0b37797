// Package preview attaches hover and click-to-zoom image previews to
// trigger elements of rendered markup.
package preview

// Event names a trigger interaction.
type Event string

const (
	MouseEnter Event = "mouseenter"
	MouseLeave Event = "mouseleave"
	Click      Event = "click"
)

// Rect is an element's bounding box relative to the viewport.
type Rect struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Viewport is the visible window size.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Trigger is one element carrying a preview image URL.
type Trigger interface {
	PreviewURL() string
	Rect() Rect
	On(event Event, fn func()) (remove func())
}

// Popup is the floating hover preview.
type Popup interface {
	Show(url string, left, top float64)
	Hide()
	Remove()
}

// Modal is the fullscreen zoom view. OnDismiss fires for backdrop and close
// control clicks.
type Modal interface {
	Show(url string)
	Hide()
	OnDismiss(fn func()) (remove func())
	Remove()
}

// Document is the page hosting rendered markup. Triggers resolves the
// trigger elements of the committed markup.
type Document interface {
	Triggers(markup string) []Trigger
	Viewport() Viewport
	NewPopup() Popup
	NewModal() Modal
	OnKey(fn func(key string)) (remove func())
	LockScroll(locked bool)
}
