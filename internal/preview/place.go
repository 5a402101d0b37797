package preview

const (
	popupGap      = 10
	popupMinSpace = 320
	popupHeight   = 310
	popupWidth    = 420
	edgeMargin    = 10
)

// PlacePopup positions the popup below the trigger when there is room (or
// more room than above) and above it otherwise, kept inside the viewport.
func PlacePopup(trigger Rect, vp Viewport) (left, top float64) {
	spaceBelow := vp.Height - trigger.Bottom
	spaceAbove := trigger.Top
	if spaceBelow > popupMinSpace || spaceBelow > spaceAbove {
		top = trigger.Bottom + popupGap
	} else {
		top = trigger.Top - popupHeight
	}
	left = max(edgeMargin, min(trigger.Left, vp.Width-popupWidth))
	return left, max(edgeMargin, top)
}
