package editor

// NoCaret marks an unknown caret position. Insertions at NoCaret append to
// the end of the buffer.
const NoCaret = -1

// InsertAtCursor splices text into buffer at the character offset, framed by
// newlines, and returns the new buffer with the offset just past the inserted
// fragment. A negative offset appends; an offset past the end is clamped.
func InsertAtCursor(buffer, text string, offset int) (string, int) {
	fragment := "\n" + text + "\n"
	runes := []rune(buffer)
	fragmentLen := len([]rune(fragment))

	if offset < 0 || offset >= len(runes) {
		return buffer + fragment, len(runes) + fragmentLen
	}

	result := string(runes[:offset]) + fragment + string(runes[offset:])
	return result, offset + fragmentLen
}
