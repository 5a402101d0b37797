package editor

import "errors"

var (
	ErrTitleRequired     = errors.New("title is required")
	ErrContentRequired   = errors.New("content is required")
	ErrNotLoaded         = errors.New("no document loaded")
	ErrSessionClosed     = errors.New("session closed")
	ErrNoImages          = errors.New("no image files")
	ErrReferenceNotFound = errors.New("reference not found")
	ErrReferenceInvalid  = errors.New("reference title and content are required")
	ErrRendererMissing   = errors.New("renderer not configured")
)

// ErrDocumentChanged reports that another document was loaded while an
// asynchronous insertion was running.
var ErrDocumentChanged = errors.New("document changed during insertion")
