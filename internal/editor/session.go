package editor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mdddj/blog-new-sub000/internal/autosave"
	"github.com/mdddj/blog-new-sub000/internal/media"
	"github.com/mdddj/blog-new-sub000/internal/notify"
	"github.com/mdddj/blog-new-sub000/internal/preview"
	"github.com/mdddj/blog-new-sub000/internal/reading"
	"github.com/mdddj/blog-new-sub000/internal/render"
	"github.com/mdddj/blog-new-sub000/internal/timing"
	"github.com/mdddj/blog-new-sub000/internal/toc"
)

// Persister stores a draft. Implementations return an error on any failure.
type Persister interface {
	Persist(ctx context.Context, d Draft) error
}

// Uploader turns an image file into a markup snippet.
type Uploader interface {
	Upload(ctx context.Context, f media.File) (string, error)
}

// Renderer converts the raw buffer into display markup.
type Renderer interface {
	Render(ctx context.Context, markdown string) (string, error)
}

type Options struct {
	Persister Persister
	Uploader  Uploader
	Renderer  Renderer
	Clock     timing.Clock

	AutoSave      bool
	AutoSaveDelay time.Duration
	FlashDelay    time.Duration
	Viewport      preview.Viewport

	// HeadingTracking names the toc strategy for the preview page.
	HeadingTracking string

	// OnPersisted runs after every successful save, automatic or manual.
	OnPersisted func(d Draft)
}

// Session is one editing surface: a buffer, a caret hint, the reference
// table and form fields of the loaded draft, and its auto-save controller.
type Session struct {
	id       string
	opts     Options
	notes    *notify.Feed
	autosave *autosave.Controller[Draft]
	page     *preview.Headless
	overlay  *preview.Overlay
	headings toc.Tracker

	mu        sync.Mutex
	draft     Draft
	loaded    bool
	loadSeq   int
	caret     int
	uploading int
	closed    bool
}

// Status is a snapshot of a session for display.
type Status struct {
	ID            string                `json:"id"`
	Loaded        bool                  `json:"loaded"`
	Draft         Draft                 `json:"draft"`
	Caret         int                   `json:"caret"`
	Uploading     bool                  `json:"uploading"`
	AutoSave      autosave.Status       `json:"autoSave"`
	Preview       preview.State         `json:"preview"`
	ActiveHeading string                `json:"activeHeading,omitempty"`
	Notifications []notify.Notification `json:"notifications"`
}

func NewSession(id string, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = timing.Real{}
	}
	if opts.Viewport == (preview.Viewport{}) {
		opts.Viewport = preview.Viewport{Width: 1280, Height: 800}
	}
	s := &Session{
		id:    id,
		opts:  opts,
		notes: notify.NewFeed("session "+id, notify.DefaultLimit),
		caret: NoCaret,
	}
	s.autosave = autosave.New(autosave.Config[Draft]{
		Save:     s.persistAuto,
		Build:    s.payload,
		Title:    s.title,
		Notifier: s.notes,
		Clock:    opts.Clock,
		Delay:    opts.AutoSaveDelay,
		Flash:    opts.FlashDelay,
		Enabled:  opts.AutoSave,
		OnSaved:  s.persisted,
	})
	s.page = preview.NewHeadless(opts.Viewport)
	s.overlay = preview.New(s.page, opts.Clock)
	s.headings = toc.New(opts.HeadingTracking, s.page, s.page.NewObserver)
	return s
}

func (s *Session) ID() string { return s.id }

// Load replaces the session's draft with a freshly fetched one. The loaded
// content counts as already persisted.
func (s *Session) Load(d Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.draft = d.Clone()
	if s.draft.References == nil {
		s.draft.References = render.References{}
	}
	s.loaded = true
	s.loadSeq++
	s.caret = NoCaret
	s.autosave.Reset(d.Content)
	return nil
}

// Edit replaces the buffer with the user's latest text.
func (s *Session) Edit(content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	s.draft.Content = content
	s.autosave.Update(content)
	return nil
}

// SetFields replaces the form fields. The buffer debounce is not restarted;
// a title change re-checks the settled content.
func (s *Session) SetFields(f Fields) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	titleChanged := s.draft.Fields.Title != f.Title
	s.draft.Fields = Draft{Fields: f}.Clone().Fields
	s.mu.Unlock()

	if titleChanged {
		s.autosave.Reevaluate()
	}
	return nil
}

// SetTitle changes only the title (a document's name).
func (s *Session) SetTitle(title string) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	changed := s.draft.Fields.Title != title
	s.draft.Fields.Title = title
	s.mu.Unlock()

	if changed {
		s.autosave.Reevaluate()
	}
	return nil
}

// MoveCaret records the caret position reported by the input surface.
func (s *Session) MoveCaret(offset int) {
	if offset < 0 {
		offset = NoCaret
	}
	s.mu.Lock()
	s.caret = offset
	s.mu.Unlock()
}

// InsertImages uploads the image files and inserts their snippets at the
// caret position recorded before the upload started. Non-image files are
// ignored. A failed upload leaves the buffer untouched.
func (s *Session) InsertImages(ctx context.Context, files []media.File) (int, error) {
	images := make([]media.File, 0, len(files))
	for _, f := range files {
		if f.IsImage() {
			images = append(images, f)
		}
	}
	if len(images) == 0 {
		return 0, ErrNoImages
	}

	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	caret, seq := s.caret, s.loadSeq
	s.uploading++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.uploading--
		s.mu.Unlock()
	}()

	snippets := make([]string, 0, len(images))
	for _, f := range images {
		snippet, err := s.opts.Uploader.Upload(ctx, f)
		if err != nil {
			s.notes.Notify(notify.Error, "Upload failed: "+f.Name)
			return 0, fmt.Errorf("upload %s: %w", f.Name, err)
		}
		s.notes.Notify(notify.Success, fmt.Sprintf("Uploaded %s (%s)", f.Name, media.FormatSize(f.Size)))
		snippets = append(snippets, snippet)
	}

	if err := s.insertAt(seq, caret, strings.Join(snippets, "\n")); err != nil {
		return 0, err
	}
	return len(snippets), nil
}

// InsertReference inserts a marker citing id at the caret.
func (s *Session) InsertReference(id string) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.draft.References[id]; !ok {
		s.mu.Unlock()
		return ErrReferenceNotFound
	}
	caret, seq := s.caret, s.loadSeq
	s.mu.Unlock()
	return s.insertAt(seq, caret, render.Marker(id))
}

func (s *Session) insertAt(seq, caret int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if seq != s.loadSeq {
		return ErrDocumentChanged
	}
	content, _ := InsertAtCursor(s.draft.Content, text, caret)
	s.draft.Content = content
	s.autosave.Update(content)
	return nil
}

// CreateReference adds a reference under the lowest free ref-<n> id.
func (s *Session) CreateReference(title, content string) (render.Reference, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return render.Reference{}, ErrReferenceInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return render.Reference{}, err
	}
	ref := render.Reference{ID: s.draft.References.NextID(), Title: title, Content: content}
	s.draft.References[ref.ID] = ref
	return ref, nil
}

func (s *Session) UpdateReference(id, title, content string) (render.Reference, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return render.Reference{}, ErrReferenceInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return render.Reference{}, err
	}
	if _, ok := s.draft.References[id]; !ok {
		return render.Reference{}, ErrReferenceNotFound
	}
	ref := render.Reference{ID: id, Title: title, Content: content}
	s.draft.References[id] = ref
	return ref, nil
}

// DeleteReference removes a reference. Markers citing it stay in the buffer
// and render as literal text.
func (s *Session) DeleteReference(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	if _, ok := s.draft.References[id]; !ok {
		return ErrReferenceNotFound
	}
	delete(s.draft.References, id)
	return nil
}

// ToggleAutoSave flips automatic saving and returns the new state.
func (s *Session) ToggleAutoSave() bool {
	return s.autosave.Toggle()
}

// SaveDraft persists the draft unpublished.
func (s *Session) SaveDraft(ctx context.Context) error {
	return s.saveManual(ctx, false)
}

// Publish persists the draft and marks it published.
func (s *Session) Publish(ctx context.Context) error {
	return s.saveManual(ctx, true)
}

func (s *Session) saveManual(ctx context.Context, publish bool) error {
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	d := s.draft.Clone()
	seq := s.loadSeq
	s.mu.Unlock()

	d.Fields.Published = publish
	if err := d.Validate(); err != nil {
		s.notes.Notify(notify.Error, err.Error())
		return err
	}
	if err := s.opts.Persister.Persist(ctx, d); err != nil {
		s.notes.Notify(notify.Error, "Save failed: "+err.Error())
		return fmt.Errorf("save %s %d: %w", d.Kind, d.ID, err)
	}

	s.mu.Lock()
	current := seq == s.loadSeq && !s.closed
	if current {
		s.draft.Fields.Published = publish
		s.autosave.MarkPersisted(d.Content)
	}
	s.mu.Unlock()

	if publish {
		s.notes.Notify(notify.Success, "Published")
	} else {
		s.notes.Notify(notify.Success, "Draft saved")
	}
	s.persisted(d)
	return nil
}

// Preview renders the buffer through the rendering service, lays the
// headings out on the preview page and refreshes the image preview overlay
// for the new markup.
func (s *Session) Preview(ctx context.Context) (reading.View, error) {
	if s.opts.Renderer == nil {
		return reading.View{}, ErrRendererMissing
	}
	s.mu.Lock()
	if err := s.editableLocked(); err != nil {
		s.mu.Unlock()
		return reading.View{}, err
	}
	content := s.draft.Content
	refs := s.draft.References.Clone()
	s.mu.Unlock()

	markup, err := s.opts.Renderer.Render(ctx, content)
	if err != nil {
		return reading.View{}, fmt.Errorf("render preview: %w", err)
	}
	view := reading.BuildView(markup, refs)
	s.page.LayoutHeadings(view.Headings)
	s.headings.SetHeadings(view.Headings)
	s.overlay.Refresh(view.HTML)
	return view, nil
}

// ActiveHeading is the id of the heading the preview page is scrolled to.
func (s *Session) ActiveHeading() string {
	return s.headings.Active()
}

// SelectHeading scrolls the preview page to heading id.
func (s *Session) SelectHeading(id string) bool {
	return s.headings.Select(id)
}

// PreviewPage exposes the page the overlay is attached to.
func (s *Session) PreviewPage() *preview.Headless {
	return s.page
}

func (s *Session) Draft() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		ID:        s.id,
		Loaded:    s.loaded,
		Draft:     s.draft.Clone(),
		Caret:     s.caret,
		Uploading: s.uploading > 0,
	}
	s.mu.Unlock()
	st.AutoSave = s.autosave.Status()
	st.Preview = s.overlay.State()
	st.ActiveHeading = s.headings.Active()
	st.Notifications = s.notes.Recent()
	return st
}

// Close stops the auto-save timers and releases the preview overlay. A save
// still running completes but is not acted upon.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.autosave.Close()
	s.overlay.Close()
	s.headings.Close()
}

// Wait blocks until running auto-saves finish.
func (s *Session) Wait() {
	s.autosave.Wait()
}

func (s *Session) editableLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if !s.loaded {
		return ErrNotLoaded
	}
	return nil
}

func (s *Session) payload() Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Clone()
}

func (s *Session) title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft.Fields.Title
}

func (s *Session) persistAuto(ctx context.Context, d Draft) error {
	if err := s.opts.Persister.Persist(ctx, d); err != nil {
		return fmt.Errorf("persist %s %d: %w", d.Kind, d.ID, err)
	}
	return nil
}

func (s *Session) persisted(d Draft) {
	log.Printf("session %s: persisted %s %d", s.id, d.Kind, d.ID)
	if s.opts.OnPersisted != nil {
		s.opts.OnPersisted(d)
	}
}
