package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mdddj/blog-new-sub000/internal/auth"
	"github.com/mdddj/blog-new-sub000/internal/config"
	"github.com/mdddj/blog-new-sub000/internal/editor"
	"github.com/mdddj/blog-new-sub000/internal/export"
	"github.com/mdddj/blog-new-sub000/internal/history"
	"github.com/mdddj/blog-new-sub000/internal/preview"
	"github.com/mdddj/blog-new-sub000/internal/rbac"
	"github.com/mdddj/blog-new-sub000/internal/reading"
	"github.com/mdddj/blog-new-sub000/internal/search"
	"github.com/mdddj/blog-new-sub000/internal/store"
	"github.com/mdddj/blog-new-sub000/internal/timing"
)

const sideEffectTimeout = 10 * time.Second

type dataStore interface {
	Ping(context.Context) error
	GetBlog(context.Context, int64) (store.Blog, error)
	UpdateBlog(context.Context, store.Blog) error
	GetDocument(context.Context, int64) (store.Document, error)
	UpdateDocument(context.Context, store.Document) error
	IncrementViews(context.Context, store.Kind, int64) error
	ListForIndex(context.Context) ([]store.IndexItem, error)
}

type pinger interface {
	Ping(context.Context) error
}

// Deps are the collaborators a Service is wired with. Cache may be nil.
type Deps struct {
	Store    dataStore
	Renderer editor.Renderer
	Uploader editor.Uploader
	Cache    reading.ViewCache
	Search   *search.Service
	History  *history.Service
	Clock    timing.Clock
}

// Principal is the authenticated caller.
type Principal struct {
	UserID   int64
	UserName string
	Role     rbac.Role
}

type sessionEntry struct {
	session  *editor.Session
	owner    int64
	lastSeen time.Time
}

type Service struct {
	cfg      config.Config
	store    dataStore
	renderer editor.Renderer
	uploader editor.Uploader
	cache    reading.ViewCache
	reading  *reading.Service
	exporter *export.Service
	search   *search.Service
	history  *history.Service
	clock    timing.Clock
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func New(cfg config.Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = timing.Real{}
	}
	if deps.Search == nil {
		deps.Search = search.NewService(nil, nil)
	}
	s := &Service{
		cfg:      cfg,
		store:    deps.Store,
		renderer: deps.Renderer,
		uploader: deps.Uploader,
		cache:    deps.Cache,
		search:   deps.Search,
		history:  deps.History,
		clock:    deps.Clock,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
	s.reading = reading.NewService(storeSource{store: deps.Store}, deps.Renderer, deps.Cache)
	s.exporter = export.NewService(s.reading)
	return s
}

// Bootstrap brings the search index in line with the database.
func (s *Service) Bootstrap(ctx context.Context) {
	s.search.ReindexAll(ctx, s.store)
}

func (s *Service) Exporter() *export.Service {
	return s.exporter
}

// Ping checks the database and, when configured, the view cache.
func (s *Service) Ping(ctx context.Context) map[string]error {
	checks := map[string]error{"database": s.store.Ping(ctx)}
	if p, ok := s.cache.(pinger); ok {
		checks["cache"] = p.Ping(ctx)
	}
	return checks
}

// Authenticate verifies a bearer token.
func (s *Service) Authenticate(token string) (Principal, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token, s.now())
	if err != nil {
		return Principal{}, err
	}
	return Principal{
		UserID:   claims.Sub,
		UserName: claims.Username,
		Role:     rbac.Normalize(claims.Role),
	}, nil
}

func (s *Service) Can(p Principal, action rbac.Action) bool {
	return rbac.Can(p.Role, action)
}

func (s *Service) View(ctx context.Context, kind store.Kind, id int64, clientIP string) (reading.View, error) {
	return s.reading.View(ctx, string(kind), id, clientIP)
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.exporter.Export(ctx, req)
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	return s.search.Search(ctx, q)
}

// OpenSession loads kind/id into a new editing session owned by p.
func (s *Service) OpenSession(ctx context.Context, p Principal, kind store.Kind, id int64) (editor.Status, error) {
	draft, err := s.loadDraft(ctx, kind, id)
	if err != nil {
		return editor.Status{}, err
	}

	sid := uuid.NewString()
	sess := editor.NewSession(sid, editor.Options{
		Persister:       persisterFunc(s.persist),
		Uploader:        s.uploader,
		Renderer:        s.renderer,
		Clock:           s.clock,
		AutoSave:        s.cfg.AutoSaveDefault,
		AutoSaveDelay:   s.cfg.AutoSaveDelay,
		FlashDelay:      s.cfg.AutoSaveFlash,
		Viewport:        preview.Viewport{Width: float64(s.cfg.ViewportWidth), Height: float64(s.cfg.ViewportHeight)},
		HeadingTracking: s.cfg.HeadingTracking,
		OnPersisted: func(d editor.Draft) {
			s.afterPersist(p, d)
		},
	})
	if err := sess.Load(draft); err != nil {
		sess.Close()
		return editor.Status{}, err
	}

	s.mu.Lock()
	s.sessions[sid] = &sessionEntry{session: sess, owner: p.UserID, lastSeen: s.now()}
	s.mu.Unlock()
	log.Printf("app: session %s opened %s %d for %s", sid, kind, id, p.UserName)
	return sess.Status(), nil
}

// Session returns the session sid when p may use it.
func (s *Service) Session(sid string, p Principal) (*editor.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sid]
	if !ok || (entry.owner != p.UserID && p.Role != rbac.RoleAdmin) {
		return nil, errSessionNotFound
	}
	entry.lastSeen = s.now()
	return entry.session, nil
}

// LoadInto switches an open session to another blog or document.
func (s *Service) LoadInto(ctx context.Context, sess *editor.Session, kind store.Kind, id int64) error {
	draft, err := s.loadDraft(ctx, kind, id)
	if err != nil {
		return err
	}
	return sess.Load(draft)
}

func (s *Service) CloseSession(sid string, p Principal) error {
	if _, err := s.Session(sid, p); err != nil {
		return err
	}
	s.mu.Lock()
	entry := s.sessions[sid]
	delete(s.sessions, sid)
	s.mu.Unlock()
	if entry != nil {
		entry.session.Close()
	}
	return nil
}

// ReapIdle closes sessions not used for longer than the configured idle TTL
// and returns how many were closed.
func (s *Service) ReapIdle(now time.Time) int {
	if s.cfg.SessionIdleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	var stale []*editor.Session
	for sid, entry := range s.sessions {
		if now.Sub(entry.lastSeen) > s.cfg.SessionIdleTTL {
			stale = append(stale, entry.session)
			delete(s.sessions, sid)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.Close()
		log.Printf("app: session %s closed after idling", sess.ID())
	}
	return len(stale)
}

// Shutdown closes every session and waits for in-flight saves.
func (s *Service) Shutdown() {
	s.mu.Lock()
	all := make([]*editor.Session, 0, len(s.sessions))
	for sid, entry := range s.sessions {
		all = append(all, entry.session)
		delete(s.sessions, sid)
	}
	s.mu.Unlock()

	for _, sess := range all {
		sess.Close()
	}
	for _, sess := range all {
		sess.Wait()
	}
	s.search.Wait()
}

func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// History lists saved revisions of the draft loaded in sess.
func (s *Service) History(sess *editor.Session, limit int) ([]history.Revision, error) {
	d := sess.Draft()
	return s.history.History(string(d.Kind), d.ID, limit)
}

// Revision returns one saved snapshot and how it differs from the buffer.
func (s *Service) Revision(sess *editor.Session, hash string) (history.Content, []history.FieldChange, error) {
	d := sess.Draft()
	content, err := s.history.ContentAt(string(d.Kind), d.ID, hash)
	if err != nil {
		return history.Content{}, nil, err
	}
	return content, history.Changes(content, snapshotFromDraft(d)), nil
}

func (s *Service) loadDraft(ctx context.Context, kind store.Kind, id int64) (editor.Draft, error) {
	switch kind {
	case store.KindBlog:
		b, err := s.store.GetBlog(ctx, id)
		if err != nil {
			return editor.Draft{}, err
		}
		return draftFromBlog(b), nil
	case store.KindDocument:
		d, err := s.store.GetDocument(ctx, id)
		if err != nil {
			return editor.Draft{}, err
		}
		return draftFromDocument(d), nil
	default:
		return editor.Draft{}, errInvalidKind
	}
}

func (s *Service) persist(ctx context.Context, d editor.Draft) error {
	switch d.Kind {
	case editor.KindBlog:
		return s.store.UpdateBlog(ctx, blogFromDraft(d))
	case editor.KindDocument:
		return s.store.UpdateDocument(ctx, documentFromDraft(d))
	default:
		return fmt.Errorf("persist: unknown kind %q", d.Kind)
	}
}

// afterPersist records history, refreshes the search index and drops cached
// views. Failures are logged; the save itself already succeeded.
func (s *Service) afterPersist(p Principal, d editor.Draft) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if s.history != nil {
		message := fmt.Sprintf("Save %s %d", d.Kind, d.ID)
		if _, _, err := s.history.Commit(string(d.Kind), d.ID, snapshotFromDraft(d), p.UserName, message); err != nil {
			log.Printf("app: history commit %s %d: %v", d.Kind, d.ID, err)
		}
	}
	s.search.Index(recordFromDraft(d))
	s.reading.Invalidate(ctx, string(d.Kind), d.ID)
}

type persisterFunc func(ctx context.Context, d editor.Draft) error

func (f persisterFunc) Persist(ctx context.Context, d editor.Draft) error { return f(ctx, d) }

// storeSource adapts the store to the reading service.
type storeSource struct {
	store dataStore
}

func (src storeSource) Entry(ctx context.Context, kind string, id int64) (reading.Entry, error) {
	switch store.Kind(kind) {
	case store.KindBlog:
		b, err := src.store.GetBlog(ctx, id)
		if err != nil {
			return reading.Entry{}, readingErr(err)
		}
		return entryFromBlog(b), nil
	case store.KindDocument:
		d, err := src.store.GetDocument(ctx, id)
		if err != nil {
			return reading.Entry{}, readingErr(err)
		}
		return entryFromDocument(d), nil
	default:
		return reading.Entry{}, reading.ErrNotFound
	}
}

func (src storeSource) IncrementViews(ctx context.Context, kind string, id int64) error {
	return src.store.IncrementViews(ctx, store.Kind(kind), id)
}

func readingErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return reading.ErrNotFound
	}
	return err
}

func sortedCheckNames(checks map[string]error) []string {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func statusFor(checks map[string]error) int {
	for _, err := range checks {
		if err != nil {
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusOK
}
