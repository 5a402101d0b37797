package reading

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mdddj/blog-new-sub000/internal/render"
)

var ErrNotFound = errors.New("not found")

// Entry is the persisted source of a view.
type Entry struct {
	Kind       string
	ID         int64
	Title      string
	Content    string
	References render.References
	Published  bool
	UpdatedAt  time.Time
}

// Source loads entries. It returns ErrNotFound for missing ids.
type Source interface {
	Entry(ctx context.Context, kind string, id int64) (Entry, error)
	IncrementViews(ctx context.Context, kind string, id int64) error
}

type Renderer interface {
	Render(ctx context.Context, markdown string) (string, error)
}

// ViewCache is implemented by Cache. A nil ViewCache disables caching.
type ViewCache interface {
	GetView(ctx context.Context, kind string, id int64, digest string) (View, bool, error)
	SetView(ctx context.Context, view View) error
	Invalidate(ctx context.Context, kind string, id int64) error
	FirstView(ctx context.Context, kind string, id int64, ip string) (bool, error)
}

// Service renders entries for readers, caching by content digest.
type Service struct {
	source   Source
	renderer Renderer
	cache    ViewCache
}

func NewService(source Source, renderer Renderer, cache ViewCache) *Service {
	return &Service{source: source, renderer: renderer, cache: cache}
}

// View returns the rendered view of an entry. Unpublished blogs are not
// visible to readers. A non-empty clientIP counts a view at most once per
// rate window.
func (s *Service) View(ctx context.Context, kind string, id int64, clientIP string) (View, error) {
	entry, err := s.source.Entry(ctx, kind, id)
	if err != nil {
		return View{}, err
	}
	if kind == "blog" && !entry.Published {
		return View{}, ErrNotFound
	}

	view, err := s.Render(ctx, entry)
	if err != nil {
		return View{}, err
	}
	if clientIP != "" {
		s.countView(ctx, kind, id, clientIP)
	}
	return view, nil
}

// Render builds the view of entry without visibility checks.
func (s *Service) Render(ctx context.Context, entry Entry) (View, error) {
	digest := Digest(entry.Content, entry.References)
	if s.cache != nil {
		cached, ok, err := s.cache.GetView(ctx, entry.Kind, entry.ID, digest)
		if err != nil {
			log.Printf("reading: cache get failed: %v", err)
		} else if ok {
			return cached, nil
		}
	}

	markup, err := s.renderer.Render(ctx, entry.Content)
	if err != nil {
		return View{}, fmt.Errorf("render %s %d: %w", entry.Kind, entry.ID, err)
	}
	view := BuildView(markup, entry.References)
	view.Kind = entry.Kind
	view.ID = entry.ID
	view.Title = entry.Title
	view.UpdatedAt = entry.UpdatedAt
	view.Digest = digest

	if s.cache != nil {
		if err := s.cache.SetView(ctx, view); err != nil {
			log.Printf("reading: cache set failed: %v", err)
		}
	}
	return view, nil
}

// Invalidate drops cached views after an entry changes.
func (s *Service) Invalidate(ctx context.Context, kind string, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, kind, id); err != nil {
		log.Printf("reading: invalidate %s %d failed: %v", kind, id, err)
	}
}

func (s *Service) countView(ctx context.Context, kind string, id int64, ip string) {
	if s.cache != nil {
		first, err := s.cache.FirstView(ctx, kind, id, ip)
		if err != nil {
			log.Printf("reading: view rate limit failed: %v", err)
			return
		}
		if !first {
			return
		}
	}
	if err := s.source.IncrementViews(ctx, kind, id); err != nil {
		log.Printf("reading: increment views %s %d failed: %v", kind, id, err)
	}
}
