package search

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/mdddj/blog-new-sub000/internal/store"
)

const (
	BackendPrimary  = "meilisearch"
	BackendFallback = "postgres"
)

// Loader supplies every stored row for a full reindex.
type Loader interface {
	ListForIndex(ctx context.Context) ([]store.IndexItem, error)
}

// Service is the facade that tries the primary index first and falls back
// to Postgres full-text search.
type Service struct {
	primary  Searcher
	indexer  Indexer
	fallback Searcher
	pending  sync.WaitGroup
}

// NewService creates a search service. primary may be nil when Meilisearch
// is not configured; when it also implements Indexer it receives writes.
func NewService(primary Searcher, fallback Searcher) *Service {
	s := &Service{primary: primary, fallback: fallback}
	if idx, ok := primary.(Indexer); ok {
		s.indexer = idx
	}
	return s
}

// Search tries the primary backend when healthy, otherwise the fallback.
func (s *Service) Search(ctx context.Context, q Query) Response {
	q.Text = strings.TrimSpace(q.Text)
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: BackendPrimary}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: BackendFallback}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Backend: BackendFallback}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: BackendFallback}
}

// Index pushes one record to the primary index in the background.
func (s *Service) Index(rec Record) {
	if s.indexer == nil || !s.indexer.Healthy() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.indexer.Index(rec); err != nil {
			log.Printf("search: index %s: %v", rec.Key, err)
		}
	}()
}

// Delete removes one record from the primary index in the background.
func (s *Service) Delete(kind ResultType, id int64) {
	if s.indexer == nil || !s.indexer.Healthy() {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.indexer.Delete(kind, id); err != nil {
			log.Printf("search: delete %s: %v", RecordKey(kind, id), err)
		}
	}()
}

// ReindexAll loads every row and pushes it to the primary index.
func (s *Service) ReindexAll(ctx context.Context, loader Loader) {
	if s.indexer == nil || !s.indexer.Healthy() || loader == nil {
		return
	}
	items, err := loader.ListForIndex(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}
	recs := make([]Record, 0, len(items))
	for _, item := range items {
		recs = append(recs, RecordFromItem(item))
	}
	if err := s.indexer.IndexAll(recs); err != nil {
		log.Printf("search: reindex: %v", err)
		return
	}
	log.Printf("search: reindexed %d records", len(recs))
}

// Wait blocks until background index writes finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
