package search

import (
	"context"
	"strconv"

	"github.com/mdddj/blog-new-sub000/internal/store"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultBlog     ResultType = "blog"
	ResultDocument ResultType = "document"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      int64      `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	Limit         int
	Offset        int
	IncludeDrafts bool
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	Index(rec Record) error
	IndexAll(recs []Record) error
	Delete(kind ResultType, id int64) error
	Healthy() bool
}

// Record is the data indexed for a blog or document. Key is the index
// primary key and combines kind and id.
type Record struct {
	Key       string     `json:"key"`
	Type      ResultType `json:"type"`
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Summary   string     `json:"summary"`
	Content   string     `json:"content"`
	Published bool       `json:"published"`
}

func RecordKey(kind ResultType, id int64) string {
	return string(kind) + "-" + strconv.FormatInt(id, 10)
}

// RecordFromItem converts a stored row into an index record.
func RecordFromItem(item store.IndexItem) Record {
	kind := ResultType(item.Kind)
	return Record{
		Key:       RecordKey(kind, item.ID),
		Type:      kind,
		ID:        item.ID,
		Title:     item.Title,
		Summary:   item.Summary,
		Content:   item.Content,
		Published: item.Published,
	}
}
