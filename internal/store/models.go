package store

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	KindBlog     Kind = "blog"
	KindDocument Kind = "document"
)

func (k Kind) Valid() bool {
	return k == KindBlog || k == KindDocument
}

// Reference mirrors one entry of the "references" JSONB object.
type Reference struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Blog struct {
	ID          int64
	Title       string
	Slug        string
	Author      string
	Content     string
	Summary     string
	Thumbnail   string
	CategoryID  *int64
	TagIDs      []int64
	ViewCount   int64
	IsPublished bool
	References  map[string]Reference
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Document struct {
	ID          int64
	Name        string
	Filename    string
	Content     string
	DirectoryID *int64
	SortOrder   int
	ViewCount   int64
	References  map[string]Reference
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IndexItem is the flattened row the search indexer consumes.
type IndexItem struct {
	Kind      Kind
	ID        int64
	Title     string
	Summary   string
	Content   string
	Published bool
	UpdatedAt time.Time
}

func encodeReferences(refs map[string]Reference) ([]byte, error) {
	if refs == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(refs)
}

func decodeReferences(raw []byte) (map[string]Reference, error) {
	refs := map[string]Reference{}
	if len(raw) == 0 {
		return refs, nil
	}
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}
