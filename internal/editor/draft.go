package editor

import (
	"strings"
	"time"

	"github.com/mdddj/blog-new-sub000/internal/render"
)

// Kind is the type of content being edited.
type Kind string

const (
	KindBlog     Kind = "blog"
	KindDocument Kind = "document"
)

func (k Kind) Valid() bool {
	return k == KindBlog || k == KindDocument
}

// Fields are the form values edited alongside the buffer. Title holds a
// blog's title or a document's name.
type Fields struct {
	Title       string  `json:"title"`
	Slug        string  `json:"slug,omitempty"`
	Author      string  `json:"author,omitempty"`
	Summary     string  `json:"summary,omitempty"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	CategoryID  *int64  `json:"categoryId,omitempty"`
	TagIDs      []int64 `json:"tagIds,omitempty"`
	Filename    string  `json:"filename,omitempty"`
	DirectoryID *int64  `json:"directoryId,omitempty"`
	SortOrder   int     `json:"sortOrder,omitempty"`
	Published   bool    `json:"published"`
}

// Draft is the full editable state of one blog or document.
type Draft struct {
	Kind       Kind              `json:"kind"`
	ID         int64             `json:"id"`
	Fields     Fields            `json:"fields"`
	Content    string            `json:"content"`
	References render.References `json:"references"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Clone returns a copy sharing no mutable state with d.
func (d Draft) Clone() Draft {
	out := d
	out.References = d.References.Clone()
	out.Fields.TagIDs = append([]int64(nil), d.Fields.TagIDs...)
	if d.Fields.CategoryID != nil {
		v := *d.Fields.CategoryID
		out.Fields.CategoryID = &v
	}
	if d.Fields.DirectoryID != nil {
		v := *d.Fields.DirectoryID
		out.Fields.DirectoryID = &v
	}
	return out
}

// Validate checks what every save needs.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Fields.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(d.Content) == "" {
		return ErrContentRequired
	}
	return nil
}
