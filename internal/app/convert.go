package app

import (
	"github.com/mdddj/blog-new-sub000/internal/editor"
	"github.com/mdddj/blog-new-sub000/internal/history"
	"github.com/mdddj/blog-new-sub000/internal/reading"
	"github.com/mdddj/blog-new-sub000/internal/render"
	"github.com/mdddj/blog-new-sub000/internal/search"
	"github.com/mdddj/blog-new-sub000/internal/store"
)

func refsFromStore(in map[string]store.Reference) render.References {
	out := make(render.References, len(in))
	for id, ref := range in {
		if ref.ID == "" {
			ref.ID = id
		}
		out[id] = render.Reference{ID: ref.ID, Title: ref.Title, Content: ref.Content}
	}
	return out
}

func refsToStore(in render.References) map[string]store.Reference {
	out := make(map[string]store.Reference, len(in))
	for id, ref := range in {
		out[id] = store.Reference{ID: ref.ID, Title: ref.Title, Content: ref.Content}
	}
	return out
}

func draftFromBlog(b store.Blog) editor.Draft {
	return editor.Draft{
		Kind: editor.KindBlog,
		ID:   b.ID,
		Fields: editor.Fields{
			Title:      b.Title,
			Slug:       b.Slug,
			Author:     b.Author,
			Summary:    b.Summary,
			Thumbnail:  b.Thumbnail,
			CategoryID: b.CategoryID,
			TagIDs:     b.TagIDs,
			Published:  b.IsPublished,
		},
		Content:    b.Content,
		References: refsFromStore(b.References),
		UpdatedAt:  b.UpdatedAt,
	}
}

func draftFromDocument(d store.Document) editor.Draft {
	return editor.Draft{
		Kind: editor.KindDocument,
		ID:   d.ID,
		Fields: editor.Fields{
			Title:       d.Name,
			Filename:    d.Filename,
			DirectoryID: d.DirectoryID,
			SortOrder:   d.SortOrder,
			Published:   true,
		},
		Content:    d.Content,
		References: refsFromStore(d.References),
		UpdatedAt:  d.UpdatedAt,
	}
}

func blogFromDraft(d editor.Draft) store.Blog {
	return store.Blog{
		ID:          d.ID,
		Title:       d.Fields.Title,
		Slug:        d.Fields.Slug,
		Author:      d.Fields.Author,
		Content:     d.Content,
		Summary:     d.Fields.Summary,
		Thumbnail:   d.Fields.Thumbnail,
		CategoryID:  d.Fields.CategoryID,
		TagIDs:      d.Fields.TagIDs,
		IsPublished: d.Fields.Published,
		References:  refsToStore(d.References),
	}
}

func documentFromDraft(d editor.Draft) store.Document {
	return store.Document{
		ID:          d.ID,
		Name:        d.Fields.Title,
		Filename:    d.Fields.Filename,
		Content:     d.Content,
		DirectoryID: d.Fields.DirectoryID,
		SortOrder:   d.Fields.SortOrder,
		References:  refsToStore(d.References),
	}
}

func entryFromBlog(b store.Blog) reading.Entry {
	return reading.Entry{
		Kind:       string(store.KindBlog),
		ID:         b.ID,
		Title:      b.Title,
		Content:    b.Content,
		References: refsFromStore(b.References),
		Published:  b.IsPublished,
		UpdatedAt:  b.UpdatedAt,
	}
}

func entryFromDocument(d store.Document) reading.Entry {
	return reading.Entry{
		Kind:       string(store.KindDocument),
		ID:         d.ID,
		Title:      d.Name,
		Content:    d.Content,
		References: refsFromStore(d.References),
		Published:  true,
		UpdatedAt:  d.UpdatedAt,
	}
}

func snapshotFromDraft(d editor.Draft) history.Content {
	return history.Content{
		Title:      d.Fields.Title,
		Content:    d.Content,
		References: d.References.Clone(),
	}
}

func recordFromDraft(d editor.Draft) search.Record {
	kind := search.ResultType(d.Kind)
	return search.Record{
		Key:       search.RecordKey(kind, d.ID),
		Type:      kind,
		ID:        d.ID,
		Title:     d.Fields.Title,
		Summary:   d.Fields.Summary,
		Content:   d.Content,
		Published: d.Fields.Published,
	}
}
