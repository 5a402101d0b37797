// Package reading assembles the rendered view of a blog or document for the
// reading surface: anchored headings, the outline, reference segments and
// image preview triggers.
package reading

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/mdddj/blog-new-sub000/internal/preview"
	"github.com/mdddj/blog-new-sub000/internal/render"
	"github.com/mdddj/blog-new-sub000/internal/toc"
)

// View is everything a reading page needs to display rendered markup.
type View struct {
	Kind       string                `json:"kind,omitempty"`
	ID         int64                 `json:"id,omitempty"`
	Title      string                `json:"title,omitempty"`
	UpdatedAt  time.Time             `json:"updatedAt,omitempty"`
	HTML       string                `json:"html"`
	Headings   []render.Heading      `json:"headings"`
	Outline    []toc.OutlineItem     `json:"outline"`
	Segments   []render.Segment      `json:"segments"`
	References render.References     `json:"references"`
	Cited      []string              `json:"cited"`
	Triggers   []preview.TriggerInfo `json:"triggers"`
	Digest     string                `json:"digest,omitempty"`
}

// BuildView post-processes markup from the rendering service. Headings are
// extracted from and stamped into the same markup so their ids agree.
func BuildView(markup string, refs render.References) View {
	stamped := render.StampHeadingIDs(markup)
	headings := render.ExtractHeadings(markup)
	segments := render.Split(stamped, refs)
	if refs == nil {
		refs = render.References{}
	}
	return View{
		HTML:       stamped,
		Headings:   headings,
		Outline:    toc.Outline(headings),
		Segments:   segments,
		References: refs,
		Cited:      render.CitedIDs(segments),
		Triggers:   preview.FindTriggers(stamped),
	}
}

// Digest identifies a content and reference table pair.
func Digest(content string, refs render.References) string {
	refJSON, _ := json.Marshal(refs)
	h, _ := blake2b.New256(nil)
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write(refJSON)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
