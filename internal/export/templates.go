package export

import (
	"bytes"
	"embed"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/mdddj/blog-new-sub000/internal/reading"
	"github.com/mdddj/blog-new-sub000/internal/render"
	"github.com/mdddj/blog-new-sub000/internal/toc"
)

//go:embed templates/*.html
var templateFS embed.FS

var documentTemplate = template.Must(template.New("document.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/document.html"))

// TemplateData holds data for document template rendering.
type TemplateData struct {
	Title       string
	UpdatedAt   time.Time
	Outline     []toc.OutlineItem
	ContentHTML template.HTML
	Notes       []Note
}

// Note is one cited reference, numbered by first citation.
type Note struct {
	Number  int
	Anchor  string
	Title   string
	Content string
}

// BuildTemplateData lays out a rendered view for export. Each cited
// reference marker becomes a numbered superscript linking to its note.
func BuildTemplateData(view reading.View, omitNotes bool) TemplateData {
	numbers := make(map[string]int, len(view.Cited))
	notes := make([]Note, 0, len(view.Cited))
	for i, id := range view.Cited {
		ref := view.References[id]
		numbers[id] = i + 1
		notes = append(notes, Note{
			Number:  i + 1,
			Anchor:  noteAnchor(id),
			Title:   ref.Title,
			Content: ref.Content,
		})
	}

	var body strings.Builder
	for _, seg := range view.Segments {
		if seg.Kind != render.SegmentReference {
			body.WriteString(seg.Text)
			continue
		}
		if omitNotes {
			continue
		}
		n := strconv.Itoa(numbers[seg.RefID])
		body.WriteString(`<sup class="ref"><a href="#` + template.HTMLEscapeString(noteAnchor(seg.RefID)) + `">[` + n + `]</a></sup>`)
	}
	if omitNotes {
		notes = nil
	}

	return TemplateData{
		Title:       view.Title,
		UpdatedAt:   view.UpdatedAt,
		Outline:     view.Outline,
		ContentHTML: template.HTML(body.String()),
		Notes:       notes,
	}
}

// RenderDocumentHTML renders the standalone page.
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func noteAnchor(id string) string {
	return "note-" + id
}
