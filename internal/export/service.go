package export

import (
	"context"
	"fmt"

	"github.com/mdddj/blog-new-sub000/internal/reading"
)

// Source resolves the rendered view to export.
type Source interface {
	View(ctx context.Context, kind string, id int64, clientIP string) (reading.View, error)
}

// Converter turns a standalone HTML page into a file.
type Converter func(ctx context.Context, html, title string) (*Result, error)

type Service struct {
	source     Source
	converters map[Format]Converter
}

// NewService wires the headless Chrome PDF and pandoc DOCX converters.
func NewService(source Source) *Service {
	return &Service{
		source: source,
		converters: map[Format]Converter{
			FormatPDF:  exportPDF,
			FormatDOCX: exportDOCX,
		},
	}
}

// WithConverter replaces the converter for one format.
func (s *Service) WithConverter(format Format, conv Converter) *Service {
	s.converters[format] = conv
	return s
}

// Export renders the requested entry and converts it.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	conv, ok := s.converters[req.Format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	view, err := s.source.View(ctx, req.Kind, req.ID, "")
	if err != nil {
		return nil, fmt.Errorf("load view: %w", err)
	}
	html, err := RenderDocumentHTML(BuildTemplateData(view, req.OmitNotes))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return conv(ctx, html, view.Title)
}
