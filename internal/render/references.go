package render

import (
	"regexp"
	"strconv"
	"strings"
)

// Reference is a citation stored alongside a blog or document and cited
// inline with a :::ref[id] marker.
type Reference struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// References maps reference ids to entries.
type References map[string]Reference

// Clone returns an independent copy of the table.
func (r References) Clone() References {
	out := make(References, len(r))
	for id, ref := range r {
		out[id] = ref
	}
	return out
}

// NextID returns the lowest unused id of the form ref-<n>, n >= 1.
func (r References) NextID() string {
	for n := 1; ; n++ {
		id := "ref-" + strconv.Itoa(n)
		if _, taken := r[id]; !taken {
			return id
		}
	}
}

// SegmentKind distinguishes literal markup from resolved references.
type SegmentKind string

const (
	SegmentMarkup    SegmentKind = "markup"
	SegmentReference SegmentKind = "reference"
)

// Segment is one piece of split markup. Reference segments keep the marker
// text they were parsed from so that Join is lossless.
type Segment struct {
	Kind  SegmentKind `json:"kind"`
	Text  string      `json:"text"`
	RefID string      `json:"refId,omitempty"`
}

var refMarker = regexp.MustCompile(`:::ref\[([^\]]+)\]`)

// Marker returns the inline marker text citing id.
func Marker(id string) string {
	return ":::ref[" + id + "]"
}

// Split cuts markup around :::ref[id] markers. Resolved markers become
// reference segments, each surrounded by markup segments that may be empty.
// Markers whose id is not in refs stay in the surrounding markup verbatim.
func Split(markup string, refs References) []Segment {
	var (
		segments []Segment
		literal  strings.Builder
		last     int
	)
	for _, m := range refMarker.FindAllStringSubmatchIndex(markup, -1) {
		start, end := m[0], m[1]
		id := markup[m[2]:m[3]]
		literal.WriteString(markup[last:start])
		if _, ok := refs[id]; ok {
			segments = append(segments,
				Segment{Kind: SegmentMarkup, Text: literal.String()},
				Segment{Kind: SegmentReference, Text: markup[start:end], RefID: id},
			)
			literal.Reset()
		} else {
			literal.WriteString(markup[start:end])
		}
		last = end
	}
	literal.WriteString(markup[last:])
	return append(segments, Segment{Kind: SegmentMarkup, Text: literal.String()})
}

// Join concatenates segments back into the markup they were split from.
func Join(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// CitedIDs lists the distinct resolved reference ids in order of first use.
func CitedIDs(segments []Segment) []string {
	seen := map[string]struct{}{}
	ids := []string{}
	for _, s := range segments {
		if s.Kind != SegmentReference {
			continue
		}
		if _, ok := seen[s.RefID]; ok {
			continue
		}
		seen[s.RefID] = struct{}{}
		ids = append(ids, s.RefID)
	}
	return ids
}
